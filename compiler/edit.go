package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/gear/status"
)

// EditOp is the kind of a line edit.
type EditOp int

const (
	EditInsert EditOp = iota
	EditDelete
)

func (op EditOp) String() string {
	if op == EditDelete {
		return "delete"
	}
	return "insert"
}

// Edit is an immutable single-line change to a unit's buffer. Edits carry
// no reference to a unit and may be reused across units.
type Edit struct {
	Op      EditOp
	Line    int    // insert: line to insert after (0 = before the first line); delete: line to remove
	Content string // inserted text, without the line terminator
}

// Insert returns an edit inserting content after line (0 = at the top).
func Insert(after int, content string) Edit {
	return Edit{Op: EditInsert, Line: after, Content: content}
}

// Delete returns an edit removing line.
func Delete(line int) Edit {
	return Edit{Op: EditDelete, Line: line}
}

func (e Edit) String() string {
	if e.Op == EditDelete {
		return fmt.Sprintf("delete %d", e.Line)
	}
	return fmt.Sprintf("insert after %d %q", e.Line, e.Content)
}

// applyEdits computes a new buffer from lines and a batch of edits. All line
// numbers refer to lines as they were before the batch: inserts after the
// same line keep their batch order and precede the following original
// line; a deleted line disappears regardless of inserts around it. The
// batch is validated as a whole, so on error lines is left untouched.
func applyEdits(lines []string, edits []Edit) ([]string, error) {
	n := len(lines)
	inserts := make(map[int][]string)
	deleted := make(map[int]bool)
	added := 0
	for i, e := range edits {
		switch e.Op {
		case EditInsert:
			if e.Line < 0 || e.Line > n {
				return nil, status.Errorf(status.InvalidEdit, "edit %d: insert after line %d outside 0..%d", i, e.Line, n)
			}
			if strings.ContainsAny(strings.TrimSuffix(e.Content, "\r"), "\r\n") {
				return nil, status.Errorf(status.InvalidEdit, "edit %d: inserted content spans more than one line", i)
			}
			inserts[e.Line] = append(inserts[e.Line], e.Content)
			added++
		case EditDelete:
			if e.Line < 1 || e.Line > n {
				return nil, status.Errorf(status.InvalidEdit, "edit %d: delete of line %d outside 1..%d", i, e.Line, n)
			}
			if deleted[e.Line] {
				return nil, status.Errorf(status.InvalidEdit, "edit %d: line %d deleted twice", i, e.Line)
			}
			deleted[e.Line] = true
		default:
			return nil, status.Errorf(status.InvalidEdit, "edit %d: unknown operation %d", i, int(e.Op))
		}
	}

	out := make([]string, 0, n+added-len(deleted))
	out = append(out, inserts[0]...)
	for i := 1; i <= n; i++ {
		if !deleted[i] {
			out = append(out, lines[i-1])
		}
		out = append(out, inserts[i]...)
	}
	return out, nil
}

// splitLines splits source into lines. Line terminators are removed except
// for the '\r' of a CRLF pair, which stays on its line so mixed endings can
// be detected. A final terminator does not start an extra empty line.
func splitLines(src string) []string {
	if src == "" {
		return nil
	}
	lines := strings.Split(src, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// joinLines is the inverse of splitLines; every line is newline terminated.
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
