package server

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/chazu/gear/compiler"
)

// lineEdits computes the edit batch turning the buffer oldText into newText.
// Line numbers in the batch refer to oldText, as compiler.Unit.Apply expects:
// deletions name the old line, insertions name the old line they follow.
func lineEdits(oldText, newText string) []compiler.Edit {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var edits []compiler.Edit
	pos := 0 // old lines consumed so far
	for _, d := range diffs {
		chunk := diffLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += len(chunk)
		case diffmatchpatch.DiffDelete:
			for range chunk {
				pos++
				edits = append(edits, compiler.Delete(pos))
			}
		case diffmatchpatch.DiffInsert:
			for _, line := range chunk {
				edits = append(edits, compiler.Insert(pos, line))
			}
		}
	}
	return edits
}

// diffLines splits a diff chunk into lines without their "\n" terminators.
func diffLines(text string) []string {
	if text == "" {
		return nil
	}
	parts := strings.SplitAfter(text, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\n")
	}
	return parts
}
