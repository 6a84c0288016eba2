package compiler

import (
	"reflect"
	"testing"

	"github.com/chazu/gear/status"
)

func TestApplyEdits(t *testing.T) {
	base := []string{"a", "b", "c"}
	tests := []struct {
		name  string
		edits []Edit
		want  []string
	}{
		{"insert at top", []Edit{Insert(0, "x")}, []string{"x", "a", "b", "c"}},
		{"insert at end", []Edit{Insert(3, "x")}, []string{"a", "b", "c", "x"}},
		{"delete first", []Edit{Delete(1)}, []string{"b", "c"}},
		{"delete last", []Edit{Delete(3)}, []string{"a", "b"}},
		{"inserts keep batch order", []Edit{Insert(1, "x"), Insert(1, "y")}, []string{"a", "x", "y", "b", "c"}},
		{"replace line", []Edit{Delete(2), Insert(2, "B")}, []string{"a", "B", "c"}},
		{"lines refer to the old buffer", []Edit{Insert(2, "x"), Delete(3)}, []string{"a", "b", "x"}},
		{"delete all", []Edit{Delete(1), Delete(2), Delete(3)}, []string{}},
		{"empty batch", nil, []string{"a", "b", "c"}},
		{"crlf content", []Edit{Insert(0, "x\r")}, []string{"x\r", "a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyEdits(base, tt.edits)
			if err != nil {
				t.Fatalf("applyEdits: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
	if !reflect.DeepEqual(base, []string{"a", "b", "c"}) {
		t.Errorf("input modified: %q", base)
	}
}

func TestApplyEditsInvalid(t *testing.T) {
	base := []string{"a", "b"}
	tests := []struct {
		name  string
		edits []Edit
	}{
		{"insert past end", []Edit{Insert(3, "x")}},
		{"insert negative", []Edit{Insert(-1, "x")}},
		{"delete zero", []Edit{Delete(0)}},
		{"delete past end", []Edit{Delete(3)}},
		{"delete twice", []Edit{Delete(1), Delete(1)}},
		{"multi-line content", []Edit{Insert(0, "x\ny")}},
		{"bare carriage return", []Edit{Insert(0, "x\ry")}},
		{"valid then invalid", []Edit{Insert(0, "ok"), Delete(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := applyEdits(base, tt.edits)
			if !status.Is(err, status.InvalidEdit) {
				t.Errorf("error = %v, want invalid edit", err)
			}
		})
	}
}

func TestUnitApplyLeavesBufferOnError(t *testing.T) {
	c := New(Config{})
	u := c.NewUnit()
	u.SetProperty(PropSource, "a\nb\n")
	if err := u.Apply(Insert(0, "x"), Delete(5)); !status.Is(err, status.InvalidEdit) {
		t.Fatalf("Apply error = %v, want invalid edit", err)
	}
	if got := u.Lines(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("lines after failed batch = %q", got)
	}
	if last := c.LastError(); last == nil || last.Kind != status.InvalidEdit {
		t.Errorf("LastError = %v, want invalid edit", last)
	}
}

func TestEditReuseAcrossUnits(t *testing.T) {
	c := New(Config{})
	e := Insert(0, "// header")
	for i := 0; i < 2; i++ {
		u := c.NewUnit()
		u.SetProperty(PropSource, "let x = 1;\n")
		if err := u.Apply(e); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if u.LineCount() != 2 || u.Lines()[0] != "// header" {
			t.Errorf("unit %d lines = %q", i, u.Lines())
		}
	}
}

func TestSplitJoinLines(t *testing.T) {
	tests := []struct {
		src   string
		lines []string
		join  string
	}{
		{"", nil, ""},
		{"a", []string{"a"}, "a\n"},
		{"a\n", []string{"a"}, "a\n"},
		{"a\n\nb", []string{"a", "", "b"}, "a\n\nb\n"},
		{"a\r\nb\r\n", []string{"a\r", "b\r"}, "a\r\nb\r\n"},
	}
	for _, tt := range tests {
		lines := splitLines(tt.src)
		if !reflect.DeepEqual(lines, tt.lines) {
			t.Errorf("splitLines(%q) = %q, want %q", tt.src, lines, tt.lines)
		}
		if got := joinLines(lines); got != tt.join {
			t.Errorf("joinLines(%q) = %q, want %q", lines, got, tt.join)
		}
	}
}
