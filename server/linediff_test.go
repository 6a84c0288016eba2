package server

import (
	"strings"
	"testing"

	"github.com/chazu/gear/compiler"
)

func TestLineEdits(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
	}{
		{"unchanged", "a\nb\nc\n", "a\nb\nc\n"},
		{"append", "a\nb\n", "a\nb\nc\nd\n"},
		{"prepend", "b\nc\n", "a\nb\nc\n"},
		{"delete middle", "a\nb\nc\n", "a\nc\n"},
		{"replace line", "a\nb\nc\n", "a\nB\nc\n"},
		{"replace all", "x\ny\n", "p\nq\nr\n"},
		{"clear", "a\nb\n", ""},
		{"from empty", "", "a\nb\n"},
		{"interleaved", "1\n2\n3\n4\n5\n", "1\nx\n3\n5\ny\n"},
		{"no trailing newline", "a\nb", "a\nc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := compiler.New(compiler.Config{})
			u := c.NewUnit()
			u.SetProperty(compiler.PropSource, tt.old)

			edits := lineEdits(u.Source(), tt.new)
			if tt.old == tt.new && len(edits) != 0 {
				t.Fatalf("edits for identical text: %v", edits)
			}
			if err := u.Apply(edits...); err != nil {
				t.Fatalf("Apply(%v): %v", edits, err)
			}

			want := strings.Split(strings.TrimSuffix(tt.new, "\n"), "\n")
			if tt.new == "" {
				want = nil
			}
			got := u.Lines()
			if strings.Join(got, "|") != strings.Join(want, "|") || len(got) != len(want) {
				t.Errorf("lines = %q, want %q (edits %v)", got, want, edits)
			}
		})
	}
}

func TestLineEditsAreMinimal(t *testing.T) {
	edits := lineEdits("a\nb\nc\nd\n", "a\nb\nX\nd\n")
	if len(edits) != 2 {
		t.Fatalf("edits = %v, want one delete and one insert", edits)
	}
	if edits[0] != compiler.Delete(3) || edits[1] != compiler.Insert(3, "X") {
		t.Errorf("edits = %v", edits)
	}
}

func TestDiffLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a\n", []string{"a"}},
		{"a\nb", []string{"a", "b"}},
		{"\n\n", []string{"", ""}},
	}
	for _, tt := range tests {
		got := diffLines(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("diffLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
