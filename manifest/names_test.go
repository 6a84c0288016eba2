package manifest

import "testing"

func TestUnitName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"main.gear", "main"},
		{"util/strings.gear", "util.strings"},
		{"./a/b/c.gear", "a.b.c"},
		{"noext", "noext"},
	}
	for _, tc := range tests {
		if got := UnitName(tc.input); got != tc.want {
			t.Errorf("UnitName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestValidateDependencyName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"mathlib", true},
		{"_private", true},
		{"lib2", true},
		{"", false},
		{"2lib", false},
		{"my-lib", false},
		{"while", false},
		{"null", false},
		{"main", false},
	}
	for _, tc := range tests {
		err := ValidateDependencyName(tc.name)
		if (err == nil) != tc.ok {
			t.Errorf("ValidateDependencyName(%q) = %v, want ok=%v", tc.name, err, tc.ok)
		}
	}
}
