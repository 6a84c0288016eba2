package compiler

import (
	"strings"
	"testing"

	"github.com/chazu/gear/module"
	"github.com/chazu/gear/status"
)

// checkSource compiles src as the single main unit of an application and
// returns the unit's diagnostics.
func checkSource(t *testing.T, cfg Config, src string) []Diagnostic {
	t.Helper()
	c := New(cfg)
	u := c.NewUnit()
	if err := u.SetProperty(PropMain, "true"); err != nil {
		t.Fatalf("SetProperty(main): %v", err)
	}
	if err := u.SetProperty(PropSource, src); err != nil {
		t.Fatalf("SetProperty(source): %v", err)
	}
	c.Compile()
	return u.Diagnostics()
}

func allWarnings() Config {
	return Config{Warnings: map[Warning]bool{WarnAll: true}}
}

func hasWarning(ds []Diagnostic, w Warning) bool {
	for _, d := range ds {
		if d.Severity == SeverityWarning && d.Warning == w {
			return true
		}
	}
	return false
}

func errorsOf(ds []Diagnostic) []Diagnostic {
	var out []Diagnostic
	for _, d := range ds {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Warnings
// ---------------------------------------------------------------------------

func TestWarningKinds(t *testing.T) {
	tests := []struct {
		warning Warning
		src     string
	}{
		{UnusedParams, "func f(a) { return 1; }\n"},
		{UnusedVariables, "func f() { var x = 1; }\n"},
		{UnusedExpressions, "func f(a) { a + 1; }\n"},
		{DuplicateImports, "import io;\nimport io;\n"},
		{ConstantCondition, "func f() { if (true) { return 1; } return 2; }\n"},
		{ConstantCondition, "func f() { while (0) { } }\n"},
		{NumericTruncation, "let big = 99999999999999999999;\n"},
		{Empty, "func f() { ; }\n"},
		{Empty, "func f(a) { if (a) { } }\n"},
		{Unreachable, "func f() { return 1; return 2; }\n"},
		{Unreachable, "func f(a) { if (a) { return 1; } else { return 2; } a = 3; }\n"},
		{UnknownAttribute, "type T(shiny) { x; }\n"},
		{ThisAssignment, "type T { x; func m() { this = 1; } }\n"},
		{InvalidThis, "func f() { return this; }\n"},
		{UselessSafe, "type T { x; func m() { return this?.x; } }\n"},
		{UselessSafe, "type T { x; }\nfunc f() { return new T?.x; }\n"},
		{ParamReassignment, "func f(a) { a = 2; return a; }\n"},
		{Tabs, "func f() {\n\treturn 1;\n}\n"},
		{VariableShadowing, "var x = 1;\nfunc f() { var x = 2; return x; }\n"},
		{VariableShadowing, "func f() { var x = 1; { var x = 2; return x; } }\n"},
		{MixedLineEndings, "let a = 1;\r\nlet b = 2;\n"},
		{Yoda, "func f(a) { return 1 == a; }\n"},
	}
	for _, tt := range tests {
		t.Run(tt.warning.String(), func(t *testing.T) {
			ds := checkSource(t, allWarnings(), tt.src)
			if !hasWarning(ds, tt.warning) {
				t.Errorf("no %s warning for %q; got %v", tt.warning, tt.src, ds)
			}
		})
	}
}

func TestWarningFreeSource(t *testing.T) {
	src := `native func print(x);
let greeting = "hello";
type Counter {
    count;
    func bump(by) {
        this.count = this.count + by;
        return this.count;
    }
}
func run(n) {
    var c = new Counter;
    c.count = 0;
    var i = 0;
    while (i < n) {
        c.bump(1);
        i = i + 1;
    }
    while (true) {
        return c?.count;
    }
}
print(greeting);
run(3);
`
	ds := checkSource(t, allWarnings(), src)
	if len(ds) != 0 {
		t.Errorf("diagnostics for clean source:\n%v", ds)
	}
}

func TestStylisticWarningsOffByDefault(t *testing.T) {
	src := "func f(a) {\n\ta = 1;\n\treturn 1 == a;\n}\n"
	ds := checkSource(t, Config{}, src)
	for _, w := range []Warning{Tabs, ParamReassignment, Yoda} {
		if hasWarning(ds, w) {
			t.Errorf("%s reported under the default policy", w)
		}
	}
	ds = checkSource(t, Config{Warnings: map[Warning]bool{Tabs: true}}, src)
	if !hasWarning(ds, Tabs) {
		t.Error("tabs not reported after enabling it")
	}
	if hasWarning(ds, Yoda) {
		t.Error("yoda reported though only tabs was enabled")
	}
}

func TestWarnAllDisables(t *testing.T) {
	cfg := Config{Warnings: map[Warning]bool{WarnAll: false, Unreachable: true}}
	ds := checkSource(t, cfg, "func f(a) { return 1; return 2; }\n")
	if len(ds) != 1 || ds[0].Warning != Unreachable {
		t.Errorf("diagnostics = %v, want only unreachable", ds)
	}
}

func TestNumericTruncation32(t *testing.T) {
	cfg := allWarnings()
	cfg.IntBits = 32
	if ds := checkSource(t, cfg, "let a = 3000000000;\n"); !hasWarning(ds, NumericTruncation) {
		t.Errorf("no truncation warning for 3000000000 at 32 bits: %v", ds)
	}
	if ds := checkSource(t, cfg, "let a = -2147483648;\n"); hasWarning(ds, NumericTruncation) {
		t.Errorf("truncation warning for MinInt32: %v", ds)
	}
	if ds := checkSource(t, allWarnings(), "let a = 3000000000;\n"); hasWarning(ds, NumericTruncation) {
		t.Errorf("truncation warning at 64 bits: %v", ds)
	}
}

func TestUnreachableReportedOnce(t *testing.T) {
	ds := checkSource(t, allWarnings(), "func f() { return 1; f(); f(); }\n")
	n := 0
	for _, d := range ds {
		if d.Warning == Unreachable && d.Severity == SeverityWarning {
			n++
		}
	}
	if n != 1 {
		t.Errorf("unreachable reported %d times, want 1", n)
	}
}

func TestWarningNames(t *testing.T) {
	for _, w := range Warnings() {
		got, err := ParseWarning(w.String())
		if err != nil || got != w {
			t.Errorf("ParseWarning(%q) = %v, %v", w.String(), got, err)
		}
	}
	if w, err := ParseWarning("UNUSED_PARAMS"); err != nil || w != UnusedParams {
		t.Errorf("ParseWarning(UNUSED_PARAMS) = %v, %v", w, err)
	}
	if w, err := ParseWarning("all"); err != nil || w != WarnAll {
		t.Errorf("ParseWarning(all) = %v, %v", w, err)
	}
	if _, err := ParseWarning("no-such-warning"); err == nil {
		t.Error("ParseWarning accepted an unknown name")
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestSemanticErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
		kind status.Kind
	}{
		{"undefined", "func f() { return g(); }\n", "undefined: g", status.UnknownSymbol},
		{"arity", "func g(a) { return a; }\nfunc f() { return g(1, 2); }\n", "g expects 1 argument, got 2", status.OK},
		{"reserved main", "func main() { }\n", `"main" is reserved`, status.DuplicateName},
		{"duplicate", "func f() { }\nlet f = 1;\n", `"f" already declared as a function`, status.DuplicateName},
		{"assign let", "let x = 1;\nfunc f() { x = 2; }\n", `cannot assign to let "x"`, status.OK},
		{"assign local let", "func f() { let x = 1; x = 2; return x; }\n", `cannot assign to let "x"`, status.OK},
		{"assign function", "func g() { }\nfunc f() { g = 2; }\n", `cannot assign to function "g"`, status.OK},
		{"let without value", "let x;\n", `missing initializer for let "x"`, status.OK},
		{"unknown type", "func f() { return new Nope; }\n", "unknown type Nope", status.UnknownSymbol},
		{"call type", "type T { x; }\nfunc f() { return T(); }\n", "cannot call type T", status.OK},
		{"missing field", "type T { x; func m() { return this.y; } }\n", `type T has no field "y"`, status.UnknownSymbol},
		{"missing method", "type T { x; func m() { return this.n(); } }\n", `type T has no method "n"`, status.UnknownSymbol},
		{"redeclared", "func f() { var a = 1; var a = 2; return a; }\n", `"a" redeclared in this block`, status.OK},
		{"duplicate param", "func f(a, a) { return a; }\n", `duplicate parameter "a"`, status.OK},
		{"duplicate field", "type T { x; x; }\n", `duplicate field "x" in type T`, status.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := errorsOf(checkSource(t, Config{}, tt.src))
			if len(errs) == 0 {
				t.Fatalf("no errors for %q", tt.src)
			}
			for _, d := range errs {
				if strings.Contains(d.Message, tt.want) {
					if d.Kind != tt.kind {
						t.Errorf("kind = %v, want %v", d.Kind, tt.kind)
					}
					return
				}
			}
			t.Errorf("errors %v do not mention %q", errs, tt.want)
		})
	}
}

func TestStatementsOutsideMainUnit(t *testing.T) {
	c := New(Config{Target: module.Library})
	u := c.NewUnit()
	u.SetProperty(PropSource, "f();\nfunc f() { }\n")
	if err := c.Compile(); err == nil {
		t.Fatal("Compile succeeded with statements in a non-main unit")
	}
	errs := errorsOf(u.Diagnostics())
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "only allowed in the main unit") {
		t.Errorf("errors = %v", errs)
	}
}

func TestForwardReferencesAcrossUnits(t *testing.T) {
	c := New(Config{})
	main := c.NewUnit()
	main.SetProperty(PropMain, "true")
	main.SetProperty(PropSource, "helper(limit);\n")
	lib := c.NewUnit()
	lib.SetProperty(PropSource, "let limit = 3;\nfunc helper(n) { return n; }\n")
	if err := c.Compile(); err != nil {
		t.Fatalf("Compile: %v\n%v", err, c.Diagnostics())
	}
}

func TestDuplicateAcrossUnitsNamesOtherUnit(t *testing.T) {
	c := New(Config{Target: module.Library})
	a := c.NewUnit()
	a.SetProperty(PropDisplayName, "a.gear")
	a.SetProperty(PropSource, "func f() { }\n")
	b := c.NewUnit()
	b.SetProperty(PropDisplayName, "b.gear")
	b.SetProperty(PropSource, "func f() { }\n")
	err := c.Compile()
	if !status.Is(err, status.CompileFailure) {
		t.Fatalf("Compile error = %v, want compile failure", err)
	}
	errs := errorsOf(b.Diagnostics())
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "in a.gear") {
		t.Errorf("b diagnostics = %v", errs)
	}
	if errs[0].Unit != "b.gear" {
		t.Errorf("diagnostic unit = %q, want b.gear", errs[0].Unit)
	}
}

func TestParseErrorsSkipAnalysis(t *testing.T) {
	ds := checkSource(t, allWarnings(), "func f(a) { return 1 }\n")
	if len(ds) != 1 || ds[0].Severity != SeverityError {
		t.Errorf("diagnostics = %v, want a single syntax error", ds)
	}
}
