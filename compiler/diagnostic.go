package compiler

import (
	"fmt"
	"sort"

	"github.com/chazu/gear/status"
)

// Severity distinguishes errors from warnings.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one compile-time message. Positions refer to the unit's
// buffer as it was when Compile ran; any edit discards them.
type Diagnostic struct {
	Unit     string // display name of the unit, empty for compiler-wide problems
	Pos      Position
	End      Position
	Severity Severity
	Warning  Warning     // set when Severity is SeverityWarning
	Kind     status.Kind // classification of errors; OK for plain syntax or semantic errors
	Message  string
}

func (d Diagnostic) String() string {
	loc := d.Unit
	if d.Pos.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", d.Unit, d.Pos.Line, d.Pos.Column)
	}
	msg := fmt.Sprintf("%s: %s", d.Severity, d.Message)
	if d.Severity == SeverityWarning {
		msg += fmt.Sprintf(" [%s]", d.Warning)
	}
	if loc == "" {
		return msg
	}
	return loc + ": " + msg
}

// diagnostics collects the messages for one unit.
type diagnostics struct {
	unit   string
	policy WarningPolicy
	list   []Diagnostic
}

func (d *diagnostics) errorAt(sp Span, format string, args ...interface{}) {
	d.errorKind(status.OK, sp, format, args...)
}

// errorKind records an error carrying a status classification.
func (d *diagnostics) errorKind(kind status.Kind, sp Span, format string, args ...interface{}) {
	d.list = append(d.list, Diagnostic{
		Unit:     d.unit,
		Pos:      sp.Start,
		End:      sp.End,
		Severity: SeverityError,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (d *diagnostics) warnAt(w Warning, sp Span, format string, args ...interface{}) {
	if !d.policy.Enabled(w) {
		return
	}
	d.list = append(d.list, Diagnostic{
		Unit:     d.unit,
		Pos:      sp.Start,
		End:      sp.End,
		Severity: SeverityWarning,
		Warning:  w,
		Message:  fmt.Sprintf(format, args...),
	})
}

// sortDiagnostics orders by line, then column, keeping insertion order for ties.
func sortDiagnostics(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i].Pos, ds[j].Pos
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

// countErrors returns the number of error diagnostics in ds.
func countErrors(ds []Diagnostic) int {
	n := 0
	for _, d := range ds {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}
