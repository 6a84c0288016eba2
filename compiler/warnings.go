package compiler

import (
	"fmt"
	"strings"
)

// Warning identifies one kind of compiler warning.
type Warning int

// WarnAll addresses every warning kind at once.
const WarnAll Warning = -1

const (
	// UnusedParams flags function parameters that are never read.
	UnusedParams Warning = iota
	// UnusedVariables flags local variables that are never read.
	UnusedVariables
	// UnusedExpressions flags expression statements whose result is discarded
	// and which have no effect.
	UnusedExpressions
	// DuplicateImports flags a module imported more than once by one unit.
	DuplicateImports
	// ConstantCondition flags if/while conditions that are literals.
	ConstantCondition
	// NumericTruncation flags numeric literals that do not fit the integer width.
	NumericTruncation
	// Empty flags empty blocks and lone semicolons.
	Empty
	// Unreachable flags statements following a return.
	Unreachable
	// UnknownAttribute flags type attributes the compiler does not recognize.
	UnknownAttribute
	// ThisAssignment flags assignments to this.
	ThisAssignment
	// InvalidThis flags this used outside a method, and declarations named this.
	InvalidThis
	// UselessSafe flags ?. applied to a value that can never be null.
	UselessSafe
	// ParamReassignment flags assignments to function parameters.
	ParamReassignment
	// Tabs flags lines containing horizontal tabs.
	Tabs
	// VariableShadowing flags declarations hiding an outer variable.
	VariableShadowing
	// MixedLineEndings flags units mixing LF and CRLF line endings.
	MixedLineEndings
	// Yoda flags comparisons with a literal on the left-hand side.
	Yoda

	numWarnings
)

var warningNames = [numWarnings]string{
	UnusedParams:      "unused-params",
	UnusedVariables:   "unused-variables",
	UnusedExpressions: "unused-expressions",
	DuplicateImports:  "duplicate-imports",
	ConstantCondition: "constant-condition",
	NumericTruncation: "numeric-truncation",
	Empty:             "empty",
	Unreachable:       "unreachable",
	UnknownAttribute:  "unknown-attribute",
	ThisAssignment:    "this-assignment",
	InvalidThis:       "invalid-this",
	UselessSafe:       "useless-safe",
	ParamReassignment: "param-reassignment",
	Tabs:              "tabs",
	VariableShadowing: "variable-shadowing",
	MixedLineEndings:  "mixed-line-endings",
	Yoda:              "yoda",
}

// stylistic warnings are off unless enabled explicitly.
var stylistic = map[Warning]bool{
	ParamReassignment: true,
	Tabs:              true,
	VariableShadowing: true,
	MixedLineEndings:  true,
	Yoda:              true,
}

func (w Warning) String() string {
	if w == WarnAll {
		return "all"
	}
	if w >= 0 && w < numWarnings {
		return warningNames[w]
	}
	return fmt.Sprintf("Warning(%d)", int(w))
}

// Warnings returns every warning kind in declaration order.
func Warnings() []Warning {
	ws := make([]Warning, numWarnings)
	for i := range ws {
		ws[i] = Warning(i)
	}
	return ws
}

// ParseWarning maps a name such as "unused-params" (or "all") to its kind.
// Underscores and case are ignored.
func ParseWarning(name string) (Warning, error) {
	norm := strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	if norm == "all" {
		return WarnAll, nil
	}
	for i, n := range warningNames {
		if n == norm {
			return Warning(i), nil
		}
	}
	return 0, fmt.Errorf("unknown warning %q", name)
}

// WarningPolicy is the on/off state of every warning kind.
type WarningPolicy struct {
	enabled [numWarnings]bool
}

// DefaultWarningPolicy enables every warning except the stylistic ones.
func DefaultWarningPolicy() WarningPolicy {
	var p WarningPolicy
	for i := range p.enabled {
		p.enabled[i] = !stylistic[Warning(i)]
	}
	return p
}

// Set enables or disables w; WarnAll toggles every kind. Unknown kinds are
// ignored and reported as false.
func (p *WarningPolicy) Set(w Warning, on bool) bool {
	if w == WarnAll {
		for i := range p.enabled {
			p.enabled[i] = on
		}
		return true
	}
	if w < 0 || w >= numWarnings {
		return false
	}
	p.enabled[w] = on
	return true
}

// Enabled reports whether w is on. For WarnAll it reports whether every
// kind is on.
func (p WarningPolicy) Enabled(w Warning) bool {
	if w == WarnAll {
		for _, on := range p.enabled {
			if !on {
				return false
			}
		}
		return true
	}
	if w < 0 || w >= numWarnings {
		return false
	}
	return p.enabled[w]
}
