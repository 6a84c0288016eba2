package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/chazu/gear/status"
)

// Property names a settable attribute of a Unit.
type Property int

const (
	// PropMain marks the unit providing the entry point ("true"/"false").
	PropMain Property = iota
	// PropName is the unit's unique name within its compiler.
	PropName
	// PropDisplayName is the name shown in diagnostics; defaults to the name.
	PropDisplayName
	// PropSource is the unit's full source text.
	PropSource
)

var propertyNames = [...]string{
	PropMain:        "main",
	PropName:        "name",
	PropDisplayName: "display-name",
	PropSource:      "source",
}

func (p Property) String() string {
	if p >= 0 && int(p) < len(propertyNames) {
		return propertyNames[p]
	}
	return fmt.Sprintf("Property(%d)", int(p))
}

// ParseProperty maps a property name to its Property.
func ParseProperty(s string) (Property, error) {
	norm := strings.ToLower(strings.ReplaceAll(s, "_", "-"))
	for i, name := range propertyNames {
		if name == norm {
			return Property(i), nil
		}
	}
	return 0, fmt.Errorf("unknown property %q", s)
}

// Unit is one independently editable source buffer owned by a Compiler.
type Unit struct {
	c           *Compiler // nil once deleted
	owner       *Compiler // the creating compiler, kept for error reporting
	main        bool
	name        string
	displayName string
	lines       []string
	diags       []Diagnostic
}

// Name returns the unit's unique name.
func (u *Unit) Name() string { return u.name }

// DisplayName returns the name used in diagnostics.
func (u *Unit) DisplayName() string {
	if u.displayName != "" {
		return u.displayName
	}
	return u.name
}

// IsMain reports whether the unit is marked as the entry point.
func (u *Unit) IsMain() bool { return u.main }

// Source returns the buffer with every line newline terminated.
func (u *Unit) Source() string { return joinLines(u.lines) }

// Lines returns a copy of the buffer's lines.
func (u *Unit) Lines() []string { return append([]string(nil), u.lines...) }

// LineCount returns the number of lines in the buffer.
func (u *Unit) LineCount() int { return len(u.lines) }

// Diagnostics returns the unit's diagnostics from the last compile, or nil
// if the unit changed since.
func (u *Unit) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), u.diags...)
}

// SetProperty changes one property. Setting PropName to a name held by
// another unit fails with DuplicateName and changes nothing.
func (u *Unit) SetProperty(p Property, value string) error {
	c := u.c
	if c == nil {
		return u.deleted()
	}
	switch p {
	case PropMain:
		main, err := strconv.ParseBool(value)
		if err != nil {
			return c.status.Reportf(status.InvalidProperty, "%s: invalid value %q for %s", u.name, value, p)
		}
		u.main = main
	case PropName:
		if value == "" {
			return c.status.Reportf(status.InvalidProperty, "%s: name must not be empty", u.name)
		}
		if other := c.Unit(value); other != nil && other != u {
			return c.status.Reportf(status.DuplicateName, "unit name %q is already in use", value)
		}
		u.name = value
	case PropDisplayName:
		u.displayName = value
	case PropSource:
		u.lines = splitLines(value)
	default:
		return c.status.Reportf(status.InvalidProperty, "%s: unknown property %s", u.name, p)
	}
	c.invalidate(u)
	return nil
}

// Property returns the current value of p.
func (u *Unit) Property(p Property) (string, error) {
	switch p {
	case PropMain:
		return strconv.FormatBool(u.main), nil
	case PropName:
		return u.name, nil
	case PropDisplayName:
		return u.DisplayName(), nil
	case PropSource:
		return u.Source(), nil
	}
	return "", u.owner.status.Reportf(status.InvalidProperty, "%s: unknown property %s", u.name, p)
}

func (u *Unit) deleted() error {
	return u.owner.status.Reportf(status.InvalidHandle, "unit %q has been deleted", u.name)
}

// Apply applies a batch of edits. Line numbers in every edit refer to the
// buffer as it was before the batch; see applyEdits. An invalid batch fails
// with InvalidEdit and leaves the buffer unchanged.
func (u *Unit) Apply(edits ...Edit) error {
	c := u.c
	if c == nil {
		return u.deleted()
	}
	lines, err := applyEdits(u.lines, edits)
	if err != nil {
		return c.status.ReportErr(status.InvalidEdit, err)
	}
	u.lines = lines
	c.invalidate(u)
	return nil
}

func newUnitName() string {
	return uuid.NewString()
}
