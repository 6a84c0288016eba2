package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chazu/gear/compiler"
)

// warningFlags collects -W flags: "name" enables a warning, "no-name"
// disables it.
type warningFlags map[string]bool

func (w warningFlags) String() string {
	names := make([]string, 0, len(w))
	for name, on := range w {
		if !on {
			name = "no-" + name
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func (w warningFlags) Set(value string) error {
	on := true
	name := value
	if strings.HasPrefix(name, "no-") {
		on, name = false, strings.TrimPrefix(name, "no-")
	}
	if _, err := compiler.ParseWarning(name); err != nil {
		return err
	}
	w[name] = on
	return nil
}

// ANSI colours for diagnostics on a terminal.
const (
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
	colorReset  = "\033[0m"
)

// printDiagnostics writes one line per diagnostic followed by a summary.
func printDiagnostics(w io.Writer, diags []compiler.Diagnostic, color bool) {
	errs, warns := 0, 0
	for _, d := range diags {
		if d.Severity == compiler.SeverityError {
			errs++
		} else {
			warns++
		}
		fmt.Fprintln(w, formatDiagnostic(d, color))
	}
	if errs+warns > 0 {
		fmt.Fprintf(w, "%d error%s, %d warning%s\n", errs, plural(errs), warns, plural(warns))
	}
}

func formatDiagnostic(d compiler.Diagnostic, color bool) string {
	if !color {
		return d.String()
	}
	c := colorRed
	if d.Severity == compiler.SeverityWarning {
		c = colorYellow
	}
	s := d.String()
	sev := d.Severity.String() + ":"
	if i := strings.Index(s, sev); i >= 0 {
		return colorBold + s[:i] + colorReset + c + sev + colorReset + s[i+len(sev):]
	}
	return c + s + colorReset
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
