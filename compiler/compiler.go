// Package compiler turns Gear compilation units into modules. A Compiler
// owns a set of units, applies line edits to them, compiles them together
// into diagnostics and a module, and hands the module to a file or to a
// live runtime.
package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/gear/module"
	"github.com/chazu/gear/status"
	"github.com/chazu/gear/vm"
)

var log = commonlog.GetLogger("gear.compiler")

// Config is the per-instance compiler configuration.
type Config struct {
	// Name is the name given to built modules.
	Name string
	// Target is the target entry-point rules are checked against at Compile.
	Target module.Target
	// Warnings overrides the default warning policy. A WarnAll entry is
	// applied before the individual kinds.
	Warnings map[Warning]bool
	// IntBits is the integer width literals are checked against (32 or 64).
	IntBits int
}

// DefaultConfig returns the configuration used for a zero Config field.
func DefaultConfig() Config {
	return Config{Name: "main", Target: module.Application, IntBits: 64}
}

func (cfg Config) policy() WarningPolicy {
	p := DefaultWarningPolicy()
	if on, ok := cfg.Warnings[WarnAll]; ok {
		p.Set(WarnAll, on)
	}
	for w, on := range cfg.Warnings {
		if w != WarnAll {
			p.Set(w, on)
		}
	}
	return p
}

// Compiler manages compilation units and the state of the last compile.
// It is not safe for concurrent use.
type Compiler struct {
	cfg    Config
	target module.Target
	policy WarningPolicy
	units  []*Unit
	status status.Tracker

	imports []*module.Module

	diags    []Diagnostic // compiler-wide diagnostics of the last compile
	mains    []string     // display names of MAIN units at the last compile
	compiled *module.Module
}

// New creates a compiler. Zero fields of cfg take their DefaultConfig value.
func New(cfg Config) *Compiler {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.IntBits == 0 {
		cfg.IntBits = def.IntBits
	}
	return &Compiler{cfg: cfg, target: cfg.Target, policy: cfg.policy()}
}

// Config returns the configuration the compiler was created with.
func (c *Compiler) Config() Config { return c.cfg }

// SetErrorCallback registers cb to receive every reported error.
func (c *Compiler) SetErrorCallback(cb status.Callback) { c.status.SetCallback(cb) }

// LastError returns the most recent error and clears it.
func (c *Compiler) LastError() *status.Error { return c.status.LastError() }

// Target returns the target Compile checks entry points against.
func (c *Compiler) Target() module.Target { return c.target }

// SetTarget changes the target used by the next Compile.
func (c *Compiler) SetTarget(t module.Target) { c.target = t }

// SetWarning enables or disables w; WarnAll toggles every kind.
func (c *Compiler) SetWarning(w Warning, on bool) error {
	if !c.policy.Set(w, on) {
		return c.status.Reportf(status.InvalidProperty, "unknown warning %s", w)
	}
	return nil
}

// WarningEnabled reports whether w is enabled.
func (c *Compiler) WarningEnabled(w Warning) bool { return c.policy.Enabled(w) }

// Import makes the exports, types, natives and globals of a library module
// visible to every unit. The module is not copied into the output; a
// runtime must load it before the compiled module.
func (c *Compiler) Import(m *module.Module) error {
	if m == nil || m.Target != module.Library {
		return c.status.Reportf(status.InvalidModule, "only library modules can be imported")
	}
	for _, prev := range c.imports {
		if prev.Name == m.Name {
			return c.status.Reportf(status.DuplicateName, "module %s is already imported", m.Name)
		}
	}
	c.imports = append(c.imports, m)
	c.invalidate(nil)
	return nil
}

// Imports returns the imported modules in import order.
func (c *Compiler) Imports() []*module.Module {
	return append([]*module.Module(nil), c.imports...)
}

// ---------------------------------------------------------------------------
// Units
// ---------------------------------------------------------------------------

// NewUnit creates an empty, non-main unit with a generated unique name.
func (c *Compiler) NewUnit() *Unit {
	u := &Unit{c: c, owner: c, name: newUnitName()}
	c.units = append(c.units, u)
	c.invalidate(u)
	return u
}

// Unit returns the unit named name, or nil.
func (c *Compiler) Unit(name string) *Unit {
	for _, u := range c.units {
		if u.name == name {
			return u
		}
	}
	return nil
}

// Units returns the units in creation order.
func (c *Compiler) Units() []*Unit {
	return append([]*Unit(nil), c.units...)
}

// DeleteUnit removes u from the compiler. The unit may not be used afterwards.
func (c *Compiler) DeleteUnit(u *Unit) error {
	if u == nil || u.c != c {
		return c.status.Reportf(status.InvalidHandle, "unit does not belong to this compiler")
	}
	for i, existing := range c.units {
		if existing == u {
			c.units = append(c.units[:i], c.units[i+1:]...)
			break
		}
	}
	c.invalidate(u)
	u.c = nil
	return nil
}

// invalidate discards the results of the last compile after a change.
func (c *Compiler) invalidate(*Unit) {
	c.compiled = nil
	c.diags = nil
	c.mains = nil
	for _, u := range c.units {
		u.diags = nil
	}
}

// ---------------------------------------------------------------------------
// Compile
// ---------------------------------------------------------------------------

// Compile parses and checks every unit and, when no errors are found,
// generates the module that Build and BuildToRuntime consume. Diagnostics are
// available afterwards whatever the outcome.
func (c *Compiler) Compile() error {
	c.invalidate(nil)

	prog := newProgram()
	for _, m := range c.imports {
		prog.declareModule(m)
	}
	ann := newAnnotations()
	parsed := make([]*parsedUnit, len(c.units))
	diags := make([]*diagnostics, len(c.units))
	clean := make([]bool, len(c.units))
	var mains []*parsedUnit

	for i, u := range c.units {
		d := &diagnostics{unit: u.DisplayName(), policy: c.policy}
		checkLines(d, u.lines)
		file, errs := ParseSource(u.Source())
		for _, pe := range errs {
			d.errorAt(Span{Start: pe.Pos, End: pe.Pos}, "%s", pe.Message)
		}
		parsed[i] = &parsedUnit{unit: u, label: u.DisplayName(), file: file}
		diags[i] = d
		clean[i] = len(errs) == 0
		if u.main {
			mains = append(mains, parsed[i])
			c.mains = append(c.mains, u.DisplayName())
		}
	}
	for i, pu := range parsed {
		a := &analyzer{prog: prog, ann: ann, diag: diags[i], intBits: c.cfg.IntBits}
		a.collect(pu.file)
	}
	for i, pu := range parsed {
		if clean[i] {
			a := &analyzer{prog: prog, ann: ann, diag: diags[i], intBits: c.cfg.IntBits}
			a.analyze(pu.file, pu.unit.main)
		}
	}

	c.diags = entryDiagnostics(c.target, c.mains)
	errors, warnings := countErrors(c.diags), 0
	for i, pu := range parsed {
		sortDiagnostics(diags[i].list)
		pu.unit.diags = diags[i].list
		n := countErrors(diags[i].list)
		errors += n
		warnings += len(diags[i].list) - n
	}

	if errors > 0 {
		log.Infof("compile of %d units failed: %d errors, %d warnings", len(c.units), errors, warnings)
		return c.status.Report(c.failure(errors))
	}
	var main *parsedUnit
	if len(mains) == 1 {
		main = mains[0]
	}
	c.compiled = generate(c.cfg.Name, parsed, main, ann)
	log.Infof("compiled %d units: %d functions, %d warnings", len(c.units), len(c.compiled.Functions), warnings)
	return nil
}

// failure summarizes a failed compile, classified by its first
// entry-point problem if there is one.
func (c *Compiler) failure(errors int) *status.Error {
	all := c.Diagnostics()
	kind := status.CompileFailure
	var first Diagnostic
	for _, d := range all {
		if d.Severity == SeverityError {
			first = d
			break
		}
	}
	if first.Kind == status.MultipleEntryPoints || first.Kind == status.MissingEntryPoint ||
		first.Kind == status.UnexpectedEntryPoint {
		kind = first.Kind
	}
	if errors > 1 {
		return status.Errorf(kind, "%s (and %d more error%s)", first, errors-1, plural(errors-1))
	}
	return status.Errorf(kind, "%s", first)
}

// entryDiagnostics applies the entry-point rules of target to the units
// marked main. More than one main is an error for every target.
func entryDiagnostics(target module.Target, mains []string) []Diagnostic {
	var ds []Diagnostic
	if len(mains) > 1 {
		for _, name := range mains[1:] {
			ds = append(ds, Diagnostic{
				Unit:     name,
				Severity: SeverityError,
				Kind:     status.MultipleEntryPoints,
				Message:  fmt.Sprintf("multiple entry points: %s and %s are both marked main", mains[0], name),
			})
		}
	}
	switch {
	case target == module.Application && len(mains) == 0:
		ds = append(ds, Diagnostic{
			Severity: SeverityError,
			Kind:     status.MissingEntryPoint,
			Message:  "application has no entry point: no unit is marked main",
		})
	case target != module.Application:
		for _, name := range mains {
			ds = append(ds, Diagnostic{
				Unit:     name,
				Severity: SeverityError,
				Kind:     status.UnexpectedEntryPoint,
				Message:  fmt.Sprintf("%s target must not have an entry point, but %s is marked main", target, name),
			})
		}
	}
	return ds
}

// Compiled reports whether a successful compile is current.
func (c *Compiler) Compiled() bool { return c.compiled != nil }

// Diagnostics returns compiler-wide diagnostics followed by every unit's,
// in unit order.
func (c *Compiler) Diagnostics() []Diagnostic {
	all := append([]Diagnostic(nil), c.diags...)
	for _, u := range c.units {
		all = append(all, u.diags...)
	}
	return all
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// Module returns the compiled module for target. It fails with NotCompiled
// unless a successful Compile is current, and with the entry-point error
// kinds if target's rules do not hold for the compiled units.
func (c *Compiler) Module(target module.Target) (*module.Module, error) {
	if c.compiled == nil {
		return nil, c.status.Reportf(status.NotCompiled, "build of %s requires a successful compile", target)
	}
	if ds := entryDiagnostics(target, c.mains); len(ds) > 0 {
		return nil, c.status.Reportf(ds[0].Kind, "%s", ds[0].Message)
	}
	m := *c.compiled
	m.Target = target
	return &m, nil
}

// Image returns the serialized module for target.
func (c *Compiler) Image(target module.Target) ([]byte, error) {
	m, err := c.Module(target)
	if err != nil {
		return nil, err
	}
	data, err := module.Encode(m)
	if err != nil {
		return nil, c.status.ReportErr(status.InvalidModule, err)
	}
	return data, nil
}

// Build writes the module for target to path.
func (c *Compiler) Build(target module.Target, path string) error {
	m, err := c.Module(target)
	if err != nil {
		return err
	}
	if err := module.WriteFile(path, m); err != nil {
		return c.status.ReportErr(status.InvalidModule, fmt.Errorf("build %s: %w", path, err))
	}
	log.Infof("built %s module %s to %s", target, m.Name, path)
	return nil
}

// BuildToRuntime installs the module for target directly into rt.
func (c *Compiler) BuildToRuntime(target module.Target, rt *vm.Runtime) error {
	m, err := c.Module(target)
	if err != nil {
		return err
	}
	if err := rt.LoadModule(m); err != nil {
		return c.status.ReportErr(status.InvalidModule, err)
	}
	return nil
}
