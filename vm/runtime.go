// Package vm implements the Gear runtime: a register-addressed virtual
// machine that loads compiled modules, runs their bytecode, bridges calls
// to host-implemented native functions, and reclaims memory with a
// mark-sweep collector.
//
// A Runtime is single-threaded. It performs no locking and must only be used
// from one goroutine at a time; independent runtimes share nothing.
package vm

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/gear/module"
	"github.com/chazu/gear/status"
)

var log = commonlog.GetLogger("gear.vm")

// NativeFunc is a host callback. It reads its arguments from Param(0) through
// Param(argc-1), writes its result to Return, and returns non-zero to signal
// failure.
type NativeFunc func(rt *Runtime, argc int) int

// Debugger is the hook through which a debug server observes a runtime.
// Checkpoint is called on the runtime's own goroutine whenever execution
// reaches a new source line, giving the debugger a safe point to inspect
// state. Close is called when the debugger is detached or the runtime closed.
type Debugger interface {
	Checkpoint(rt *Runtime)
	Close() error
}

// Runtime is one Gear virtual machine instance.
type Runtime struct {
	cfg     Config
	status  status.Tracker
	heap    heap
	regs    registerTable
	symbols *SymbolTable
	types   map[string]*typeInfo
	frames  []*frame
	modules []*module.Module

	debugger     Debugger
	initializing bool
	closed       bool
}

// New creates an empty runtime. A zero Config selects DefaultConfig.
func New(cfg Config) (*Runtime, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, status.Errorf(status.InvalidProperty, "runtime config: %w", err)
	}
	return &Runtime{
		cfg:     cfg,
		regs:    newRegisterTable(cfg.ParamRegisters),
		symbols: newSymbolTable(),
		types:   make(map[string]*typeInfo),
	}, nil
}

// NewFromMemory creates a runtime and loads the module image data into it.
func NewFromMemory(data []byte, cfg Config) (*Runtime, error) {
	rt, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := rt.Load(data); err != nil {
		return nil, err
	}
	return rt, nil
}

// NewFromFile creates a runtime and loads the module image at path.
func NewFromFile(path string, cfg Config) (*Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, status.Errorf(status.InvalidModule, "reading %s: %w", path, err)
	}
	return NewFromMemory(data, cfg)
}

// Config returns the runtime's configuration.
func (r *Runtime) Config() Config { return r.cfg }

// SymbolTable returns the runtime's symbol table.
func (r *Runtime) SymbolTable() *SymbolTable { return r.symbols }

// Close releases every register, heap object and symbol, and stops an
// attached debugger. Handles obtained earlier must not be used afterwards.
func (r *Runtime) Close() error {
	if r.closed {
		return nil
	}
	var err error
	if r.debugger != nil {
		err = r.debugger.Close()
		r.debugger = nil
	}
	r.regs.reset()
	r.symbols.reset()
	r.heap.reset()
	r.frames = nil
	r.types = make(map[string]*typeInfo)
	r.modules = nil
	r.closed = true
	return err
}

// ---------------------------------------------------------------------------
// Error observation
// ---------------------------------------------------------------------------

// SetErrorCallback registers cb to receive every error this runtime reports,
// synchronously, before the failing operation returns.
func (r *Runtime) SetErrorCallback(cb status.Callback) { r.status.SetCallback(cb) }

// LastError returns the most recent error and clears it.
func (r *Runtime) LastError() *status.Error { return r.status.LastError() }

func (r *Runtime) fail(kind status.Kind, format string, args ...interface{}) *status.Error {
	return r.status.Reportf(kind, format, args...)
}

// ---------------------------------------------------------------------------
// Module loading
// ---------------------------------------------------------------------------

// Load decodes a module image and installs its exports into the symbol table.
func (r *Runtime) Load(data []byte) error {
	m, err := module.Decode(data)
	if err != nil {
		return r.status.Report(status.Errorf(status.InvalidModule, "load: %w", err))
	}
	return r.LoadModule(m)
}

// LoadFile reads and loads the module image at path.
func (r *Runtime) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return r.status.Report(status.Errorf(status.InvalidModule, "load %s: %w", path, err))
	}
	return r.Load(data)
}

// LoadModule installs an in-memory module without a serialization round
// trip. Functions, types, declared natives and globals become symbols; the
// module initializer then runs once to assign global values.
//
// A native declared by the module keeps any implementation the host bound
// earlier with ImplementFunction. Any other name already bound is rejected.
func (r *Runtime) LoadModule(m *module.Module) error {
	if err := m.Validate(); err != nil {
		return r.status.Report(status.Errorf(status.InvalidModule, "load %s: %w", m.Name, err))
	}
	if err := r.checkConflicts(m); err != nil {
		return r.status.Report(err)
	}

	for _, t := range m.Types {
		ti := &typeInfo{
			name:    t.Name,
			fields:  append([]string(nil), t.Fields...),
			methods: make(map[string]*function, len(t.Methods)),
			attrs:   t.Attributes,
		}
		for name, idx := range t.Methods {
			ti.methods[name] = &function{def: m.Functions[idx], mod: m}
		}
		r.types[t.Name] = ti
		r.symbols.bind(t.Name, refValue(KindObject, r.allocate(typeObject(ti))))
	}
	for _, name := range m.Exports {
		fn := &function{def: m.Function(name), mod: m}
		r.symbols.bind(name, refValue(KindFunction, r.allocate(functionObject(fn))))
	}
	if m.Entry >= 0 {
		fn := &function{def: m.Functions[m.Entry], mod: m}
		r.symbols.bind(module.EntryName, refValue(KindFunction, r.allocate(functionObject(fn))))
	}
	for _, n := range m.Natives {
		if _, ok := r.symbols.Lookup(n.Name); ok {
			continue
		}
		r.symbols.bind(n.Name, refValue(KindFunction, r.allocate(nativeObject(n.Name, nil))))
	}
	for _, g := range m.Globals {
		r.symbols.bind(g.Name, Null)
		r.symbols.mutable[g.Name] = g.Mutable
	}
	r.modules = append(r.modules, m)

	if m.Init >= 0 {
		fn := &function{def: m.Functions[m.Init], mod: m}
		r.initializing = true
		_, err := r.invoke(refValue(KindFunction, r.allocate(functionObject(fn))), Null, nil)
		r.initializing = false
		if err != nil {
			return r.status.Report(status.Errorf(status.CallFailure, "initializing %s: %w", m.Name, err))
		}
	}
	log.Infof("loaded module %s (%s): %d symbols", m.Name, m.Target, r.symbols.Len())
	return nil
}

func (r *Runtime) checkConflicts(m *module.Module) *status.Error {
	seen := make(map[string]bool)
	check := func(name string) *status.Error {
		if seen[name] {
			return status.Errorf(status.DuplicateName, "module %s defines %q twice", m.Name, name)
		}
		seen[name] = true
		if _, ok := r.symbols.Lookup(name); ok {
			return status.Errorf(status.DuplicateName, "symbol %q is already defined", name)
		}
		return nil
	}
	for _, t := range m.Types {
		if err := check(t.Name); err != nil {
			return err
		}
	}
	for _, name := range m.Exports {
		if err := check(name); err != nil {
			return err
		}
	}
	if m.Entry >= 0 {
		if err := check(module.EntryName); err != nil {
			return err
		}
	}
	for _, g := range m.Globals {
		if err := check(g.Name); err != nil {
			return err
		}
	}
	for _, n := range m.Natives {
		if seen[n.Name] {
			return status.Errorf(status.DuplicateName, "module %s defines %q twice", m.Name, n.Name)
		}
		seen[n.Name] = true
		if v, ok := r.symbols.Lookup(n.Name); ok {
			if obj := r.heap.get(v.ref); v.kind != KindFunction || obj == nil || obj.kind != objNative {
				return status.Errorf(status.DuplicateName, "native %q conflicts with an existing symbol", n.Name)
			}
		}
	}
	return nil
}

// Run calls the loaded application's entry point with no arguments.
func (r *Runtime) Run() error {
	return r.CallByName(module.EntryName, 0)
}

// ---------------------------------------------------------------------------
// Debugger attachment
// ---------------------------------------------------------------------------

// AttachDebugger installs d. Only one debugger may be attached at a time.
func (r *Runtime) AttachDebugger(d Debugger) error {
	if r.debugger != nil {
		return r.fail(status.DebugServer, "a debugger is already attached")
	}
	r.debugger = d
	return nil
}

// DetachDebugger removes and closes the attached debugger. It is a no-op
// when none is attached.
func (r *Runtime) DetachDebugger() error {
	if r.debugger == nil {
		return nil
	}
	d := r.debugger
	r.debugger = nil
	if err := d.Close(); err != nil {
		return fmt.Errorf("closing debugger: %w", err)
	}
	return nil
}

// Debugger returns the attached debugger, or nil.
func (r *Runtime) Debugger() Debugger { return r.debugger }
