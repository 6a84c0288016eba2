// Package module defines the compiled artifact a Gear runtime loads: the
// function and type tables produced by the compiler, and its image format.
package module

import (
	"fmt"
)

// Version of the Gear toolchain that produced a module.
const Version = "0.7.1 (pre-alpha)"

// Target is the kind of artifact a compilation produces.
type Target int

const (
	// Application requires exactly one entry point.
	Application Target = iota
	// Library must not declare an entry point.
	Library
	// Test must not declare an entry point; its test functions are run by name.
	Test
)

var targetNames = [...]string{"application", "library", "test"}

func (t Target) String() string {
	if t >= 0 && int(t) < len(targetNames) {
		return targetNames[t]
	}
	return fmt.Sprintf("Target(%d)", int(t))
}

// ParseTarget maps a target name to its Target.
func ParseTarget(s string) (Target, error) {
	for i, name := range targetNames {
		if name == s {
			return Target(i), nil
		}
	}
	return 0, fmt.Errorf("unknown target %q", s)
}

// EntryName is the symbol under which an application's entry point is bound.
const EntryName = "main"

// Function is one compiled function or method body.
type Function struct {
	Name      string   `cbor:"1,keyasint"`
	Params    []string `cbor:"2,keyasint,omitempty"`
	NumLocals int      `cbor:"3,keyasint"`
	Code      []Instr  `cbor:"4,keyasint"`
	Method    bool     `cbor:"5,keyasint,omitempty"` // receives `this`
	Unit      string   `cbor:"6,keyasint,omitempty"`
	Line      int      `cbor:"7,keyasint,omitempty"`
}

// Arity is the number of declared parameters.
func (f *Function) Arity() int { return len(f.Params) }

// Type is an exported object type.
type Type struct {
	Name       string         `cbor:"1,keyasint"`
	Fields     []string       `cbor:"2,keyasint,omitempty"`
	Methods    map[string]int `cbor:"3,keyasint,omitempty"` // method name -> function index
	Attributes []string       `cbor:"4,keyasint,omitempty"`
}

// FieldIndex returns the slot of field name, or -1.
func (t *Type) FieldIndex(name string) int {
	for i, f := range t.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// Global is a module-level variable initialized by the module initializer.
type Global struct {
	Name    string `cbor:"1,keyasint"`
	Mutable bool   `cbor:"2,keyasint,omitempty"`
}

// Native is a function the host is expected to implement.
type Native struct {
	Name  string `cbor:"1,keyasint"`
	Arity int    `cbor:"2,keyasint"`
}

// Module is the in-memory compiled representation.
type Module struct {
	Name      string      `cbor:"1,keyasint"`
	Target    Target      `cbor:"2,keyasint"`
	Strings   []string    `cbor:"3,keyasint,omitempty"`
	Functions []*Function `cbor:"4,keyasint,omitempty"`
	Types     []*Type     `cbor:"5,keyasint,omitempty"`
	Globals   []Global    `cbor:"6,keyasint,omitempty"`
	Natives   []Native    `cbor:"7,keyasint,omitempty"`
	Imports   []string    `cbor:"8,keyasint,omitempty"`
	Exports   []string    `cbor:"9,keyasint,omitempty"` // free functions bound as symbols
	Init      int         `cbor:"10,keyasint"`          // initializer function index, -1 if none
	Entry     int         `cbor:"11,keyasint"`          // entry function index, -1 if none
}

// New creates an empty module.
func New(name string, target Target) *Module {
	return &Module{Name: name, Target: target, Init: -1, Entry: -1}
}

// Intern returns the index of s in the string table, adding it if needed.
func (m *Module) Intern(s string) int64 {
	for i, existing := range m.Strings {
		if existing == s {
			return int64(i)
		}
	}
	m.Strings = append(m.Strings, s)
	return int64(len(m.Strings) - 1)
}

// AddFunction appends fn and returns its index.
func (m *Module) AddFunction(fn *Function) int {
	m.Functions = append(m.Functions, fn)
	return len(m.Functions) - 1
}

// Function returns the free (non-method) function with the given name, or nil.
func (m *Module) Function(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name && !fn.Method {
			return fn
		}
	}
	return nil
}

// Type returns the type with the given name, or nil.
func (m *Module) Type(name string) *Type {
	for _, t := range m.Types {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Validate checks every index the runtime will dereference.
func (m *Module) Validate() error {
	nf := len(m.Functions)
	for i, fn := range m.Functions {
		if fn == nil {
			return fmt.Errorf("function %d is nil", i)
		}
	}
	if m.Init < -1 || m.Init >= nf {
		return fmt.Errorf("initializer index %d out of range", m.Init)
	}
	if m.Entry < -1 || m.Entry >= nf {
		return fmt.Errorf("entry index %d out of range", m.Entry)
	}
	for _, name := range m.Exports {
		if m.Function(name) == nil {
			return fmt.Errorf("export %q has no function", name)
		}
	}
	for _, t := range m.Types {
		for meth, idx := range t.Methods {
			if idx < 0 || idx >= nf {
				return fmt.Errorf("type %s: method %s index %d out of range", t.Name, meth, idx)
			}
		}
	}
	for _, fn := range m.Functions {
		if fn.NumLocals < len(fn.Params) {
			return fmt.Errorf("function %s: %d locals for %d params", fn.Name, fn.NumLocals, len(fn.Params))
		}
		for pc, in := range fn.Code {
			info, ok := in.Op.Info()
			if !ok {
				return fmt.Errorf("function %s: pc %d: unknown opcode 0x%02X", fn.Name, pc, byte(in.Op))
			}
			switch info.Operand {
			case operandString:
				if in.A < 0 || int(in.A) >= len(m.Strings) {
					return fmt.Errorf("function %s: pc %d: string index %d out of range", fn.Name, pc, in.A)
				}
			case operandTarget:
				if in.A < 0 || int(in.A) > len(fn.Code) {
					return fmt.Errorf("function %s: pc %d: jump target %d out of range", fn.Name, pc, in.A)
				}
			case operandSlot:
				if in.A < 0 || int(in.A) >= fn.NumLocals {
					return fmt.Errorf("function %s: pc %d: local %d out of range", fn.Name, pc, in.A)
				}
			}
			if (in.Op == OpCall && in.A < 0) || in.B < 0 {
				return fmt.Errorf("function %s: pc %d: negative argc", fn.Name, pc)
			}
		}
	}
	return nil
}
