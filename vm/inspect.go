package vm

import "strconv"

// ---------------------------------------------------------------------------
// Read-only introspection for debuggers
// ---------------------------------------------------------------------------

// StackFrame describes one call stack entry. Frames are listed innermost first.
type StackFrame struct {
	ID       int    // depth, 0 for the outermost frame
	Function string // function or native name
	Unit     string // compilation unit, empty for natives
	Line     int    // 1-based line, 0 if unknown
	Native   bool
	Locals   []Variable
}

// Variable is a rendered value for inspection.
type Variable struct {
	Name  string
	Value string
	Type  string
}

// RegisterInfo describes one register.
type RegisterInfo struct {
	Register Register
	Name     string
	Value    string
	Type     string
}

// Stats summarizes heap and register usage.
type Stats struct {
	LiveObjects   int
	Collections   int
	Reclaimed     int
	BytesSinceGC  int
	LiveRegisters int
	Symbols       int
	CallDepth     int
}

// Frames returns a snapshot of the call stack.
func (r *Runtime) Frames() []StackFrame {
	out := make([]StackFrame, 0, len(r.frames))
	for i := len(r.frames) - 1; i >= 0; i-- {
		fr := r.frames[i]
		sf := StackFrame{ID: i, Function: fr.name, Line: fr.line, Native: fr.native()}
		if !sf.Native {
			def := fr.fn.def
			sf.Unit = def.Unit
			if !fr.this.IsNull() {
				sf.Locals = append(sf.Locals, r.describe("this", fr.this))
			}
			for slot, v := range fr.locals {
				name := "$" + strconv.Itoa(slot)
				if slot < len(def.Params) {
					name = def.Params[slot]
				}
				sf.Locals = append(sf.Locals, r.describe(name, v))
			}
		}
		out = append(out, sf)
	}
	return out
}

// Registers returns a snapshot of Return, the non-null PARAM registers and
// every live user register.
func (r *Runtime) Registers() []RegisterInfo {
	var out []RegisterInfo
	r.regs.each(func(reg Register, v Value) {
		if reg != Return && reg>>32 == 0 && v.IsNull() {
			return
		}
		d := r.describe(reg.String(), v)
		out = append(out, RegisterInfo{Register: reg, Name: d.Name, Value: d.Value, Type: d.Type})
	})
	return out
}

// Symbols returns a snapshot of the symbol table in name order.
func (r *Runtime) Symbols() []Variable {
	names := r.symbols.Names()
	out := make([]Variable, 0, len(names))
	for _, n := range names {
		v, _ := r.symbols.Lookup(n)
		out = append(out, r.describe(n, v))
	}
	return out
}

// Stats returns heap and register counters.
func (r *Runtime) Stats() Stats {
	return Stats{
		LiveObjects:   r.heap.live,
		Collections:   r.heap.collections,
		Reclaimed:     r.heap.reclaimed,
		BytesSinceGC:  r.heap.sinceGC,
		LiveRegisters: r.regs.inUse,
		Symbols:       r.symbols.Len(),
		CallDepth:     len(r.frames),
	}
}

func (r *Runtime) describe(name string, v Value) Variable {
	s := r.stringOf(v)
	if v.kind == KindString {
		s = strconv.Quote(s)
	}
	return Variable{Name: name, Value: s, Type: r.TypeName(v)}
}
