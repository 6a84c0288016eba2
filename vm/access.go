package vm

import (
	"github.com/chazu/gear/status"
)

// ---------------------------------------------------------------------------
// Register allocation
// ---------------------------------------------------------------------------

// AllocRegisters returns n fresh user registers, each holding Null.
func (r *Runtime) AllocRegisters(n int) []Register {
	if n <= 0 {
		return nil
	}
	return r.regs.alloc(n)
}

// FreeRegisters returns registers to the pool. Their values are cleared
// first, so they stop keeping objects alive. Handles that are not live user
// registers are reported as InvalidHandle; the remaining ones are still freed.
func (r *Runtime) FreeRegisters(regs ...Register) error {
	var err error
	for _, reg := range regs {
		if !r.regs.release(reg) {
			err = r.fail(status.InvalidHandle, "cannot free register %s", reg)
		}
	}
	return err
}

// slot resolves reg, reporting InvalidHandle when it is stale or out of range.
func (r *Runtime) slot(reg Register) (*Value, error) {
	p := r.regs.slot(reg)
	if p == nil {
		return nil, r.fail(status.InvalidHandle, "invalid register %s", reg)
	}
	return p, nil
}

// Value returns the raw value held by reg.
func (r *Runtime) Value(reg Register) (Value, error) {
	p, err := r.slot(reg)
	if err != nil {
		return Null, err
	}
	return *p, nil
}

// SetValue stores v in reg.
func (r *Runtime) SetValue(reg Register, v Value) error {
	p, err := r.slot(reg)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Move copies src into dst. Reference values are shared, not copied: dst
// becomes a second reference to the same object. src is left unchanged.
func (r *Runtime) Move(src, dst Register) error {
	from, err := r.slot(src)
	if err != nil {
		return err
	}
	to, err := r.slot(dst)
	if err != nil {
		return err
	}
	*to = *from
	return nil
}

// IsNull reports whether reg holds Null. Invalid handles report true.
func (r *Runtime) IsNull(reg Register) bool {
	p, err := r.slot(reg)
	if err != nil {
		return true
	}
	return p.IsNull()
}

// SetNull stores Null in reg.
func (r *Runtime) SetNull(reg Register) error { return r.SetValue(reg, Null) }

// ---------------------------------------------------------------------------
// Typed setters
// ---------------------------------------------------------------------------

// SetInt stores an Int, wrapped to the configured integer width.
func (r *Runtime) SetInt(reg Register, i int64) error {
	return r.SetValue(reg, Int(r.cfg.normInt(i)))
}

// SetFloat stores a Float, rounded to the configured float width.
func (r *Runtime) SetFloat(reg Register, f float64) error {
	return r.SetValue(reg, Float(r.cfg.normFloat(f)))
}

// SetBool stores a Bool.
func (r *Runtime) SetBool(reg Register, b bool) error {
	return r.SetValue(reg, Bool(b))
}

// SetString allocates a String holding s and stores it in reg.
func (r *Runtime) SetString(reg Register, s string) error {
	p, err := r.slot(reg)
	if err != nil {
		return err
	}
	*p = refValue(KindString, r.allocate(stringObject(s)))
	return nil
}

// SetFunction boxes a host callback as a Function value and stores it in reg.
func (r *Runtime) SetFunction(reg Register, fn NativeFunc) error {
	p, err := r.slot(reg)
	if err != nil {
		return err
	}
	if fn == nil {
		return r.fail(status.InvalidProperty, "nil native function")
	}
	*p = refValue(KindFunction, r.allocate(nativeObject("<native>", fn)))
	return nil
}

// SetObject allocates an instance of the exported type named typeName, all
// fields Null, and stores it in reg.
func (r *Runtime) SetObject(reg Register, typeName string) error {
	p, err := r.slot(reg)
	if err != nil {
		return err
	}
	t, ok := r.types[typeName]
	if !ok {
		return r.fail(status.UnknownSymbol, "no type named %q", typeName)
	}
	*p = refValue(KindObject, r.allocate(instanceObject(t)))
	return nil
}

// ---------------------------------------------------------------------------
// Typed getters: total, reporting failures through the last-error slot
// ---------------------------------------------------------------------------

// GetInt converts the value in reg to an integer. Floats truncate and Bools
// map to 0 or 1; any other variant yields 0 and a TypeConversion error.
func (r *Runtime) GetInt(reg Register) int64 {
	p, err := r.slot(reg)
	if err != nil {
		return 0
	}
	i, ok := p.toInt()
	if !ok {
		r.fail(status.TypeConversion, "cannot convert %s to int", p.kind)
		return 0
	}
	return i
}

// GetFloat converts the value in reg to a float. Ints widen; any other
// variant yields 0 and a TypeConversion error.
func (r *Runtime) GetFloat(reg Register) float64 {
	p, err := r.slot(reg)
	if err != nil {
		return 0
	}
	f, ok := p.toFloat()
	if !ok {
		r.fail(status.TypeConversion, "cannot convert %s to float", p.kind)
		return 0
	}
	return f
}

// GetBool returns the truthiness of the value in reg.
func (r *Runtime) GetBool(reg Register) bool {
	p, err := r.slot(reg)
	if err != nil {
		return false
	}
	return p.Truthy()
}

// GetString returns the value in reg as a string. Strings are returned as
// is; objects yield their type name, never a user-defined rendering.
func (r *Runtime) GetString(reg Register) string {
	p, err := r.slot(reg)
	if err != nil {
		return ""
	}
	return r.stringOf(*p)
}

func (r *Runtime) stringOf(v Value) string {
	if !v.IsRef() {
		return v.primitiveString()
	}
	obj := r.heap.get(v.ref)
	if obj == nil {
		return ""
	}
	switch obj.kind {
	case objString:
		return obj.str
	case objInstance, objType:
		return obj.typ.name
	case objNative:
		return "native " + obj.name
	case objFunction:
		return "func " + obj.name
	}
	return ""
}

// TypeName returns the variant name of v, or the type name for objects.
func (r *Runtime) TypeName(v Value) string {
	if v.kind == KindObject {
		if obj := r.heap.get(v.ref); obj != nil && obj.typ != nil {
			return obj.typ.name
		}
	}
	return v.kind.String()
}

// ---------------------------------------------------------------------------
// Object fields
// ---------------------------------------------------------------------------

func (r *Runtime) instanceField(v Value, field string) (*object, int, *status.Error) {
	obj := r.heap.get(v.ref)
	if v.kind != KindObject || obj == nil || obj.kind != objInstance {
		return nil, -1, status.Errorf(status.TypeConversion, "cannot access field %q of %s", field, v.kind)
	}
	idx := obj.typ.fieldIndex(field)
	if idx < 0 {
		return nil, -1, status.Errorf(status.UnknownSymbol, "type %s has no field %q", obj.typ.name, field)
	}
	return obj, idx, nil
}

// GetField copies field of the object in obj into dst.
func (r *Runtime) GetField(obj Register, field string, dst Register) error {
	src, err := r.slot(obj)
	if err != nil {
		return err
	}
	to, err := r.slot(dst)
	if err != nil {
		return err
	}
	o, idx, serr := r.instanceField(*src, field)
	if serr != nil {
		return r.status.Report(serr)
	}
	*to = o.fields[idx]
	return nil
}

// SetField stores the value in src into field of the object in obj.
func (r *Runtime) SetField(obj Register, field string, src Register) error {
	target, err := r.slot(obj)
	if err != nil {
		return err
	}
	from, err := r.slot(src)
	if err != nil {
		return err
	}
	o, idx, serr := r.instanceField(*target, field)
	if serr != nil {
		return r.status.Report(serr)
	}
	o.fields[idx] = *from
	return nil
}

// SetFieldFunction boxes fn and stores it into field of the object in reg,
// so that calling the method field from Gear code dispatches to the host.
func (r *Runtime) SetFieldFunction(reg Register, field string, fn NativeFunc) error {
	p, err := r.slot(reg)
	if err != nil {
		return err
	}
	if fn == nil {
		return r.fail(status.InvalidProperty, "nil native function")
	}
	o, idx, serr := r.instanceField(*p, field)
	if serr != nil {
		return r.status.Report(serr)
	}
	v := refValue(KindFunction, r.allocate(nativeObject(o.typ.name+"."+field, fn)))
	o.fields[idx] = v
	return nil
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// GetSymbol copies the value bound to name into reg.
func (r *Runtime) GetSymbol(name string, reg Register) error {
	p, err := r.slot(reg)
	if err != nil {
		return err
	}
	v, ok := r.symbols.Lookup(name)
	if !ok {
		return r.fail(status.UnknownSymbol, "symbol %q not found", name)
	}
	*p = v
	return nil
}

// LoadFunction copies the function bound to name into reg. It fails with
// UnknownSymbol when name is unbound or not a function.
func (r *Runtime) LoadFunction(reg Register, name string) error {
	p, err := r.slot(reg)
	if err != nil {
		return err
	}
	v, ok := r.symbols.Lookup(name)
	if !ok || v.kind != KindFunction {
		return r.fail(status.UnknownSymbol, "function %q not found", name)
	}
	*p = v
	return nil
}

// ImplementFunction binds fn as the native function name. It may be called
// before or after the module declaring name is loaded; a declared but
// unimplemented native is completed in place, so references already taken
// to it see the implementation.
func (r *Runtime) ImplementFunction(name string, fn NativeFunc) error {
	if fn == nil {
		return r.fail(status.InvalidProperty, "nil native function for %q", name)
	}
	if v, ok := r.symbols.Lookup(name); ok && v.kind == KindFunction {
		if obj := r.heap.get(v.ref); obj != nil && obj.kind == objNative {
			obj.native = fn
			return nil
		}
	}
	r.symbols.bind(name, refValue(KindFunction, r.allocate(nativeObject(name, fn))))
	return nil
}
