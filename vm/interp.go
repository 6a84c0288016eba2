package vm

import (
	"math"
	"strconv"

	"github.com/chazu/gear/module"
	"github.com/chazu/gear/status"
)

// ---------------------------------------------------------------------------
// Interpreter loop
// ---------------------------------------------------------------------------

// run executes fr until it returns or fails.
func (r *Runtime) run(fr *frame) (Value, *status.Error) {
	code := fr.fn.def.Code
	strs := fr.fn.mod.Strings
	if r.debugger != nil {
		r.debugger.Checkpoint(r)
	}

	for fr.pc < len(code) {
		in := code[fr.pc]
		fr.pc++
		if in.Line != 0 && in.Line != fr.line {
			fr.line = in.Line
			if r.debugger != nil {
				r.debugger.Checkpoint(r)
			}
		}

		switch in.Op {
		case module.OpNop:
		case module.OpPop:
			fr.pop()
		case module.OpDup:
			fr.push(fr.stack[len(fr.stack)-1])

		case module.OpPushNull:
			fr.push(Null)
		case module.OpPushTrue:
			fr.push(Bool(true))
		case module.OpPushFalse:
			fr.push(Bool(false))
		case module.OpPushInt:
			fr.push(Int(r.cfg.normInt(in.A)))
		case module.OpPushFloat:
			fr.push(Float(r.cfg.normFloat(in.Float())))
		case module.OpPushString:
			fr.push(refValue(KindString, r.allocate(stringObject(strs[in.A]))))
		case module.OpPushThis:
			fr.push(fr.this)

		case module.OpLoadLocal:
			fr.push(fr.locals[in.A])
		case module.OpStoreLocal:
			fr.locals[in.A] = fr.pop()
		case module.OpLoadGlobal:
			v, ok := r.symbols.Lookup(strs[in.A])
			if !ok {
				return Null, r.errorAt(fr, status.UnknownSymbol, "undefined symbol %q", strs[in.A])
			}
			fr.push(v)
		case module.OpStoreGlobal:
			name := strs[in.A]
			mutable, isGlobal := r.symbols.mutable[name]
			if !isGlobal {
				return Null, r.errorAt(fr, status.UnknownSymbol, "undefined global %q", name)
			}
			if !mutable && !r.initializing {
				return Null, r.errorAt(fr, status.CallFailure, "cannot assign to constant %q", name)
			}
			r.symbols.bind(name, fr.pop())

		case module.OpGetField, module.OpGetFieldSafe:
			recv := fr.pop()
			if recv.IsNull() && in.Op == module.OpGetFieldSafe {
				fr.push(Null)
				continue
			}
			obj, idx, err := r.instanceField(recv, strs[in.A])
			if err != nil {
				return Null, r.wrapAt(fr, err)
			}
			fr.push(obj.fields[idx])
		case module.OpSetField:
			v := fr.pop()
			recv := fr.pop()
			obj, idx, err := r.instanceField(recv, strs[in.A])
			if err != nil {
				return Null, r.wrapAt(fr, err)
			}
			obj.fields[idx] = v

		case module.OpNew:
			t, ok := r.types[strs[in.A]]
			if !ok {
				return Null, r.errorAt(fr, status.UnknownSymbol, "no type named %q", strs[in.A])
			}
			fr.push(refValue(KindObject, r.allocate(instanceObject(t))))

		case module.OpCall:
			args := fr.popN(int(in.A))
			callee := fr.pop()
			result, err := r.invoke(callee, Null, args)
			if err != nil {
				return Null, r.wrapAt(fr, err)
			}
			fr.push(result)
		case module.OpCallMethod, module.OpCallMethodSafe:
			args := fr.popN(int(in.B))
			recv := fr.pop()
			if recv.IsNull() && in.Op == module.OpCallMethodSafe {
				fr.push(Null)
				continue
			}
			result, err := r.callMethod(recv, strs[in.A], args)
			if err != nil {
				return Null, r.wrapAt(fr, err)
			}
			fr.push(result)

		case module.OpAdd, module.OpSub, module.OpMul, module.OpDiv, module.OpMod:
			b := fr.pop()
			a := fr.pop()
			v, err := r.arith(in.Op, a, b)
			if err != nil {
				return Null, r.wrapAt(fr, err)
			}
			fr.push(v)
		case module.OpNeg:
			a := fr.pop()
			switch a.kind {
			case KindInt:
				fr.push(Int(r.cfg.normInt(-a.intVal())))
			case KindFloat:
				fr.push(Float(-a.floatVal()))
			default:
				return Null, r.errorAt(fr, status.TypeConversion, "cannot negate %s", a.kind)
			}
		case module.OpNot:
			fr.push(Bool(!fr.pop().Truthy()))
		case module.OpEq:
			b := fr.pop()
			fr.push(Bool(r.equal(fr.pop(), b)))
		case module.OpNe:
			b := fr.pop()
			fr.push(Bool(!r.equal(fr.pop(), b)))
		case module.OpLt, module.OpLe, module.OpGt, module.OpGe:
			b := fr.pop()
			a := fr.pop()
			c, err := r.compare(a, b)
			if err != nil {
				return Null, r.wrapAt(fr, err)
			}
			fr.push(Bool(compareResult(in.Op, c)))

		case module.OpJump:
			fr.pc = int(in.A)
		case module.OpJumpFalse:
			if !fr.pop().Truthy() {
				fr.pc = int(in.A)
			}
		case module.OpJumpTrue:
			if fr.pop().Truthy() {
				fr.pc = int(in.A)
			}
		case module.OpReturn:
			return fr.pop(), nil
		case module.OpReturnNull:
			return Null, nil

		default:
			return Null, r.errorAt(fr, status.InvalidModule, "unknown opcode %s", in.Op)
		}
	}
	return Null, nil
}

// errorAt builds an error annotated with the frame's function and line.
func (r *Runtime) errorAt(fr *frame, kind status.Kind, format string, args ...interface{}) *status.Error {
	return r.wrapAt(fr, status.Errorf(kind, format, args...))
}

// wrapAt annotates err with the innermost frame it passes through.
func (r *Runtime) wrapAt(fr *frame, err *status.Error) *status.Error {
	if _, located := err.Err.(*Trace); located {
		return err
	}
	loc := fr.name
	if fr.fn != nil && fr.fn.def.Unit != "" {
		loc = fr.fn.def.Unit + ":" + loc
	}
	return &status.Error{
		Kind:    err.Kind,
		Message: err.Message,
		Err:     &Trace{Function: loc, Line: fr.line},
	}
}

// Trace locates a runtime error in Gear source.
type Trace struct {
	Function string
	Line     int
}

func (t *Trace) Error() string {
	if t.Line > 0 {
		return "in " + t.Function + " at line " + strconv.Itoa(t.Line)
	}
	return "in " + t.Function
}

// callMethod dispatches name on recv: a method of the receiver's type wins,
// otherwise a field holding a function is called without a receiver.
func (r *Runtime) callMethod(recv Value, name string, args []Value) (Value, *status.Error) {
	obj := r.heap.get(recv.ref)
	if recv.kind == KindString && obj != nil && name == "length" && len(args) == 0 {
		return Int(int64(len(obj.str))), nil
	}
	if recv.kind != KindObject || obj == nil || obj.kind != objInstance {
		return Null, status.Errorf(status.CallFailure, "cannot call method %q on %s", name, recv.kind)
	}
	if m, ok := obj.typ.methods[name]; ok {
		return r.execute(m, Null, recv, args)
	}
	if idx := obj.typ.fieldIndex(name); idx >= 0 {
		return r.invoke(obj.fields[idx], Null, args)
	}
	return Null, status.Errorf(status.UnknownSymbol, "type %s has no method %q", obj.typ.name, name)
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (r *Runtime) arith(op module.Opcode, a, b Value) (Value, *status.Error) {
	if op == module.OpAdd && (a.kind == KindString || b.kind == KindString) {
		s := r.stringOf(a) + r.stringOf(b)
		return refValue(KindString, r.allocate(stringObject(s))), nil
	}
	if !a.isNumber() || !b.isNumber() {
		return Null, status.Errorf(status.TypeConversion, "invalid operands %s and %s for %s", a.kind, b.kind, op)
	}
	if a.kind == KindInt && b.kind == KindInt {
		x, y := a.intVal(), b.intVal()
		var z int64
		switch op {
		case module.OpAdd:
			z = x + y
		case module.OpSub:
			z = x - y
		case module.OpMul:
			z = x * y
		case module.OpDiv, module.OpMod:
			if y == 0 {
				return Null, status.Errorf(status.CallFailure, "division by zero")
			}
			if op == module.OpDiv {
				z = x / y
			} else {
				z = x % y
			}
		}
		return Int(r.cfg.normInt(z)), nil
	}
	x, _ := a.toFloat()
	y, _ := b.toFloat()
	var z float64
	switch op {
	case module.OpAdd:
		z = x + y
	case module.OpSub:
		z = x - y
	case module.OpMul:
		z = x * y
	case module.OpDiv:
		z = x / y
	case module.OpMod:
		z = math.Mod(x, y)
	}
	return Float(r.cfg.normFloat(z)), nil
}

func (r *Runtime) equal(a, b Value) bool {
	if a.isNumber() && b.isNumber() {
		if a.kind == KindInt && b.kind == KindInt {
			return a.intVal() == b.intVal()
		}
		x, _ := a.toFloat()
		y, _ := b.toFloat()
		return x == y
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolVal() == b.boolVal()
	case KindString:
		return r.stringOf(a) == r.stringOf(b)
	}
	return a.ref == b.ref
}

// compare returns -1, 0 or 1 for ordered operands.
func (r *Runtime) compare(a, b Value) (int, *status.Error) {
	switch {
	case a.kind == KindInt && b.kind == KindInt:
		x, y := a.intVal(), b.intVal()
		return cmp3(x < y, x > y), nil
	case a.isNumber() && b.isNumber():
		x, _ := a.toFloat()
		y, _ := b.toFloat()
		return cmp3(x < y, x > y), nil
	case a.kind == KindString && b.kind == KindString:
		x, y := r.stringOf(a), r.stringOf(b)
		return cmp3(x < y, x > y), nil
	}
	return 0, status.Errorf(status.TypeConversion, "cannot compare %s with %s", a.kind, b.kind)
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func compareResult(op module.Opcode, c int) bool {
	switch op {
	case module.OpLt:
		return c < 0
	case module.OpLe:
		return c <= 0
	case module.OpGt:
		return c > 0
	}
	return c >= 0
}
