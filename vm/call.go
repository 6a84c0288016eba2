package vm

import (
	"github.com/chazu/gear/status"
)

// ---------------------------------------------------------------------------
// Call frames
// ---------------------------------------------------------------------------

// frame is one activation on the call stack. Native frames have a nil fn and
// keep their arguments in locals, since a re-entrant call from the callback
// resets the PARAM registers.
type frame struct {
	fn     *function
	name   string
	callee Value
	this   Value
	locals []Value
	stack  []Value
	pc     int
	line   int
}

func (f *frame) native() bool { return f.fn == nil }

func (f *frame) push(v Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() Value {
	n := len(f.stack) - 1
	v := f.stack[n]
	f.stack[n] = Null
	f.stack = f.stack[:n]
	return v
}

func (f *frame) popN(n int) []Value {
	base := len(f.stack) - n
	args := make([]Value, n)
	copy(args, f.stack[base:])
	for i := base; i < len(f.stack); i++ {
		f.stack[i] = Null
	}
	f.stack = f.stack[:base]
	return args
}

// ---------------------------------------------------------------------------
// Host calls
// ---------------------------------------------------------------------------

// Call invokes the function held in reg with argc arguments taken from
// Param(0) through Param(argc-1). Parameters from argc up are cleared before
// dispatch. Return always receives the result, or Null if the call fails.
func (r *Runtime) Call(reg Register, argc int) error {
	p, err := r.slot(reg)
	if err != nil {
		r.regs.reserved[Return] = Null
		return err
	}
	return r.callValue(*p, argc)
}

// CallByName looks up name in the symbol table and calls it like Call.
func (r *Runtime) CallByName(name string, argc int) error {
	v, ok := r.symbols.Lookup(name)
	if !ok {
		r.regs.reserved[Return] = Null
		return r.fail(status.UnknownSymbol, "function %q not found", name)
	}
	return r.callValue(v, argc)
}

func (r *Runtime) callValue(callee Value, argc int) error {
	if argc < 0 || argc > r.cfg.ParamRegisters {
		r.regs.reserved[Return] = Null
		return r.fail(status.CallFailure, "argument count %d outside 0..%d", argc, r.cfg.ParamRegisters)
	}
	r.regs.resetParams(argc)
	args := make([]Value, argc)
	copy(args, r.regs.reserved[1:1+argc])

	result, serr := r.invoke(callee, Null, args)
	if serr != nil {
		r.regs.reserved[Return] = Null
		return r.status.Report(serr)
	}
	r.regs.reserved[Return] = result
	return nil
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// invoke dispatches callee to the native bridge or the interpreter. It does
// not report errors; the public entry point that started the call does.
func (r *Runtime) invoke(callee Value, this Value, args []Value) (Value, *status.Error) {
	obj := r.heap.get(callee.ref)
	if callee.kind != KindFunction || obj == nil {
		return Null, status.Errorf(status.CallFailure, "value of kind %s is not callable", callee.kind)
	}
	switch obj.kind {
	case objNative:
		return r.callNative(obj, callee, args)
	case objFunction:
		return r.execute(obj.fn, callee, this, args)
	}
	return Null, status.Errorf(status.CallFailure, "value is not callable")
}

// callNative binds args to the PARAM registers, clears the rest of the range
// and Return, and runs the host callback.
func (r *Runtime) callNative(obj *object, callee Value, args []Value) (Value, *status.Error) {
	if err := r.checkDepth(); err != nil {
		return Null, err
	}
	if obj.native == nil {
		return Null, status.Errorf(status.CallFailure, "native function %q is not implemented", obj.name)
	}
	if len(args) > r.cfg.ParamRegisters {
		return Null, status.Errorf(status.CallFailure, "%d arguments exceed the %d parameter registers", len(args), r.cfg.ParamRegisters)
	}
	copy(r.regs.reserved[1:], args)
	r.regs.resetParams(len(args))
	r.regs.reserved[Return] = Null

	r.frames = append(r.frames, &frame{name: obj.name, callee: callee, locals: append([]Value(nil), args...)})
	depth := len(r.frames)
	code := obj.native(r, len(args))
	r.frames = r.frames[:depth-1]

	if code != 0 {
		log.Debugf("native %s failed with status %d", obj.name, code)
		return Null, status.Errorf(status.CallFailure, "native function %q failed with status %d", obj.name, code)
	}
	return r.regs.reserved[Return], nil
}

// execute pushes a bytecode frame for fn and runs it to completion.
func (r *Runtime) execute(fn *function, callee Value, this Value, args []Value) (Value, *status.Error) {
	if err := r.checkDepth(); err != nil {
		return Null, err
	}
	def := fn.def
	if len(args) != len(def.Params) {
		return Null, status.Errorf(status.CallFailure, "%s expects %d arguments, got %d", def.Name, len(def.Params), len(args))
	}
	fr := &frame{
		fn:     fn,
		name:   def.Name,
		callee: callee,
		this:   this,
		locals: make([]Value, def.NumLocals),
		line:   def.Line,
	}
	copy(fr.locals, args)

	r.frames = append(r.frames, fr)
	depth := len(r.frames)
	result, err := r.run(fr)
	r.frames = r.frames[:depth-1]
	if err != nil {
		return Null, err
	}
	return result, nil
}

// checkDepth guards the Go stack against runaway recursion.
func (r *Runtime) checkDepth() *status.Error {
	if len(r.frames) >= r.cfg.MaxCallDepth {
		return status.Errorf(status.CallFailure, "stack overflow: call depth exceeds %d", r.cfg.MaxCallDepth)
	}
	return nil
}
