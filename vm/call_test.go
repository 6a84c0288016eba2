package vm

import (
	"strings"
	"testing"

	"github.com/chazu/gear/module"
	"github.com/chazu/gear/status"
)

func TestCallBytecodeFunction(t *testing.T) {
	rt := loadedRuntime(t, Config{})
	fn := rt.AllocRegisters(1)[0]
	if err := rt.GetSymbol("add", fn); err != nil {
		t.Fatalf("GetSymbol: %v", err)
	}
	rt.SetInt(Param(0), 4)
	rt.SetInt(Param(1), 5)
	if err := rt.Call(fn, 2); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got := rt.GetInt(Return); got != 9 {
		t.Errorf("add(4, 5) = %d, want 9", got)
	}
}

func TestCallClearsUnusedParams(t *testing.T) {
	rt := newTestRuntime(t, Config{ParamRegisters: 4})
	var nulls []bool
	fn := rt.AllocRegisters(1)[0]
	rt.SetFunction(fn, func(rt *Runtime, argc int) int {
		for i := 0; i < 4; i++ {
			nulls = append(nulls, rt.IsNull(Param(i)))
		}
		return 0
	})
	for i := 0; i < 4; i++ {
		rt.SetInt(Param(i), int64(i+10))
	}

	if err := rt.Call(fn, 1); err != nil {
		t.Fatalf("Call: %v", err)
	}
	want := []bool{false, true, true, true}
	for i := range want {
		if nulls[i] != want[i] {
			t.Errorf("IsNull(PARAM(%d)) = %v, want %v", i, nulls[i], want[i])
		}
	}
}

func TestCallOverwritesReturn(t *testing.T) {
	rt := newTestRuntime(t, Config{})
	fn := rt.AllocRegisters(1)[0]
	rt.SetFunction(fn, func(rt *Runtime, argc int) int { return 0 })
	rt.SetInt(Return, 123)

	if err := rt.Call(fn, 0); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !rt.IsNull(Return) {
		t.Errorf("Return = %s, want null after a callee that wrote nothing", rt.GetString(Return))
	}
}

func TestNativeFailure(t *testing.T) {
	rt := newTestRuntime(t, Config{})
	fn := rt.AllocRegisters(1)[0]
	rt.SetFunction(fn, func(rt *Runtime, argc int) int {
		rt.SetInt(Return, 5)
		return 2
	})
	var seen int
	rt.SetErrorCallback(func(*status.Error) { seen++ })

	err := rt.Call(fn, 0)
	expectKind(t, err, status.CallFailure)
	if seen != 1 {
		t.Errorf("callback fired %d times, want 1", seen)
	}
	if !rt.IsNull(Return) {
		t.Error("Return should be null after a failed call")
	}
	if e := rt.LastError(); e == nil || !strings.Contains(e.Error(), "status 2") {
		t.Errorf("LastError() = %v, want native status in message", e)
	}
}

func TestBytecodeCallsNativeAndReenters(t *testing.T) {
	rt := loadedRuntime(t, Config{})
	var printed []string
	rt.ImplementFunction("print", func(rt *Runtime, argc int) int {
		printed = append(printed, rt.GetString(Param(0)))
		// Re-enter the runtime from inside the callback.
		rt.SetInt(Param(0), 20)
		rt.SetInt(Param(1), 22)
		if err := rt.CallByName("add", 2); err != nil {
			return 1
		}
		return 0 // Return already holds add's result
	})

	rt.SetString(Param(0), "hello")
	if err := rt.CallByName("echo", 1); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if len(printed) != 1 || printed[0] != "hello" {
		t.Errorf("printed = %v, want [hello]", printed)
	}
	if got := rt.GetInt(Return); got != 42 {
		t.Errorf("echo result = %d, want 42", got)
	}
	if depth := rt.Stats().CallDepth; depth != 0 {
		t.Errorf("call depth after return = %d, want 0", depth)
	}
}

func TestUnimplementedNative(t *testing.T) {
	rt := loadedRuntime(t, Config{})
	rt.SetInt(Param(0), 1)
	err := rt.CallByName("echo", 1)
	expectKind(t, err, status.CallFailure)
	if err == nil || !strings.Contains(err.Error(), "not implemented") {
		t.Errorf("error = %v, want not implemented", err)
	}
	if !strings.Contains(err.Error(), "test:echo") {
		t.Errorf("error = %v, want the failing function located", err)
	}
}

func TestImplementFunctionBeforeLoad(t *testing.T) {
	rt := newTestRuntime(t, Config{})
	called := false
	if err := rt.ImplementFunction("print", func(rt *Runtime, argc int) int {
		called = true
		return 0
	}); err != nil {
		t.Fatalf("ImplementFunction: %v", err)
	}
	if err := rt.LoadModule(testModule()); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	rt.SetInt(Param(0), 1)
	if err := rt.CallByName("echo", 1); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if !called {
		t.Error("host binding made before load should survive the load")
	}
}

func TestImplementFunctionUpdatesExistingReferences(t *testing.T) {
	rt := loadedRuntime(t, Config{})
	fn := rt.AllocRegisters(1)[0]
	rt.LoadFunction(fn, "print")
	rt.ImplementFunction("print", func(rt *Runtime, argc int) int {
		rt.SetBool(Return, true)
		return 0
	})
	if err := rt.Call(fn, 0); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !rt.GetBool(Return) {
		t.Error("reference taken before ImplementFunction should see the implementation")
	}
}

func TestStackOverflow(t *testing.T) {
	rt := loadedRuntime(t, Config{MaxCallDepth: 64})
	rt.SetInt(Param(0), 1)
	err := rt.CallByName("loop", 1)
	expectKind(t, err, status.CallFailure)
	if err == nil || !strings.Contains(err.Error(), "stack overflow") {
		t.Errorf("error = %v, want stack overflow", err)
	}
	if rt.Stats().CallDepth != 0 {
		t.Error("frames should unwind after a failure")
	}
}

func TestArityMismatch(t *testing.T) {
	rt := loadedRuntime(t, Config{})
	expectKind(t, rt.CallByName("add", 1), status.CallFailure)
}

func TestCallUnknownOrNonFunction(t *testing.T) {
	rt := loadedRuntime(t, Config{})
	expectKind(t, rt.CallByName("nope", 0), status.UnknownSymbol)

	reg := rt.AllocRegisters(1)[0]
	rt.SetInt(reg, 3)
	expectKind(t, rt.Call(reg, 0), status.CallFailure)
	expectKind(t, rt.LoadFunction(reg, "Node"), status.UnknownSymbol)
	expectKind(t, rt.Call(reg, 99), status.CallFailure)
}

func TestMethodCall(t *testing.T) {
	rt := loadedRuntime(t, Config{})
	rt.SetFloat(Param(0), 2.5)
	if err := rt.CallByName("makeNode", 1); err != nil {
		t.Fatalf("makeNode: %v", err)
	}
	rt.Move(Return, Param(0))
	if err := rt.CallByName("valueOf", 1); err != nil {
		t.Fatalf("valueOf: %v", err)
	}
	if got := rt.GetFloat(Return); got != 2.5 {
		t.Errorf("valueOf = %g, want 2.5", got)
	}
}

func TestFieldFunction(t *testing.T) {
	m := testModule()
	// func viaField(n) { return n.next(7); }
	var b module.Builder
	b.Emit(module.OpLoadLocal, 0)
	b.Emit(module.OpPushInt, 7)
	b.Emit(module.OpCallMethod, m.Intern("next"), 1)
	b.Emit(module.OpReturn)
	m.AddFunction(&module.Function{Name: "viaField", Params: []string{"n"}, NumLocals: 1, Code: b.Code()})
	m.Exports = append(m.Exports, "viaField")

	rt := newTestRuntime(t, Config{})
	if err := rt.LoadModule(m); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	obj := rt.AllocRegisters(1)[0]
	rt.SetObject(obj, "Node")
	if err := rt.SetFieldFunction(obj, "next", func(rt *Runtime, argc int) int {
		rt.SetInt(Return, rt.GetInt(Param(0))*6)
		return 0
	}); err != nil {
		t.Fatalf("SetFieldFunction: %v", err)
	}
	expectKind(t, rt.SetFieldFunction(obj, "missing", func(*Runtime, int) int { return 0 }), status.UnknownSymbol)

	rt.Move(obj, Param(0))
	if err := rt.CallByName("viaField", 1); err != nil {
		t.Fatalf("viaField: %v", err)
	}
	if got := rt.GetInt(Return); got != 42 {
		t.Errorf("viaField = %d, want 42", got)
	}
}

func TestRuntimeErrorsCarryLocation(t *testing.T) {
	m := module.New("errs", module.Library)
	var b module.Builder
	b.SetLine(9)
	b.Emit(module.OpPushInt, 1)
	b.Emit(module.OpPushInt, 0)
	b.Emit(module.OpDiv)
	b.Emit(module.OpReturn)
	m.AddFunction(&module.Function{Name: "boom", NumLocals: 0, Code: b.Code(), Unit: "math"})
	m.Exports = []string{"boom"}

	rt := newTestRuntime(t, Config{})
	if err := rt.LoadModule(m); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	err := rt.CallByName("boom", 0)
	if err == nil || !strings.Contains(err.Error(), "division by zero") || !strings.Contains(err.Error(), "math:boom at line 9") {
		t.Errorf("error = %v", err)
	}
}
