package vm

import (
	"testing"

	"github.com/chazu/gear/module"
	"github.com/chazu/gear/status"
)

// testModule builds a small module by hand:
//
//	native func print(x);
//	var counter = 41;
//	type Node { value; next; func getValue() { return this.value; } }
//	func add(a, b) { return a + b; }
//	func loop(n) { return loop(n); }
//	func echo(x) { return print(x); }
//	func makeNode(v) { var n = new Node; n.value = v; return n; }
func testModule() *module.Module {
	m := module.New("test", module.Library)

	var add module.Builder
	add.SetLine(1)
	add.Emit(module.OpLoadLocal, 0)
	add.Emit(module.OpLoadLocal, 1)
	add.Emit(module.OpAdd)
	add.Emit(module.OpReturn)
	m.AddFunction(&module.Function{Name: "add", Params: []string{"a", "b"}, NumLocals: 2, Code: add.Code(), Unit: "test", Line: 1})

	var loop module.Builder
	loop.SetLine(2)
	loop.Emit(module.OpLoadGlobal, m.Intern("loop"))
	loop.Emit(module.OpLoadLocal, 0)
	loop.Emit(module.OpCall, 1)
	loop.Emit(module.OpReturn)
	m.AddFunction(&module.Function{Name: "loop", Params: []string{"n"}, NumLocals: 1, Code: loop.Code(), Unit: "test", Line: 2})

	var echo module.Builder
	echo.SetLine(3)
	echo.Emit(module.OpLoadGlobal, m.Intern("print"))
	echo.Emit(module.OpLoadLocal, 0)
	echo.Emit(module.OpCall, 1)
	echo.Emit(module.OpReturn)
	m.AddFunction(&module.Function{Name: "echo", Params: []string{"x"}, NumLocals: 1, Code: echo.Code(), Unit: "test", Line: 3})

	var mk module.Builder
	mk.SetLine(4)
	mk.Emit(module.OpNew, m.Intern("Node"))
	mk.Emit(module.OpStoreLocal, 1)
	mk.Emit(module.OpLoadLocal, 1)
	mk.Emit(module.OpLoadLocal, 0)
	mk.Emit(module.OpSetField, m.Intern("value"))
	mk.Emit(module.OpLoadLocal, 1)
	mk.Emit(module.OpReturn)
	m.AddFunction(&module.Function{Name: "makeNode", Params: []string{"v"}, NumLocals: 2, Code: mk.Code(), Unit: "test", Line: 4})

	var get module.Builder
	get.SetLine(5)
	get.Emit(module.OpPushThis)
	get.Emit(module.OpGetField, m.Intern("value"))
	get.Emit(module.OpReturn)
	getIdx := m.AddFunction(&module.Function{Name: "getValue", NumLocals: 0, Code: get.Code(), Method: true, Unit: "test", Line: 5})

	var call module.Builder
	call.SetLine(6)
	call.Emit(module.OpLoadLocal, 0)
	call.Emit(module.OpCallMethod, m.Intern("getValue"), 0)
	call.Emit(module.OpReturn)
	m.AddFunction(&module.Function{Name: "valueOf", Params: []string{"n"}, NumLocals: 1, Code: call.Code(), Unit: "test", Line: 6})

	var setup module.Builder
	setup.Emit(module.OpPushInt, 41)
	setup.Emit(module.OpStoreGlobal, m.Intern("counter"))
	setup.Emit(module.OpReturnNull)
	m.Init = m.AddFunction(&module.Function{Name: "<init>", Code: setup.Code()})

	m.Exports = []string{"add", "loop", "echo", "makeNode", "valueOf"}
	m.Types = []*module.Type{{
		Name:    "Node",
		Fields:  []string{"value", "next"},
		Methods: map[string]int{"getValue": getIdx},
	}}
	m.Natives = []module.Native{{Name: "print", Arity: 1}}
	m.Globals = []module.Global{{Name: "counter", Mutable: true}}
	return m
}

func newTestRuntime(t *testing.T, cfg Config) *Runtime {
	t.Helper()
	rt, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func loadedRuntime(t *testing.T, cfg Config) *Runtime {
	t.Helper()
	rt := newTestRuntime(t, cfg)
	if err := rt.LoadModule(testModule()); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	return rt
}

func expectKind(t *testing.T, err error, want status.Kind) {
	t.Helper()
	if got := status.KindOf(err); got != want {
		t.Errorf("error kind = %v (%v), want %v", got, err, want)
	}
}
