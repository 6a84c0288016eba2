package vm

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/gear/module"
	"github.com/chazu/gear/status"
)

func TestLoadFromImage(t *testing.T) {
	data, err := module.Encode(testModule())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	rt, err := NewFromMemory(data, Config{})
	if err != nil {
		t.Fatalf("NewFromMemory: %v", err)
	}
	defer rt.Close()

	rt.SetInt(Param(0), 2)
	rt.SetInt(Param(1), 3)
	if err := rt.CallByName("add", 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := rt.GetInt(Return); got != 5 {
		t.Errorf("add = %d, want 5", got)
	}
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.gearc")
	if err := module.WriteFile(path, testModule()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rt, err := NewFromFile(path, Config{})
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.SymbolTable().Lookup("Node"); !ok {
		t.Error("Node should be bound after loading from a file")
	}

	if _, err := NewFromFile(filepath.Join(t.TempDir(), "missing"), Config{}); !status.Is(err, status.InvalidModule) {
		t.Errorf("missing file error = %v, want InvalidModule", err)
	}
}

func TestLoadRejectsCorruptImage(t *testing.T) {
	rt := newTestRuntime(t, Config{})
	expectKind(t, rt.Load([]byte("not an image")), status.InvalidModule)
	expectKind(t, rt.LastError(), status.InvalidModule)
}

func TestLoadRunsInitializer(t *testing.T) {
	rt := loadedRuntime(t, Config{})
	reg := rt.AllocRegisters(1)[0]
	if err := rt.GetSymbol("counter", reg); err != nil {
		t.Fatalf("GetSymbol: %v", err)
	}
	if got := rt.GetInt(reg); got != 41 {
		t.Errorf("counter = %d, want 41", got)
	}
	expectKind(t, rt.GetSymbol("missing", reg), status.UnknownSymbol)
}

func TestDuplicateLoadIsRejected(t *testing.T) {
	rt := loadedRuntime(t, Config{})
	expectKind(t, rt.LoadModule(testModule()), status.DuplicateName)
}

func TestSymbolsListing(t *testing.T) {
	rt := loadedRuntime(t, Config{})
	names := map[string]string{}
	for _, v := range rt.Symbols() {
		names[v.Name] = v.Type
	}
	for _, want := range []string{"add", "echo", "print", "counter", "Node"} {
		if _, ok := names[want]; !ok {
			t.Errorf("symbol %q missing from %v", want, names)
		}
	}
	if names["counter"] != "int" {
		t.Errorf("counter type = %q, want int", names["counter"])
	}
}

func TestRegistersSnapshot(t *testing.T) {
	rt := newTestRuntime(t, Config{})
	reg := rt.AllocRegisters(1)[0]
	rt.SetString(reg, "x")
	rt.SetInt(Param(1), 3)

	var sawReg, sawParam bool
	for _, info := range rt.Registers() {
		switch info.Register {
		case reg:
			sawReg = info.Value == `"x"` && info.Type == "string"
		case Param(1):
			sawParam = info.Value == "3"
		case Param(0):
			t.Error("null PARAM registers should be omitted")
		}
	}
	if !sawReg || !sawParam {
		t.Errorf("Registers() missing entries: reg=%v param=%v", sawReg, sawParam)
	}
}

type fakeDebugger struct {
	checkpoints int
	closed      int
}

func (d *fakeDebugger) Checkpoint(*Runtime) { d.checkpoints++ }
func (d *fakeDebugger) Close() error        { d.closed++; return nil }

func TestDebuggerAttachment(t *testing.T) {
	rt, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.LoadModule(testModule()); err != nil {
		t.Fatal(err)
	}
	if err := rt.DetachDebugger(); err != nil {
		t.Errorf("DetachDebugger with none attached = %v, want nil", err)
	}

	d := &fakeDebugger{}
	if err := rt.AttachDebugger(d); err != nil {
		t.Fatalf("AttachDebugger: %v", err)
	}
	expectKind(t, rt.AttachDebugger(&fakeDebugger{}), status.DebugServer)

	rt.SetInt(Param(0), 1)
	rt.SetInt(Param(1), 1)
	rt.CallByName("add", 2)
	if d.checkpoints == 0 {
		t.Error("debugger should be offered a checkpoint while code runs")
	}

	rt.Close()
	if d.closed != 1 {
		t.Errorf("debugger closed %d times on runtime close, want 1", d.closed)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	rt := loadedRuntime(t, Config{})
	reg := rt.AllocRegisters(1)[0]
	rt.SetString(reg, "x")
	rt.Close()

	st := rt.Stats()
	if st.LiveObjects != 0 || st.LiveRegisters != 0 || st.Symbols != 0 {
		t.Errorf("Stats after Close = %+v", st)
	}
	if err := rt.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestStatusErrorsAreComparable(t *testing.T) {
	rt := newTestRuntime(t, Config{})
	err := rt.CallByName("nope", 0)
	if !errors.Is(err, &status.Error{Kind: status.UnknownSymbol}) {
		t.Errorf("errors.Is should match by kind: %v", err)
	}
}
