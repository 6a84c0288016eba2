package manifest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chazu/gear/module"
	"github.com/chazu/gear/vm"
)

func TestNewCompiler(t *testing.T) {
	root := t.TempDir()
	newProject(t, filepath.Join(root, "mathlib"), "[project]\nname = \"mathlib\"\n", map[string]string{
		"src/math.gear": "func square(x) { return x * x; }\n",
	})
	m := newProject(t, filepath.Join(root, "app"),
		"[source]\nentry = \"src/main.gear\"\n[dependencies]\nmathlib = { path = \"../mathlib\" }\n",
		map[string]string{
			"src/main.gear":     "var result = 0;\nresult = sumSquares(3);\n",
			"src/sums/sum.gear": "func sumSquares(n) { return square(n) + square(n - 1); }\n",
		})

	c, deps, err := m.NewCompiler(context.Background())
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	if len(deps) != 1 || deps[0].Name != "mathlib" {
		t.Fatalf("deps = %+v", deps)
	}
	if len(c.Units()) != 2 || len(c.Imports()) != 1 {
		t.Fatalf("units = %d, imports = %d", len(c.Units()), len(c.Imports()))
	}
	if err := c.Compile(); err != nil {
		t.Fatalf("Compile: %v\n%v", err, c.Diagnostics())
	}

	rt, err := vm.New(m.RuntimeConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()
	if err := rt.LoadFile(deps[0].Module); err != nil {
		t.Fatal(err)
	}
	if err := c.BuildToRuntime(module.Application, rt); err != nil {
		t.Fatal(err)
	}
	if err := rt.Run(); err != nil {
		t.Fatal(err)
	}
	if err := rt.GetSymbol("result", vm.Return); err != nil {
		t.Fatal(err)
	}
	if got := rt.GetInt(vm.Return); got != 13 {
		t.Errorf("result = %d, want 13", got)
	}
}

func TestNewCompilerMissingDependency(t *testing.T) {
	m := newProject(t, t.TempDir(), "[dependencies]\ngone = { path = \"../nowhere\" }\n", nil)
	if _, _, err := m.NewCompiler(context.Background()); err == nil {
		t.Error("expected a resolution error")
	}
}
