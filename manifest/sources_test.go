package manifest

import (
	"path/filepath"
	"testing"

	"github.com/chazu/gear/compiler"
)

func newProject(t *testing.T, dir, toml string, files map[string]string) *Manifest {
	t.Helper()
	writeFile(t, filepath.Join(dir, TOMLFile), toml)
	for name, src := range files {
		writeFile(t, filepath.Join(dir, name), src)
	}
	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestSourceFiles(t *testing.T) {
	m := newProject(t, t.TempDir(), "[source]\ndirs = [\"src\", \"lib\"]\nentry = \"src/main.gear\"\n", map[string]string{
		"src/main.gear":     "total();\n",
		"src/util/str.gear": "func total() { return 1; }\n",
		"src/notes.txt":     "not source",
	})

	files, err := m.SourceFiles()
	if err != nil {
		t.Fatalf("SourceFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %+v, want 2", files)
	}
	if files[0].Unit != "main" || !files[0].Main {
		t.Errorf("files[0] = %+v, want main entry", files[0])
	}
	if files[1].Unit != "util.str" || files[1].Main {
		t.Errorf("files[1] = %+v", files[1])
	}
}

func TestSourceFilesEntryOutsideDirs(t *testing.T) {
	m := newProject(t, t.TempDir(), "[source]\nentry = \"app.gear\"\n", map[string]string{
		"app.gear":     "f();\n",
		"src/lib.gear": "func f() { }\n",
	})
	files, err := m.SourceFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].Unit != "app" || !files[0].Main {
		t.Errorf("files = %+v", files)
	}

	m.Source.Entry = "missing.gear"
	if _, err := m.SourceFiles(); err == nil {
		t.Error("missing entry file was not reported")
	}
}

func TestLoadUnits(t *testing.T) {
	m := newProject(t, t.TempDir(), "[source]\nentry = \"src/main.gear\"\n", map[string]string{
		"src/main.gear":     "var n = total();\n",
		"src/util/str.gear": "func total() { return 1; }\n",
	})
	cfg, err := m.CompilerConfig()
	if err != nil {
		t.Fatal(err)
	}
	c := compiler.New(cfg)
	units, err := m.LoadUnits(c)
	if err != nil {
		t.Fatalf("LoadUnits: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("units = %d", len(units))
	}
	main := c.Unit("main")
	if main == nil || !main.IsMain() || main.DisplayName() != "src/main.gear" {
		t.Errorf("main unit = %+v", main)
	}
	if err := c.Compile(); err != nil {
		t.Fatalf("Compile: %v\n%v", err, c.Diagnostics())
	}
}
