package module

import (
	"path/filepath"
	"strings"
	"testing"
)

func sampleModule() *Module {
	m := New("sample", Application)
	var b Builder
	b.SetLine(3)
	b.Emit(OpLoadLocal, 0)
	b.Emit(OpLoadLocal, 1)
	b.Emit(OpAdd)
	b.Emit(OpReturn)
	m.AddFunction(&Function{Name: "add", Params: []string{"a", "b"}, NumLocals: 2, Code: b.Code()})
	m.Exports = append(m.Exports, "add")

	var e Builder
	e.Emit(OpPushString, m.Intern("hello"))
	e.Emit(OpReturn)
	m.Entry = m.AddFunction(&Function{Name: EntryName, Code: e.Code()})
	m.Types = append(m.Types, &Type{Name: "Point", Fields: []string{"x", "y"}})
	return m
}

func TestEncodeDecodeImage(t *testing.T) {
	m := sampleModule()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data[:4]) != "GEAR" {
		t.Errorf("magic = %q, want GEAR", data[:4])
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Name != "sample" || got.Target != Application || got.Entry != 1 || got.Init != -1 {
		t.Errorf("decoded header fields = %+v", got)
	}
	add := got.Function("add")
	if add == nil || add.Arity() != 2 || len(add.Code) != 4 || add.Code[0].Line != 3 {
		t.Errorf("decoded add = %+v", add)
	}
	if pt := got.Type("Point"); pt == nil || pt.FieldIndex("y") != 1 {
		t.Errorf("decoded Point = %+v", pt)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, _ := Encode(sampleModule())
	b, _ := Encode(sampleModule())
	if HashImage(a) != HashImage(b) {
		t.Error("identical modules should hash identically")
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	good, _ := Encode(sampleModule())

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"short", []byte("GE"), "too short"},
		{"magic", append([]byte("MAGI"), good[4:]...), "bad magic"},
		{"version", append(append([]byte("GEAR"), 9, 0, 0, 0), good[8:]...), "unsupported image version"},
		{"payload", append([]byte("GEAR\x01\x00\x00\x00"), 0xff), "unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Decode error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestValidateCatchesBadIndexes(t *testing.T) {
	m := sampleModule()
	m.Functions[0].Code = append(m.Functions[0].Code, Instr{Op: OpJump, A: 99})
	if err := m.Validate(); err == nil || !strings.Contains(err.Error(), "jump target") {
		t.Errorf("Validate = %v, want jump target error", err)
	}

	m = sampleModule()
	m.Functions[1].Code[0].A = 42
	if err := m.Validate(); err == nil || !strings.Contains(err.Error(), "string index") {
		t.Errorf("Validate = %v, want string index error", err)
	}

	m = sampleModule()
	m.Entry = 7
	if err := m.Validate(); err == nil {
		t.Error("Validate should reject out-of-range entry")
	}
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.gearc")
	if err := WriteFile(path, sampleModule()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if m.Function("add") == nil {
		t.Error("add missing after round trip through a file")
	}
}

func TestBuilderLabels(t *testing.T) {
	var b Builder
	end := b.NewLabel()
	b.Emit(OpPushTrue)
	b.EmitJump(OpJumpFalse, end)
	b.Emit(OpPushInt, 1)
	b.Emit(OpPop)
	b.Mark(end)
	b.EmitJump(OpJump, end)

	code := b.Code()
	if code[1].A != 4 {
		t.Errorf("forward jump target = %d, want 4", code[1].A)
	}
	if code[4].A != 4 {
		t.Errorf("backward jump target = %d, want 4", code[4].A)
	}
	if b.Last() != OpJump {
		t.Errorf("Last() = %v, want JUMP", b.Last())
	}
}

func TestDisassemble(t *testing.T) {
	m := sampleModule()
	out := Disassemble(m.Functions[1].Code, m.Strings)
	if !strings.Contains(out, `PUSH_STRING`) || !strings.Contains(out, `"hello"`) {
		t.Errorf("Disassemble output:\n%s", out)
	}
}

func TestParseTarget(t *testing.T) {
	for _, want := range []Target{Application, Library, Test} {
		got, err := ParseTarget(want.String())
		if err != nil || got != want {
			t.Errorf("ParseTarget(%q) = %v, %v", want.String(), got, err)
		}
	}
	if _, err := ParseTarget("plugin"); err == nil {
		t.Error("ParseTarget(plugin) should fail")
	}
}
