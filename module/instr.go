package module

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is a single instruction of the Gear stack machine.
type Opcode byte

// Stack Operations
const (
	OpNop Opcode = 0x00 // no operation
	OpPop Opcode = 0x01 // discard top of stack
	OpDup Opcode = 0x02 // duplicate top of stack
)

// Push Constants
const (
	OpPushNull   Opcode = 0x10 // push null
	OpPushTrue   Opcode = 0x11 // push true
	OpPushFalse  Opcode = 0x12 // push false
	OpPushInt    Opcode = 0x13 // push A as an integer
	OpPushFloat  Opcode = 0x14 // push A reinterpreted as float64 bits
	OpPushString Opcode = 0x15 // push Strings[A]
	OpPushThis   Opcode = 0x16 // push the receiver of the current method
)

// Variable Operations
const (
	OpLoadLocal    Opcode = 0x20 // push local slot A
	OpStoreLocal   Opcode = 0x21 // pop into local slot A
	OpLoadGlobal   Opcode = 0x22 // push symbol Strings[A]
	OpStoreGlobal  Opcode = 0x23 // pop into symbol Strings[A]
	OpGetField     Opcode = 0x24 // pop object, push field Strings[A]
	OpGetFieldSafe Opcode = 0x25 // like OpGetField, null receiver yields null
	OpSetField     Opcode = 0x26 // pop value, pop object, store field Strings[A]
)

// Calls and Object Creation
const (
	OpCall           Opcode = 0x30 // callee and A arguments on stack, push result
	OpCallMethod     Opcode = 0x31 // receiver and B arguments on stack, method Strings[A]
	OpCallMethodSafe Opcode = 0x32 // like OpCallMethod, null receiver yields null
	OpNew            Opcode = 0x33 // push new instance of type Strings[A]
)

// Arithmetic and Comparison
const (
	OpAdd Opcode = 0x40
	OpSub Opcode = 0x41
	OpMul Opcode = 0x42
	OpDiv Opcode = 0x43
	OpMod Opcode = 0x44
	OpNeg Opcode = 0x45
	OpNot Opcode = 0x46
	OpEq  Opcode = 0x47
	OpNe  Opcode = 0x48
	OpLt  Opcode = 0x49
	OpLe  Opcode = 0x4A
	OpGt  Opcode = 0x4B
	OpGe  Opcode = 0x4C
)

// Control Flow
const (
	OpJump       Opcode = 0x50 // jump to instruction A
	OpJumpFalse  Opcode = 0x51 // pop, jump to A if falsy
	OpJumpTrue   Opcode = 0x52 // pop, jump to A if truthy
	OpReturn     Opcode = 0x53 // return top of stack
	OpReturnNull Opcode = 0x54 // return null
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string
	Operand operandKind
}

type operandKind int

const (
	operandNone operandKind = iota
	operandInt
	operandString
	operandTarget
	operandSlot
)

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop: {"NOP", operandNone},
	OpPop: {"POP", operandNone},
	OpDup: {"DUP", operandNone},

	OpPushNull:   {"PUSH_NULL", operandNone},
	OpPushTrue:   {"PUSH_TRUE", operandNone},
	OpPushFalse:  {"PUSH_FALSE", operandNone},
	OpPushInt:    {"PUSH_INT", operandInt},
	OpPushFloat:  {"PUSH_FLOAT", operandInt},
	OpPushString: {"PUSH_STRING", operandString},
	OpPushThis:   {"PUSH_THIS", operandNone},

	OpLoadLocal:    {"LOAD_LOCAL", operandSlot},
	OpStoreLocal:   {"STORE_LOCAL", operandSlot},
	OpLoadGlobal:   {"LOAD_GLOBAL", operandString},
	OpStoreGlobal:  {"STORE_GLOBAL", operandString},
	OpGetField:     {"GET_FIELD", operandString},
	OpGetFieldSafe: {"GET_FIELD_SAFE", operandString},
	OpSetField:     {"SET_FIELD", operandString},

	OpCall:           {"CALL", operandInt},
	OpCallMethod:     {"CALL_METHOD", operandString},
	OpCallMethodSafe: {"CALL_METHOD_SAFE", operandString},
	OpNew:            {"NEW", operandString},

	OpAdd: {"ADD", operandNone},
	OpSub: {"SUB", operandNone},
	OpMul: {"MUL", operandNone},
	OpDiv: {"DIV", operandNone},
	OpMod: {"MOD", operandNone},
	OpNeg: {"NEG", operandNone},
	OpNot: {"NOT", operandNone},
	OpEq:  {"EQ", operandNone},
	OpNe:  {"NE", operandNone},
	OpLt:  {"LT", operandNone},
	OpLe:  {"LE", operandNone},
	OpGt:  {"GT", operandNone},
	OpGe:  {"GE", operandNone},

	OpJump:       {"JUMP", operandTarget},
	OpJumpFalse:  {"JUMP_FALSE", operandTarget},
	OpJumpTrue:   {"JUMP_TRUE", operandTarget},
	OpReturn:     {"RETURN", operandNone},
	OpReturnNull: {"RETURN_NULL", operandNone},
}

// Info returns the metadata for op.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instr is one decoded instruction. Line is the 1-based source line it was
// generated from, or 0 when unknown.
type Instr struct {
	Op   Opcode `cbor:"1,keyasint"`
	A    int64  `cbor:"2,keyasint,omitempty"`
	B    int64  `cbor:"3,keyasint,omitempty"`
	Line int    `cbor:"4,keyasint,omitempty"`
}

// Float returns the float operand of an OpPushFloat instruction.
func (in Instr) Float() float64 {
	return math.Float64frombits(uint64(in.A))
}

// ---------------------------------------------------------------------------
// Builder: emits instructions with forward-patched labels
// ---------------------------------------------------------------------------

// Builder accumulates the instructions of one function.
type Builder struct {
	code []Instr
	line int
}

// Label is a jump target that may be marked after jumps to it are emitted.
type Label struct {
	target  int
	pending []int
}

// SetLine sets the source line attached to subsequently emitted instructions.
func (b *Builder) SetLine(line int) { b.line = line }

// Len returns the number of emitted instructions.
func (b *Builder) Len() int { return len(b.code) }

// Code returns the emitted instructions.
func (b *Builder) Code() []Instr { return b.code }

// Last returns the most recently emitted opcode, or OpNop if none.
func (b *Builder) Last() Opcode {
	if len(b.code) == 0 {
		return OpNop
	}
	return b.code[len(b.code)-1].Op
}

// Emit appends an instruction with up to two operands.
func (b *Builder) Emit(op Opcode, operands ...int64) {
	in := Instr{Op: op, Line: b.line}
	if len(operands) > 0 {
		in.A = operands[0]
	}
	if len(operands) > 1 {
		in.B = operands[1]
	}
	b.code = append(b.code, in)
}

// EmitFloat appends an OpPushFloat.
func (b *Builder) EmitFloat(f float64) {
	b.Emit(OpPushFloat, int64(math.Float64bits(f)))
}

// NewLabel creates an unmarked label.
func (b *Builder) NewLabel() *Label {
	return &Label{target: -1}
}

// Mark binds label to the next instruction and patches earlier jumps.
func (b *Builder) Mark(label *Label) {
	label.target = len(b.code)
	for _, at := range label.pending {
		b.code[at].A = int64(label.target)
	}
	label.pending = nil
}

// EmitJump appends a jump to label.
func (b *Builder) EmitJump(op Opcode, label *Label) {
	if label.target >= 0 {
		b.Emit(op, int64(label.target))
		return
	}
	label.pending = append(label.pending, len(b.code))
	b.Emit(op, -1)
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble renders code one instruction per line, resolving string
// operands against strs.
func Disassemble(code []Instr, strs []string) string {
	var out []byte
	for pc, in := range code {
		out = fmt.Appendf(out, "%04d %-16s", pc, in.Op)
		info, _ := in.Op.Info()
		switch info.Operand {
		case operandString:
			if in.A >= 0 && int(in.A) < len(strs) {
				out = fmt.Appendf(out, " %q", strs[in.A])
			}
			if in.Op == OpCallMethod || in.Op == OpCallMethodSafe {
				out = fmt.Appendf(out, " argc=%d", in.B)
			}
		case operandInt:
			if in.Op == OpPushFloat {
				out = fmt.Appendf(out, " %g", in.Float())
			} else {
				out = fmt.Appendf(out, " %d", in.A)
			}
		case operandTarget, operandSlot:
			out = fmt.Appendf(out, " %d", in.A)
		}
		out = append(out, '\n')
	}
	return string(out)
}
