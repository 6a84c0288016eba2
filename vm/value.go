package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: tagged union of the seven Gear value variants
// ---------------------------------------------------------------------------

// Kind identifies the active variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
	KindFunction
)

var kindNames = [...]string{"null", "bool", "int", "float", "string", "object", "function"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Ref is a generation-tagged index into a runtime's heap. The zero Ref never
// refers to a live object.
type Ref struct {
	index uint32
	gen   uint32
}

// Value is one Gear value. Primitive variants are stored inline and copied
// by value; String, Object and Function hold a Ref into the owning
// runtime's heap. The zero Value is Null.
type Value struct {
	kind Kind
	bits uint64
	ref  Ref
}

// Null is the null value.
var Null = Value{}

// Bool returns a Bool value.
func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

// Int returns an Int value.
func Int(i int64) Value { return Value{kind: KindInt, bits: uint64(i)} }

// Float returns a Float value.
func Float(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }

func refValue(kind Kind, r Ref) Value { return Value{kind: kind, ref: r} }

// Kind returns the active variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsRef reports whether v refers to a heap object.
func (v Value) IsRef() bool { return v.kind >= KindString }

func (v Value) boolVal() bool     { return v.bits != 0 }
func (v Value) intVal() int64     { return int64(v.bits) }
func (v Value) floatVal() float64 { return math.Float64frombits(v.bits) }

// Truthy reports the boolean interpretation of v: every value except Null,
// false and integer zero is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.boolVal()
	case KindInt:
		return v.intVal() != 0
	}
	return true
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// toInt converts v to an integer. ok is false for variants without a
// numeric interpretation, in which case the result is 0.
func (v Value) toInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.intVal(), true
	case KindFloat:
		f := v.floatVal()
		switch {
		case math.IsNaN(f):
			return 0, true
		case f >= math.MaxInt64:
			return math.MaxInt64, true
		case f <= math.MinInt64:
			return math.MinInt64, true
		}
		return int64(f), true
	case KindBool:
		if v.boolVal() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// toFloat converts v to a float. Only Int and Float convert.
func (v Value) toFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.intVal()), true
	case KindFloat:
		return v.floatVal(), true
	}
	return 0, false
}

// primitiveString formats a primitive variant.
func (v Value) primitiveString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.boolVal())
	case KindInt:
		return strconv.FormatInt(v.intVal(), 10)
	case KindFloat:
		return strconv.FormatFloat(v.floatVal(), 'g', -1, 64)
	}
	return ""
}

func (v Value) isNumber() bool { return v.kind == KindInt || v.kind == KindFloat }
