package vm

import "fmt"

// ---------------------------------------------------------------------------
// Register handles
// ---------------------------------------------------------------------------

// Register is an opaque handle naming one value slot of a Runtime.
//
// Handles below 1+ParamRegisters form the calling-convention range: Return
// and Param(n). They are always valid and are never allocated or freed.
// User handles carry a non-zero generation in their upper 32 bits so a
// handle kept after FreeRegisters is detected rather than aliasing whatever
// reuses the slot.
type Register uint64

// Return receives the result of every call.
const Return Register = 0

// Param returns the handle of argument n of the calling convention.
func Param(n int) Register { return Register(1 + n) }

func (reg Register) user() (index uint32, gen uint32) {
	return uint32(reg), uint32(reg >> 32)
}

func (reg Register) String() string {
	if reg == Return {
		return "RETURN"
	}
	if reg>>32 == 0 {
		return fmt.Sprintf("PARAM(%d)", reg-1)
	}
	idx, gen := reg.user()
	return fmt.Sprintf("r%d#%d", idx, gen)
}

// ---------------------------------------------------------------------------
// Register table
// ---------------------------------------------------------------------------

type registerTable struct {
	reserved []Value // Return followed by the PARAM range
	slots    []Value
	gens     []uint32
	live     []bool
	free     []uint32
	inUse    int
}

func newRegisterTable(params int) registerTable {
	return registerTable{reserved: make([]Value, 1+params)}
}

func (t *registerTable) alloc(n int) []Register {
	out := make([]Register, n)
	for i := range out {
		var idx uint32
		if k := len(t.free); k > 0 {
			idx = t.free[k-1]
			t.free = t.free[:k-1]
		} else {
			t.slots = append(t.slots, Null)
			t.gens = append(t.gens, 0)
			t.live = append(t.live, false)
			idx = uint32(len(t.slots) - 1)
		}
		t.gens[idx]++
		if t.gens[idx] == 0 {
			t.gens[idx] = 1
		}
		t.live[idx] = true
		t.slots[idx] = Null
		out[i] = Register(uint64(t.gens[idx])<<32 | uint64(idx))
		t.inUse++
	}
	return out
}

// release nulls the slot before returning it to the free list so the
// collector no longer sees its value as a root.
func (t *registerTable) release(reg Register) bool {
	if reg>>32 == 0 {
		return false
	}
	idx, gen := reg.user()
	if int(idx) >= len(t.slots) || !t.live[idx] || t.gens[idx] != gen {
		return false
	}
	t.slots[idx] = Null
	t.live[idx] = false
	t.free = append(t.free, idx)
	t.inUse--
	return true
}

// slot resolves reg to its storage, or nil if the handle is not valid.
func (t *registerTable) slot(reg Register) *Value {
	if reg>>32 == 0 {
		if int(reg) < len(t.reserved) {
			return &t.reserved[reg]
		}
		return nil
	}
	idx, gen := reg.user()
	if int(idx) >= len(t.slots) || !t.live[idx] || t.gens[idx] != gen {
		return nil
	}
	return &t.slots[idx]
}

// resetParams nulls PARAM(from) through the end of the range.
func (t *registerTable) resetParams(from int) {
	for i := 1 + from; i < len(t.reserved); i++ {
		t.reserved[i] = Null
	}
}

func (t *registerTable) each(fn func(Register, Value)) {
	for i, v := range t.reserved {
		fn(Register(i), v)
	}
	for i, v := range t.slots {
		if t.live[i] {
			fn(Register(uint64(t.gens[i])<<32|uint64(i)), v)
		}
	}
}

func (t *registerTable) reset() {
	for i := range t.reserved {
		t.reserved[i] = Null
	}
	t.slots = nil
	t.gens = nil
	t.live = nil
	t.free = nil
	t.inUse = 0
}
