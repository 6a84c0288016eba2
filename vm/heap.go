package vm

import (
	"github.com/chazu/gear/module"
)

// ---------------------------------------------------------------------------
// Heap objects
// ---------------------------------------------------------------------------

type objectKind uint8

const (
	objString objectKind = iota + 1
	objInstance
	objType
	objNative
	objFunction
)

// typeInfo is the loaded form of an exported type.
type typeInfo struct {
	name    string
	fields  []string
	methods map[string]*function
	attrs   []string
}

func (t *typeInfo) fieldIndex(name string) int {
	for i, f := range t.fields {
		if f == name {
			return i
		}
	}
	return -1
}

// function is a module-defined function bound to the module it came from,
// which supplies its string table.
type function struct {
	def *module.Function
	mod *module.Module
}

// object is one heap allocation. Only the fields relevant to kind are set.
type object struct {
	kind   objectKind
	marked bool
	size   int

	str    string     // objString
	typ    *typeInfo  // objInstance, objType
	fields []Value    // objInstance
	name   string     // objNative, objFunction
	native NativeFunc // objNative; nil while unimplemented
	fn     *function  // objFunction
}

// ---------------------------------------------------------------------------
// Heap: arena of objects addressed by generation-tagged indexes
// ---------------------------------------------------------------------------

type heap struct {
	objects []*object
	gens    []uint32
	free    []uint32

	sinceGC     int // bytes allocated since the last collection
	live        int
	collections int
	reclaimed   int
}

// alloc stores obj and returns its reference. It never collects; callers
// decide when a collection is safe.
func (h *heap) alloc(obj *object) Ref {
	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.objects = append(h.objects, nil)
		h.gens = append(h.gens, 0)
		idx = uint32(len(h.objects) - 1)
	}
	h.gens[idx]++
	if h.gens[idx] == 0 {
		h.gens[idx] = 1
	}
	h.objects[idx] = obj
	h.sinceGC += obj.size
	h.live++
	return Ref{index: idx, gen: h.gens[idx]}
}

// get resolves r, returning nil for stale or invalid references.
func (h *heap) get(r Ref) *object {
	if r.gen == 0 || int(r.index) >= len(h.objects) {
		return nil
	}
	if h.gens[r.index] != r.gen {
		return nil
	}
	return h.objects[r.index]
}

// sweep frees every unmarked object and clears mark bits. It returns the
// number of objects reclaimed.
func (h *heap) sweep() int {
	freed := 0
	for i, obj := range h.objects {
		if obj == nil {
			continue
		}
		if obj.marked {
			obj.marked = false
			continue
		}
		h.objects[i] = nil
		h.free = append(h.free, uint32(i))
		freed++
	}
	h.live -= freed
	h.sinceGC = 0
	h.collections++
	h.reclaimed += freed
	return freed
}

// reset drops every object.
func (h *heap) reset() {
	h.objects = nil
	h.gens = nil
	h.free = nil
	h.live = 0
	h.sinceGC = 0
}

// Size estimates used by the collection trigger.
const (
	objectHeaderSize = 32
	valueSize        = 24
)

func stringObject(s string) *object {
	return &object{kind: objString, str: s, size: objectHeaderSize + len(s)}
}

func instanceObject(t *typeInfo) *object {
	return &object{
		kind:   objInstance,
		typ:    t,
		fields: make([]Value, len(t.fields)),
		size:   objectHeaderSize + valueSize*len(t.fields),
	}
}

func typeObject(t *typeInfo) *object {
	return &object{kind: objType, typ: t, size: objectHeaderSize}
}

func nativeObject(name string, fn NativeFunc) *object {
	return &object{kind: objNative, name: name, native: fn, size: objectHeaderSize + len(name)}
}

func functionObject(fn *function) *object {
	return &object{kind: objFunction, name: fn.def.Name, fn: fn, size: objectHeaderSize}
}
