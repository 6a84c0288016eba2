package vm

// ---------------------------------------------------------------------------
// Mark-sweep collection
// ---------------------------------------------------------------------------

// Collect forces a full collection and returns the number of objects
// reclaimed. Anything reachable from a register, a call frame or a symbol
// survives.
func (r *Runtime) Collect() int {
	r.markRoots()
	freed := r.heap.sweep()
	log.Debugf("collection %d: reclaimed %d, live %d", r.heap.collections, freed, r.heap.live)
	return freed
}

// maybeCollect runs a collection once the allocation volume since the last
// one crosses the configured threshold. It is called on allocation paths
// before the new object exists, so the object being created is never at risk.
// Collection may run while a native callback is active, including during a
// call it makes back into the runtime: the native frame holds its arguments.
func (r *Runtime) maybeCollect() {
	if r.heap.sinceGC >= r.cfg.GCThreshold {
		r.Collect()
	}
}

// allocate is the only path through which runtime code creates heap objects.
func (r *Runtime) allocate(obj *object) Ref {
	r.maybeCollect()
	return r.heap.alloc(obj)
}

func (r *Runtime) markRoots() {
	var work []Value
	push := func(v Value) {
		if v.IsRef() {
			work = append(work, v)
		}
	}

	r.regs.each(func(_ Register, v Value) { push(v) })
	for _, fr := range r.frames {
		push(fr.this)
		push(fr.callee)
		for _, v := range fr.locals {
			push(v)
		}
		for _, v := range fr.stack {
			push(v)
		}
	}
	for _, v := range r.symbols.values {
		push(v)
	}

	// Iterative marking keeps deep or cyclic object graphs off the Go stack.
	for len(work) > 0 {
		v := work[len(work)-1]
		work = work[:len(work)-1]
		obj := r.heap.get(v.ref)
		if obj == nil || obj.marked {
			continue
		}
		obj.marked = true
		for _, f := range obj.fields {
			push(f)
		}
	}
}
