package ilasm

import (
	"fmt"

	"github.com/vmjit/tracejit/pkg/backend"
)

// Local is an opaque index into the emitter-owned local-slot table.
type Local struct {
	index int
	typ   backend.ValueType
}

// localSlot tracks one allocated slot and whether it participates in the
// per-type free-list pool.
type localSlot struct {
	typ     backend.ValueType
	noCache bool
	freed   bool
}

// DefineLocal allocates a local of the given type. If a previously freed
// local of the same type is available in the pool, its index is reused
// (spec §8: "if L is later freed and a new define_local(T) occurs, the
// returned index equals L's index").
func (e *Emitter) DefineLocal(typ backend.ValueType) Local {
	if free := e.freeList[typ]; len(free) > 0 {
		idx := free[len(free)-1]
		e.freeList[typ] = free[:len(free)-1]
		e.locals[idx].freed = false
		return Local{index: idx, typ: typ}
	}
	idx := len(e.locals)
	e.locals = append(e.locals, localSlot{typ: typ})
	return Local{index: idx, typ: typ}
}

// DefineLocalNoCache allocates a local that bypasses pooling: FreeLocal on
// it never returns the slot to a free list.
func (e *Emitter) DefineLocalNoCache(typ backend.ValueType) Local {
	idx := len(e.locals)
	e.locals = append(e.locals, localSlot{typ: typ, noCache: true})
	return Local{index: idx, typ: typ}
}

// FreeLocal returns a pooled local to its per-type free list. Debug builds
// must not double-free; this emitter always checks and panics, since a
// double-free here is a driver bug, not a recoverable runtime condition.
func (e *Emitter) FreeLocal(l Local) {
	slot := &e.locals[l.index]
	if slot.freed {
		panic(fmt.Sprintf("ilasm: double free of local %d", l.index))
	}
	slot.freed = true
	if !slot.noCache {
		e.freeList[slot.typ] = append(e.freeList[slot.typ], l.index)
	}
}
