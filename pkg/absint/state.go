// Package absint implements the Abstract Interpreter (spec §4.4): a
// fixed-point worklist algorithm that computes, for every bytecode offset,
// the abstract operand stack and abstract locals array reachable at that
// point. Its output feeds the compiler driver's lowering decisions.
package absint

import "github.com/vmjit/tracejit/pkg/avalue"

// LocalInfo pairs a local's abstract value with whether some path reaches
// this point without having assigned it (spec §3, "Local Info").
type LocalInfo struct {
	Value          avalue.Value
	MaybeUndefined bool
}

func joinLocal(a, b LocalInfo) LocalInfo {
	return LocalInfo{
		Value:          avalue.Join(a.Value, b.Value),
		MaybeUndefined: a.MaybeUndefined || b.MaybeUndefined,
	}
}

func (l LocalInfo) equal(o LocalInfo) bool {
	return l.MaybeUndefined == o.MaybeUndefined && valuesEqual(l.Value, o.Value)
}

// valuesEqual compares two abstract values by kind and remembered constant,
// since avalue.Value intentionally exposes no public equality method.
func valuesEqual(a, b avalue.Value) bool {
	if a.Kind() != b.Kind() || a.HasConst() != b.HasConst() {
		return false
	}
	if !a.HasConst() {
		return true
	}
	switch a.Kind() {
	case avalue.Integer:
		ai, _ := a.ConstInt()
		bi, _ := b.ConstInt()
		return ai == bi
	case avalue.Float:
		af, _ := a.ConstFloat()
		bf, _ := b.ConstFloat()
		return af == bf
	case avalue.Bool:
		ab, _ := a.ConstBool()
		bb, _ := b.ConstBool()
		return ab == bb
	default:
		return true
	}
}

// state is the interpreter's per-offset snapshot (spec §3, "Interpreter
// State"): an operand stack, a locals array, the enclosing handler (as an
// index into the AI's own shadow handler stack, independent of the driver's
// handler manager), and whether this offset is reachable only via
// exception unwind.
type state struct {
	stack        []avalue.Value
	locals       []LocalInfo
	handlerStack []int // offsets of enclosing SETUP_* sites, innermost last
	unwindOnly   bool
}

func (s state) clone() state {
	c := state{
		stack:      append([]avalue.Value(nil), s.stack...),
		locals:     append([]LocalInfo(nil), s.locals...),
		unwindOnly: s.unwindOnly,
	}
	c.handlerStack = append([]int(nil), s.handlerStack...)
	return c
}

func (s state) push(v avalue.Value) state {
	c := s.clone()
	c.stack = append(c.stack, v)
	return c
}

func (s state) pop() (avalue.Value, state, bool) {
	if len(s.stack) == 0 {
		return avalue.Value{}, s, false
	}
	c := s.clone()
	top := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return top, c, true
}

// merge element-wise joins proposed into existing, returning the merged
// state and whether anything changed. ok is false if the two states have
// incompatible shapes (differing stack depth or locals count), which the
// caller treats as AI divergence (spec §4.4 step 5).
func merge(existing, proposed state) (merged state, changed bool, ok bool) {
	if len(existing.stack) != len(proposed.stack) {
		return state{}, false, false
	}
	if len(existing.locals) != len(proposed.locals) {
		return state{}, false, false
	}
	m := state{
		stack:      make([]avalue.Value, len(existing.stack)),
		locals:     make([]LocalInfo, len(existing.locals)),
		unwindOnly: existing.unwindOnly && proposed.unwindOnly,
	}
	changed = m.unwindOnly != existing.unwindOnly
	for i := range existing.stack {
		j := avalue.Join(existing.stack[i], proposed.stack[i])
		if !valuesEqual(j, existing.stack[i]) {
			changed = true
		}
		m.stack[i] = j
	}
	for i := range existing.locals {
		j := joinLocal(existing.locals[i], proposed.locals[i])
		if !j.equal(existing.locals[i]) {
			changed = true
		}
		m.locals[i] = j
	}
	// The shadow handler stack is nesting metadata, not lattice data: once
	// an offset is known reachable under a given handler nesting, later
	// merges must agree (the driver's own handler manager is the source of
	// truth for recompute; here we just keep whichever was recorded first).
	if len(m.handlerStack) == 0 {
		m.handlerStack = existing.handlerStack
	}
	return m, changed, true
}
