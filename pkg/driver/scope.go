// Package driver implements the Compiler Driver (spec §4.6): it walks a
// code object's bytecode opcode by opcode and lowers each into the typed
// IL pkg/ilasm emits, consulting the abstract interpreter's snapshots and
// threading an exception-handler arena through nested try/except/finally
// scopes.
package driver

import (
	"github.com/vmjit/tracejit/pkg/backend"
	"github.com/vmjit/tracejit/pkg/ilasm"
)

// scope is the per-compilation local-slot and Stack Entry Kind bookkeeping,
// generalized from the teacher's funcScope (pkg/compiler/func_scope.go):
// where funcScope maps Go AST identifiers to NeoVM local slots for one
// function body, scope maps bytecode local indices to pooled IL locals for
// one code object, and tracks the parallel Stack Entry Kind sequence
// alongside the IL operand stack instead of a Go-typed variable table.
type scope struct {
	emitter *ilasm.Emitter

	// fastLocals maps a bytecode LOAD_FAST/STORE_FAST index to the IL
	// local holding it. Allocated lazily on first use so code objects
	// with few live locals don't pay for NLocals() slots up front.
	fastLocals map[int]ilasm.Local

	// kinds is the parallel Stack Entry Kind sequence, always in lock-step
	// with the IL operand stack during codegen (spec §3 invariant).
	kinds []ilasm.StackEntryKind
}

func newScope(e *ilasm.Emitter) *scope {
	return &scope{emitter: e, fastLocals: make(map[int]ilasm.Local)}
}

// fastLocal returns the IL local backing bytecode local index i, allocating
// one (as TypeObjectRef — a boxed value reference) on first reference.
func (s *scope) fastLocal(i int) ilasm.Local {
	if l, ok := s.fastLocals[i]; ok {
		return l
	}
	l := s.emitter.DefineLocal(backend.TypeObjectRef)
	s.fastLocals[i] = l
	return l
}

// pushKind records a Stack Entry Kind for a value just pushed onto the IL
// operand stack.
func (s *scope) pushKind(k ilasm.StackEntryKind) { s.kinds = append(s.kinds, k) }

// popKind discards and returns the kind of the most recently pushed value.
func (s *scope) popKind() ilasm.StackEntryKind {
	if len(s.kinds) == 0 {
		return ilasm.EntryObject
	}
	k := s.kinds[len(s.kinds)-1]
	s.kinds = s.kinds[:len(s.kinds)-1]
	return k
}

// depth reports the current parallel-stack depth; Compile uses it to check
// that the stack is empty at the end of compilation.
func (s *scope) depth() int { return len(s.kinds) }
