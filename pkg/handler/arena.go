// Package handler models nested try/except/finally scopes at compile time
// (spec §4.5). All handlers for one compilation live in a single arena;
// parent references are plain indices into that arena rather than pointers,
// so the tree can never form an ownership cycle — the pattern generalizes
// the teacher's inlineContext push/pop stack (pkg/compiler/inline.go) from a
// slice that pops on return to an arena whose entries must outlive nested
// scopes, because a non-local exit has to unwind back through handlers that
// have already been "left" lexically.
package handler

import "github.com/vmjit/tracejit/pkg/ilasm"

// Flag marks the handler's current role.
type Flag byte

// Handler flags, per spec §4.5 / §4.6's exception-context state machine.
const (
	FlagNone            Flag = 0
	FlagTryFinally      Flag = 1 << iota
	FlagInExceptHandler Flag = 1 << iota
)

// StackSnapshot records the abstract stack depth and Stack Entry Kinds at
// the SETUP_* site, used to unwind non-local exits down to the right depth.
type StackSnapshot struct {
	Depth int
	Kinds []ilasm.StackEntryKind
}

// ID identifies a handler within its arena. The root handler is always 0.
type ID int

// Root is the index of the synthetic root handler created by NewArena.
const Root ID = 0

// ExceptionVars names the locals a handler's prelude populates when it
// captures the exception triple, plus the previous-state trio it must
// restore on normal exit (spec §3, "Exception Handler").
type ExceptionVars struct {
	ExcType, ExcValue, ExcTraceback                ilasm.Local
	PrevType, PrevValue, PrevTraceback              ilasm.Local
}

// Handler is one compile-time exception scope.
type Handler struct {
	ID ID

	Vars ExceptionVars

	RaiseLabel   ilasm.Label
	ReraiseLabel ilasm.Label
	HandlerLabel ilasm.Label

	Snapshot StackSnapshot

	Flags Flag

	// Parent is the enclosing handler's ID. The root handler is its own
	// parent; callers should check ID == Root rather than compare Parent.
	Parent ID
}

// InTryFinally reports whether h is (transitively, via its own flag only —
// nesting is represented by walking Parent) inside a try/finally body.
func (h Handler) InTryFinally() bool { return h.Flags&FlagTryFinally != 0 }

// InExceptHandler reports whether h is active inside an except clause body.
func (h Handler) InExceptHandler() bool { return h.Flags&FlagInExceptHandler != 0 }

// Arena owns every Handler created during one compilation.
type Arena struct {
	handlers []Handler
}

// NewArena creates the arena and its synthetic root handler, whose
// raise/reraise labels terminate the function with an error (spec §4.5).
func NewArena(raiseNoHandler, reraiseNoHandler ilasm.Label, vars ExceptionVars) *Arena {
	a := &Arena{}
	a.handlers = append(a.handlers, Handler{
		ID:           Root,
		Vars:         vars,
		RaiseLabel:   raiseNoHandler,
		ReraiseLabel: reraiseNoHandler,
		Parent:       Root,
	})
	return a
}

// Get returns the handler for id.
func (a *Arena) Get(id ID) Handler { return a.handlers[id] }

// Root returns the function-level root handler.
func (a *Arena) Root() Handler { return a.handlers[Root] }

func (a *Arena) add(h Handler) ID {
	h.ID = ID(len(a.handlers))
	a.handlers = append(a.handlers, h)
	return h.ID
}

// AddSetupFinallyHandler registers a nested handler active inside a
// try/finally body; its HandlerLabel is where the finally code begins.
func (a *Arena) AddSetupFinallyHandler(raise, reraise, handlerLabel ilasm.Label, snap StackSnapshot, parent ID, vars ExceptionVars) ID {
	return a.add(Handler{
		Vars:         vars,
		RaiseLabel:   raise,
		ReraiseLabel: reraise,
		HandlerLabel: handlerLabel,
		Snapshot:     snap,
		Flags:        FlagTryFinally,
		Parent:       parent,
	})
}

// AddInTryHandler registers a handler active inside an except clause body.
// inTryFinally additionally marks it as nested within an enclosing
// try/finally, so unwinding through it runs both the except cleanup and the
// finally cleanup.
func (a *Arena) AddInTryHandler(raise, reraise, handlerLabel ilasm.Label, snap StackSnapshot, parent ID, vars ExceptionVars, inTryFinally bool) ID {
	flags := FlagInExceptHandler
	if inTryFinally {
		flags |= FlagTryFinally
	}
	return a.add(Handler{
		Vars:         vars,
		RaiseLabel:   raise,
		ReraiseLabel: reraise,
		HandlerLabel: handlerLabel,
		Snapshot:     snap,
		Flags:        flags,
		Parent:       parent,
	})
}

// WalkToRoot returns the chain of handler IDs from id up to (and including)
// the root, in unwind order. The compiler driver does not call it: jumps
// out of handler scopes are lowered as plain branches, with no BranchLeave,
// no popping to an intervening handler's snapshot depth and no
// unwind_exception call for the handlers they cross.
func (a *Arena) WalkToRoot(id ID) []ID {
	chain := []ID{id}
	for id != Root {
		id = a.handlers[id].Parent
		chain = append(chain, id)
	}
	return chain
}

// Outstanding reports the number of handlers still registered beyond the
// root — after a successful compilation this must be zero (spec §3
// invariant: "exception-handler manager has only the root handler
// outstanding").
func (a *Arena) Outstanding() int {
	return len(a.handlers) - 1
}

// Pop discards the most recently added handler, used when a try/except or
// try/finally block's body has been fully lowered and its scope closes
// normally (the Dormant transition in spec §4.6's state machine). Handlers
// are only ever discarded from the end of the arena, so parent indices
// assigned before a Pop remain valid.
func (a *Arena) Pop() {
	if len(a.handlers) > 1 {
		a.handlers = a.handlers[:len(a.handlers)-1]
	}
}
