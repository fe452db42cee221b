package driver

import (
	"fmt"

	"github.com/vmjit/tracejit/pkg/absint"
	"github.com/vmjit/tracejit/pkg/backend"
	"github.com/vmjit/tracejit/pkg/bytecode"
	"github.com/vmjit/tracejit/pkg/handler"
	"github.com/vmjit/tracejit/pkg/helper"
	"github.com/vmjit/tracejit/pkg/ilasm"
)

// lowerer carries everything one Driver.Compile call threads through its
// per-opcode lowering: the emitter, the AI's results, the handler arena,
// and the offset->label table driving branch targets.
type lowerer struct {
	d  *Driver
	e  *ilasm.Emitter
	sc *scope

	arena   *handler.Arena
	current handler.ID // innermost active handler, handler.Root if none

	code   bytecode.CodeObject
	instrs []bytecode.Instruction
	idx    bytecode.OffsetIndex
	labels []ilasm.Label

	ip *absint.Interpreter

	frame   ilasm.Local
	excVars handler.ExceptionVars
	errExit ilasm.Label
	okExit  ilasm.Label
}

func (l *lowerer) fail(offset int, op bytecode.Opcode, format string, args ...interface{}) error {
	return &CompileError{Offset: offset, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// labelFor resolves a bytecode offset (as seen in a jump-target operand) to
// its IL label.
func (l *lowerer) labelFor(offset int) (ilasm.Label, bool) {
	i, ok := l.idx[offset]
	if !ok {
		return ilasm.Label{}, false
	}
	return l.labels[i], true
}

// callHelper emits a call through the catalog, looking up pop_count and
// return shape from the helper's registered signature rather than trusting
// the caller to know them. argLocals are loaded (in order) immediately
// before the call; they name locals holding values already materialized off
// the IL operand stack (typically via spillToTemp, which already popped
// their Stack Entry Kind) or values that were never pushed to the stack at
// all (e.g. STORE_FAST's saved previous value), so this never touches the
// scope's parallel Stack Entry Kind sequence for them — only
// callHelperFromStack consumes kinds still resident on the stack.
func (l *lowerer) callHelper(id helper.ID, argLocals []ilasm.Local) error {
	entry, ok := l.d.catalog.Lookup(id)
	if !ok {
		return fmt.Errorf("driver: helper %d not registered in catalog", id)
	}
	if len(entry.Signature.Params) != len(argLocals) {
		return fmt.Errorf("driver: helper %q expects %d args, got %d", entry.Name, len(entry.Signature.Params), len(argLocals))
	}
	for _, al := range argLocals {
		l.e.LdLoc(al)
	}
	l.e.EmitCall(id, len(argLocals), entry.Signature.ReturnsValue)
	if entry.Signature.ReturnsValue {
		l.sc.pushKind(ilasm.EntryObject)
	}
	return nil
}

// callHelperDiscard is callHelper for a helper declared void; it is a
// distinct entry point purely for readability at call sites (push_frame,
// pop_frame) that are never expected to produce a value.
func (l *lowerer) callHelperDiscard(id helper.ID, argLocals []ilasm.Local) error {
	entry, ok := l.d.catalog.Lookup(id)
	if ok && entry.Signature.ReturnsValue {
		return fmt.Errorf("driver: callHelperDiscard used on value-returning helper %q", entry.Name)
	}
	return l.callHelper(id, argLocals)
}

// callHelperFromStack emits a call consuming n values already sitting on
// the IL operand stack (rather than named locals), as opcode lowering does
// for stack-driven call shapes.
func (l *lowerer) callHelperFromStack(id helper.ID, n int) error {
	entry, ok := l.d.catalog.Lookup(id)
	if !ok {
		return fmt.Errorf("driver: helper %d not registered in catalog", id)
	}
	if len(entry.Signature.Params) != n {
		return fmt.Errorf("driver: helper %q expects %d stack args, got %d", entry.Name, len(entry.Signature.Params), n)
	}
	l.e.EmitCall(id, n, entry.Signature.ReturnsValue)
	for k := 0; k < n; k++ {
		l.sc.popKind()
	}
	if entry.Signature.ReturnsValue {
		l.sc.pushKind(ilasm.EntryObject)
	}
	return nil
}

// spillToTemp pops the IL stack top into a fresh no-cache temp local and
// returns it, used when a value must be inspected or duplicated via
// locals rather than further stack shuffling.
func (l *lowerer) spillToTemp(typ backend.ValueType) ilasm.Local {
	t := l.e.DefineLocalNoCache(typ)
	l.e.StLoc(t)
	l.sc.popKind()
	return t
}
