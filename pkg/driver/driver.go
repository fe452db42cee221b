package driver

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vmjit/tracejit/pkg/absint"
	"github.com/vmjit/tracejit/pkg/avalue"
	"github.com/vmjit/tracejit/pkg/backend"
	"github.com/vmjit/tracejit/pkg/bytecode"
	"github.com/vmjit/tracejit/pkg/handler"
	"github.com/vmjit/tracejit/pkg/helper"
	"github.com/vmjit/tracejit/pkg/ilasm"
)

// CompileError reports a structural inconsistency found during codegen
// (spec §4.6, "Failure handling"): a stack-depth mismatch, a missing AI
// snapshot, or an opcode the driver does not know how to lower. The driver
// aborts compilation on the first one.
type CompileError struct {
	Offset int
	Op     bytecode.Opcode
	Msg    string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("driver: offset %d (%s): %s", e.Offset, e.Op, e.Msg)
}

// Result is what a successful Compile produces: the backend's compiled
// method, the serialized IL it was built from (for dump_il), and the
// abstract return kind the AI inferred (for the Jitted Code Record's
// bookkeeping — not part of the native ABI itself).
type Result struct {
	Method     backend.CompiledMethod
	IL         []byte
	ReturnKind avalue.Kind
}

// Driver lowers one code object's bytecode into IL and hands it to a
// backend.
type Driver struct {
	catalog *helper.Catalog
	backend backend.Backend
	log     *zap.Logger
}

// New builds a Driver. log may be nil, in which case a no-op logger is used
// (the teacher's codegen likewise tolerates a nil *zap.Logger in tests).
func New(catalog *helper.Catalog, be backend.Backend, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{catalog: catalog, backend: be, log: log}
}

// Compile implements the entry operation described in spec §4.6: emit
// prologue, lower every opcode, emit epilogue, and hand the result to the
// backend.
func (d *Driver) Compile(code bytecode.CodeObject, argKinds []avalue.Kind) (Result, error) {
	ip := absint.New(code)
	if !ip.Run(argKinds) {
		return Result{}, &CompileError{Msg: "abstract interpreter did not converge"}
	}

	instrs := code.Code()
	idx := bytecode.NewOffsetIndex(instrs)

	e := ilasm.NewEmitter()
	sc := newScope(e)

	labels := make([]ilasm.Label, len(instrs))
	for i := range instrs {
		labels[i] = e.DefineLabel()
	}

	errorExit := e.DefineLabel()
	successExit := e.DefineLabel()

	frameLocal := e.DefineLocal(backend.TypeObjectRef)
	excVars := handler.ExceptionVars{
		ExcType:       e.DefineLocal(backend.TypeObjectRef),
		ExcValue:      e.DefineLocal(backend.TypeObjectRef),
		ExcTraceback:  e.DefineLocal(backend.TypeObjectRef),
		PrevType:      e.DefineLocal(backend.TypeObjectRef),
		PrevValue:     e.DefineLocal(backend.TypeObjectRef),
		PrevTraceback: e.DefineLocal(backend.TypeObjectRef),
	}
	arena := handler.NewArena(errorExit, errorExit, excVars)

	l := &lowerer{
		d:        d,
		e:        e,
		sc:       sc,
		arena:    arena,
		code:     code,
		instrs:   instrs,
		idx:      idx,
		labels:   labels,
		ip:       ip,
		frame:    frameLocal,
		excVars:  excVars,
		errExit:  errorExit,
		okExit:   successExit,
	}

	// Prologue (spec §4.6 step 1): push the VM frame and initialize
	// exception-state locals to null so the epilogue's restore path is
	// always well-defined even if no handler ever runs.
	e.LdArg(1)
	e.StLoc(frameLocal)
	if err := l.callHelperDiscard(helper.PushFrame, []ilasm.Local{frameLocal}); err != nil {
		return Result{}, err
	}
	for _, v := range []ilasm.Local{excVars.ExcType, excVars.ExcValue, excVars.ExcTraceback,
		excVars.PrevType, excVars.PrevValue, excVars.PrevTraceback} {
		e.ConstNull()
		e.StLoc(v)
	}

	for i, ins := range instrs {
		e.MarkLabel(labels[i])
		if err := l.lower(i, ins); err != nil {
			return Result{}, err
		}
	}

	// Epilogue (spec §4.6 step 3): error path pops the frame, restores
	// exception state, returns null; success path pops the frame and
	// returns whatever is on top of the IL stack.
	e.MarkLabel(errorExit)
	if err := l.callHelperDiscard(helper.UnwindException, []ilasm.Local{excVars.PrevType, excVars.PrevValue, excVars.PrevTraceback}); err != nil {
		return Result{}, err
	}
	if err := l.callHelperDiscard(helper.PopFrame, []ilasm.Local{frameLocal}); err != nil {
		return Result{}, err
	}
	e.ConstNull()
	e.Ret(1)

	e.MarkLabel(successExit)
	if err := l.callHelperDiscard(helper.PopFrame, []ilasm.Local{frameLocal}); err != nil {
		return Result{}, err
	}
	e.Ret(1)

	if arena.Outstanding() != 0 {
		return Result{}, &CompileError{Msg: "handler arena not drained at end of compilation"}
	}
	if sc.depth() != 0 {
		return Result{}, &CompileError{Msg: "operand stack not empty at end of compilation"}
	}

	sig := backend.Signature{Return: backend.TypeObjectRef}
	cm, il, err := e.Compile(d.backend, sig)
	if err != nil {
		return Result{}, err
	}
	return Result{Method: cm, IL: il, ReturnKind: ip.GetReturnInfo().Kind()}, nil
}
