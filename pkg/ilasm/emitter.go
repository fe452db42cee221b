package ilasm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vmjit/tracejit/pkg/backend"
	"github.com/vmjit/tracejit/pkg/helper"
)

// Emitter is a single-use, stack-confined IL builder (spec §5: "The IL
// emitter and AI are single-use, stack-confined objects; they are never
// shared").
type Emitter struct {
	buf    []byte
	locals []localSlot
	// freeList is the per-type pool of freed local indices.
	freeList map[backend.ValueType][]int
	labels   []labelState

	// stackDepth is the emitter's coarse, always-overestimating static
	// stack depth used for the backend's frame-size estimate — not the
	// AI's abstract stack (spec §4.1).
	stackDepth, maxStackDepth int
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{freeList: make(map[backend.ValueType][]int)}
}

func (e *Emitter) push() {
	e.stackDepth++
	if e.stackDepth > e.maxStackDepth {
		e.maxStackDepth = e.stackDepth
	}
}

func (e *Emitter) pop(n int) {
	e.stackDepth -= n
	if e.stackDepth < 0 {
		e.stackDepth = 0
	}
}

func (e *Emitter) emitByte(op Op) { e.buf = append(e.buf, byte(op)) }

func (e *Emitter) emitInt16(v int) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(int16(v)))
	e.buf = append(e.buf, b[:]...)
}

func (e *Emitter) emitInt64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *Emitter) emitFloat64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *Emitter) emitUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// --- Constant loads ---

// ConstInt pushes a 64-bit integer constant.
func (e *Emitter) ConstInt(v int64) {
	e.emitByte(OpConstInt)
	e.emitInt64(v)
	e.push()
}

// ConstFloat64 pushes a 64-bit float constant.
func (e *Emitter) ConstFloat64(v float64) {
	e.emitByte(OpConstFloat64)
	e.emitFloat64(v)
	e.push()
}

// ConstPtr pushes an opaque pointer constant.
func (e *Emitter) ConstPtr(v uintptr) {
	e.emitByte(OpConstPtr)
	e.emitUint64(uint64(v))
	e.push()
}

// ConstNull pushes a null object reference.
func (e *Emitter) ConstNull() {
	e.emitByte(OpConstNull)
	e.push()
}

// --- Stack manipulation ---

// Neg negates the top-of-stack numeric value in place.
func (e *Emitter) Neg() { e.emitByte(OpUnaryNeg) }

// Add/Sub/Mul/Div pop two values and push the arithmetic result.
func (e *Emitter) Add() { e.binArith(OpAdd) }
func (e *Emitter) Sub() { e.binArith(OpSub) }
func (e *Emitter) Mul() { e.binArith(OpMul) }
func (e *Emitter) Div() { e.binArith(OpDiv) }

func (e *Emitter) binArith(op Op) {
	e.emitByte(op)
	e.pop(1)
}

// CmpOp identifies one of the IL's comparison instructions.
type CmpOp byte

// Comparison instructions (spec §4.1: "==, <, ≤, >, ≥, ≠, plus unsigned
// variants for float").
const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
	CmpLtUn
	CmpLeUn
	CmpGtUn
	CmpGeUn
)

var cmpToOp = [...]Op{
	CmpEq: OpCmpEq, CmpNe: OpCmpNe, CmpLt: OpCmpLt, CmpLe: OpCmpLe,
	CmpGt: OpCmpGt, CmpGe: OpCmpGe, CmpLtUn: OpCmpLtUn, CmpLeUn: OpCmpLeUn,
	CmpGtUn: OpCmpGtUn, CmpGeUn: OpCmpGeUn,
}

// Compare pops two values and pushes a boolean-valued comparison result.
func (e *Emitter) Compare(op CmpOp) {
	e.emitByte(cmpToOp[op])
	e.pop(1)
}

// BitAnd pops two values and pushes their bitwise AND.
func (e *Emitter) BitAnd() {
	e.emitByte(OpBitAnd)
	e.pop(1)
}

// Pop discards the top of stack.
func (e *Emitter) Pop() {
	e.emitByte(OpPop)
	e.pop(1)
}

// Dup duplicates the top of stack.
func (e *Emitter) Dup() {
	e.emitByte(OpDup)
	e.push()
}

// --- Local/argument access ---

// LdLoc pushes the value of local l.
func (e *Emitter) LdLoc(l Local) {
	e.emitByte(OpLdLoc)
	e.emitInt16(l.index)
	e.push()
}

// StLoc pops the top of stack into local l.
func (e *Emitter) StLoc(l Local) {
	e.emitByte(OpStLoc)
	e.emitInt16(l.index)
	e.pop(1)
}

// LdLocAddr pushes the address of local l.
func (e *Emitter) LdLocAddr(l Local) {
	e.emitByte(OpLdLocAddr)
	e.emitInt16(l.index)
	e.push()
}

// LdArg pushes argument index i.
func (e *Emitter) LdArg(i int) {
	e.emitByte(OpLdArg)
	e.emitInt16(i)
	e.push()
}

// --- Memory access ---

// LdIndPtr/LdIndI4/LdIndR8 dereference the top-of-stack pointer.
func (e *Emitter) LdIndPtr() { e.emitByte(OpLdIndPtr) }
func (e *Emitter) LdIndI4()  { e.emitByte(OpLdIndI4) }
func (e *Emitter) LdIndR8()  { e.emitByte(OpLdIndR8) }

// StIndPtr/StIndI4/StIndR8 store through a pointer (pops [ptr, value]).
func (e *Emitter) StIndPtr() { e.emitByte(OpStIndPtr); e.pop(2) }
func (e *Emitter) StIndI4()  { e.emitByte(OpStIndI4); e.pop(2) }
func (e *Emitter) StIndR8()  { e.emitByte(OpStIndR8); e.pop(2) }

// --- Control flow ---

// Branch emits OpBranch, the BranchKind byte, and a displacement to l.
// Unlike most IL ops, branches are variable-width: Branch chooses a 1-byte
// (short) or 4-byte (long) displacement based on whether the displacement to an already-resolved label fits
// in a signed byte (spec §4.1).
func (e *Emitter) Branch(kind BranchKind, l Label) {
	e.emitByte(OpBranch)
	e.buf = append(e.buf, byte(kind))

	st := &e.labels[l.index]
	if st.resolved {
		// instrEnd assumes the long (6-byte total: 1 op + 1 kind + 4 disp)
		// form until we know the short form fits; try short first.
		shortEnd := len(e.buf) + 1
		disp := st.offset - shortEnd
		if disp >= -128 && disp <= 127 {
			e.buf = append(e.buf, byte(int8(disp)))
			e.popForBranch(kind)
			return
		}
	}
	// Long form: 4-byte placeholder, recorded as a pending fixup if the
	// label is not yet resolved.
	patchAt := len(e.buf)
	e.buf = append(e.buf, 0, 0, 0, 0)
	instrEnd := len(e.buf)
	if st.resolved {
		e.patchDisplacement(fixup{patchAt: patchAt, long: true, instrEnd: instrEnd}, st.offset)
	} else {
		st.pending = append(st.pending, fixup{patchAt: patchAt, long: true, instrEnd: instrEnd})
	}
	e.popForBranch(kind)
}

func (e *Emitter) popForBranch(kind BranchKind) {
	switch kind {
	case BrAlways, BrLeave:
		// no condition operand consumed
	case BrTrue, BrFalse:
		e.pop(1)
	case BrEqual, BrNotEqual, BrLessEqual:
		e.pop(2)
	}
}

// Ret pops popCount values (the return value, if any, must already be on
// top) and returns from the method.
func (e *Emitter) Ret(popCount int) {
	e.emitByte(OpRet)
	e.buf = append(e.buf, byte(popCount))
	e.pop(popCount)
}

// Brk inserts a debugger trap.
func (e *Emitter) Brk() { e.emitByte(OpBrk) }

// --- Call ---

// EmitCall emits a call through the helper catalog. Per spec §4.1: stack
// delta is (pop popCount, push one result unless the helper returns void).
func (e *Emitter) EmitCall(id helper.ID, popCount int, returnsValue bool) {
	e.emitByte(OpCall)
	e.emitInt16(int(id))
	e.buf = append(e.buf, byte(popCount))
	if returnsValue {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	e.pop(popCount)
	if returnsValue {
		e.push()
	}
}

// --- Array primitives ---

// NewArray pushes a freshly allocated object array of the given length.
func (e *Emitter) NewArray(length int) {
	e.emitByte(OpNewArray)
	e.emitInt16(length)
	e.push()
}

// StElem stores value (a local) into array (a local) at index.
func (e *Emitter) StElem(array Local, index int, value Local) {
	e.emitByte(OpStElem)
	e.emitInt16(array.index)
	e.emitInt16(index)
	e.emitInt16(value.index)
}

// ElemKind selects the element width LdElem loads.
type ElemKind byte

// Element kinds.
const (
	ElemPtr ElemKind = iota
	ElemI4
	ElemR8
)

// LdElem loads array[index] and pushes it, for the requested element kind.
func (e *Emitter) LdElem(kind ElemKind, index int) {
	switch kind {
	case ElemPtr:
		e.emitByte(OpLdElemPtr)
	case ElemI4:
		e.emitByte(OpLdElemI4)
	case ElemR8:
		e.emitByte(OpLdElemR8)
	}
	e.emitInt16(index)
	e.push()
}

// --- Finalization ---

// Serialize returns the accumulated IL byte stream. All labels must be
// marked before calling this.
func (e *Emitter) Serialize() ([]byte, error) {
	for i, st := range e.labels {
		if !st.resolved {
			return nil, fmt.Errorf("ilasm: label %d never marked", i)
		}
	}
	return e.buf, nil
}

// FrameSize returns the coarse, overestimating static stack depth the
// backend should size its frame for (spec §4.1).
func (e *Emitter) FrameSize() int { return e.maxStackDepth }

// NumLocals returns the number of distinct local slots allocated (pooled
// reuse notwithstanding — this is the table size, not the live count).
func (e *Emitter) NumLocals() int { return len(e.locals) }

// Compile serializes the IL and hands it, with sig and the computed frame
// layout, to the backend. It does not itself know about the Jitted Code
// Record (spec §3) — that is dispatch's concern; Compile returns the raw
// backend.CompiledMethod plus the serialized IL bytes so the caller can
// build one.
func (e *Emitter) Compile(be backend.Backend, sig backend.Signature) (backend.CompiledMethod, []byte, error) {
	il, err := e.Serialize()
	if err != nil {
		return backend.CompiledMethod{}, nil, err
	}
	cm, err := be.Generate(il, sig, e.FrameSize())
	if err != nil {
		return backend.CompiledMethod{}, il, fmt.Errorf("ilasm: backend %s failed: %w", be.Name(), err)
	}
	return cm, il, nil
}
