// Package ilasm is the IL Emitter (spec §4.1): it produces a byte-accurate
// typed IL stream for a stack-based target, mediates local/label
// allocation, and hands the finished method to a backend.Backend. The
// branch short/long-form encoding-with-fixup algorithm is carried over from
// the teacher's two-pass `program.emit`/`program.Bytes` (neo-go
// pkg/compiler/program.go), generalized from NeoVM jump opcodes to the
// typed branch kinds spec.md §4.1 names.
package ilasm

import "fmt"

// Op is one typed-IL instruction opcode.
type Op byte

// IL opcodes. Constant loads, stack manipulation, local/argument access,
// memory access, control flow, call, and array primitives, per spec §4.1.
const (
	OpConstInt Op = iota
	OpConstFloat64
	OpConstPtr
	OpConstNull

	OpUnaryNeg
	OpAdd
	OpSub
	OpMul
	OpDiv

	OpCmpEq
	OpCmpNe
	OpCmpLt
	OpCmpLe
	OpCmpGt
	OpCmpGe
	OpCmpLtUn
	OpCmpLeUn
	OpCmpGtUn
	OpCmpGeUn

	OpBitAnd

	OpPop
	OpDup

	OpLdLoc
	OpStLoc
	OpLdLocAddr
	OpLdArg

	OpLdIndPtr
	OpStIndPtr
	OpLdIndI4
	OpStIndI4
	OpLdIndR8
	OpStIndR8

	OpBranch
	OpRet
	OpBrk

	OpCall

	OpNewArray
	OpStElem
	OpLdElemPtr
	OpLdElemI4
	OpLdElemR8

	opCount
)

var opNames = [opCount]string{
	OpConstInt: "const.i8", OpConstFloat64: "const.r8", OpConstPtr: "const.ptr", OpConstNull: "const.null",
	OpUnaryNeg: "neg", OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div",
	OpCmpEq: "ceq", OpCmpNe: "cne", OpCmpLt: "clt", OpCmpLe: "cle", OpCmpGt: "cgt", OpCmpGe: "cge",
	OpCmpLtUn: "clt.un", OpCmpLeUn: "cle.un", OpCmpGtUn: "cgt.un", OpCmpGeUn: "cge.un",
	OpBitAnd: "and", OpPop: "pop", OpDup: "dup",
	OpLdLoc: "ldloc", OpStLoc: "stloc", OpLdLocAddr: "ldloca", OpLdArg: "ldarg",
	OpLdIndPtr: "ldind.ptr", OpStIndPtr: "stind.ptr", OpLdIndI4: "ldind.i4", OpStIndI4: "stind.i4",
	OpLdIndR8: "ldind.r8", OpStIndR8: "stind.r8",
	OpBranch: "br", OpRet: "ret", OpBrk: "brk", OpCall: "call",
	OpNewArray: "newarr", OpStElem: "stelem", OpLdElemPtr: "ldelem.ptr", OpLdElemI4: "ldelem.i4", OpLdElemR8: "ldelem.r8",
}

func (op Op) String() string {
	if op < opCount {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", byte(op))
}

// BranchKind selects the condition under which a branch is taken, per
// spec §4.1: "branch(kind, label) where kind ∈ {Always, True, False,
// Equal, NotEqual, LessEqual, Leave}".
type BranchKind byte

// Branch kinds.
const (
	BrAlways BranchKind = iota
	BrTrue
	BrFalse
	BrEqual
	BrNotEqual
	BrLessEqual
	BrLeave
)
