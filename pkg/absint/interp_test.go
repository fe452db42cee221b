package absint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmjit/tracejit/pkg/avalue"
	"github.com/vmjit/tracejit/pkg/bytecode"
)

type fakeCode struct {
	code    []bytecode.Instruction
	consts  []bytecode.Const
	nlocals int
	nargs   int
}

func (f *fakeCode) Code() []bytecode.Instruction { return f.code }
func (f *fakeCode) Consts() []bytecode.Const     { return f.consts }
func (f *fakeCode) Names() []string              { return nil }
func (f *fakeCode) NLocals() int                 { return f.nlocals }
func (f *fakeCode) NArgs() int                   { return f.nargs }
func (f *fakeCode) NFreeVars() int               { return 0 }
func (f *fakeCode) NCellVars() int               { return 0 }
func (f *fakeCode) MaxStackDepth() int           { return 8 }
func (f *fakeCode) Filename() string             { return "test.py" }
func (f *fakeCode) Name() string                 { return "f" }
func (f *fakeCode) FirstLine() int               { return 1 }

// TestAugmentedAssignConvergesToInteger models scenario 1 from the end-to-end
// table: `x=1; x+=1; return x`.
func TestAugmentedAssignConvergesToInteger(t *testing.T) {
	code := &fakeCode{
		nlocals: 1,
		consts: []bytecode.Const{
			{Kind: bytecode.ConstInt, Int: 1},
		},
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.LOAD_CONST, Arg: 0},
			{Offset: 1, Op: bytecode.STORE_FAST, Arg: 0},
			{Offset: 2, Op: bytecode.LOAD_FAST, Arg: 0},
			{Offset: 3, Op: bytecode.LOAD_CONST, Arg: 0},
			{Offset: 4, Op: bytecode.BINARY_ADD},
			{Offset: 5, Op: bytecode.STORE_FAST, Arg: 0},
			{Offset: 6, Op: bytecode.LOAD_FAST, Arg: 0},
			{Offset: 7, Op: bytecode.RETURN_VALUE},
		},
	}

	ip := New(code)
	require.True(t, ip.Run(nil))

	stack, ok := ip.GetStackInfo(4)
	require.True(t, ok)
	require.Len(t, stack, 2)

	li, ok := ip.GetLocalInfo(6, 0)
	require.True(t, ok)
	require.Equal(t, avalue.Integer, li.Value.Kind())
	require.False(t, li.MaybeUndefined)

	require.Equal(t, avalue.Integer, ip.GetReturnInfo().Kind())
}

// TestLoopBackEdgeJoinsToAny verifies a for-loop's back-edge join: the loop
// variable, unassigned on loop entry and assigned inside the body, reaches
// the loop exit as Any and maybe-undefined, and FOR_ITER's loop-exit edge
// removes the iterator from the stack.
func TestLoopBackEdgeJoinsToAny(t *testing.T) {
	code := &fakeCode{
		nlocals: 2,
		consts: []bytecode.Const{
			{Kind: bytecode.ConstInt, Int: 6},
		},
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.LOAD_CONST, Arg: 0}, // range(6) placeholder
			{Offset: 1, Op: bytecode.GET_ITER},
			{Offset: 2, Op: bytecode.FOR_ITER, Arg: 6},
			{Offset: 3, Op: bytecode.STORE_FAST, Arg: 1},
			{Offset: 4, Op: bytecode.JUMP_ABSOLUTE, Arg: 2},
			{Offset: 6, Op: bytecode.LOAD_FAST, Arg: 1},
			{Offset: 7, Op: bytecode.RETURN_VALUE},
		},
	}

	ip := New(code)
	require.True(t, ip.Run(nil))

	stack, ok := ip.GetStackInfo(6)
	require.True(t, ok)
	require.Len(t, stack, 0)

	li, ok := ip.GetLocalInfo(6, 1)
	require.True(t, ok)
	require.Equal(t, avalue.Any, li.Value.Kind())
	require.True(t, li.MaybeUndefined)
}

// TestStackUnderflowDiverges exercises the AI's refusal to accept an
// unrepresentable shape (spec §4.4 step 5).
func TestStackUnderflowDiverges(t *testing.T) {
	code := &fakeCode{
		nlocals: 0,
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.POP_TOP},
			{Offset: 1, Op: bytecode.RETURN_VALUE},
		},
	}
	ip := New(code)
	require.False(t, ip.Run(nil))
}

// TestArgKindSeedsSpecialization verifies the specialization entry point:
// argument kinds are installed at locals[0..nargs) before the worklist
// runs.
func TestArgKindSeedsSpecialization(t *testing.T) {
	code := &fakeCode{
		nlocals: 1,
		nargs:   1,
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.LOAD_FAST, Arg: 0},
			{Offset: 1, Op: bytecode.RETURN_VALUE},
		},
	}
	ip := New(code)
	require.True(t, ip.Run([]avalue.Kind{avalue.Float}))
	require.Equal(t, avalue.Float, ip.GetReturnInfo().Kind())
}
