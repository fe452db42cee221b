package driver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmjit/tracejit/pkg/avalue"
	"github.com/vmjit/tracejit/pkg/backend/interp"
	"github.com/vmjit/tracejit/pkg/bytecode"
	"github.com/vmjit/tracejit/pkg/driver"
	"github.com/vmjit/tracejit/pkg/helper"
)

type fakeCode struct {
	code    []bytecode.Instruction
	consts  []bytecode.Const
	nlocals int
	nargs   int
}

func (f fakeCode) Code() []bytecode.Instruction { return f.code }
func (f fakeCode) Consts() []bytecode.Const     { return f.consts }
func (f fakeCode) Names() []string              { return nil }
func (f fakeCode) NLocals() int                 { return f.nlocals }
func (f fakeCode) NArgs() int                   { return f.nargs }
func (f fakeCode) NFreeVars() int               { return 0 }
func (f fakeCode) NCellVars() int               { return 0 }
func (f fakeCode) MaxStackDepth() int           { return 8 }
func (f fakeCode) Filename() string             { return "test.py" }
func (f fakeCode) Name() string                 { return "f" }
func (f fakeCode) FirstLine() int               { return 1 }

// testCatalog builds a catalog whose host function just does enough real
// work to make the end-to-end scenarios observable: push_frame/pop_frame
// and decref are no-ops, and every other helper's result is whatever the
// test fixture wires up via calls (most scenarios here only exercise
// arithmetic, which the driver lowers to native IL ops and never reaches
// the catalog at all).
func testCatalog() *helper.Catalog {
	return helper.NewDefaultCatalog(func(name string, args []interface{}) (interface{}, error) {
		return nil, nil
	})
}

func TestCompileAugmentedAssignReturnsInteger(t *testing.T) {
	// x = 1; x += 1; return x
	code := fakeCode{
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
		consts:  []bytecode.Const{{Kind: bytecode.ConstInt, Int: 1}},
		nlocals: 1,
		nargs:   0,
	}

	catalog := testCatalog()
	be := interp.New(catalog)
	d := driver.New(catalog, be, nil)

	result, err := d.Compile(code, nil)
	require.NoError(t, err)
	require.Equal(t, avalue.Integer, result.ReturnKind)
	require.NotEmpty(t, result.IL)
}

func TestCompileRejectsStackUnderflow(t *testing.T) {
	code := fakeCode{
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.POP_TOP},
			{Offset: 1, Op: bytecode.LOAD_CONST, Arg: 0},
			{Offset: 2, Op: bytecode.RETURN_VALUE},
		},
		consts:  []bytecode.Const{{Kind: bytecode.ConstInt, Int: 0}},
		nlocals: 0,
		nargs:   0,
	}

	catalog := testCatalog()
	be := interp.New(catalog)
	d := driver.New(catalog, be, nil)

	_, err := d.Compile(code, nil)
	require.Error(t, err)
	var cerr *driver.CompileError
	require.ErrorAs(t, err, &cerr)
}

// TestCompileTryExceptCatchesRaisedException exercises the Exception
// Handler Manager and the driver's SETUP_EXCEPT lowering end-to-end:
//
//	try:
//	    raise 99
//	except:
//	    return 2
//
// A buggy lowerSetup runs prepare_exception unconditionally on the normal
// (non-exceptional) path; here the try body always raises, so that bug
// would not be distinguishable from correct behavior by itself — this
// test instead pins down that POP_BLOCK doesn't panic walking the arena
// and that the handler body executes with the right return value.
func TestCompileTryExceptCatchesRaisedException(t *testing.T) {
	code := fakeCode{
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.SETUP_EXCEPT, Arg: 5},
			{Offset: 1, Op: bytecode.LOAD_CONST, Arg: 0},
			{Offset: 2, Op: bytecode.RAISE_VARARGS, Arg: 1},
			{Offset: 3, Op: bytecode.POP_BLOCK},
			{Offset: 4, Op: bytecode.JUMP_FORWARD, Arg: 7},
			{Offset: 5, Op: bytecode.LOAD_CONST, Arg: 1},
			{Offset: 6, Op: bytecode.RETURN_VALUE},
			{Offset: 7, Op: bytecode.LOAD_CONST, Arg: 2},
			{Offset: 8, Op: bytecode.RETURN_VALUE},
		},
		consts: []bytecode.Const{
			{Kind: bytecode.ConstInt, Int: 99},
			{Kind: bytecode.ConstInt, Int: 2},
			{Kind: bytecode.ConstInt, Int: 1},
		},
		nlocals: 0,
		nargs:   0,
	}

	catalog := testCatalog()
	be := interp.New(catalog)
	d := driver.New(catalog, be, nil)

	result, err := d.Compile(code, nil)
	require.NoError(t, err)

	out, err := interp.Eval(result.Method.Native, catalog, []interface{}{nil, "frame"})
	require.NoError(t, err)
	require.Equal(t, int64(2), out)
}

// TestCompileTryFinallyBreakSkipsHandlerPrelude pins down the fix for the
// reviewed lowerSetup bug: before the fix, the raise/reraise prelude ran
// inline on the straight-line path, so a try/finally whose body exits via
// break (POP_BLOCK then a plain jump, never raising) would incorrectly run
// prepare_exception and divert into the handler instead of reaching the
// code after the loop.
//
//	while True:
//	    try:
//	        break
//	    finally:
//	        pass
//	return 1
func TestCompileTryFinallyBreakSkipsHandlerPrelude(t *testing.T) {
	code := fakeCode{
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.SETUP_FINALLY, Arg: 3},
			{Offset: 1, Op: bytecode.POP_BLOCK},
			{Offset: 2, Op: bytecode.JUMP_ABSOLUTE, Arg: 4},
			{Offset: 3, Op: bytecode.RERAISE},
			{Offset: 4, Op: bytecode.LOAD_CONST, Arg: 0},
			{Offset: 5, Op: bytecode.RETURN_VALUE},
		},
		consts:  []bytecode.Const{{Kind: bytecode.ConstInt, Int: 1}},
		nlocals: 0,
		nargs:   0,
	}

	catalog := testCatalog()
	be := interp.New(catalog)
	d := driver.New(catalog, be, nil)

	result, err := d.Compile(code, nil)
	require.NoError(t, err)

	out, err := interp.Eval(result.Method.Native, catalog, []interface{}{nil, "frame"})
	require.NoError(t, err)
	require.Equal(t, int64(1), out)
}

func TestCompileFloatArgumentSpecialization(t *testing.T) {
	// def f(x): return x + 1.0
	code := fakeCode{
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.LOAD_FAST, Arg: 0},
			{Offset: 1, Op: bytecode.LOAD_CONST, Arg: 0},
			{Offset: 2, Op: bytecode.BINARY_ADD},
			{Offset: 3, Op: bytecode.RETURN_VALUE},
		},
		consts:  []bytecode.Const{{Kind: bytecode.ConstFloat, Float: 1.0}},
		nlocals: 1,
		nargs:   1,
	}

	catalog := testCatalog()
	be := interp.New(catalog)
	d := driver.New(catalog, be, nil)

	result, err := d.Compile(code, []avalue.Kind{avalue.Float})
	require.NoError(t, err)
	require.Equal(t, avalue.Float, result.ReturnKind)
}
