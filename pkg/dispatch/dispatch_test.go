package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmjit/tracejit/pkg/backend/interp"
	"github.com/vmjit/tracejit/pkg/bytecode"
	"github.com/vmjit/tracejit/pkg/dispatch"
	"github.com/vmjit/tracejit/pkg/helper"
)

// fakeCode is a pointer-identity CodeObject, matching the assumption
// dispatch's record table relies on (see dispatch.go's records field doc).
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

func returnOneCode() *fakeCode {
	return &fakeCode{
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.LOAD_CONST, Arg: 0},
			{Offset: 1, Op: bytecode.RETURN_VALUE},
		},
		consts: []bytecode.Const{{Kind: bytecode.ConstInt, Int: 1}},
	}
}

func newTestDispatcher(t *testing.T, threshold int64, interpretCalls *int) *dispatch.Dispatcher {
	catalog := helper.NewDefaultCatalog(func(name string, args []interface{}) (interface{}, error) {
		return nil, nil
	})
	be := interp.New(catalog)
	return dispatch.New(dispatch.Config{
		Catalog:   catalog,
		Backend:   be,
		Threshold: threshold,
		Interpret: func(code bytecode.CodeObject, args []interface{}) (interface{}, error) {
			*interpretCalls++
			return nil, nil
		},
	})
}

func TestInvokeStaysInterpretedBelowThreshold(t *testing.T) {
	var calls int
	d := newTestDispatcher(t, 3, &calls)
	code := returnOneCode()

	for i := 0; i < 2; i++ {
		_, err := d.Invoke(code, nil, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 2, calls)
	require.False(t, d.Info(code).Compiled)
}

func TestInvokeCompilesGenericAtThreshold(t *testing.T) {
	var calls int
	d := newTestDispatcher(t, 2, &calls)
	code := returnOneCode()

	for i := 0; i < 2; i++ {
		_, err := d.Invoke(code, nil, nil)
		require.NoError(t, err)
	}
	require.True(t, d.Info(code).Compiled)
	stats := d.Stats()
	require.Equal(t, int64(1), stats.TotalCompiled)
}

func TestControlAPIEnableDisable(t *testing.T) {
	var calls int
	d := newTestDispatcher(t, 10, &calls)
	require.True(t, d.Status())
	require.True(t, d.Disable())
	require.False(t, d.Status())
	require.False(t, d.Disable())
	require.True(t, d.Enable())
}

func TestSetGetThreshold(t *testing.T) {
	var calls int
	d := newTestDispatcher(t, 10, &calls)
	d.SetThreshold(42)
	require.Equal(t, int64(42), d.GetThreshold())
}

func TestFailedCodeObjectAlwaysInterprets(t *testing.T) {
	var calls int
	d := newTestDispatcher(t, 1, &calls)
	code := &fakeCode{
		code: []bytecode.Instruction{
			{Offset: 0, Op: bytecode.POP_TOP},
			{Offset: 1, Op: bytecode.RETURN_VALUE},
		},
	}
	_, err := d.Invoke(code, nil, nil)
	require.NoError(t, err)
	require.True(t, d.Info(code).Failed)

	_, err = d.Invoke(code, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
