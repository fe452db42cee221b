package jit_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmjit/tracejit/pkg/backend/interp"
	"github.com/vmjit/tracejit/pkg/bytecode"
	"github.com/vmjit/tracejit/pkg/helper"
	"github.com/vmjit/tracejit/pkg/jit"
	"github.com/vmjit/tracejit/pkg/jitconfig"
)

type fakeCode struct {
	code   []bytecode.Instruction
	consts []bytecode.Const
}

func (f *fakeCode) Code() []bytecode.Instruction { return f.code }
func (f *fakeCode) Consts() []bytecode.Const     { return f.consts }
func (f *fakeCode) Names() []string              { return nil }
func (f *fakeCode) NLocals() int                 { return 0 }
func (f *fakeCode) NArgs() int                   { return 0 }
func (f *fakeCode) NFreeVars() int               { return 0 }
func (f *fakeCode) NCellVars() int               { return 0 }
func (f *fakeCode) MaxStackDepth() int           { return 8 }
func (f *fakeCode) Filename() string             { return "test.py" }
func (f *fakeCode) Name() string                 { return "f" }
func (f *fakeCode) FirstLine() int               { return 1 }

func newFacade(t *testing.T, threshold int64) *jit.Facade {
	catalog := helper.NewDefaultCatalog(func(name string, args []interface{}) (interface{}, error) {
		return nil, nil
	})
	be := interp.New(catalog)
	cfg := jitconfig.Default()
	cfg.Threshold = threshold
	return jit.New(jit.Options{
		Config:  cfg,
		Catalog: catalog,
		Backend: be,
		Interpret: func(code bytecode.CodeObject, args []interface{}) (interface{}, error) {
			return nil, nil
		},
	})
}

func TestFacadeStartsEnabledByDefault(t *testing.T) {
	f := newFacade(t, 10)
	require.True(t, f.Status())
}

func TestFacadeHonorsEnabledByDefaultFalse(t *testing.T) {
	catalog := helper.NewDefaultCatalog(func(name string, args []interface{}) (interface{}, error) {
		return nil, nil
	})
	be := interp.New(catalog)
	cfg := jitconfig.Default()
	cfg.EnabledByDefault = false
	f := jit.New(jit.Options{
		Config:  cfg,
		Catalog: catalog,
		Backend: be,
		Interpret: func(code bytecode.CodeObject, args []interface{}) (interface{}, error) {
			return nil, nil
		},
	})
	require.False(t, f.Status())
}

func TestFacadeInfoAndStatsBeforeCompile(t *testing.T) {
	f := newFacade(t, 100)
	code := &fakeCode{
		code:   []bytecode.Instruction{{Offset: 0, Op: bytecode.LOAD_CONST, Arg: 0}, {Offset: 1, Op: bytecode.RETURN_VALUE}},
		consts: []bytecode.Const{{Kind: bytecode.ConstInt, Int: 1}},
	}
	info := f.Info(code)
	require.Equal(t, false, info["compiled"])
	require.Equal(t, int64(0), info["run_count"])

	stats := f.Stats()
	require.Equal(t, int64(0), stats["compiled"])

	require.Nil(t, f.DumpIL(code))
	require.Nil(t, f.DumpNative(code))
}

func TestFacadeCompilesAtThresholdAndDumpsIL(t *testing.T) {
	f := newFacade(t, 1)
	code := &fakeCode{
		code:   []bytecode.Instruction{{Offset: 0, Op: bytecode.LOAD_CONST, Arg: 0}, {Offset: 1, Op: bytecode.RETURN_VALUE}},
		consts: []bytecode.Const{{Kind: bytecode.ConstInt, Int: 1}},
	}
	_, err := f.Invoke(code, nil, nil)
	require.NoError(t, err)

	info := f.Info(code)
	require.True(t, info["compiled"].(bool))
	require.NotNil(t, f.DumpIL(code))
}

func TestFacadeThresholdRoundTrip(t *testing.T) {
	f := newFacade(t, 10)
	f.SetThreshold(7)
	require.Equal(t, int64(7), f.GetThreshold())
}

func TestFacadeEnableDisableToggle(t *testing.T) {
	f := newFacade(t, 10)
	require.True(t, f.Disable())
	require.False(t, f.Status())
	require.True(t, f.Enable())
	require.True(t, f.Status())
}
