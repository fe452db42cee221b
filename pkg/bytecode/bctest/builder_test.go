package bctest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmjit/tracejit/pkg/bytecode"
	"github.com/vmjit/tracejit/pkg/bytecode/bctest"
)

func TestBuilderProducesReturnOneCodeObject(t *testing.T) {
	code := bctest.New("return_one", 0, 0).ConstInt(1).Return().Code()

	require.Equal(t, "return_one", code.Name())
	require.Len(t, code.Code(), 2)
	require.Equal(t, bytecode.LOAD_CONST, code.Code()[0].Op)
	require.Equal(t, bytecode.RETURN_VALUE, code.Code()[1].Op)
	require.Equal(t, int64(1), code.Consts()[0].Int)
}

func TestBuilderTracksLocalsAndArity(t *testing.T) {
	code := bctest.New("add_locals", 2, 2).
		LoadFast(0).
		LoadFast(1).
		Op(bytecode.BINARY_ADD).
		Return().
		Code()

	require.Equal(t, 2, code.NArgs())
	require.Equal(t, 2, code.NLocals())
	require.Len(t, code.Code(), 4)
}
