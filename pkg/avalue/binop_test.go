package avalue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBinaryMandatoryTable(t *testing.T) {
	cases := []struct {
		op       BinOp
		lhs, rhs Kind
		want     Kind
	}{
		{Add, Integer, Integer, Integer},
		{TrueDiv, Integer, Integer, Float},
		{Add, Integer, Float, Float},
		{Mul, Integer, List, List},
		{Mul, Integer, Tuple, Tuple},
		{Mul, Integer, String, String},
		{Mul, Integer, Bytes, Bytes},
		{Add, Bool, Integer, Integer},
		{And, Bool, Bool, Bool},
		{Mod, Bool, Integer, Bool},
		{TrueDiv, Bool, Integer, Float},
		{Add, Bool, Float, Float},
		{Add, Float, Float, Float},
		{Sub, Float, Float, Float},
		{Mul, Float, Float, Float},
		{TrueDiv, Float, Float, Float},
		{FloorDiv, Float, Float, Float},
		{Mod, Float, Float, Float},
		{Pow, Float, Float, Float},
		{Add, Float, Integer, Float},
		{Add, String, String, String},
		{Mod, String, Any, String},
		{Mul, String, Integer, String},
		{Add, Bytes, Bytes, Bytes},
		{Mod, Bytes, Any, Bytes},
		{Add, List, List, List},
		{And, Set, Set, Set},
	}
	for _, c := range cases {
		got := Binary(c.op, Top(c.lhs), Top(c.rhs))
		require.Equalf(t, c.want, got.Kind(), "%v %v %v", c.lhs, c.op, c.rhs)
	}
}

func TestBinaryUnrecognizedIsAny(t *testing.T) {
	got := Binary(Add, Top(Function), Top(Dict))
	require.Equal(t, Any, got.Kind())
}

func TestUnaryMandatoryTable(t *testing.T) {
	require.Equal(t, Bool, Unary(Not, Top(Integer)).Kind())
	require.Equal(t, Integer, Unary(Invert, Top(Bool)).Kind())
	require.Equal(t, Integer, Unary(Neg, Top(Bool)).Kind())
	require.Equal(t, Integer, Unary(Pos, Top(Bool)).Kind())
	require.Equal(t, Integer, Unary(Neg, Top(Integer)).Kind())
	require.Equal(t, Float, Unary(Neg, Top(Float)).Kind())
}

func TestNotFoldsConstants(t *testing.T) {
	require.True(t, Unary(Not, ConstBool(false)).IsAlwaysTrue())
	require.True(t, Unary(Not, ConstInt(0)).IsAlwaysTrue())
	require.True(t, Unary(Not, ConstInt(5)).IsAlwaysFalse())
}

func TestJoin(t *testing.T) {
	require.Equal(t, Integer, Join(Top(Integer), Top(Integer)).Kind())
	require.Equal(t, Any, Join(Top(Integer), Top(String)).Kind())
	require.Equal(t, Integer, Join(UndefinedValue(), Top(Integer)).Kind())
	require.Equal(t, Integer, Join(Top(Integer), UndefinedValue()).Kind())

	same := Join(ConstInt(3), ConstInt(3))
	require.True(t, same.HasConst())
	i, ok := same.ConstInt()
	require.True(t, ok)
	require.Equal(t, int64(3), i)

	diff := Join(ConstInt(3), ConstInt(4))
	require.False(t, diff.HasConst())
}
