package avalue

// UnaryOp identifies a unary operator.
type UnaryOp byte

// Unary operators, per spec §3.
const (
	Neg UnaryOp = iota
	Pos
	Invert
	Not
)

// Unary resolves the result kind of `op v`, per the mandatory table in
// spec §4.3.
func Unary(op UnaryOp, v Value) Value {
	if op == Not {
		// not X -> Bool for every X.
		if v.IsAlwaysTrue() {
			return ConstBool(false)
		}
		if v.IsAlwaysFalse() {
			return ConstBool(true)
		}
		return Top(Bool)
	}
	switch v.kind {
	case Bool:
		switch op {
		case Invert, Neg, Pos:
			return Top(Integer)
		}
	case Integer:
		switch op {
		case Neg, Pos, Invert:
			return Top(Integer)
		}
	case Float:
		switch op {
		case Neg, Pos:
			return Top(Float)
		}
	}
	return AnyValue()
}

// CompareOp identifies a rich-comparison operator.
type CompareOp byte

// Comparison operators.
const (
	Eq CompareOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
	Is
	IsNot
	In
	NotIn
)

// Compare resolves the result of `lhs op rhs`: always Bool, since every
// comparison in scope here (spec §4.3) yields a boolean regardless of
// operand kinds — the compiler driver still picks a specialized
// implementation (e.g. unboxed float compare, raw pointer compare for
// is/is not) based on the operand kinds, but the *abstract result* is
// uniformly Bool.
func Compare(op CompareOp, lhs, rhs Value) Value {
	return Top(Bool)
}
