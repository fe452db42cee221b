package avalue

// Value is a single abstract value: a kind paired with an optional concrete
// constant (spec §3, "Abstract Value"). The constant is remembered only for
// LOAD_CONST-produced values; it never survives an arithmetic operation
// except where explicitly noted.
type Value struct {
	kind     Kind
	hasConst bool
	i        int64
	f        float64
	b        bool
	s        string
}

// Top returns the abstract value with kind k and no known constant.
func Top(k Kind) Value { return Value{kind: k} }

// AnyValue is the universal top element of the lattice.
func AnyValue() Value { return Value{kind: Any} }

// UndefinedValue marks a local that may not have been assigned yet.
func UndefinedValue() Value { return Value{kind: Undefined} }

// ConstInt returns an Integer abstract value remembering its constant.
func ConstInt(i int64) Value { return Value{kind: Integer, hasConst: true, i: i} }

// ConstFloat returns a Float abstract value remembering its constant.
func ConstFloat(f float64) Value { return Value{kind: Float, hasConst: true, f: f} }

// ConstBool returns a Bool abstract value remembering its constant.
func ConstBool(b bool) Value { return Value{kind: Bool, hasConst: true, b: b} }

// ConstStr returns a String abstract value remembering its constant.
func ConstStr(s string) Value { return Value{kind: String, hasConst: true, s: s} }

// ConstNone returns the (singleton) None abstract value.
func ConstNone() Value { return Value{kind: None, hasConst: true} }

// Kind returns the value's representational kind.
func (v Value) Kind() Kind { return v.kind }

// HasConst reports whether v remembers a concrete constant.
func (v Value) HasConst() bool { return v.hasConst }

// ConstInt returns the remembered integer constant, if any.
func (v Value) ConstInt() (int64, bool) {
	if v.hasConst && v.kind == Integer {
		return v.i, true
	}
	return 0, false
}

// ConstFloat returns the remembered float constant, if any.
func (v Value) ConstFloat() (float64, bool) {
	if v.hasConst && v.kind == Float {
		return v.f, true
	}
	return 0, false
}

// ConstBool returns the remembered bool constant, if any.
func (v Value) ConstBool() (bool, bool) {
	if v.hasConst && v.kind == Bool {
		return v.b, true
	}
	return false, false
}

// IsAlwaysTrue reports whether v is provably truthy at every possible
// runtime value it could take.
func (v Value) IsAlwaysTrue() bool {
	switch v.kind {
	case None, Undefined:
		return false
	case Bool:
		b, ok := v.ConstBool()
		return ok && b
	case Integer:
		i, ok := v.ConstInt()
		return ok && i != 0
	case Float:
		f, ok := v.ConstFloat()
		return ok && f != 0
	case String:
		s, ok := v.s, v.hasConst
		return ok && s != ""
	default:
		return false
	}
}

// IsAlwaysFalse reports whether v is provably falsy at every possible
// runtime value it could take.
func (v Value) IsAlwaysFalse() bool {
	switch v.kind {
	case None:
		return true
	case Bool:
		b, ok := v.ConstBool()
		return ok && !b
	case Integer:
		i, ok := v.ConstInt()
		return ok && i == 0
	case Float:
		f, ok := v.ConstFloat()
		return ok && f == 0
	case String:
		return v.hasConst && v.s == ""
	default:
		return false
	}
}

// Join computes the least upper bound of a and b (spec §4.3): identical
// kinds yield that kind; Undefined joined with anything yields the other
// kind but the caller is responsible for recording maybe_undefined;
// otherwise Any. The concrete constant is preserved only when both sides
// are the identical constant, since that is the only case a consumer may
// still treat the join as constant-foldable.
func Join(a, b Value) Value {
	switch {
	case a.kind == b.kind:
		if a.hasConst && b.hasConst && constsEqual(a, b) {
			return a
		}
		return Top(a.kind)
	case a.kind == Undefined:
		return Top(b.kind)
	case b.kind == Undefined:
		return Top(a.kind)
	default:
		return AnyValue()
	}
}

func constsEqual(a, b Value) bool {
	switch a.kind {
	case Integer:
		return a.i == b.i
	case Float:
		return a.f == b.f
	case Bool:
		return a.b == b.b
	case String:
		return a.s == b.s
	case None:
		return true
	default:
		return false
	}
}
