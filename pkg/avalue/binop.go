package avalue

// BinOp identifies a binary arithmetic/bitwise operator.
type BinOp byte

// Binary operators, per spec §3 "Abstract Value" operations.
const (
	Add BinOp = iota
	Sub
	Mul
	TrueDiv
	FloorDiv
	Mod
	Pow
	LShift
	RShift
	And
	Or
	Xor
	MatMul
)

// binOpTable holds the mandatory (lhs, rhs) -> result entries from spec
// §4.3. Any pair not present here resolves to Any, meaning the driver must
// fall back to the fully generic helper call.
var binOpTable = map[BinOp]map[Kind]map[Kind]Kind{}

func setOp(op BinOp, lhs, rhs, result Kind) {
	m, ok := binOpTable[op]
	if !ok {
		m = map[Kind]map[Kind]Kind{}
		binOpTable[op] = m
	}
	row, ok := m[lhs]
	if !ok {
		row = map[Kind]Kind{}
		m[lhs] = row
	}
	row[rhs] = result
}

func init() {
	numeric := []Kind{Integer, Float, Bool}
	arith := []BinOp{Add, Sub, Mul, TrueDiv, FloorDiv, Mod, Pow}

	// Integer (+ Bool, treated as a 0/1 Integer) arithmetic table.
	for _, op := range arith {
		setOp(op, Integer, Integer, Integer)
		setOp(op, Bool, Bool, Bool)
		setOp(op, Bool, Integer, Integer)
		setOp(op, Integer, Bool, Integer)
	}
	// Division always promotes to Float, even Integer/Integer and Bool/Bool.
	setOp(TrueDiv, Integer, Integer, Float)
	setOp(TrueDiv, Bool, Bool, Float)
	setOp(TrueDiv, Bool, Integer, Float)
	setOp(TrueDiv, Integer, Bool, Float)

	// Float arithmetic: Float combined with any numeric kind stays Float.
	for _, op := range arith {
		for _, k := range numeric {
			setOp(op, Float, k, Float)
			setOp(op, k, Float, Float)
		}
	}
	for _, op := range arith {
		setOp(op, Float, Complex, Complex)
		setOp(op, Complex, Float, Complex)
	}

	// Bitwise ops over Bool/Integer.
	bitwise := []BinOp{LShift, RShift, And, Or, Xor}
	for _, op := range bitwise {
		setOp(op, Integer, Integer, Integer)
		setOp(op, Bool, Integer, Integer)
		setOp(op, Integer, Bool, Integer)
	}
	setOp(And, Bool, Bool, Bool)
	setOp(Or, Bool, Bool, Bool)
	setOp(Xor, Bool, Bool, Bool)
	setOp(Mod, Bool, Integer, Bool)

	// Sequence-repeat shapes.
	setOp(Mul, Integer, List, List)
	setOp(Mul, List, Integer, List)
	setOp(Mul, Integer, Tuple, Tuple)
	setOp(Mul, Tuple, Integer, Tuple)
	setOp(Mul, Integer, String, String)
	setOp(Mul, String, Integer, String)
	setOp(Mul, Integer, Bytes, Bytes)
	setOp(Mul, Bytes, Integer, Bytes)

	// Sequence concatenation and formatting.
	setOp(Add, String, String, String)
	setOp(Add, Bytes, Bytes, Bytes)
	setOp(Add, List, List, List)
	setOp(Mod, String, Any, String)
	setOp(Mod, Bytes, Any, Bytes)

	// Set-set bitwise ops.
	for _, op := range []BinOp{And, Or, Xor, Sub} {
		setOp(op, Set, Set, Set)
	}
}

// Binary resolves the result kind of `lhs op rhs`. It never reports an
// error: an unrecognized combination simply resolves to Any, per spec
// §4.3's closing note, and the compiler driver emits the fully generic
// helper call in that case.
func Binary(op BinOp, lhs, rhs Value) Value {
	if m, ok := binOpTable[op]; ok {
		if row, ok := m[lhs.kind]; ok {
			if result, ok := row[rhs.kind]; ok {
				return Top(result)
			}
		}
	}
	return AnyValue()
}

// AugmentedShape returns the binary operator an augmented assignment
// (`X op= Y`) should be resolved as. Per spec §4.3 these follow the matching
// binary shape exactly (e.g. `/=` promotes to Float like `/`), so this is
// the identity mapping — it exists as a named entry point so call sites
// read as "augmented assignment", not an unexplained reuse of Binary.
func AugmentedShape(op BinOp) BinOp { return op }
