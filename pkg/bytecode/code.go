package bytecode

// Const is a compile-time constant pulled from a code object's constant
// pool. Kind lets the abstract interpreter infer an Abstract Value Kind for
// a LOAD_CONST without needing to inspect a live runtime value.
type Const struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

// ConstKind enumerates the shapes a pooled constant may take.
type ConstKind byte

// Constant kinds.
const (
	ConstNone ConstKind = iota
	ConstInt
	ConstFloat
	ConstBool
	ConstStr
	ConstBytes
	ConstTuple
	ConstOther
)

// CodeObject is the read-only input to the compilation pipeline (spec §3).
// It is implemented by the host VM; tracejit never constructs one outside
// of tests.
type CodeObject interface {
	// Code returns the instruction stream.
	Code() []Instruction
	// Consts returns the indexable constant pool.
	Consts() []Const
	// Names returns the indexable name pool (globals/attrs/imports).
	Names() []string
	// NLocals is the number of local variable slots, including arguments.
	NLocals() int
	// NArgs is the number of positional arguments, a prefix of the locals.
	NArgs() int
	// NFreeVars is the number of free (closed-over) variables.
	NFreeVars() int
	// NCellVars is the number of cell variables captured by nested scopes.
	NCellVars() int
	// MaxStackDepth is the declared stack-depth bound used for frame sizing.
	MaxStackDepth() int
	// Filename is the source file this code object was compiled from.
	Filename() string
	// Name is the function's name, for diagnostics.
	Name() string
	// FirstLine is the first source line of the function.
	FirstLine() int
}

// Instruction is one decoded bytecode instruction together with its byte
// offset in the instruction stream (offsets are what the AI and driver key
// their per-offset state on).
type Instruction struct {
	Offset int
	Op     Opcode
	Arg    int32
}
