// Package backend defines the contract the downstream machine-code
// generator must satisfy (spec §1: "the downstream machine-code generator
// — treated as an opaque backend taking typed IL + signature and producing
// an executable buffer"). TraceJIT never implements real code generation
// itself; pkg/backend/interp ships a reference backend that interprets the
// IL instead, for tests and as a deployment fallback.
package backend

// ValueType is the typed-IL operand type a Signature parameter or return
// value may have.
type ValueType byte

// Value types the IL operates over.
const (
	TypeObjectRef ValueType = iota
	TypeFloat64
	TypeInt64
	TypeVoid
)

// Signature describes one method's calling convention as the backend must
// see it: a fixed evaluator_state+frame prologue (spec §6, "Jitted
// evaluator ABI") is assumed by every backend, so Signature here only
// covers the logical return type.
type Signature struct {
	Return ValueType
}

// CompiledMethod is what a Backend hands back after Generate succeeds.
type CompiledMethod struct {
	// NativeEntry is the callable entry point, opaque to tracejit itself.
	NativeEntry uintptr
	// Native is the raw generated buffer, kept for dump_native (spec §6).
	Native []byte
}

// Backend turns a serialized IL stream into native code.
type Backend interface {
	// Generate compiles il (as produced by ilasm.Emitter.Serialize) under
	// sig, using frameSize bytes for the method's stack frame. It returns
	// a non-nil error on failure; the compiler driver's caller then marks
	// the Jitted Code Record failed per spec §7.
	Generate(il []byte, sig Signature, frameSize int) (CompiledMethod, error)
	// Name identifies the backend for logging/introspection.
	Name() string
}
