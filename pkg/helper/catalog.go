// Package helper implements the Runtime Helper Catalog (spec §4.2): a
// registry of runtime primitives the emitted code may call, keyed by a
// stable numeric ID and populated once from a static table. The table
// shape — a closed, sorted, validated map from name to metadata — is
// carried over from the teacher's syscall table (neo-go
// pkg/compiler/syscall.go), generalized from "NEO syscall API string" to
// "native host function pointer + signature".
package helper

import (
	"fmt"

	"github.com/vmjit/tracejit/pkg/backend"
)

// ID is a stable numeric identifier for one runtime helper, assigned by
// this package and never renumbered across releases (emitted native code
// embeds these IDs).
type ID int

// Helper IDs. The spec (§4.2) describes these as "non-exhaustive but
// representative"; this catalog implements the full list it enumerates.
const (
	// Object model.
	BinaryOp ID = iota
	UnaryOp
	RichCompare
	Is
	IsNot
	Contains
	NotContains
	SubscrLoad
	SubscrStore
	SubscrDelete
	AttrLoad
	AttrStore
	AttrDelete
	BuildSlice

	// Containers.
	NewList
	NewTuple
	NewDict
	NewSet
	ListAppend
	SetAdd
	SetUpdate
	MapAdd
	DictUpdate
	DictMerge
	DictBuildFromTuples
	ListExtend
	ListToTuple

	// Name resolution.
	LoadName
	StoreName
	DeleteName
	LoadGlobal
	StoreGlobal
	DeleteGlobal
	LoadFast
	StoreFast
	DeleteFast
	LoadDeref
	StoreDeref
	DeleteDeref
	LoadClassDeref
	CellGet
	CellSet
	BuildClass

	// Control.
	IterGet
	IterNext
	Raise
	Reraise
	PrepareException
	UnwindException
	CompareExceptions

	// Function construction.
	NewFunction
	SetClosure
	SetAnnotations
	SetDefaults
	SetKwDefaults

	// Sequence unpacking.
	UnpackSequence
	UnpackEx

	// Formatting.
	FormatValue
	UnicodeJoin
	ObjectStr
	ObjectRepr
	ObjectAscii
	ObjectFormat

	// Imports.
	ImportName
	ImportFrom
	ImportStar

	// Call shapes.
	CallPositional0
	CallPositional1
	CallPositional2
	CallPositional3
	CallPositional4
	CallPositionalN
	CallKwN
	CallArgsOnly
	CallArgsAndKwargs
	MethodLoad
	MethodCall0
	MethodCall1
	MethodCall2
	MethodCall3
	MethodCall4
	MethodCallN

	// Housekeeping.
	Decref
	PushFrame
	PopFrame
	PeriodicWork
	UnboundLocal

	idCount
)

// Ownership describes whether a helper parameter/return value is a
// borrowed or fully-owned value reference, per spec §4.2's ABI contract.
type Ownership byte

// Ownership kinds.
const (
	Owned Ownership = iota
	Borrowed
)

// Cost is a coarse classification used only for compiler statistics, never
// for correctness — SPEC_FULL.md's supplement to the catalog, grounded in
// the original's `jitinfo.h` method table which pairs every intrinsic with
// metadata beyond its raw signature.
type Cost byte

// Cost hints.
const (
	CostCheap Cost = iota
	CostModerate
	CostExpensive
)

// Signature describes a helper's calling convention.
type Signature struct {
	// Params lists each parameter's ownership; its length is the
	// helper's pop_count.
	Params []Ownership
	// ReturnsValue is false for void helpers (e.g. Decref).
	ReturnsValue bool
	// ReturnType is the IL-visible type of the pushed result.
	ReturnType backend.ValueType
}

// Entry is one catalog row: a helper's signature plus its bound host
// function and the cost hint used by statistics.
type Entry struct {
	ID        ID
	Name      string
	Signature Signature
	Cost      Cost
	// Fn is the bound host function. It is untyped (func(args []interface{})
	// (interface{}, error)) because the real host function pointer type is
	// supplied by the embedding VM; tracejit only needs to invoke it from
	// the reference interpreter backend and from tests.
	Fn func(args []interface{}) (interface{}, error)
}

// Catalog is the populated-once registry of helper entries.
type Catalog struct {
	entries map[ID]Entry
}

// NewCatalog builds an empty catalog. Use Register to populate it;
// NewDefaultCatalog returns the catalog populated from the static table every tracejit
// process shares (spec §4.2: "populated once at process startup").
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[ID]Entry)}
}

// Register adds or replaces entry e. It panics on an unknown ID so a typo
// in a static table is caught immediately rather than surfacing as a
// missing-helper error deep in compilation.
func (c *Catalog) Register(e Entry) {
	if e.ID < 0 || e.ID >= idCount {
		panic(fmt.Sprintf("helper: unknown ID %d for %q", e.ID, e.Name))
	}
	c.entries[e.ID] = e
}

// Lookup returns the entry for id.
func (c *Catalog) Lookup(id ID) (Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// LookupByName finds a helper by its registered name, for the
// introspection tooling (SPEC_FULL.md §4.2 supplement).
func (c *Catalog) LookupByName(name string) (Entry, bool) {
	for _, e := range c.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// PopCount returns the number of stack values id consumes.
func (c *Catalog) PopCount(id ID) (int, error) {
	e, ok := c.entries[id]
	if !ok {
		return 0, fmt.Errorf("helper: unregistered id %d", id)
	}
	return len(e.Signature.Params), nil
}
