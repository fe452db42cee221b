package dispatch

import (
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/vmjit/tracejit/pkg/avalue"
	"github.com/vmjit/tracejit/pkg/backend"
)

// ArgKindVector is the argument-type shape a SpecializationNode was compiled
// for; two vectors match only when every element is bit-identical (spec
// §4.7, "called only when the argument type vector equals its recorded
// vector exactly").
type ArgKindVector []avalue.Kind

// Equal reports whether v and other describe the same argument shape.
func (v ArgKindVector) Equal(other ArgKindVector) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if v[i] != other[i] {
			return false
		}
	}
	return true
}

// SpecializationNode is one compiled variant of a code object, keyed by the
// exact argument kinds it was compiled against.
type SpecializationNode struct {
	ID       uuid.UUID
	ArgKinds ArgKindVector
	Method   backend.CompiledMethod
	IL       []byte

	HitCount *atomic.Int64
	// LastHitSeq is bumped on every call that reaches this node, letting an
	// eviction policy identify the least-recently-used shape without this
	// dispatcher implementing eviction itself (SPEC_FULL.md supplemented
	// feature 2).
	LastHitSeq *atomic.Int64
}

func newSpecializationNode(kinds ArgKindVector) *SpecializationNode {
	return &SpecializationNode{
		ID:         uuid.New(),
		ArgKinds:   append(ArgKindVector(nil), kinds...),
		HitCount:   atomic.NewInt64(0),
		LastHitSeq: atomic.NewInt64(0),
	}
}

// JittedCodeRecord is the per-code-object state the spec's §3 data model
// names: a hit counter, a failure latch, and the bounded list of compiled
// variants.
type JittedCodeRecord struct {
	ID uuid.UUID

	RunCount *atomic.Int64
	Failed   *atomic.Bool

	// Generic is the first (unspecialized) compilation, produced when
	// RunCount reaches the threshold with no recorded argument shapes yet.
	// Per spec §4.7 step 2, once a generic entry exists it is always
	// called directly — the specialization list is only consulted when
	// there is no generic entry.
	Generic *SpecializationNode

	// Specializations is bounded at nodeCap entries (spec: "bounded, e.g.
	// <=5").
	Specializations []*SpecializationNode
}

func newJittedCodeRecord() *JittedCodeRecord {
	return &JittedCodeRecord{
		ID:       uuid.New(),
		RunCount: atomic.NewInt64(0),
		Failed:   atomic.NewBool(false),
	}
}

func (r *JittedCodeRecord) findSpecialization(kinds ArgKindVector) *SpecializationNode {
	for _, n := range r.Specializations {
		if n.ArgKinds.Equal(kinds) {
			return n
		}
	}
	return nil
}
