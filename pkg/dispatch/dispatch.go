// Package dispatch implements the Specialization Dispatcher (spec §4.7): it
// owns the decision of whether and when to compile a code object, caches
// compiled variants by argument shape, and routes each invocation to the
// interpreter, the generic entry, or a specialized entry.
//
// The per-code-object hit-counter/threshold/bounded-list design is
// grounded on the original's `pyjion/pyjit.cpp` dispatch table, expressed
// here with `go.uber.org/atomic` counters the way the teacher guards its
// own service state flags (pkg/consensus/watchdog.go's `*atomic.Bool`
// `started` flag).
package dispatch

import (
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/vmjit/tracejit/pkg/avalue"
	"github.com/vmjit/tracejit/pkg/backend"
	"github.com/vmjit/tracejit/pkg/bytecode"
	"github.com/vmjit/tracejit/pkg/driver"
	"github.com/vmjit/tracejit/pkg/helper"
)

// defaultNodeCap is the specialization-list bound the spec calls "bounded,
// e.g. <=5".
const defaultNodeCap = 5

// InterpretFunc is the host-supplied fallback for code objects the
// dispatcher has not (yet, or ever) compiled. The dispatcher never
// implements bytecode interpretation itself (spec §1 Non-goals; the
// interpreter is the host VM's).
type InterpretFunc func(code bytecode.CodeObject, args []interface{}) (interface{}, error)

// Stats is the process-wide aggregate counters returned by stats() (spec
// §6 Control API), supplemented per SPEC_FULL.md from
// `original_source/pyjion/pyjit.cpp`'s global profiling counters.
type Stats struct {
	TotalCompiled   int64
	TotalFailed     int64
	TotalSpecialized int64
}

// Dispatcher is the process-wide (or test-scoped) dispatch table.
type Dispatcher struct {
	catalog *helper.Catalog
	backend backend.Backend
	log     *zap.Logger
	interp  InterpretFunc

	threshold *atomic.Int64
	nodeCap   int
	enabled   *atomic.Bool

	// records is keyed by the CodeObject's identity. Real hosts implement
	// CodeObject over a pointer to a long-lived, heap-allocated structure
	// (matching the host's own code-extra slot, spec §6), which is always
	// comparable; a CodeObject implementation backed by a value type with
	// slice/map fields would panic here on first use as a map key.
	records map[bytecode.CodeObject]*JittedCodeRecord
	// extras simulates the host's code-extra attachment slot (SPEC_FULL.md
	// DOMAIN STACK: golang-lru) so a process with many live code objects
	// doesn't grow this table unboundedly; eviction here only drops the
	// lookup shortcut, never a record's compiled state, since records are
	// also held directly by records for as long as their code object is
	// referenced.
	extras *lru.Cache

	totalCompiled    *atomic.Int64
	totalFailed      *atomic.Int64
	totalSpecialized *atomic.Int64

	observer CompileObserver
}

// CompileObserver receives a notification for every compile attempt. It is
// the only way pkg/introspect learns about dispatcher activity; the
// dispatcher never imports pkg/introspect itself, keeping the
// observability layer strictly downstream (SPEC_FULL.md: "observes, never
// drives").
type CompileObserver interface {
	CompileStarted(codeName string)
	CompileSucceeded(codeName string, il, native []byte, specialized bool)
	CompileFailed(codeName string, reason string)
}

// Config bundles Dispatcher construction parameters.
type Config struct {
	Catalog   *helper.Catalog
	Backend   backend.Backend
	Log       *zap.Logger
	Interpret InterpretFunc
	Threshold int64
	NodeCap   int
	ExtrasCap int
	// Observer, if set, is notified of every compile attempt.
	Observer CompileObserver
}

// New builds a Dispatcher. Threshold/NodeCap/ExtrasCap default to
// reasonable values when zero.
func New(cfg Config) *Dispatcher {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1000
	}
	if cfg.NodeCap <= 0 {
		cfg.NodeCap = defaultNodeCap
	}
	if cfg.ExtrasCap <= 0 {
		cfg.ExtrasCap = 4096
	}
	extras, err := lru.New(cfg.ExtrasCap)
	if err != nil {
		// Only returns an error for a non-positive size, which the default
		// above rules out.
		panic(err)
	}
	return &Dispatcher{
		catalog:          cfg.Catalog,
		backend:          cfg.Backend,
		log:              cfg.Log,
		interp:           cfg.Interpret,
		threshold:        atomic.NewInt64(cfg.Threshold),
		nodeCap:          cfg.NodeCap,
		enabled:          atomic.NewBool(true),
		records:          make(map[bytecode.CodeObject]*JittedCodeRecord),
		extras:           extras,
		totalCompiled:    atomic.NewInt64(0),
		totalFailed:      atomic.NewInt64(0),
		totalSpecialized: atomic.NewInt64(0),
		observer:         cfg.Observer,
	}
}

// Enable installs the dispatcher (spec §6 Control API); returns true if
// this call changed the state.
func (d *Dispatcher) Enable() bool { return d.enabled.CAS(false, true) }

// Disable uninstalls the dispatcher; returns true if this call changed the
// state.
func (d *Dispatcher) Disable() bool { return d.enabled.CAS(true, false) }

// Status reports whether the dispatcher is currently installed.
func (d *Dispatcher) Status() bool { return d.enabled.Load() }

// SetThreshold/GetThreshold implement the process-wide invocation threshold
// knob (spec §6).
func (d *Dispatcher) SetThreshold(n int64) { d.threshold.Store(n) }
func (d *Dispatcher) GetThreshold() int64  { return d.threshold.Load() }

// Stats returns the process-level aggregate counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		TotalCompiled:    d.totalCompiled.Load(),
		TotalFailed:      d.totalFailed.Load(),
		TotalSpecialized: d.totalSpecialized.Load(),
	}
}

// RecordInfo is what info() reports for one code object (spec §6: "failed,
// compiled, run_count").
type RecordInfo struct {
	Failed   bool
	Compiled bool
	RunCount int64
}

// Info reports the per-code-object state, or the zero value if the code
// object has never been seen.
func (d *Dispatcher) Info(code bytecode.CodeObject) RecordInfo {
	rec, ok := d.records[code]
	if !ok {
		return RecordInfo{}
	}
	return RecordInfo{
		Failed:   rec.Failed.Load(),
		Compiled: rec.Generic != nil || len(rec.Specializations) > 0,
		RunCount: rec.RunCount.Load(),
	}
}

// DumpIL returns the IL bytes of the compiled form of code, or ok=false if
// nothing has compiled yet (spec §6 dump_il). When multiple specializations
// exist, the most recently compiled one is returned.
func (d *Dispatcher) DumpIL(code bytecode.CodeObject) (il []byte, ok bool) {
	node := d.latestCompiled(code)
	if node == nil {
		return nil, false
	}
	return node.IL, true
}

// DumpNative returns the native buffer of the compiled form of code (spec
// §6 dump_native).
func (d *Dispatcher) DumpNative(code bytecode.CodeObject) (native []byte, ok bool) {
	node := d.latestCompiled(code)
	if node == nil {
		return nil, false
	}
	return node.Method.Native, true
}

func (d *Dispatcher) latestCompiled(code bytecode.CodeObject) *SpecializationNode {
	rec, ok := d.records[code]
	if !ok {
		return nil
	}
	if rec.Generic != nil {
		return rec.Generic
	}
	for i := len(rec.Specializations) - 1; i >= 0; i-- {
		if rec.Specializations[i].Method.Native != nil {
			return rec.Specializations[i]
		}
	}
	return nil
}

func (d *Dispatcher) recordFor(code bytecode.CodeObject) *JittedCodeRecord {
	if rec, ok := d.records[code]; ok {
		return rec
	}
	rec := newJittedCodeRecord()
	d.records[code] = rec
	d.extras.Add(rec.ID, code)
	return rec
}

// Invoke implements the full routing algorithm of spec §4.7.
func (d *Dispatcher) Invoke(code bytecode.CodeObject, args []interface{}, argKinds ArgKindVector) (interface{}, error) {
	if !d.enabled.Load() {
		return d.interp(code, args)
	}
	rec := d.recordFor(code)
	if rec.Failed.Load() {
		return d.interp(code, args)
	}

	if rec.Generic != nil {
		return d.call(rec.Generic, args)
	}

	if len(rec.Specializations) > 0 {
		if node := rec.findSpecialization(argKinds); node != nil {
			node.LastHitSeq.Inc()
			if node.Method.Native == nil {
				hits := node.HitCount.Inc()
				if hits < d.threshold.Load() {
					return d.interp(code, args)
				}
				if err := d.compileInto(node, rec, code, argKinds); err != nil {
					return d.interp(code, args)
				}
			}
			return d.call(node, args)
		}
		if len(rec.Specializations) < d.nodeCap {
			node := newSpecializationNode(argKinds)
			rec.Specializations = append(rec.Specializations, node)
			return d.interp(code, args)
		}
		// At capacity with no matching shape: fall back to the interpreter
		// rather than evicting (spec: "bounded" list, eviction policy is
		// future work per SPEC_FULL.md supplemented feature 2).
		return d.interp(code, args)
	}

	runs := rec.RunCount.Inc()
	if runs < d.threshold.Load() {
		return d.interp(code, args)
	}
	anyKinds := make(ArgKindVector, len(argKinds))
	for i := range anyKinds {
		anyKinds[i] = avalue.Any
	}
	generic := newSpecializationNode(anyKinds)
	if err := d.compileInto(generic, rec, code, anyKinds); err != nil {
		return d.interp(code, args)
	}
	rec.Generic = generic
	return d.call(generic, args)
}

func (d *Dispatcher) compileInto(node *SpecializationNode, rec *JittedCodeRecord, code bytecode.CodeObject, kinds ArgKindVector) error {
	if d.observer != nil {
		d.observer.CompileStarted(code.Name())
	}
	drv := driver.New(d.catalog, d.backend, d.log)
	result, err := drv.Compile(code, []avalue.Kind(kinds))
	if err != nil {
		rec.Failed.Store(true)
		d.totalFailed.Inc()
		d.log.Warn("compilation failed", zap.String("code", code.Name()), zap.Error(err))
		if d.observer != nil {
			d.observer.CompileFailed(code.Name(), err.Error())
		}
		return err
	}
	node.Method = result.Method
	node.IL = result.IL
	d.totalCompiled.Inc()
	// The generic node is only installed as rec.Generic after this returns,
	// so membership in the specialization list is what marks a variant.
	specialized := false
	for _, n := range rec.Specializations {
		if n == node {
			specialized = true
			break
		}
	}
	if specialized {
		d.totalSpecialized.Inc()
	}
	if d.observer != nil {
		d.observer.CompileSucceeded(code.Name(), node.IL, node.Method.Native, specialized)
	}
	return nil
}

func (d *Dispatcher) call(node *SpecializationNode, args []interface{}) (interface{}, error) {
	ip, ok := d.backend.(interface {
		Eval(native []byte, catalog *helper.Catalog, args []interface{}) (interface{}, error)
	})
	if !ok {
		return nil, errUnevaluableBackend
	}
	// The compiled entry takes (evaluator_state, frame); there is no evaluator
	// state here, and the call's arguments are passed as the frame.
	return ip.Eval(node.Method.Native, d.catalog, []interface{}{nil, args})
}
