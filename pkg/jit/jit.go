// Package jit is the top-level façade implementing spec §6's Control API:
// enable/disable, status, per-code-object info, process stats, IL/native
// dumps, and the threshold knob. It wires pkg/dispatch, pkg/jitconfig, and
// a pkg/backend together the way the teacher's pkg/core.Blockchain wires
// its subsystems behind one embedder-facing type.
package jit

import (
	"go.uber.org/zap"

	"github.com/vmjit/tracejit/pkg/backend"
	"github.com/vmjit/tracejit/pkg/bytecode"
	"github.com/vmjit/tracejit/pkg/dispatch"
	"github.com/vmjit/tracejit/pkg/helper"
	"github.com/vmjit/tracejit/pkg/jitconfig"
)

// Facade is the process-level handle an embedding host holds: one per
// process, installed via Enable and torn down via Disable (spec §6 Host
// ABI, "a function-level hook installer (enable/disable)").
type Facade struct {
	d   *dispatch.Dispatcher
	log *zap.Logger
}

// Options bundles Facade construction parameters.
type Options struct {
	Config    jitconfig.Config
	Catalog   *helper.Catalog
	Backend   backend.Backend
	Interpret dispatch.InterpretFunc
	Log       *zap.Logger
	// Observer, if set, is notified of every compile attempt; pkg/introspect
	// provides a Hub-backed implementation.
	Observer dispatch.CompileObserver
}

// New builds a Facade from Options, installing the dispatcher immediately
// when Config.EnabledByDefault is set.
func New(opts Options) *Facade {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	d := dispatch.New(dispatch.Config{
		Catalog:   opts.Catalog,
		Backend:   opts.Backend,
		Log:       opts.Log,
		Interpret: opts.Interpret,
		Threshold: opts.Config.Threshold,
		NodeCap:   opts.Config.NodeCap,
		Observer:  opts.Observer,
	})
	if !opts.Config.EnabledByDefault {
		d.Disable()
	}
	return &Facade{d: d, log: opts.Log}
}

// Enable/Disable/Status implement the Control API's installer surface.
func (f *Facade) Enable() bool  { return f.d.Enable() }
func (f *Facade) Disable() bool { return f.d.Disable() }
func (f *Facade) Status() bool  { return f.d.Status() }

// Info returns the info() map keys the spec names: failed, compiled,
// run_count.
func (f *Facade) Info(code bytecode.CodeObject) map[string]interface{} {
	ri := f.d.Info(code)
	return map[string]interface{}{
		"failed":    ri.Failed,
		"compiled":  ri.Compiled,
		"run_count": ri.RunCount,
	}
}

// Stats returns the stats() map keys the spec names: failed, compiled
// (process-level counters), supplemented with the specialized-variant
// count per SPEC_FULL.md.
func (f *Facade) Stats() map[string]interface{} {
	s := f.d.Stats()
	return map[string]interface{}{
		"failed":     s.TotalFailed,
		"compiled":   s.TotalCompiled,
		"specialized": s.TotalSpecialized,
	}
}

// DumpIL/DumpNative implement the Control API's debug dumps; both return
// nil when code has not been compiled.
func (f *Facade) DumpIL(code bytecode.CodeObject) []byte {
	il, ok := f.d.DumpIL(code)
	if !ok {
		return nil
	}
	return il
}

func (f *Facade) DumpNative(code bytecode.CodeObject) []byte {
	native, ok := f.d.DumpNative(code)
	if !ok {
		return nil
	}
	return native
}

// SetThreshold/GetThreshold implement the process-wide invocation
// threshold knob.
func (f *Facade) SetThreshold(n int64) { f.d.SetThreshold(n) }
func (f *Facade) GetThreshold() int64  { return f.d.GetThreshold() }

// Invoke routes one call through the dispatcher (spec §6 Jitted evaluator
// ABI entry point, from the embedder's perspective).
func (f *Facade) Invoke(code bytecode.CodeObject, args []interface{}, argKinds dispatch.ArgKindVector) (interface{}, error) {
	return f.d.Invoke(code, args, argKinds)
}
