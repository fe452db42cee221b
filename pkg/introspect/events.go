// Package introspect is the optional observability surface layered on top
// of pkg/dispatch: a websocket event stream, Prometheus counters, and a
// human-readable disassembly dump for the compiled-native buffer
// (SPEC_FULL.md DOMAIN STACK). It only ever observes dispatcher activity;
// it never drives compilation or invocation decisions.
package introspect

// EventKind enumerates the compile-lifecycle events pushed to subscribers.
type EventKind string

const (
	CompileStarted   EventKind = "CompileStarted"
	CompileSucceeded EventKind = "CompileSucceeded"
	CompileFailed    EventKind = "CompileFailed"
	Specialized      EventKind = "Specialized"
)

// Event is one compile-lifecycle notification. IL and Native carry the
// lz4-compressed payloads (see compress.go) for CompileSucceeded and
// Specialized events; both are nil for CompileStarted/CompileFailed.
type Event struct {
	Kind     EventKind `json:"kind"`
	CodeName string    `json:"code_name"`
	ArgKinds []string  `json:"arg_kinds,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	IL       []byte    `json:"il,omitempty"`
	Native   []byte    `json:"native,omitempty"`
}
