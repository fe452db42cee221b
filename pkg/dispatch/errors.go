package dispatch

import "errors"

// errUnevaluableBackend is returned when a compiled SpecializationNode must
// be called but the configured backend cannot evaluate its own output (real
// native backends are invoked through NativeEntry directly by the host;
// only the interpreting reference backend round-trips through this
// dispatcher for tests).
var errUnevaluableBackend = errors.New("dispatch: backend does not support in-process evaluation")
