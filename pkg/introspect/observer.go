package introspect

// HubObserver adapts a Hub to dispatch.CompileObserver without pkg/dispatch
// needing to import this package (SPEC_FULL.md: the introspection layer
// observes, it is never a dependency of the layer it observes).
type HubObserver struct {
	Hub *Hub
}

func (o HubObserver) CompileStarted(codeName string) {
	o.Hub.Publish(Event{Kind: CompileStarted, CodeName: codeName})
}

func (o HubObserver) CompileSucceeded(codeName string, il, native []byte, specialized bool) {
	kind := CompileSucceeded
	if specialized {
		kind = Specialized
	}
	o.Hub.Publish(Event{Kind: kind, CodeName: codeName, IL: il, Native: native})
}

func (o HubObserver) CompileFailed(codeName string, reason string) {
	o.Hub.Publish(Event{Kind: CompileFailed, CodeName: codeName, Reason: reason})
}
