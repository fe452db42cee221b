package introspect

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// subscriberQueueDepth bounds how far a slow subscriber may lag before it
// gets dropped, mirroring the teacher's per-client buffered notification
// channel in its RPC subscription manager.
const subscriberQueueDepth = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans compile-lifecycle events out to any number of websocket
// subscribers. It never drives dispatcher behavior; Publish is called by
// the owner of a *dispatch.Dispatcher after each compile attempt.
type Hub struct {
	log *zap.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub builds an empty Hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{log: log, subs: make(map[chan Event]struct{})}
}

// Publish compresses an event's IL/Native payloads and fans it out to every
// connected subscriber, dropping any subscriber whose queue is full rather
// than blocking the publisher.
func (h *Hub) Publish(ev Event) {
	ev.IL = compressPayload(ev.IL)
	ev.Native = compressPayload(ev.Native)

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Warn("introspect: dropping slow subscriber")
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, subscriberQueueDepth)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// ServeHTTP upgrades the connection and streams JSON-encoded Events until
// the client disconnects or the hub drops it for lagging.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("introspect: websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	for ev := range ch {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
