package introspect_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/vmjit/tracejit/pkg/introspect"
)

func TestDumpNativeRendersOffsetHexAscii(t *testing.T) {
	out := introspect.DumpNative([]byte("hello, tracejit!"))
	require.Contains(t, out, "00000000")
	require.Contains(t, out, "68 65 6c 6c 6f")
	require.Contains(t, out, "|hello")
}

func TestDumpNativeEmptyIsEmpty(t *testing.T) {
	require.Equal(t, "", introspect.DumpNative(nil))
}

func TestHubPublishesToWebsocketSubscriber(t *testing.T) {
	hub := introspect.NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	dialer := websocket.Dialer{HandshakeTimeout: time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server goroutine a moment to register the subscriber before
	// publishing, matching the teacher's subscription tests' pattern of a
	// short settle delay around concurrent websocket setup.
	time.Sleep(20 * time.Millisecond)

	hub.Publish(introspect.Event{Kind: introspect.CompileStarted, CodeName: "f"})

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got introspect.Event
	require.NoError(t, json.Unmarshal(msg, &got))
	require.Equal(t, introspect.CompileStarted, got.Kind)
	require.Equal(t, "f", got.CodeName)
}

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	require.NotPanics(t, func() {
		introspect.RegisterMetrics()
		introspect.RegisterMetrics()
		introspect.UpdateMetrics(3, 1, 2)
	})
}
