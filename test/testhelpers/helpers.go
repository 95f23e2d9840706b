// Package testhelpers provides common utilities and helper functions for testing the roomchat server.
//
// It starts a fully wired server behind httptest, dials WebSocket clients
// with an allowed origin, and speaks the {"event","data"} envelope so
// integration tests can focus on room behaviour.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/server"
)

// TestOrigin is the Origin header sent by ConnectWebSocket. The default
// configuration allows it.
const TestOrigin = "http://localhost:8080"

// Event is a decoded server frame.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, v), "decode %s payload", e.Event)
}

// StartServer builds a server from cfg, runs its hub, and serves it through
// httptest. Both are torn down when the test ends.
func StartServer(t *testing.T, cfg *server.Config, opts ...server.Option) (*server.Server, *httptest.Server) {
	t.Helper()

	srv := server.New(cfg, opts...)
	srv.StartHub()
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		_ = srv.Hub().Shutdown(2 * time.Second)
	})
	return srv, ts
}

// WebSocketURL converts an httptest server URL to its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url with the given Origin header.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials url and closes the connection when the test ends.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one envelope.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": event, "data": data}))
}

// ReadEvent reads the next envelope, failing the test after timeout.
func ReadEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// ExpectEvent reads the next envelope and asserts its name.
func ExpectEvent(t *testing.T, conn *websocket.Conn, name string) Event {
	t.Helper()
	ev := ReadEvent(t, conn, 2*time.Second)
	require.Equal(t, name, ev.Event, "payload: %s", string(ev.Data))
	return ev
}

// ExpectNoEvent asserts nothing arrives within wait. The connection is
// unusable for reads afterwards because gorilla treats a read timeout as
// fatal.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", string(data))
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// Eventually polls cond until it holds or the deadline passes.
func Eventually(t *testing.T, cond func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msgAndArgs...)
}
