package connection

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBackoffDelay(t *testing.T) {
	min := 500 * time.Millisecond
	max := 10 * time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 8 * time.Second},
		{6, 10 * time.Second}, // capped
		{10, 10 * time.Second},
		{0, 500 * time.Millisecond}, // clamped to first attempt
	}
	for _, tc := range tests {
		if got := BackoffDelay(tc.attempt, min, max); got != tc.want {
			t.Fatalf("attempt %d: got %v want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffDelayMinEqualsMax(t *testing.T) {
	if got := BackoffDelay(5, time.Second, time.Second); got != time.Second {
		t.Fatalf("got %v want 1s", got)
	}
}

// wsServer upgrades a single connection and writes the given raw messages.
func wsServer(t *testing.T, msgs []string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// keep the connection open so the client does not enter reconnect
		time.Sleep(2 * time.Second)
		_ = conn.Close()
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestConnectDeliversFramesInOrder(t *testing.T) {
	srv := wsServer(t, []string{
		`{"event":"server-status","data":{"a":1}}`,
		`not json`,
		`{"no_event_key":true}`,
		`{"event":"credentials-update","data":{"valid":true}}`,
	})
	defer srv.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	m := NewManager(Config{URL: wsURL(srv)})
	err := m.Connect(func(event string, data json.RawMessage) {
		mu.Lock()
		got = append(got, event)
		n := len(got)
		mu.Unlock()
		if n == 2 {
			close(done)
		}
	}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer m.Disconnect()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for frames")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "server-status" || got[1] != "credentials-update" {
		t.Fatalf("unexpected events: %v", got)
	}
	if !m.Connected() {
		t.Fatalf("expected connected status")
	}
	if m.Attempts() != 0 {
		t.Fatalf("attempts should reset on success, got %d", m.Attempts())
	}
}

func TestConnectRequiresURL(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Connect(nil, nil); err == nil {
		t.Fatalf("expected error for empty URL")
	}
}

func TestFailedDialEntersReconnecting(t *testing.T) {
	statusCh := make(chan Status, 8)
	m := NewManager(Config{
		URL:         "ws://127.0.0.1:1", // nothing listens here
		MinBackoff:  10 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
		MaxAttempts: 2,
	})
	if err := m.Connect(nil, func(s Status) { statusCh <- s }); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer m.Disconnect()

	deadline := time.After(3 * time.Second)
	sawReconnecting := false
	for {
		select {
		case s := <-statusCh:
			if s == StatusReconnecting {
				sawReconnecting = true
			}
			if sawReconnecting && s == StatusDisconnected {
				if m.Attempts() != 2 {
					t.Fatalf("attempts = %d, want ceiling 2", m.Attempts())
				}
				return
			}
		case <-deadline:
			t.Fatalf("never reached the attempt ceiling (reconnecting seen: %v)", sawReconnecting)
		}
	}
}

func TestDisconnectCancelsRetry(t *testing.T) {
	m := NewManager(Config{
		URL:         "ws://127.0.0.1:1",
		MinBackoff:  time.Hour, // retry timer must be cancelled, not fired
		MaxAttempts: 10,
	})
	if err := m.Connect(nil, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	time.Sleep(100 * time.Millisecond) // let the failed dial arm the timer
	m.Disconnect()
	if m.Status() != StatusDisconnected {
		t.Fatalf("status = %s, want disconnected", m.Status())
	}
	m.Disconnect() // repeated call is safe
}

func TestReconnectAfterServerDrop(t *testing.T) {
	up := websocket.Upgrader{}
	var mu sync.Mutex
	conns := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns++
		first := conns == 1
		mu.Unlock()
		if first {
			_ = conn.Close() // drop immediately to force a reconnect
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"server-status","data":{}}`))
		time.Sleep(2 * time.Second)
		_ = conn.Close()
	}))
	defer srv.Close()

	got := make(chan string, 1)
	m := NewManager(Config{
		URL:         wsURL(srv),
		MinBackoff:  10 * time.Millisecond,
		MaxBackoff:  50 * time.Millisecond,
		MaxAttempts: 5,
	})
	err := m.Connect(func(event string, _ json.RawMessage) {
		select {
		case got <- event:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer m.Disconnect()

	select {
	case ev := <-got:
		if ev != "server-status" {
			t.Fatalf("unexpected event %q", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no frame received after reconnect")
	}
	if m.Attempts() != 0 {
		t.Fatalf("attempts should reset after successful reconnect, got %d", m.Attempts())
	}
}
