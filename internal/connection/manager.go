package connection

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ChrisColeTech/proxydash/internal/metrics"
)

// Status is the transport connection state.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusReconnecting Status = "reconnecting"
)

// Default reconnection policy. Overridable via Config.
const (
	DefaultMinBackoff  = 500 * time.Millisecond
	DefaultMaxBackoff  = 10 * time.Second
	DefaultMaxAttempts = 10
)

// MessageFunc receives every inbound frame: logical event name plus raw payload.
type MessageFunc func(event string, data json.RawMessage)

// StatusFunc receives connection status changes.
type StatusFunc func(Status)

// Config holds transport parameters. These are fixed configuration, not
// negotiated at runtime.
type Config struct {
	URL         string        `toml:"ws_url" mapstructure:"ws_url"`
	MinBackoff  time.Duration `toml:"min_backoff" mapstructure:"min_backoff"`
	MaxBackoff  time.Duration `toml:"max_backoff" mapstructure:"max_backoff"`
	MaxAttempts int           `toml:"max_attempts" mapstructure:"max_attempts"`
	Logger      *slog.Logger  `toml:"-" mapstructure:"-"`
}

func (c *Config) applyDefaults() {
	if c.MinBackoff <= 0 {
		c.MinBackoff = DefaultMinBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// frame is the wire format of one inbound message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Manager owns the websocket transport, the reconnection policy, and the
// connection-status signal. Transport failures never propagate to callers;
// they only drive the status enum.
type Manager struct {
	cfg    Config
	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	status     Status
	attempts   int
	retryTimer *time.Timer
	closed     bool // Disconnect was called; no automatic retries
	onMessage  MessageFunc
	onStatus   StatusFunc
}

// NewManager creates a disconnected manager.
func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		status: StatusDisconnected,
	}
}

// Connect establishes the persistent connection and registers the message and
// status callbacks. Calling it while already connected is a no-op. A failed
// initial dial is not returned as an error; it enters the reconnect path and
// is surfaced through the status callback.
func (m *Manager) Connect(onMessage MessageFunc, onStatus StatusFunc) error {
	m.mu.Lock()
	if m.cfg.URL == "" {
		m.mu.Unlock()
		return errors.New("connection: endpoint URL not configured")
	}
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	m.closed = false
	m.attempts = 0
	if onMessage != nil {
		m.onMessage = onMessage
	}
	if onStatus != nil {
		m.onStatus = onStatus
	}
	m.mu.Unlock()

	m.dial()
	return nil
}

// Disconnect tears down the transport and cancels any pending reconnection
// timer. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closed = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	m.conn = nil
	changed := m.setStatusLocked(StatusDisconnected)
	fn := m.onStatus
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if changed && fn != nil {
		fn(StatusDisconnected)
	}
}

// Connected reports whether the transport is currently established.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusConnected
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Attempts returns the reconnection attempt counter. It resets to zero on
// the first successful connect after any failure.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *Manager) dial() {
	m.mu.Lock()
	if m.closed || m.conn != nil {
		m.mu.Unlock()
		return
	}
	url := m.cfg.URL
	m.mu.Unlock()

	conn, resp, err := m.dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		m.cfg.Logger.Warn("dial failed", "url", url, "error", err)
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.attempts = 0
	changed := m.setStatusLocked(StatusConnected)
	fn := m.onStatus
	m.mu.Unlock()

	m.cfg.Logger.Info("connected", "url", url)
	if changed && fn != nil {
		fn(StatusConnected)
	}
	go m.readLoop(conn)
}

// readLoop processes frames strictly in arrival order until the transport fails.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			current := m.conn == conn
			if current {
				m.conn = nil
			}
			closed := m.closed
			m.mu.Unlock()
			if current && !closed {
				m.cfg.Logger.Warn("connection lost", "error", err)
				m.scheduleReconnect()
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			m.cfg.Logger.Warn("unparseable frame dropped", "error", err)
			metrics.IncEventDropped("unparseable")
			continue
		}
		m.mu.Lock()
		fn := m.onMessage
		m.mu.Unlock()
		if fn != nil {
			fn(f.Event, f.Data)
		}
	}
}

// scheduleReconnect arms the backoff timer for the next attempt, or gives up
// once the attempt ceiling is exceeded.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.cfg.MaxAttempts {
		changed := m.setStatusLocked(StatusDisconnected)
		fn := m.onStatus
		m.mu.Unlock()
		m.cfg.Logger.Error("reconnect attempts exhausted", "attempts", m.cfg.MaxAttempts)
		if changed && fn != nil {
			fn(StatusDisconnected)
		}
		return
	}
	m.attempts++
	attempt := m.attempts
	metrics.IncReconnectAttempt()
	delay := BackoffDelay(attempt, m.cfg.MinBackoff, m.cfg.MaxBackoff)
	changed := m.setStatusLocked(StatusReconnecting)
	fn := m.onStatus
	m.retryTimer = time.AfterFunc(delay, m.dial)
	m.mu.Unlock()

	m.cfg.Logger.Info("reconnecting", "attempt", attempt, "delay", delay)
	if changed && fn != nil {
		fn(StatusReconnecting)
	}
}

func (m *Manager) setStatusLocked(s Status) bool {
	if m.status == s {
		return false
	}
	metrics.SetConnectionState(string(m.status), false)
	metrics.SetConnectionState(string(s), true)
	m.status = s
	return true
}

// BackoffDelay computes the delay before the given attempt (1-based):
// min * 2^(attempt-1), capped at max.
func BackoffDelay(attempt int, min, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := min
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
