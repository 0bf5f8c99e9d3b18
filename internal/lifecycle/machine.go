package lifecycle

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ChrisColeTech/proxydash/internal/metrics"
)

// State is the proxy lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateStarting, StateRunning, StateStopping, StateStopped, StateError:
		return true
	}
	return false
}

// Status is the externally visible lifecycle view. Pending marks an
// optimistic transition that has not yet been confirmed upstream.
type Status struct {
	State   State  `json:"state"`
	Message string `json:"message"`
	Port    int    `json:"port,omitempty"`
	Error   string `json:"error,omitempty"`
	Pending bool   `json:"pending"`
}

// TransitionEvent is the authoritative lifecycle message from the upstream.
type TransitionEvent struct {
	State State  `json:"state"`
	Port  int    `json:"port,omitempty"`
	Error string `json:"error,omitempty"`
}

// ChangeFunc is invoked after every state change with the new status.
type ChangeFunc func(Status)

// Machine tracks the proxy start/stop lifecycle. User actions apply an
// optimistic transition immediately; authoritative events always override.
// A request-level command failure rolls back to the pre-action state.
type Machine struct {
	mu       sync.Mutex
	state    State
	prev     State // pre-action state, restored by Rollback
	port     int
	errText  string
	pending  bool
	touched  bool // an authoritative event, seed, or user action happened
	onChange ChangeFunc
	logger   *slog.Logger
}

// NewMachine returns a machine in the idle state.
func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{state: StateIdle, prev: StateIdle, logger: logger}
}

// OnChange registers the status consumer. Call before wiring event handlers.
func (m *Machine) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Status returns the current externally visible status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Pristine reports whether the machine is still untouched (no authoritative
// event, no seed, no user action). Used by the snapshot store to bootstrap
// state when attaching to an already-running proxy.
func (m *Machine) Pristine() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.touched && m.state == StateIdle
}

// Seed initializes a pristine machine from the first snapshot merge.
// It is a no-op once the machine has been touched by anything else.
func (m *Machine) Seed(running bool, port int) {
	m.mu.Lock()
	if m.touched {
		m.mu.Unlock()
		return
	}
	m.touched = true
	if running {
		m.setLocked(StateRunning, port, "")
	} else {
		m.setLocked(StateStopped, 0, "")
	}
	st, fn := m.statusLocked(), m.onChange
	m.mu.Unlock()
	m.notify(st, fn)
}

// BeginStart applies the optimistic transition for a user start command.
func (m *Machine) BeginStart() {
	m.begin(StateStarting)
}

// BeginStop applies the optimistic transition for a user stop command.
func (m *Machine) BeginStop() {
	m.begin(StateStopping)
}

func (m *Machine) begin(to State) {
	m.mu.Lock()
	m.touched = true
	m.prev = m.state
	m.pending = true
	m.setLocked(to, m.port, "")
	st, fn := m.statusLocked(), m.onChange
	m.mu.Unlock()
	m.notify(st, fn)
}

// Rollback restores the pre-action state after a request-level command
// failure, so the machine is never stuck in a transitional state.
func (m *Machine) Rollback() {
	m.mu.Lock()
	if !m.pending {
		m.mu.Unlock()
		return
	}
	m.pending = false
	m.setLocked(m.prev, m.port, "")
	st, fn := m.statusLocked(), m.onChange
	m.mu.Unlock()
	m.notify(st, fn)
}

// Apply handles an authoritative lifecycle event. Authoritative transitions
// always win over optimistic ones.
func (m *Machine) Apply(ev TransitionEvent) error {
	if !ev.State.Valid() {
		return fmt.Errorf("unknown lifecycle state %q", ev.State)
	}
	m.mu.Lock()
	m.touched = true
	m.pending = false
	m.setLocked(ev.State, ev.Port, ev.Error)
	st, fn := m.statusLocked(), m.onChange
	m.mu.Unlock()
	m.notify(st, fn)
	return nil
}

func (m *Machine) setLocked(to State, port int, errText string) {
	from := m.state
	m.state = to
	m.port = port
	m.errText = errText
	if from != to {
		metrics.RecordLifecycleTransition(string(from), string(to))
		m.logger.Debug("lifecycle transition", "from", string(from), "to", string(to), "port", port)
	}
}

func (m *Machine) statusLocked() Status {
	return Status{
		State:   m.state,
		Message: FormatMessage(m.state, m.port, m.errText),
		Port:    m.port,
		Error:   m.errText,
		Pending: m.pending,
	}
}

func (m *Machine) notify(st Status, fn ChangeFunc) {
	if fn != nil {
		fn(st)
	}
}

// FormatMessage maps a state to its short human-readable message. Pure.
func FormatMessage(s State, port int, errText string) string {
	switch s {
	case StateStarting:
		return "Starting..."
	case StateRunning:
		if port > 0 {
			return fmt.Sprintf("Running :%d", port)
		}
		return "Running"
	case StateStopping:
		return "Stopping..."
	case StateStopped:
		return "Stopped"
	case StateError:
		if errText != "" {
			return "Error: " + errText
		}
		return "Error"
	default:
		return "Idle"
	}
}
