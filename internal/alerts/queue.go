package alerts

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ChrisColeTech/proxydash/internal/metrics"
)

// Severity classifies an alert for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Default timing parameters. Overridable via Config.
const (
	DefaultDedupWindow       = time.Second
	DefaultStagger           = 400 * time.Millisecond
	DefaultDismissAfter      = 4 * time.Second
	DefaultSuppressionWindow = 2 * time.Second
	recentKeep               = 50
)

// Alert is one user-visible notification.
type Alert struct {
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// DisplayFunc shows an alert to the user.
type DisplayFunc func(Alert)

// DismissFunc is invoked when a displayed alert auto-dismisses.
type DismissFunc func(Alert)

// Config holds the alert timing knobs.
type Config struct {
	DedupWindow       time.Duration `toml:"dedup_window" mapstructure:"dedup_window"`
	Stagger           time.Duration `toml:"stagger" mapstructure:"stagger"`
	DismissAfter      time.Duration `toml:"dismiss_after" mapstructure:"dismiss_after"`
	SuppressionWindow time.Duration `toml:"suppression_window" mapstructure:"suppression_window"`
	Logger            *slog.Logger  `toml:"-" mapstructure:"-"`
}

func (c *Config) applyDefaults() {
	if c.DedupWindow <= 0 {
		c.DedupWindow = DefaultDedupWindow
	}
	if c.Stagger <= 0 {
		c.Stagger = DefaultStagger
	}
	if c.DismissAfter <= 0 {
		c.DismissAfter = DefaultDismissAfter
	}
	if c.SuppressionWindow <= 0 {
		c.SuppressionWindow = DefaultSuppressionWindow
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Queue converts detected deltas into user-visible alerts with deduplication,
// staggered delivery, and cascade-failure suppression.
//
// Known limitation: the suppression window is a single wall-clock interval
// keyed off one root cause. A second, unrelated root failure occurring inside
// the window is indistinguishable from a cascade effect of the first and is
// dropped with it.
type Queue struct {
	cfg Config

	mu            sync.Mutex
	lastEnqueued  map[string]time.Time
	pending       []Alert
	draining      bool
	suppressed    bool
	suppressUntil time.Time
	recent        []Alert
	closed        bool
	quit          chan struct{}

	display DisplayFunc
	dismiss DismissFunc
	now     func() time.Time
}

// NewQueue creates a queue delivering via display; dismiss may be nil.
func NewQueue(cfg Config, display DisplayFunc, dismiss DismissFunc) *Queue {
	cfg.applyDefaults()
	return &Queue{
		cfg:          cfg,
		lastEnqueued: make(map[string]time.Time),
		display:      display,
		dismiss:      dismiss,
		now:          time.Now,
		quit:         make(chan struct{}),
	}
}

// Enqueue queues an alert for display. Identical messages enqueued within the
// dedup window collapse to one.
func (q *Queue) Enqueue(message string, severity Severity) {
	q.enqueue(message, severity, false)
}

// EnqueueCascade queues an alert classified as a cascade effect: a secondary
// failure caused by an already-reported root failure. While a suppression
// window is open, cascade alerts are dropped rather than queued.
func (q *Queue) EnqueueCascade(message string, severity Severity) {
	q.enqueue(message, severity, true)
}

func (q *Queue) enqueue(message string, severity Severity, cascade bool) {
	now := q.now()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if cascade && q.suppressionActiveLocked(now) {
		q.mu.Unlock()
		q.cfg.Logger.Debug("cascade alert suppressed", "message", message)
		metrics.IncAlert("suppressed")
		return
	}
	if last, ok := q.lastEnqueued[message]; ok && now.Sub(last) < q.cfg.DedupWindow {
		q.mu.Unlock()
		q.cfg.Logger.Debug("duplicate alert dropped", "message", message)
		metrics.IncAlert("deduplicated")
		return
	}
	q.lastEnqueued[message] = now
	q.pending = append(q.pending, Alert{Message: message, Severity: severity, EnqueuedAt: now})
	start := !q.draining
	if start {
		q.draining = true
	}
	q.mu.Unlock()

	metrics.IncAlert("enqueued")
	if start {
		go q.drain()
	}
}

// OpenSuppression opens the cascade suppression window. It closes on
// CloseSuppression or after the configured duration, whichever comes first.
func (q *Queue) OpenSuppression() {
	q.mu.Lock()
	q.suppressed = true
	q.suppressUntil = q.now().Add(q.cfg.SuppressionWindow)
	q.mu.Unlock()
	q.cfg.Logger.Debug("suppression window opened", "duration", q.cfg.SuppressionWindow)
}

// CloseSuppression closes the window early, typically on reconnect.
func (q *Queue) CloseSuppression() {
	q.mu.Lock()
	q.suppressed = false
	q.mu.Unlock()
}

// SuppressionActive reports whether cascade alerts are currently dropped.
func (q *Queue) SuppressionActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.suppressionActiveLocked(q.now())
}

func (q *Queue) suppressionActiveLocked(now time.Time) bool {
	if !q.suppressed {
		return false
	}
	if now.After(q.suppressUntil) {
		q.suppressed = false
		return false
	}
	return true
}

// Recent returns the most recently displayed alerts, newest last.
func (q *Queue) Recent() []Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Alert(nil), q.recent...)
}

// Close stops delivery. Pending alerts are discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.pending = nil
	close(q.quit)
	q.mu.Unlock()
}

// drain displays pending alerts one at a time with the stagger delay between
// successive displays. Each displayed alert auto-dismisses independently.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		a := q.pending[0]
		q.pending = q.pending[1:]
		q.recent = append(q.recent, a)
		if len(q.recent) > recentKeep {
			q.recent = q.recent[len(q.recent)-recentKeep:]
		}
		display, dismiss := q.display, q.dismiss
		q.mu.Unlock()

		metrics.IncAlert("displayed")
		if display != nil {
			display(a)
		}
		if dismiss != nil {
			time.AfterFunc(q.cfg.DismissAfter, func() { dismiss(a) })
		}

		select {
		case <-q.quit:
			return
		case <-time.After(q.cfg.Stagger):
		}
	}
}
