package cron

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ChrisColeTech/proxydash/internal/alerts"
	"github.com/ChrisColeTech/proxydash/internal/snapshot"
)

// Default reminder schedule parameters.
const (
	DefaultCheckSchedule = "@every 1m"
	DefaultRemindBefore  = 10 * time.Minute
)

// Config holds the credential-expiry reminder knobs.
type Config struct {
	CheckSchedule string        `toml:"check_schedule" mapstructure:"check_schedule"`
	RemindBefore  time.Duration `toml:"remind_before" mapstructure:"remind_before"`
}

// Reminder periodically inspects the credential sub-record and enqueues one
// warning alert when the expiry instant comes within RemindBefore. Each
// distinct expiry timestamp is reminded about at most once.
type Reminder struct {
	cfg      Config
	store    *snapshot.Store
	queue    *alerts.Queue
	logger   *slog.Logger
	sched    *cron.Cron
	mu       sync.Mutex
	reminded int64 // ExpiresAtMS already alerted on
	started  bool
}

// NewReminder wires a reminder over the snapshot store and alert queue.
func NewReminder(cfg Config, store *snapshot.Store, queue *alerts.Queue, logger *slog.Logger) *Reminder {
	if cfg.CheckSchedule == "" {
		cfg.CheckSchedule = DefaultCheckSchedule
	}
	if cfg.RemindBefore <= 0 {
		cfg.RemindBefore = DefaultRemindBefore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reminder{cfg: cfg, store: store, queue: queue, logger: logger, sched: cron.New()}
}

// Start schedules the periodic check. Calling Start twice is an error.
func (r *Reminder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("reminder already started")
	}
	if _, err := r.sched.AddFunc(r.cfg.CheckSchedule, r.Check); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", r.cfg.CheckSchedule, err)
	}
	r.sched.Start()
	r.started = true
	return nil
}

// Stop cancels the schedule. In-flight checks run to completion.
func (r *Reminder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.sched.Stop()
	r.started = false
}

// Check runs one inspection. Exported so tests and the engine can invoke it
// outside the schedule.
func (r *Reminder) Check() {
	cred := r.store.Snapshot().Credentials
	if !cred.Valid || cred.ExpiresAtMS == 0 {
		return
	}
	remaining := time.Until(time.UnixMilli(cred.ExpiresAtMS))
	if remaining <= 0 || remaining > r.cfg.RemindBefore {
		return
	}

	r.mu.Lock()
	if r.reminded == cred.ExpiresAtMS {
		r.mu.Unlock()
		return
	}
	r.reminded = cred.ExpiresAtMS
	r.mu.Unlock()

	msg := fmt.Sprintf("Credentials expire in %s", remaining.Round(time.Minute))
	r.logger.Info("credential expiry approaching", "remaining", remaining)
	r.queue.Enqueue(msg, alerts.SeverityWarning)
}
