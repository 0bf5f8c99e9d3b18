package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ChrisColeTech/proxydash/internal/alerts"
	"github.com/ChrisColeTech/proxydash/internal/config"
	"github.com/ChrisColeTech/proxydash/internal/connection"
	"github.com/ChrisColeTech/proxydash/internal/cron"
	"github.com/ChrisColeTech/proxydash/internal/events"
	"github.com/ChrisColeTech/proxydash/internal/history"
	"github.com/ChrisColeTech/proxydash/internal/history/factory"
	"github.com/ChrisColeTech/proxydash/internal/lifecycle"
	"github.com/ChrisColeTech/proxydash/internal/metrics"
	"github.com/ChrisColeTech/proxydash/internal/snapshot"
	"github.com/ChrisColeTech/proxydash/internal/upstream"
)

// Change tells a subscriber which part of the state moved. Subscribers read
// the new value through the engine's accessors.
type Change string

const (
	ChangeSnapshot   Change = "snapshot"
	ChangeLifecycle  Change = "lifecycle"
	ChangeConnection Change = "connection"
	ChangeAlert      Change = "alert"
)

// SubscriberFunc is the reactive read contract for UI layers.
type SubscriberFunc func(Change)

// ConnectionInfo is the connection-status read exposed to subscribers.
type ConnectionInfo struct {
	Status   connection.Status `json:"status"`
	Attempts int               `json:"attempts"`
}

// Engine wires the connection manager, event router, snapshot store,
// lifecycle machine, and alert queue into one process-wide unit. It is
// instantiated once at application start and torn down at exit.
type Engine struct {
	logger *slog.Logger
	cfg    config.FileConfig

	conn    *connection.Manager
	router  *events.Router
	store   *snapshot.Store
	machine *lifecycle.Machine
	queue   *alerts.Queue
	cmd     *upstream.Client

	sink      history.Sink
	collector *metrics.ProcessCollector
	reminder  *cron.Reminder

	mu      sync.Mutex
	subs    map[int]SubscriberFunc
	nextSub int
	started bool
}

// New constructs and wires an engine from config. Nothing is connected or
// scheduled until Run is called.
func New(cfg config.FileConfig, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:  logger,
		cfg:     cfg,
		router:  events.NewRouter(logger),
		store:   snapshot.NewStore(logger),
		machine: lifecycle.NewMachine(logger),
		cmd:     upstream.New(cfg.Upstream, logger),
		subs:    make(map[int]SubscriberFunc),
	}

	connCfg := cfg.Connection
	connCfg.Logger = logger
	e.conn = connection.NewManager(connCfg)

	alertCfg := cfg.Alerts
	alertCfg.Logger = logger
	e.queue = alerts.NewQueue(alertCfg, e.onAlertDisplayed, nil)

	if cfg.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("history sink: %w", err)
		}
		e.sink = sink
	}

	e.store.SetSeeder(e.machine)
	e.store.OnDelta(e.onDelta)
	e.store.OnChange(func(snapshot.Snapshot) { e.notify(ChangeSnapshot) })
	e.machine.OnChange(e.onLifecycleChange)
	e.registerHandlers()

	e.reminder = cron.NewReminder(cfg.Reminder, e.store, e.queue, logger)
	if cfg.Metrics.Enabled {
		e.collector = metrics.NewProcessCollector(cfg.Metrics.ProcessInterval, e.serverPIDs, logger)
	}
	return e, nil
}

// Run registers metrics, starts the reminder and process sampling, and
// opens the upstream connection. Idempotent.
func (e *Engine) Run() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	if e.cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		if e.collector != nil {
			if err := e.collector.Start(prometheus.DefaultRegisterer); err != nil {
				return fmt.Errorf("start process collector: %w", err)
			}
		}
	}
	if err := e.reminder.Start(); err != nil {
		return err
	}
	return e.conn.Connect(e.router.Dispatch, e.onConnectionStatus)
}

// Close tears everything down: transport, timers, schedules, sinks.
func (e *Engine) Close() {
	e.conn.Disconnect()
	e.reminder.Stop()
	if e.collector != nil {
		e.collector.Stop()
	}
	e.queue.Close()
	if c, ok := e.sink.(io.Closer); ok && c != nil {
		_ = c.Close()
	}
}

// Subscribe registers a state-change consumer and returns its release func.
// Every consumer teardown path must call the release func.
func (e *Engine) Subscribe(fn SubscriberFunc) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Snapshot returns the current merged upstream state.
func (e *Engine) Snapshot() snapshot.Snapshot { return e.store.Snapshot() }

// Lifecycle returns the current proxy lifecycle status.
func (e *Engine) Lifecycle() lifecycle.Status { return e.machine.Status() }

// Connection returns the current connection status and attempt counter.
func (e *Engine) Connection() ConnectionInfo {
	return ConnectionInfo{Status: e.conn.Status(), Attempts: e.conn.Attempts()}
}

// Alerts returns the recently displayed alerts.
func (e *Engine) Alerts() []alerts.Alert { return e.queue.Recent() }

// StartProxy applies the optimistic starting transition and issues the start
// command. A request-level failure rolls the machine back and surfaces one
// error alert.
func (e *Engine) StartProxy(ctx context.Context) error {
	e.machine.BeginStart()
	if err := e.cmd.Start(ctx); err != nil {
		e.machine.Rollback()
		e.queue.Enqueue("Failed to start proxy: "+err.Error(), alerts.SeverityError)
		return err
	}
	return nil
}

// StopProxy applies the optimistic stopping transition and issues the stop
// command, rolling back on request-level failure.
func (e *Engine) StopProxy(ctx context.Context) error {
	e.machine.BeginStop()
	if err := e.cmd.Stop(ctx); err != nil {
		e.machine.Rollback()
		e.queue.Enqueue("Failed to stop proxy: "+err.Error(), alerts.SeverityError)
		return err
	}
	return nil
}

// registerHandlers binds each upstream event name to its decode+validate+merge
// handler. A handler error means the payload was dropped before any mutation.
func (e *Engine) registerHandlers() {
	e.router.Handle(events.ServerStatus, func(data json.RawMessage) error {
		var u snapshot.ServersUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		if u.Servers == nil {
			return fmt.Errorf("server-status missing servers")
		}
		e.store.MergeServers(u)
		return nil
	})
	e.router.Handle(events.CredentialsUpdate, func(data json.RawMessage) error {
		var u snapshot.CredentialsUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		if u.Valid == nil {
			return fmt.Errorf("credentials-update missing valid")
		}
		e.store.MergeCredentials(u)
		return nil
	})
	e.router.Handle(events.ProvidersUpdate, func(data json.RawMessage) error {
		var u snapshot.ProvidersUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		if u.Items == nil && u.Total == nil {
			return fmt.Errorf("providers-update missing items")
		}
		e.store.MergeProviders(u)
		return nil
	})
	e.router.Handle(events.ModelsUpdate, func(data json.RawMessage) error {
		var u snapshot.ModelsUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		if u.Items == nil && u.Total == nil {
			return fmt.Errorf("models-update missing items")
		}
		e.store.MergeModels(u)
		return nil
	})
	e.router.Handle(events.ProxyLifecycle, func(data json.RawMessage) error {
		var ev lifecycle.TransitionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		return e.machine.Apply(ev)
	})
}

// onDelta maps snapshot transitions to alerts. The agent-disconnect delta is
// the root cause that opens the suppression window; credential failures and
// repeated agent drops inside the window are cascade effects and are dropped.
func (e *Engine) onDelta(d snapshot.Delta) {
	switch d {
	case snapshot.DeltaAgentDisconnected:
		if e.queue.SuppressionActive() {
			e.queue.EnqueueCascade("Agent disconnected", alerts.SeverityWarning)
			return
		}
		e.queue.Enqueue("Agent disconnected", alerts.SeverityWarning)
		e.queue.OpenSuppression()
	case snapshot.DeltaAgentConnected:
		e.queue.CloseSuppression()
		e.queue.Enqueue("Agent connected", alerts.SeveritySuccess)
	case snapshot.DeltaCredentialsInvalid:
		e.queue.EnqueueCascade("Credentials invalid", alerts.SeverityError)
	case snapshot.DeltaCredentialsValid:
		e.queue.Enqueue("Credentials valid", alerts.SeveritySuccess)
	}
}

func (e *Engine) onLifecycleChange(st lifecycle.Status) {
	e.record(history.Event{
		Kind:       history.KindLifecycle,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{Source: "proxy", State: string(st.State), Message: st.Message},
	})
	e.notify(ChangeLifecycle)
}

func (e *Engine) onConnectionStatus(s connection.Status) {
	e.record(history.Event{
		Kind:       history.KindConnection,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{Source: "upstream", State: string(s)},
	})
	e.notify(ChangeConnection)
}

func (e *Engine) onAlertDisplayed(a alerts.Alert) {
	e.record(history.Event{
		Kind:       history.KindAlert,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{Source: "alerts", State: string(a.Severity), Message: a.Message},
	})
	e.notify(ChangeAlert)
}

// record exports a history event best-effort; failures are logged, never fatal.
func (e *Engine) record(ev history.Event) {
	if e.sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.sink.Send(ctx, ev); err != nil {
			e.logger.Warn("history export failed", "kind", string(ev.Kind), "error", err)
		}
	}()
}

func (e *Engine) notify(c Change) {
	e.mu.Lock()
	fns := make([]SubscriberFunc, 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

func (e *Engine) serverPIDs() map[string]int32 {
	snap := e.store.Snapshot()
	out := make(map[string]int32, len(snap.Servers))
	for name, st := range snap.Servers {
		if st.Running && st.PID > 0 {
			out[name] = int32(st.PID)
		}
	}
	return out
}
