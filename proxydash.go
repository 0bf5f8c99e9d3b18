package proxydash

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ChrisColeTech/proxydash/internal/alerts"
	cfg "github.com/ChrisColeTech/proxydash/internal/config"
	"github.com/ChrisColeTech/proxydash/internal/connection"
	"github.com/ChrisColeTech/proxydash/internal/engine"
	"github.com/ChrisColeTech/proxydash/internal/history"
	"github.com/ChrisColeTech/proxydash/internal/lifecycle"
	"github.com/ChrisColeTech/proxydash/internal/logger"
	"github.com/ChrisColeTech/proxydash/internal/metrics"
	iapi "github.com/ChrisColeTech/proxydash/internal/server"
	"github.com/ChrisColeTech/proxydash/internal/snapshot"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Snapshot = snapshot.Snapshot

type LifecycleStatus = lifecycle.Status

type ConnectionStatus = connection.Status

type ConnectionInfo = engine.ConnectionInfo

type Alert = alerts.Alert

type Change = engine.Change

const (
	ChangeSnapshot   = engine.ChangeSnapshot
	ChangeLifecycle  = engine.ChangeLifecycle
	ChangeConnection = engine.ChangeConnection
	ChangeAlert      = engine.ChangeAlert
)

type Config = cfg.FileConfig

type HistorySink = history.Sink

// Dashboard is a thin facade over internal/engine.Engine.
// It provides a stable public API for embedding.

type Dashboard struct{ inner *engine.Engine }

// New builds a dashboard from config without starting it.
func New(c Config) (*Dashboard, error) {
	log, _ := logger.New(c.Log)
	eng, err := engine.New(c, log)
	if err != nil {
		return nil, err
	}
	return &Dashboard{inner: eng}, nil
}

func (d *Dashboard) Run() error             { return d.inner.Run() }
func (d *Dashboard) Close()                 { d.inner.Close() }
func (d *Dashboard) Engine() *engine.Engine { return d.inner }

func (d *Dashboard) Snapshot() Snapshot                   { return d.inner.Snapshot() }
func (d *Dashboard) Lifecycle() LifecycleStatus           { return d.inner.Lifecycle() }
func (d *Dashboard) Connection() ConnectionInfo           { return d.inner.Connection() }
func (d *Dashboard) Alerts() []Alert                      { return d.inner.Alerts() }
func (d *Dashboard) Subscribe(fn func(Change)) func()     { return d.inner.Subscribe(fn) }
func (d *Dashboard) StartProxy(ctx context.Context) error { return d.inner.StartProxy(ctx) }
func (d *Dashboard) StopProxy(ctx context.Context) error  { return d.inner.StopProxy(ctx) }

// DefaultConfig returns the built-in configuration for a local proxy.
func DefaultConfig() Config { return cfg.Default() }

// LoadConfig reads a TOML config file and overlays it on the defaults.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// NewHTTPServer starts an HTTP server exposing the dashboard API using the
// given engine.
func NewHTTPServer(c Config, d *Dashboard) (*http.Server, error) {
	return iapi.NewServer(d.inner, c.Server, c.Metrics.Enabled)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
