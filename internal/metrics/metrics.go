package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	reconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "proxydash",
			Subsystem: "connection",
			Name:      "reconnect_attempts_total",
			Help:      "Number of reconnection attempts after a transport failure.",
		},
	)
	connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "proxydash",
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current connection state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	merges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proxydash",
			Subsystem: "snapshot",
			Name:      "merges_total",
			Help:      "Number of partial updates merged per sub-record.",
		}, []string{"record"},
	)
	deltas = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proxydash",
			Subsystem: "snapshot",
			Name:      "deltas_total",
			Help:      "Number of UX-significant boolean transitions detected.",
		}, []string{"delta"},
	)
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proxydash",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Number of inbound events dropped (unknown name or invalid payload).",
		}, []string{"reason"},
	)
	alertOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proxydash",
			Subsystem: "alerts",
			Name:      "outcomes_total",
			Help:      "Alert queue outcomes: enqueued, deduplicated, suppressed, displayed.",
		}, []string{"outcome"},
	)
	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proxydash",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Number of lifecycle state transitions.",
		}, []string{"from", "to"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{reconnectAttempts, connectionState, merges, deltas, eventsDropped, alertOutcomes, lifecycleTransitions}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncReconnectAttempt() {
	if regOK.Load() {
		reconnectAttempts.Inc()
	}
}

func SetConnectionState(state string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		connectionState.WithLabelValues(state).Set(v)
	}
}

func IncMerge(record string) {
	if regOK.Load() {
		merges.WithLabelValues(record).Inc()
	}
}

func IncDelta(delta string) {
	if regOK.Load() {
		deltas.WithLabelValues(delta).Inc()
	}
}

func IncEventDropped(reason string) {
	if regOK.Load() {
		eventsDropped.WithLabelValues(reason).Inc()
	}
}

func IncAlert(outcome string) {
	if regOK.Load() {
		alertOutcomes.WithLabelValues(outcome).Inc()
	}
}

func RecordLifecycleTransition(from, to string) {
	if regOK.Load() {
		lifecycleTransitions.WithLabelValues(from, to).Inc()
	}
}
