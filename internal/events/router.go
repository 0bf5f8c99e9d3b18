package events

import (
	"encoding/json"
	"log/slog"

	"github.com/ChrisColeTech/proxydash/internal/metrics"
)

// Logical event names on the upstream stream.
const (
	ServerStatus      = "server-status"
	CredentialsUpdate = "credentials-update"
	ProvidersUpdate   = "providers-update"
	ModelsUpdate      = "models-update"
	ProxyLifecycle    = "proxy-lifecycle"
)

// Handler decodes and applies one event payload. Returning an error means the
// payload failed shape validation; the router drops it without any store
// mutation having happened.
type Handler func(data json.RawMessage) error

// Router validates and dispatches typed inbound messages to the registered
// merge handler for each event name. It isolates downstream components from
// malformed or version-skewed upstream messages: unknown names and invalid
// payloads are logged and dropped, never fatal.
type Router struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{handlers: make(map[string]Handler), logger: logger}
}

// Handle registers the handler for an event name, replacing any previous one.
// Registration happens during wiring, before the connection is established.
func (r *Router) Handle(event string, h Handler) {
	r.handlers[event] = h
}

// Dispatch routes one inbound message. It never panics and never returns an
// error to the transport; failures are logged and counted.
func (r *Router) Dispatch(event string, data json.RawMessage) {
	h, ok := r.handlers[event]
	if !ok {
		r.logger.Warn("unknown event dropped", "event", event)
		metrics.IncEventDropped("unknown")
		return
	}
	if err := h(data); err != nil {
		r.logger.Warn("invalid payload dropped", "event", event, "error", err)
		metrics.IncEventDropped("invalid")
	}
}
