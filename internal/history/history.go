package history

import (
	"context"
	"time"
)

// Kind classifies a history record.
type Kind string

const (
	KindLifecycle  Kind = "lifecycle"
	KindAlert      Kind = "alert"
	KindConnection Kind = "connection"
)

// Record is the minimal unit of dashboard history we export. Source names
// what changed (server name, alert severity, or the transport); State is the
// new state or severity; Message is the human-readable text shown to users.
type Record struct {
	Source  string `json:"source"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// Event represents one observed change to be exported to external systems.
// History is observational and best-effort; it is never the source of truth
// for the snapshot.
type Event struct {
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (audit/analytics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
