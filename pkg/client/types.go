package client

import "time"

// ServerStatus is one managed proxy server process.
type ServerStatus struct {
	Running  bool  `json:"running"`
	Port     int   `json:"port,omitempty"`
	PID      int   `json:"pid,omitempty"`
	UptimeMS int64 `json:"uptime_ms,omitempty"`
}

// Credentials reports validity of the upstream provider credentials.
type Credentials struct {
	Valid       bool  `json:"valid"`
	ExpiresAtMS int64 `json:"expires_at_ms,omitempty"`
}

// Provider is one configured model provider.
type Provider struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Providers summarizes the provider list.
type Providers struct {
	Items  []Provider `json:"items,omitempty"`
	Total  int        `json:"total"`
	Active int        `json:"active"`
}

// Model is one selectable model.
type Model struct {
	ID       string `json:"id"`
	Provider string `json:"provider,omitempty"`
}

// Models summarizes the model list.
type Models struct {
	Items []Model `json:"items,omitempty"`
	Total int     `json:"total"`
}

// Snapshot is the merged upstream state as served by GET /status.
type Snapshot struct {
	Servers        map[string]ServerStatus `json:"servers"`
	Credentials    Credentials             `json:"credentials"`
	Providers      Providers               `json:"providers"`
	Models         Models                  `json:"models"`
	AgentConnected bool                    `json:"agent_connected"`
}

// LifecycleStatus is the proxy lifecycle state as served by GET /lifecycle.
type LifecycleStatus struct {
	State   string `json:"state"`
	Message string `json:"message"`
	Port    int    `json:"port,omitempty"`
	Error   string `json:"error,omitempty"`
	Pending bool   `json:"pending"`
}

// ConnectionInfo is the event-stream connection state as served by
// GET /connection.
type ConnectionInfo struct {
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
}

// Alert is one displayed notification as served by GET /alerts.
type Alert struct {
	Message    string    `json:"message"`
	Severity   string    `json:"severity"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
