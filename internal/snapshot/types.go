package snapshot

// ServerStatus describes one managed proxy server process as last reported
// by the upstream. UptimeMS is normalized to milliseconds at the merge
// boundary; the wire carries seconds.
type ServerStatus struct {
	Running  bool  `json:"running"`
	Port     int   `json:"port,omitempty"`
	PID      int   `json:"pid,omitempty"`
	UptimeMS int64 `json:"uptime_ms,omitempty"`
}

// Credentials tracks validity of the upstream provider credentials.
// ExpiresAtMS is a unix timestamp in milliseconds (0 = unknown).
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

// Snapshot is the merged, point-in-time view of all remote sub-records.
// It is never reset by a partial update; fields absent from an update keep
// their previous value.
type Snapshot struct {
	Servers        map[string]ServerStatus `json:"servers"`
	Credentials    Credentials             `json:"credentials"`
	Providers      Providers               `json:"providers"`
	Models         Models                  `json:"models"`
	AgentConnected bool                    `json:"agent_connected"`
}

// Clone returns a deep copy safe to hand to subscribers.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Servers = make(map[string]ServerStatus, len(s.Servers))
	for k, v := range s.Servers {
		out.Servers[k] = v
	}
	out.Providers.Items = append([]Provider(nil), s.Providers.Items...)
	out.Models.Items = append([]Model(nil), s.Models.Items...)
	return out
}

// ServerUpdate is a per-field-optional partial update for one server.
// Nil means "not included"; the stored value is kept.
type ServerUpdate struct {
	Running   *bool  `json:"running,omitempty"`
	Port      *int   `json:"port,omitempty"`
	PID       *int   `json:"pid,omitempty"`
	UptimeSec *int64 `json:"uptime,omitempty"` // seconds on the wire
}

// CredentialsUpdate is a partial update for the credentials sub-record.
type CredentialsUpdate struct {
	Valid        *bool  `json:"valid,omitempty"`
	ExpiresAtSec *int64 `json:"expires_at,omitempty"` // unix seconds on the wire
}

// ProvidersUpdate is a partial update for the provider summary.
// A nil Items slice means the item list was not included.
type ProvidersUpdate struct {
	Items  []Provider `json:"items,omitempty"`
	Total  *int       `json:"total,omitempty"`
	Active *int       `json:"active,omitempty"`
}

// ModelsUpdate is a partial update for the model summary.
type ModelsUpdate struct {
	Items []Model `json:"items,omitempty"`
	Total *int    `json:"total,omitempty"`
}

// ServersUpdate is the composite payload of the server-status event: per
// process status plus optional credentials/provider/model summaries that
// the upstream piggybacks on the same message.
type ServersUpdate struct {
	Servers        map[string]ServerUpdate `json:"servers"`
	Credentials    *CredentialsUpdate      `json:"credentials,omitempty"`
	Providers      *ProvidersUpdate        `json:"providers,omitempty"`
	Models         *ModelsUpdate           `json:"models,omitempty"`
	AgentConnected *bool                   `json:"agent_connected,omitempty"`
}
