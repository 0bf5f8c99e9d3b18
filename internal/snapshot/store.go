package snapshot

import (
	"log/slog"
	"sync"

	"github.com/ChrisColeTech/proxydash/internal/metrics"
)

// Delta names a UX-significant boolean transition detected after a merge.
type Delta string

const (
	DeltaAgentConnected     Delta = "agent-connected"
	DeltaAgentDisconnected  Delta = "agent-disconnected"
	DeltaCredentialsValid   Delta = "credentials-valid"
	DeltaCredentialsInvalid Delta = "credentials-invalid"
)

// DeltaFunc receives named transitions for the notification layer.
type DeltaFunc func(Delta)

// ChangeFunc receives a copy of the snapshot after every merge.
type ChangeFunc func(Snapshot)

// Seeder lets the store bootstrap the lifecycle machine when the client
// attaches to an already-operating proxy. Pristine reports whether the
// machine has seen neither an authoritative event nor a user action.
type Seeder interface {
	Pristine() bool
	Seed(running bool, port int)
}

// Store holds the canonical merged view of upstream state. All mutation goes
// through the Merge* operations; fields absent from a partial update keep
// their previous value (last-write-wins per field, not per message).
type Store struct {
	mu     sync.RWMutex
	snap   Snapshot
	logger *slog.Logger

	// first-merge tracking per delta-watched field: a delta only fires once
	// a previous value exists to compare against.
	agentSeen bool
	credSeen  bool

	onDelta  DeltaFunc
	onChange ChangeFunc
	seeder   Seeder
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		snap:   Snapshot{Servers: make(map[string]ServerStatus)},
		logger: logger,
	}
}

// OnDelta registers the transition consumer. Call before the first merge.
func (s *Store) OnDelta(fn DeltaFunc) {
	s.mu.Lock()
	s.onDelta = fn
	s.mu.Unlock()
}

// OnChange registers the snapshot-changed consumer. Call before the first merge.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SetSeeder wires the lifecycle machine used for first-load bootstrapping.
func (s *Store) SetSeeder(sd Seeder) {
	s.mu.Lock()
	s.seeder = sd
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the current merged view.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// MergeServers applies the composite server-status payload: per-server fields
// plus any piggybacked credentials/provider/model summaries.
func (s *Store) MergeServers(u ServersUpdate) Snapshot {
	s.mu.Lock()
	for name, su := range u.Servers {
		cur := s.snap.Servers[name]
		if su.Running != nil {
			cur.Running = *su.Running
		}
		if su.Port != nil {
			cur.Port = *su.Port
		}
		if su.PID != nil {
			cur.PID = *su.PID
		}
		if su.UptimeSec != nil {
			cur.UptimeMS = *su.UptimeSec * 1000
		}
		s.snap.Servers[name] = cur
	}
	metrics.IncMerge("servers")

	var deltas []Delta
	if u.Credentials != nil {
		deltas = append(deltas, s.mergeCredentialsLocked(*u.Credentials)...)
	}
	if u.Providers != nil {
		s.mergeProvidersLocked(*u.Providers)
	}
	if u.Models != nil {
		s.mergeModelsLocked(*u.Models)
	}
	if u.AgentConnected != nil {
		deltas = append(deltas, s.mergeAgentLocked(*u.AgentConnected)...)
	}

	s.seedLifecycleLocked()
	snap, deltaFn, changeFn := s.snap.Clone(), s.onDelta, s.onChange
	s.mu.Unlock()

	s.emit(snap, deltas, deltaFn, changeFn)
	return snap
}

// MergeCredentials applies a credentials-update payload.
func (s *Store) MergeCredentials(u CredentialsUpdate) Snapshot {
	s.mu.Lock()
	deltas := s.mergeCredentialsLocked(u)
	snap, deltaFn, changeFn := s.snap.Clone(), s.onDelta, s.onChange
	s.mu.Unlock()

	s.emit(snap, deltas, deltaFn, changeFn)
	return snap
}

// MergeProviders applies a providers-update payload.
func (s *Store) MergeProviders(u ProvidersUpdate) Snapshot {
	s.mu.Lock()
	s.mergeProvidersLocked(u)
	snap, changeFn := s.snap.Clone(), s.onChange
	s.mu.Unlock()

	s.emit(snap, nil, nil, changeFn)
	return snap
}

// MergeModels applies a models-update payload.
func (s *Store) MergeModels(u ModelsUpdate) Snapshot {
	s.mu.Lock()
	s.mergeModelsLocked(u)
	snap, changeFn := s.snap.Clone(), s.onChange
	s.mu.Unlock()

	s.emit(snap, nil, nil, changeFn)
	return snap
}

// MergeAgentConnectivity applies a peer-liveness flag update.
func (s *Store) MergeAgentConnectivity(connected bool) Snapshot {
	s.mu.Lock()
	deltas := s.mergeAgentLocked(connected)
	snap, deltaFn, changeFn := s.snap.Clone(), s.onDelta, s.onChange
	s.mu.Unlock()

	s.emit(snap, deltas, deltaFn, changeFn)
	return snap
}

func (s *Store) mergeCredentialsLocked(u CredentialsUpdate) []Delta {
	var deltas []Delta
	if u.Valid != nil {
		prev, seen := s.snap.Credentials.Valid, s.credSeen
		s.snap.Credentials.Valid = *u.Valid
		s.credSeen = true
		if seen && prev != *u.Valid {
			if *u.Valid {
				deltas = append(deltas, DeltaCredentialsValid)
			} else {
				deltas = append(deltas, DeltaCredentialsInvalid)
			}
		}
	}
	if u.ExpiresAtSec != nil {
		s.snap.Credentials.ExpiresAtMS = *u.ExpiresAtSec * 1000
	}
	metrics.IncMerge("credentials")
	return deltas
}

func (s *Store) mergeProvidersLocked(u ProvidersUpdate) {
	if u.Items != nil {
		s.snap.Providers.Items = append([]Provider(nil), u.Items...)
	}
	if u.Total != nil {
		s.snap.Providers.Total = *u.Total
	}
	if u.Active != nil {
		s.snap.Providers.Active = *u.Active
	}
	metrics.IncMerge("providers")
}

func (s *Store) mergeModelsLocked(u ModelsUpdate) {
	if u.Items != nil {
		s.snap.Models.Items = append([]Model(nil), u.Items...)
	}
	if u.Total != nil {
		s.snap.Models.Total = *u.Total
	}
	metrics.IncMerge("models")
}

func (s *Store) mergeAgentLocked(connected bool) []Delta {
	prev, seen := s.snap.AgentConnected, s.agentSeen
	s.snap.AgentConnected = connected
	s.agentSeen = true
	metrics.IncMerge("agent")
	if !seen || prev == connected {
		return nil
	}
	if connected {
		return []Delta{DeltaAgentConnected}
	}
	return []Delta{DeltaAgentDisconnected}
}

// seedLifecycleLocked bootstraps a pristine lifecycle machine from the first
// server report so a client attaching to a live proxy shows the right state.
func (s *Store) seedLifecycleLocked() {
	if s.seeder == nil || !s.seeder.Pristine() || len(s.snap.Servers) == 0 {
		return
	}
	for _, st := range s.snap.Servers {
		if st.Running {
			s.seeder.Seed(true, st.Port)
			return
		}
	}
	s.seeder.Seed(false, 0)
}

func (s *Store) emit(snap Snapshot, deltas []Delta, deltaFn DeltaFunc, changeFn ChangeFunc) {
	for _, d := range deltas {
		metrics.IncDelta(string(d))
		s.logger.Debug("snapshot delta", "delta", string(d))
		if deltaFn != nil {
			deltaFn(d)
		}
	}
	if changeFn != nil {
		changeFn(snap)
	}
}
