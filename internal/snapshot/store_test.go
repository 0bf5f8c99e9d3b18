package snapshot

import (
	"testing"
)

func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
func int64Ptr(i int64) *int64 { return &i }

func TestMergeServersPartialKeepsOtherFields(t *testing.T) {
	s := NewStore(nil)
	s.MergeServers(ServersUpdate{Servers: map[string]ServerUpdate{
		"router": {Running: boolPtr(true), Port: intPtr(4100), PID: intPtr(1234)},
	}})
	// second update only touches uptime
	snap := s.MergeServers(ServersUpdate{Servers: map[string]ServerUpdate{
		"router": {UptimeSec: int64Ptr(42)},
	}})

	st := snap.Servers["router"]
	if !st.Running || st.Port != 4100 || st.PID != 1234 {
		t.Fatalf("earlier fields lost: %+v", st)
	}
	if st.UptimeMS != 42000 {
		t.Fatalf("uptime not normalized to ms: %d", st.UptimeMS)
	}
}

func TestMergeServersDoesNotResetOtherServers(t *testing.T) {
	s := NewStore(nil)
	s.MergeServers(ServersUpdate{Servers: map[string]ServerUpdate{
		"router": {Running: boolPtr(true), Port: intPtr(4100)},
	}})
	snap := s.MergeServers(ServersUpdate{Servers: map[string]ServerUpdate{
		"agent": {Running: boolPtr(false)},
	}})
	if _, ok := snap.Servers["router"]; !ok {
		t.Fatalf("unrelated server dropped by partial update")
	}
}

func TestCredentialsExpiryNormalizedToMS(t *testing.T) {
	s := NewStore(nil)
	snap := s.MergeCredentials(CredentialsUpdate{Valid: boolPtr(true), ExpiresAtSec: int64Ptr(1_700_000_000)})
	if snap.Credentials.ExpiresAtMS != 1_700_000_000_000 {
		t.Fatalf("expiry not normalized: %d", snap.Credentials.ExpiresAtMS)
	}
}

func TestNoDeltaOnFirstMerge(t *testing.T) {
	s := NewStore(nil)
	var fired []Delta
	s.OnDelta(func(d Delta) { fired = append(fired, d) })

	// first observation of each watched field must not fire, whatever the value
	s.MergeAgentConnectivity(false)
	s.MergeCredentials(CredentialsUpdate{Valid: boolPtr(false)})
	if len(fired) != 0 {
		t.Fatalf("deltas fired on first merge: %v", fired)
	}
}

func TestDeltaOnTransition(t *testing.T) {
	s := NewStore(nil)
	var fired []Delta
	s.OnDelta(func(d Delta) { fired = append(fired, d) })

	s.MergeAgentConnectivity(true)
	s.MergeAgentConnectivity(true) // same value, no delta
	s.MergeAgentConnectivity(false)
	s.MergeAgentConnectivity(true)

	want := []Delta{DeltaAgentDisconnected, DeltaAgentConnected}
	if len(fired) != len(want) {
		t.Fatalf("fired %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired %v, want %v", fired, want)
		}
	}
}

func TestCredentialDeltas(t *testing.T) {
	s := NewStore(nil)
	var fired []Delta
	s.OnDelta(func(d Delta) { fired = append(fired, d) })

	s.MergeCredentials(CredentialsUpdate{Valid: boolPtr(true)})
	s.MergeCredentials(CredentialsUpdate{Valid: boolPtr(false)})
	s.MergeCredentials(CredentialsUpdate{ExpiresAtSec: int64Ptr(10)}) // valid absent, no delta
	s.MergeCredentials(CredentialsUpdate{Valid: boolPtr(true)})

	want := []Delta{DeltaCredentialsInvalid, DeltaCredentialsValid}
	if len(fired) != len(want) {
		t.Fatalf("fired %v, want %v", fired, want)
	}
}

func TestCompositeServerStatusMergesPiggybackedRecords(t *testing.T) {
	s := NewStore(nil)
	var fired []Delta
	s.OnDelta(func(d Delta) { fired = append(fired, d) })

	s.MergeCredentials(CredentialsUpdate{Valid: boolPtr(true)})
	snap := s.MergeServers(ServersUpdate{
		Servers:        map[string]ServerUpdate{"router": {Running: boolPtr(true)}},
		Credentials:    &CredentialsUpdate{Valid: boolPtr(false)},
		Providers:      &ProvidersUpdate{Items: []Provider{{Name: "anthropic", Enabled: true}}, Total: intPtr(1), Active: intPtr(1)},
		Models:         &ModelsUpdate{Items: []Model{{ID: "m1"}}, Total: intPtr(1)},
		AgentConnected: boolPtr(true),
	})

	if snap.Credentials.Valid {
		t.Fatalf("piggybacked credentials not merged")
	}
	if snap.Providers.Total != 1 || len(snap.Providers.Items) != 1 {
		t.Fatalf("piggybacked providers not merged: %+v", snap.Providers)
	}
	if snap.Models.Total != 1 {
		t.Fatalf("piggybacked models not merged: %+v", snap.Models)
	}
	if !snap.AgentConnected {
		t.Fatalf("piggybacked agent flag not merged")
	}
	// credentials flipped true->false: exactly one delta; agent first seen: none
	if len(fired) != 1 || fired[0] != DeltaCredentialsInvalid {
		t.Fatalf("fired %v, want [credentials-invalid]", fired)
	}
}

func TestProvidersAndModelsKeepItemsWhenAbsent(t *testing.T) {
	s := NewStore(nil)
	s.MergeProviders(ProvidersUpdate{Items: []Provider{{Name: "p"}}, Total: intPtr(1)})
	snap := s.MergeProviders(ProvidersUpdate{Active: intPtr(1)})
	if len(snap.Providers.Items) != 1 || snap.Providers.Total != 1 {
		t.Fatalf("absent fields reset: %+v", snap.Providers)
	}

	s.MergeModels(ModelsUpdate{Items: []Model{{ID: "m"}}})
	snap = s.MergeModels(ModelsUpdate{Total: intPtr(3)})
	if len(snap.Models.Items) != 1 || snap.Models.Total != 3 {
		t.Fatalf("absent fields reset: %+v", snap.Models)
	}
}

func TestSnapshotCloneIsolated(t *testing.T) {
	s := NewStore(nil)
	s.MergeServers(ServersUpdate{Servers: map[string]ServerUpdate{"router": {Port: intPtr(4100)}}})
	snap := s.Snapshot()
	snap.Servers["router"] = ServerStatus{Port: 1}
	if s.Snapshot().Servers["router"].Port != 4100 {
		t.Fatalf("returned snapshot aliases internal state")
	}
}

type fakeSeeder struct {
	pristine bool
	running  bool
	port     int
	seeded   bool
}

func (f *fakeSeeder) Pristine() bool { return f.pristine }
func (f *fakeSeeder) Seed(running bool, port int) {
	f.seeded = true
	f.running = running
	f.port = port
	f.pristine = false
}

func TestFirstMergeSeedsLifecycle(t *testing.T) {
	s := NewStore(nil)
	sd := &fakeSeeder{pristine: true}
	s.SetSeeder(sd)

	s.MergeServers(ServersUpdate{Servers: map[string]ServerUpdate{
		"router": {Running: boolPtr(true), Port: intPtr(4100)},
	}})
	if !sd.seeded || !sd.running || sd.port != 4100 {
		t.Fatalf("seed not derived from running server: %+v", sd)
	}
}

func TestSeedSkippedWhenNotPristine(t *testing.T) {
	s := NewStore(nil)
	sd := &fakeSeeder{pristine: false}
	s.SetSeeder(sd)
	s.MergeServers(ServersUpdate{Servers: map[string]ServerUpdate{
		"router": {Running: boolPtr(true), Port: intPtr(4100)},
	}})
	if sd.seeded {
		t.Fatalf("seed applied to a non-pristine machine")
	}
}

func TestSeedStoppedWhenNothingRunning(t *testing.T) {
	s := NewStore(nil)
	sd := &fakeSeeder{pristine: true}
	s.SetSeeder(sd)
	s.MergeServers(ServersUpdate{Servers: map[string]ServerUpdate{
		"router": {Running: boolPtr(false)},
	}})
	if !sd.seeded || sd.running {
		t.Fatalf("expected stopped seed: %+v", sd)
	}
}
