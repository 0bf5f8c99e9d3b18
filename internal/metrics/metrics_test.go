package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestHelpersSafeWithoutRegistration(t *testing.T) {
	// helpers must never panic, registered or not
	IncReconnectAttempt()
	SetConnectionState("connected", true)
	IncMerge("servers")
	IncDelta("agent-connected")
	IncEventDropped("unknown")
	IncAlert("enqueued")
	RecordLifecycleTransition("idle", "starting")
}
