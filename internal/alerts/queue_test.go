package alerts

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu        sync.Mutex
	displayed []Alert
	dismissed []Alert
}

func (r *recorder) display(a Alert) {
	r.mu.Lock()
	r.displayed = append(r.displayed, a)
	r.mu.Unlock()
}

func (r *recorder) dismiss(a Alert) {
	r.mu.Lock()
	r.dismissed = append(r.dismissed, a)
	r.mu.Unlock()
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.displayed))
	for i, a := range r.displayed {
		out[i] = a.Message
	}
	return out
}

func fastConfig() Config {
	return Config{
		DedupWindow:       50 * time.Millisecond,
		Stagger:           5 * time.Millisecond,
		DismissAfter:      20 * time.Millisecond,
		SuppressionWindow: 50 * time.Millisecond,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition never met")
}

func TestDuplicateWithinWindowCollapses(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(fastConfig(), rec.display, nil)
	defer q.Close()

	q.Enqueue("Agent disconnected", SeverityWarning)
	q.Enqueue("Agent disconnected", SeverityWarning)
	q.Enqueue("Agent disconnected", SeverityWarning)

	waitFor(t, func() bool { return len(rec.messages()) >= 1 })
	time.Sleep(30 * time.Millisecond) // give duplicates a chance to surface
	if got := rec.messages(); len(got) != 1 {
		t.Fatalf("expected one alert, got %v", got)
	}
}

func TestDuplicateAfterWindowDisplaysAgain(t *testing.T) {
	rec := &recorder{}
	cfg := fastConfig()
	cfg.DedupWindow = 10 * time.Millisecond
	q := NewQueue(cfg, rec.display, nil)
	defer q.Close()

	q.Enqueue("flap", SeverityWarning)
	time.Sleep(20 * time.Millisecond)
	q.Enqueue("flap", SeverityWarning)

	waitFor(t, func() bool { return len(rec.messages()) == 2 })
}

func TestStaggerOrdersDistinctAlerts(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(fastConfig(), rec.display, nil)
	defer q.Close()

	q.Enqueue("first", SeverityInfo)
	q.Enqueue("second", SeverityInfo)
	q.Enqueue("third", SeverityInfo)

	waitFor(t, func() bool { return len(rec.messages()) == 3 })
	got := rec.messages()
	if got[0] != "first" || got[1] != "second" || got[2] != "third" {
		t.Fatalf("order broken: %v", got)
	}
}

func TestAutoDismiss(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(fastConfig(), rec.display, rec.dismiss)
	defer q.Close()

	q.Enqueue("short lived", SeverityInfo)
	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.dismissed) == 1
	})
}

func TestCascadeSuppressedWhileWindowOpen(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(fastConfig(), rec.display, nil)
	defer q.Close()

	q.Enqueue("Agent disconnected", SeverityWarning)
	q.OpenSuppression()
	q.EnqueueCascade("Credentials invalid", SeverityError)
	q.EnqueueCascade("Agent disconnected", SeverityWarning)

	waitFor(t, func() bool { return len(rec.messages()) >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := rec.messages(); len(got) != 1 || got[0] != "Agent disconnected" {
		t.Fatalf("only the root alert should display, got %v", got)
	}
}

func TestSuppressionWindowExpires(t *testing.T) {
	q := NewQueue(fastConfig(), nil, nil)
	defer q.Close()

	q.OpenSuppression()
	if !q.SuppressionActive() {
		t.Fatalf("window should be open")
	}
	// move past the expiry by faking the clock
	q.mu.Lock()
	q.suppressUntil = time.Now().Add(-time.Millisecond)
	q.mu.Unlock()
	if q.SuppressionActive() {
		t.Fatalf("window should have lapsed")
	}
}

func TestCloseSuppressionEarly(t *testing.T) {
	rec := &recorder{}
	cfg := fastConfig()
	cfg.SuppressionWindow = time.Hour
	q := NewQueue(cfg, rec.display, nil)
	defer q.Close()

	q.OpenSuppression()
	q.CloseSuppression()
	q.EnqueueCascade("Credentials invalid", SeverityError)

	waitFor(t, func() bool { return len(rec.messages()) == 1 })
}

func TestRecentKeepsNewestLast(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(fastConfig(), rec.display, nil)
	defer q.Close()

	q.Enqueue("one", SeverityInfo)
	q.Enqueue("two", SeverityInfo)
	waitFor(t, func() bool { return len(q.Recent()) == 2 })
	recents := q.Recent()
	if recents[0].Message != "one" || recents[1].Message != "two" {
		t.Fatalf("recent order: %+v", recents)
	}
}

func TestEnqueueAfterCloseIsNoop(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(fastConfig(), rec.display, nil)
	q.Close()
	q.Enqueue("late", SeverityInfo)
	time.Sleep(20 * time.Millisecond)
	if len(rec.messages()) != 0 {
		t.Fatalf("closed queue displayed an alert")
	}
}
