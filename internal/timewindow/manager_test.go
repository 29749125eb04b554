package timewindow

import (
	"FlowSentry/internal/model"
	"FlowSentry/internal/store"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePublisher struct {
	mu   sync.Mutex
	envs []*model.Envelope
}

func (p *fakePublisher) Publish(env *model.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func TestResolve_SequentialWindows(t *testing.T) {
	st := store.New()
	pub := &fakePublisher{}
	m := NewManager(time.Hour, st, pub)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	twid, isNew, err := m.Resolve("10.0.0.5", base)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if twid != "timewindow1" || !isNew {
		t.Fatalf("Expected new timewindow1, got %s (isNew=%v)", twid, isNew)
	}

	// A flow 30 minutes later lands in the same window.
	twid, isNew, err = m.Resolve("10.0.0.5", base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if twid != "timewindow1" || isNew {
		t.Fatalf("Expected existing timewindow1, got %s (isNew=%v)", twid, isNew)
	}

	// A flow 90 minutes later opens the next sequential window.
	twid, isNew, err = m.Resolve("10.0.0.5", base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if twid != "timewindow2" || !isNew {
		t.Fatalf("Expected new timewindow2, got %s (isNew=%v)", twid, isNew)
	}

	// Window sequence numbers must be strictly increasing and spans
	// non-overlapping.
	infos := st.GetTimewindowsWithTimestamps("10.0.0.5")
	if len(infos) != 2 {
		t.Fatalf("Expected 2 timewindows, got %d", len(infos))
	}
	for i, info := range infos {
		if info.Seq != i+1 {
			t.Errorf("Expected sequence %d, got %d", i+1, info.Seq)
		}
		if i > 0 && infos[i-1].EndTime.After(info.StartTime) {
			t.Errorf("Windows %d and %d overlap", i, i+1)
		}
	}
}

func TestResolve_LateArrivalRoutesToEarlierWindow(t *testing.T) {
	st := store.New()
	m := NewManager(time.Hour, st, nil)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, _, err := m.Resolve("10.0.0.5", base); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, _, err := m.Resolve("10.0.0.5", base.Add(3*time.Hour)); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// An out-of-order flow with a timestamp in the first hour goes back
	// to the already-created first window rather than being rejected.
	twid, isNew, err := m.Resolve("10.0.0.5", base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if twid != "timewindow1" || isNew {
		t.Fatalf("Expected late flow in timewindow1, got %s (isNew=%v)", twid, isNew)
	}
}

func TestResolve_GapCreatesIntermediateWindows(t *testing.T) {
	st := store.New()
	m := NewManager(time.Hour, st, nil)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, _, err := m.Resolve("192.168.1.1", base); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	twid, _, err := m.Resolve("192.168.1.1", base.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if twid != "timewindow6" {
		t.Fatalf("Expected timewindow6 after 5 hour gap, got %s", twid)
	}
	if got := len(st.GetTimewindowsWithTimestamps("192.168.1.1")); got != 6 {
		t.Fatalf("Expected 6 contiguous windows, got %d", got)
	}
}

func TestResolve_InvalidTimestamp(t *testing.T) {
	m := NewManager(time.Hour, store.New(), nil)
	_, _, err := m.Resolve("10.0.0.5", time.Time{})
	if !errors.Is(err, model.ErrInvalidTimestamp) {
		t.Fatalf("Expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestResolve_PublishesNewTimewindow(t *testing.T) {
	pub := &fakePublisher{}
	m := NewManager(time.Hour, store.New(), pub)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, _, err := m.Resolve("10.0.0.5", base); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.envs) != 1 {
		t.Fatalf("Expected 1 new_timewindow notification, got %d", len(pub.envs))
	}
	env := pub.envs[0]
	if !env.IsForTopic(model.TopicNewTimewindow) || env.ProfileID != "10.0.0.5" || env.TWID != "timewindow1" {
		t.Fatalf("Unexpected notification: %+v", env)
	}
}
