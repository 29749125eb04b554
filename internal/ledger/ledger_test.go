package ledger

import (
	"FlowSentry/internal/model"
	"sync"
	"testing"
	"time"
)

func evidence(kind model.EvidenceKind, level float64) model.Evidence {
	return model.Evidence{
		Kind:        kind,
		ThreatLevel: level,
		Description: "test finding",
		Timestamp:   time.Now(),
		SourceTag:   "Zeek",
	}
}

func TestAddEvidence_AssignsID(t *testing.T) {
	l := New(10)
	id, err := l.AddEvidence("10.0.0.5", "timewindow1", evidence(model.KindPasswordGuessing, model.ThreatLevelMedium))
	if err != nil {
		t.Fatalf("AddEvidence failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected an assigned evidence id")
	}
	if got := l.GetEvidence("10.0.0.5", "timewindow1"); len(got) != 1 {
		t.Fatalf("Expected 1 evidence entry, got %d", len(got))
	}
}

func TestAddEvidence_DuplicateIsNoOp(t *testing.T) {
	l := New(10)
	ev := evidence(model.KindVerticalPortscan, model.ThreatLevelHigh)
	ev.ID = "fixed-id"

	if _, err := l.AddEvidence("10.0.0.5", "timewindow1", ev); err != nil {
		t.Fatalf("AddEvidence failed: %v", err)
	}
	before := l.AccumulatedThreatLevel("10.0.0.5", "timewindow1")

	// Re-inserting the same identifier must leave the stored set and the
	// correlation state unchanged.
	id, err := l.AddEvidence("10.0.0.5", "timewindow1", ev)
	if err != nil {
		t.Fatalf("Duplicate AddEvidence failed: %v", err)
	}
	if id != "fixed-id" {
		t.Fatalf("Expected existing id back, got %s", id)
	}
	if got := len(l.GetEvidence("10.0.0.5", "timewindow1")); got != 1 {
		t.Fatalf("Expected 1 evidence entry after duplicate insert, got %d", got)
	}
	if after := l.AccumulatedThreatLevel("10.0.0.5", "timewindow1"); after != before {
		t.Fatalf("Duplicate insert changed accumulated threat level: %v -> %v", before, after)
	}
	if l.EvidenceCount() != 1 {
		t.Fatalf("Expected evidence count 1, got %d", l.EvidenceCount())
	}
}

func TestCorrelation_FormsAlertOncePerCrossing(t *testing.T) {
	l := New(1.5)
	var alerts []model.Alert
	var mu sync.Mutex
	l.OnAlert(func(a model.Alert) {
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	})

	// Two high findings sum to 1.6 and cross the 1.5 threshold once.
	if _, err := l.AddEvidence("10.0.0.5", "timewindow1", evidence(model.KindVerticalPortscan, model.ThreatLevelHigh)); err != nil {
		t.Fatalf("AddEvidence failed: %v", err)
	}
	mu.Lock()
	if len(alerts) != 0 {
		mu.Unlock()
		t.Fatal("Alert formed below threshold")
	}
	mu.Unlock()

	if _, err := l.AddEvidence("10.0.0.5", "timewindow1", evidence(model.KindHorizontalPortscan, model.ThreatLevelHigh)); err != nil {
		t.Fatalf("AddEvidence failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(alerts) != 1 {
		t.Fatalf("Expected exactly 1 alert, got %d", len(alerts))
	}
	alert := alerts[0]
	if len(alert.EvidenceIDs) != 2 {
		t.Fatalf("Expected alert over 2 findings, got %d", len(alert.EvidenceIDs))
	}
	if alert.Severity < 1.5 {
		t.Fatalf("Expected severity >= threshold, got %v", alert.Severity)
	}

	// Every referenced evidence id must exist in the ledger for that key.
	stored := l.GetEvidence("10.0.0.5", "timewindow1")
	for _, id := range alert.EvidenceIDs {
		if _, ok := stored[id]; !ok {
			t.Errorf("Alert references missing evidence id %s", id)
		}
	}
}

func TestCorrelation_NewAccumulationAfterAlert(t *testing.T) {
	l := New(1.0)
	var alerts []model.Alert
	l.OnAlert(func(a model.Alert) { alerts = append(alerts, a) })

	// First crossing.
	if _, err := l.AddEvidence("10.0.0.5", "timewindow1", evidence(model.KindVerticalPortscan, 1.0)); err != nil {
		t.Fatalf("AddEvidence failed: %v", err)
	}
	// Evidence after an alert starts a fresh accumulation; a low finding
	// alone must not re-trigger.
	if _, err := l.AddEvidence("10.0.0.5", "timewindow1", evidence(model.KindPasswordGuessing, model.ThreatLevelLow)); err != nil {
		t.Fatalf("AddEvidence failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}

	// Second crossing correlates only the evidence since the first alert.
	if _, err := l.AddEvidence("10.0.0.5", "timewindow1", evidence(model.KindVerticalPortscan, model.ThreatLevelCritical)); err != nil {
		t.Fatalf("AddEvidence failed: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("Expected 2 alerts after second crossing, got %d", len(alerts))
	}
	if len(alerts[1].EvidenceIDs) != 2 {
		t.Fatalf("Second alert should contain the 2 findings since the first, got %d", len(alerts[1].EvidenceIDs))
	}

	// No evidence id may appear in more than one alert within a window.
	seen := make(map[string]bool)
	for _, a := range alerts {
		for _, id := range a.EvidenceIDs {
			if seen[id] {
				t.Errorf("Evidence id %s correlated into two alerts", id)
			}
			seen[id] = true
		}
	}
}

func TestAccumulatedThreatLevel_Monotone(t *testing.T) {
	l := New(100)
	prev := 0.0
	for i := 0; i < 10; i++ {
		if _, err := l.AddEvidence("10.0.0.5", "timewindow1", evidence(model.KindPasswordGuessing, model.ThreatLevelLow)); err != nil {
			t.Fatalf("AddEvidence failed: %v", err)
		}
		cur := l.AccumulatedThreatLevel("10.0.0.5", "timewindow1")
		if cur < prev {
			t.Fatalf("Accumulated threat level decreased: %v -> %v", prev, cur)
		}
		prev = cur
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1.0)
	var alerts []model.Alert
	var mu sync.Mutex
	l.OnAlert(func(a model.Alert) {
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	})

	if _, err := l.AddEvidence("10.0.0.5", "timewindow1", evidence(model.KindVerticalPortscan, model.ThreatLevelHigh)); err != nil {
		t.Fatalf("AddEvidence failed: %v", err)
	}
	if _, err := l.AddEvidence("10.0.0.6", "timewindow1", evidence(model.KindVerticalPortscan, model.ThreatLevelHigh)); err != nil {
		t.Fatalf("AddEvidence failed: %v", err)
	}

	// 0.8 per key stays under the threshold; sums must not bleed across
	// keys.
	mu.Lock()
	defer mu.Unlock()
	if len(alerts) != 0 {
		t.Fatalf("Severity leaked across keys: %d alerts", len(alerts))
	}
}

func TestSnapshot_ContainsEvidenceAndAlerts(t *testing.T) {
	l := New(0.5)
	l.OnAlert(func(model.Alert) {})
	if _, err := l.AddEvidence("10.0.0.5", "timewindow1", evidence(model.KindVerticalPortscan, model.ThreatLevelHigh)); err != nil {
		t.Fatalf("AddEvidence failed: %v", err)
	}

	snap := l.Snapshot()
	if len(snap.Windows) != 1 {
		t.Fatalf("Expected 1 window in snapshot, got %d", len(snap.Windows))
	}
	win := snap.Windows[0]
	if win.ProfileID != "10.0.0.5" || win.TWID != "timewindow1" {
		t.Fatalf("Unexpected window key: %s/%s", win.ProfileID, win.TWID)
	}
	if len(win.Evidence) != 1 || len(win.Alerts) != 1 {
		t.Fatalf("Expected 1 evidence and 1 alert, got %d/%d", len(win.Evidence), len(win.Alerts))
	}
}
