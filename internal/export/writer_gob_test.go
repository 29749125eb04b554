package export

import (
	"FlowSentry/internal/ledger"
	"FlowSentry/internal/model"
	"path/filepath"
	"testing"
	"time"
)

func TestGobWriter_WriteAndReadBack(t *testing.T) {
	dir := t.TempDir()
	w := NewGobWriter(dir, time.Minute)

	l := ledger.New(0.5)
	if _, err := l.AddEvidence("10.0.0.5", "timewindow1", model.Evidence{
		Kind:        model.KindVerticalPortscan,
		ThreatLevel: model.ThreatLevelHigh,
		Description: "vertical port scan",
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		SourceTag:   "Zeek",
	}); err != nil {
		t.Fatalf("AddEvidence failed: %v", err)
	}

	if err := w.Write(l.Snapshot(), "2026-03-01_10-00-00"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	snap, err := ReadSnapshot(filepath.Join(dir, "2026-03-01_10-00-00", "ledger.dat"))
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	if len(snap.Windows) != 1 {
		t.Fatalf("Expected 1 window in snapshot, got %d", len(snap.Windows))
	}
	win := snap.Windows[0]
	if win.ProfileID != "10.0.0.5" || len(win.Evidence) != 1 || len(win.Alerts) != 1 {
		t.Fatalf("Snapshot round trip lost data: %+v", win)
	}
}

func TestGobWriter_RejectsWrongPayload(t *testing.T) {
	w := NewGobWriter(t.TempDir(), time.Minute)
	if err := w.Write("not a snapshot", "ts"); err == nil {
		t.Fatal("Expected error for wrong payload type")
	}
}
