package export

import (
	"FlowSentry/internal/ledger"
	"FlowSentry/internal/model"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SummaryData holds the metadata for a snapshot, internal to the writer.
type SummaryData struct {
	TotalWindows  int    `json:"total_windows"`
	TotalEvidence int    `json:"total_evidence"`
	TotalAlerts   int    `json:"total_alerts"`
	Timestamp     string `json:"timestamp"`
}

// GobWriter handles writing ledger snapshot data to disk in gob format.
// It implements the model.Writer interface.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

// NewGobWriter creates a new writer for ledger snapshot data.
func NewGobWriter(rootPath string, interval time.Duration) model.Writer {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

// Write serializes a ledger snapshot to a timestamped directory: one gob
// file with the full state and a JSON summary next to it.
func (w *GobWriter) Write(payload interface{}, timestamp string) error {
	snapshot, ok := payload.(ledger.SnapshotData)
	if !ok {
		return fmt.Errorf("invalid payload type for GobWriter: expected ledger.SnapshotData, got %T", payload)
	}

	snapshotDir := filepath.Join(w.rootPath, timestamp)
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	dataPath := filepath.Join(snapshotDir, "ledger.dat")
	f, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(snapshot); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	summary := SummaryData{
		TotalWindows: len(snapshot.Windows),
		Timestamp:    timestamp,
	}
	for _, win := range snapshot.Windows {
		summary.TotalEvidence += len(win.Evidence)
		summary.TotalAlerts += len(win.Alerts)
	}

	summaryPath := filepath.Join(snapshotDir, "summary.json")
	summaryBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(summaryPath, summaryBytes, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot previously written by a GobWriter.
func ReadSnapshot(path string) (ledger.SnapshotData, error) {
	var snap ledger.SnapshotData
	f, err := os.Open(path)
	if err != nil {
		return snap, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return snap, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}
