package export

import (
	"FlowSentry/internal/config"
	"FlowSentry/internal/ledger"
	"FlowSentry/internal/model"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createEvidenceTableStatement = `
CREATE TABLE IF NOT EXISTS evidence_log (
    Timestamp   DateTime,
    EvidenceID  String,
    ProfileID   String,
    TWID        String,
    Kind        String,
    ThreatLevel Float64,
    Description String,
    SourceTag   String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (ProfileID, TWID, Timestamp);
`

const createAlertTableStatement = `
CREATE TABLE IF NOT EXISTS alert_log (
    FormedAt    DateTime,
    AlertID     String,
    ProfileID   String,
    TWID        String,
    Severity    Float64,
    EvidenceIDs String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(FormedAt)
ORDER BY (ProfileID, TWID, FormedAt);
`

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter creates a new ClickHouse writer.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (model.Writer, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	for _, stmt := range []string{createEvidenceTableStatement, createAlertTableStatement} {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	log.Println("Successfully connected to ClickHouse and ensured tables exist.")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

// Connect opens a ClickHouse connection from config. Shared with the
// historical querier.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Write inserts a ledger snapshot into the evidence_log and alert_log
// tables.
func (w *ClickHouseWriter) Write(payload interface{}, timestamp string) error {
	snapshot, ok := payload.(ledger.SnapshotData)
	if !ok {
		return fmt.Errorf("invalid payload type for ClickHouseWriter: expected ledger.SnapshotData, got %T", payload)
	}

	ctx := context.Background()

	evBatch, err := w.conn.PrepareBatch(ctx, "INSERT INTO evidence_log")
	if err != nil {
		return fmt.Errorf("failed to prepare evidence batch: %w", err)
	}
	alBatch, err := w.conn.PrepareBatch(ctx, "INSERT INTO alert_log")
	if err != nil {
		return fmt.Errorf("failed to prepare alert batch: %w", err)
	}

	for _, win := range snapshot.Windows {
		for _, ev := range win.Evidence {
			if err := evBatch.Append(
				ev.Timestamp,
				ev.ID,
				ev.ProfileID,
				ev.TWID,
				string(ev.Kind),
				ev.ThreatLevel,
				ev.Description,
				ev.SourceTag,
			); err != nil {
				return fmt.Errorf("failed to append evidence row: %w", err)
			}
		}
		for _, alert := range win.Alerts {
			if err := alBatch.Append(
				alert.FormedAt,
				alert.ID,
				alert.ProfileID,
				alert.TWID,
				alert.Severity,
				strings.Join(alert.EvidenceIDs, ","),
			); err != nil {
				return fmt.Errorf("failed to append alert row: %w", err)
			}
		}
	}

	if err := evBatch.Send(); err != nil {
		return fmt.Errorf("failed to send evidence batch: %w", err)
	}
	if err := alBatch.Send(); err != nil {
		return fmt.Errorf("failed to send alert batch: %w", err)
	}
	return nil
}
