package query

import (
	"FlowSentry/internal/config"
	"FlowSentry/internal/export"
	"FlowSentry/internal/model"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// AlertRow is one historical alert as stored in ClickHouse.
type AlertRow struct {
	FormedAt    time.Time `json:"formed_at"`
	AlertID     string    `json:"alert_id"`
	ProfileID   string    `json:"profileid"`
	TWID        string    `json:"twid"`
	Severity    float64   `json:"severity"`
	EvidenceIDs []string  `json:"evidence_ids"`
}

// Querier defines the interface for querying exported evidence history.
type Querier interface {
	ListEvidence(ctx context.Context, profileid, twid string) ([]model.Evidence, error)
	ListAlerts(ctx context.Context, profileid string) ([]AlertRow, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := export.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

// ListEvidence returns the exported evidence for one (profile, timewindow),
// ordered by source timestamp.
func (q *clickhouseQuerier) ListEvidence(ctx context.Context, profileid, twid string) ([]model.Evidence, error) {
	const stmt = `
		SELECT DISTINCT EvidenceID, ProfileID, TWID, Kind, ThreatLevel, Description, SourceTag, Timestamp
		FROM evidence_log
		WHERE ProfileID = ? AND TWID = ?
		ORDER BY Timestamp`

	rows, err := q.conn.Query(ctx, stmt, profileid, twid)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	var out []model.Evidence
	for rows.Next() {
		var ev model.Evidence
		var kind string
		if err := rows.Scan(&ev.ID, &ev.ProfileID, &ev.TWID, &kind, &ev.ThreatLevel, &ev.Description, &ev.SourceTag, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan evidence row: %w", err)
		}
		ev.Kind = model.EvidenceKind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListAlerts returns the exported alerts for one profile across all its
// timewindows.
func (q *clickhouseQuerier) ListAlerts(ctx context.Context, profileid string) ([]AlertRow, error) {
	const stmt = `
		SELECT DISTINCT FormedAt, AlertID, ProfileID, TWID, Severity, EvidenceIDs
		FROM alert_log
		WHERE ProfileID = ?
		ORDER BY FormedAt`

	rows, err := q.conn.Query(ctx, stmt, profileid)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertRow
	for rows.Next() {
		var row AlertRow
		var evidenceIDs string
		if err := rows.Scan(&row.FormedAt, &row.AlertID, &row.ProfileID, &row.TWID, &row.Severity, &evidenceIDs); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		if evidenceIDs != "" {
			row.EvidenceIDs = strings.Split(evidenceIDs, ",")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
