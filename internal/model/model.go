package model

import (
	"fmt"
	"time"
)

// Flow is an immutable observation produced by the ingestion boundary.
// Detectors read it; nothing mutates it after creation.
type Flow struct {
	SAddr string        `json:"saddr"`
	DAddr string        `json:"daddr"`
	SPort uint16        `json:"sport"`
	DPort uint16        `json:"dport"`
	Proto string        `json:"proto"`
	TS    time.Time     `json:"ts"`
	Dur   time.Duration `json:"dur"`
	State string        `json:"state"`
	// Note carries an upstream classifier's annotation, e.g. "Port_Scan"
	// or "Password_Guessing". Empty for plain traffic flows.
	Note string `json:"note,omitempty"`
}

// TupleKey identifies an in/out tuple within a timewindow: the peer
// address, peer port and protocol shared by a set of flows.
type TupleKey struct {
	PeerIP   string `json:"peer_ip"`
	PeerPort uint16 `json:"peer_port"`
	Proto    string `json:"proto"`
}

func (k TupleKey) String() string {
	return fmt.Sprintf("%s-%d-%s", k.PeerIP, k.PeerPort, k.Proto)
}

// Direction distinguishes tuples by which side of the profile the peer is on.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

func (d Direction) String() string {
	if d == DirectionIn {
		return "in"
	}
	return "out"
}

// TimewindowInfo describes one timewindow of a profile for read-model consumers.
type TimewindowInfo struct {
	TWID      string    `json:"twid"`
	Seq       int       `json:"seq"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// EvidenceKind enumerates the finding types the bundled detectors produce.
type EvidenceKind string

const (
	KindVerticalPortscan   EvidenceKind = "vertical-portscan"
	KindHorizontalPortscan EvidenceKind = "horizontal-portscan"
	KindPasswordGuessing   EvidenceKind = "password-guessing"
)

// Threat levels used by detectors when scoring evidence. The correlation
// rule sums these, so the values are meaningful as weights, not just ranks.
const (
	ThreatLevelLow      = 0.3
	ThreatLevelMedium   = 0.5
	ThreatLevelHigh     = 0.8
	ThreatLevelCritical = 1.0
)

// Evidence is a single finding emitted by exactly one detector module.
// Append-only: once recorded in the ledger it is never edited.
type Evidence struct {
	ID          string       `json:"id"`
	ProfileID   string       `json:"profileid"`
	TWID        string       `json:"twid"`
	Kind        EvidenceKind `json:"kind"`
	ThreatLevel float64      `json:"threat_level"`
	Description string       `json:"description"`
	Timestamp   time.Time    `json:"timestamp"`
	// SourceTag names the upstream classifier whose annotation triggered
	// the detector, e.g. "Zeek".
	SourceTag string `json:"source_tag,omitempty"`
}

// Alert is a correlated group of evidence for one (profile, timewindow),
// formed when the accumulated threat level crosses the detection threshold.
type Alert struct {
	ID          string    `json:"id"`
	ProfileID   string    `json:"profileid"`
	TWID        string    `json:"twid"`
	FormedAt    time.Time `json:"formed_at"`
	EvidenceIDs []string  `json:"evidence_ids"`
	// Severity is the accumulated threat level of the evidence that
	// formed this alert. The blocking tracker compares it against the
	// blocking threshold.
	Severity float64 `json:"severity"`
}
