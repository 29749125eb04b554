package blocking

import (
	"FlowSentry/internal/model"
	"log"
	"sort"
	"sync"
)

// Tracker derives per-(profile, timewindow) block state from formed
// alerts. A window moves Unblocked -> Blocked exactly once; re-triggering
// on an already-blocked window is a no-op, and the decision never reverts
// within a run. Detector modules never mutate this state directly.
type Tracker struct {
	blockThreshold float64

	mu      sync.RWMutex
	blocked map[string]map[string]bool // profileid -> twid set
}

// NewTracker creates a tracker with the given blocking threshold, which is
// typically higher than the alert-formation threshold.
func NewTracker(blockThreshold float64) *Tracker {
	return &Tracker{
		blockThreshold: blockThreshold,
		blocked:        make(map[string]map[string]bool),
	}
}

// HandleAlert consumes a formed alert and records a block when its
// aggregate severity meets the blocking policy. It is the AlertFunc wired
// into the ledger.
func (t *Tracker) HandleAlert(alert model.Alert) {
	if alert.Severity < t.blockThreshold {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	wins, ok := t.blocked[alert.ProfileID]
	if !ok {
		wins = make(map[string]bool)
		t.blocked[alert.ProfileID] = wins
	}
	if wins[alert.TWID] {
		return
	}
	wins[alert.TWID] = true
	log.Printf("Blocking %s in %s (severity %.2f)", alert.ProfileID, alert.TWID, alert.Severity)
}

// IsBlocked reports whether the profile is blocked in the given window.
func (t *Tracker) IsBlocked(profileid, twid string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.blocked[profileid][twid]
}

// BlockedTimewindows returns the sorted set of windows currently blocked
// for the profile.
func (t *Tracker) BlockedTimewindows(profileid string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	wins := t.blocked[profileid]
	out := make([]string, 0, len(wins))
	for twid := range wins {
		out = append(out, twid)
	}
	sort.Strings(out)
	return out
}
