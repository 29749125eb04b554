package ledger

import (
	"FlowSentry/internal/model"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const defaultShardCount = 256

// windowEvidence holds the accumulated findings for one (profile,
// timewindow) key. pending tracks evidence inserted since the last alert;
// its threat levels sum to pendingSum.
type windowEvidence struct {
	evidence   map[string]model.Evidence
	alerts     []model.Alert
	pending    []string
	pendingSum float64
	total      float64
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*windowEvidence
}

// AlertFunc is invoked once for every alert the correlation rule forms.
type AlertFunc func(alert model.Alert)

// Ledger accumulates evidence per (profile, timewindow), deduplicates by
// identifier, and forms alerts when the accumulated threat level crosses
// the configured threshold. Insertion and correlation for one key are
// serialized under the key's shard lock; different keys proceed in
// parallel.
type Ledger struct {
	shards         []*shard
	shardCount     uint32
	alertThreshold float64

	mu        sync.RWMutex
	onAlert   []AlertFunc
	evidenceN atomic.Int64

	closed atomic.Bool
}

// New creates a ledger with the given alert-formation threshold.
func New(alertThreshold float64) *Ledger {
	l := &Ledger{
		shards:         make([]*shard, defaultShardCount),
		shardCount:     defaultShardCount,
		alertThreshold: alertThreshold,
	}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*windowEvidence)}
	}
	return l
}

// OnAlert registers a callback for formed alerts. Callbacks run outside
// the shard lock, after the alert is durable in the ledger.
func (l *Ledger) OnAlert(fn AlertFunc) {
	l.mu.Lock()
	l.onAlert = append(l.onAlert, fn)
	l.mu.Unlock()
}

// Close marks the ledger unavailable.
func (l *Ledger) Close() {
	l.closed.Store(true)
}

func windowKey(profileid, twid string) string {
	return profileid + "/" + twid
}

func (l *Ledger) getShard(key string) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return l.shards[hasher.Sum32()%l.shardCount]
}

// AddEvidence appends a finding to the (profile, timewindow) evidence set
// and atomically re-evaluates the correlation rule for that key. A missing
// identifier is assigned; inserting an identifier already present is a
// no-op and returns the existing id, keeping the operation idempotent.
func (l *Ledger) AddEvidence(profileid, twid string, ev model.Evidence) (string, error) {
	if l.closed.Load() {
		return "", model.ErrStoreUnavailable
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.ProfileID = profileid
	ev.TWID = twid

	key := windowKey(profileid, twid)
	sh := l.getShard(key)

	var formed *model.Alert
	sh.mu.Lock()
	w := sh.windows[key]
	if w == nil {
		w = &windowEvidence{evidence: make(map[string]model.Evidence)}
		sh.windows[key] = w
	}
	if _, dup := w.evidence[ev.ID]; dup {
		sh.mu.Unlock()
		return ev.ID, nil
	}
	w.evidence[ev.ID] = ev
	w.pending = append(w.pending, ev.ID)
	w.pendingSum += ev.ThreatLevel
	w.total += ev.ThreatLevel
	l.evidenceN.Add(1)

	if w.pendingSum >= l.alertThreshold {
		alert := model.Alert{
			ID:          uuid.NewString(),
			ProfileID:   profileid,
			TWID:        twid,
			FormedAt:    time.Now(),
			EvidenceIDs: append([]string(nil), w.pending...),
			Severity:    w.pendingSum,
		}
		w.alerts = append(w.alerts, alert)
		w.pending = w.pending[:0]
		w.pendingSum = 0
		formed = &alert
	}
	sh.mu.Unlock()

	if formed != nil {
		l.mu.RLock()
		callbacks := append([]AlertFunc(nil), l.onAlert...)
		l.mu.RUnlock()
		for _, fn := range callbacks {
			fn(*formed)
		}
	}
	return ev.ID, nil
}

// GetEvidence returns a point-in-time copy of the window's evidence map.
func (l *Ledger) GetEvidence(profileid, twid string) map[string]model.Evidence {
	key := windowKey(profileid, twid)
	sh := l.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	w, ok := sh.windows[key]
	if !ok {
		return nil
	}
	out := make(map[string]model.Evidence, len(w.evidence))
	for id, ev := range w.evidence {
		out[id] = ev
	}
	return out
}

// GetAlerts returns a point-in-time copy of the window's alerts.
func (l *Ledger) GetAlerts(profileid, twid string) []model.Alert {
	key := windowKey(profileid, twid)
	sh := l.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	w, ok := sh.windows[key]
	if !ok {
		return nil
	}
	return append([]model.Alert(nil), w.alerts...)
}

// AccumulatedThreatLevel returns the running severity total for the
// window. It is monotonically non-decreasing as evidence is added.
func (l *Ledger) AccumulatedThreatLevel(profileid, twid string) float64 {
	key := windowKey(profileid, twid)
	sh := l.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	w, ok := sh.windows[key]
	if !ok {
		return 0
	}
	return w.total
}

// WindowSnapshot is the exported state of one (profile, timewindow) key.
type WindowSnapshot struct {
	ProfileID string
	TWID      string
	Evidence  []model.Evidence
	Alerts    []model.Alert
}

// SnapshotData is the full ledger snapshot handed to writers.
type SnapshotData struct {
	Windows []WindowSnapshot
}

// Snapshot returns a point-in-time copy of the whole ledger, ordered by
// window key for stable output.
func (l *Ledger) Snapshot() SnapshotData {
	var snap SnapshotData
	for _, sh := range l.shards {
		sh.mu.Lock()
		for _, w := range sh.windows {
			if len(w.evidence) == 0 {
				continue
			}
			var ws WindowSnapshot
			for _, ev := range w.evidence {
				ws.Evidence = append(ws.Evidence, ev)
				ws.ProfileID = ev.ProfileID
				ws.TWID = ev.TWID
			}
			ws.Alerts = append(ws.Alerts, w.alerts...)
			snap.Windows = append(snap.Windows, ws)
		}
		sh.mu.Unlock()
	}
	sort.Slice(snap.Windows, func(i, j int) bool {
		if snap.Windows[i].ProfileID != snap.Windows[j].ProfileID {
			return snap.Windows[i].ProfileID < snap.Windows[j].ProfileID
		}
		return snap.Windows[i].TWID < snap.Windows[j].TWID
	})
	for _, ws := range snap.Windows {
		sort.Slice(ws.Evidence, func(i, j int) bool {
			return ws.Evidence[i].Timestamp.Before(ws.Evidence[j].Timestamp)
		})
	}
	return snap
}

// EvidenceCount returns the total number of distinct findings recorded.
func (l *Ledger) EvidenceCount() int64 {
	return l.evidenceN.Load()
}
