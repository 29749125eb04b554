package timewindow

import (
	"FlowSentry/internal/model"
	"FlowSentry/internal/store"
	"fmt"
	"log"
	"sync"
	"time"
)

// profileWindows tracks one profile's windowing state. The first flow seen
// for a profile anchors window one; subsequent windows are contiguous
// slices of the configured width.
type profileWindows struct {
	mu      sync.Mutex
	start   time.Time
	lastSeq int
}

// Manager assigns incoming flows to the correct (profile, timewindow)
// bucket, lazily creating profiles and sequential windows as time
// advances. New windows are announced on the bus for incremental
// consumers.
type Manager struct {
	width time.Duration
	store *store.Store
	pub   model.Publisher // may be nil when nothing listens

	mu       sync.Mutex
	profiles map[string]*profileWindows
}

// NewManager creates a timewindow manager over the given store.
func NewManager(width time.Duration, st *store.Store, pub model.Publisher) *Manager {
	return &Manager{
		width:    width,
		store:    st,
		pub:      pub,
		profiles: make(map[string]*profileWindows),
	}
}

// SetPublisher wires the bus publisher used for new_timewindow
// notifications. Safe to leave unset in tests.
func (m *Manager) SetPublisher(pub model.Publisher) {
	m.pub = pub
}

// TWID formats a window sequence number as its identifier.
func TWID(seq int) string {
	return fmt.Sprintf("timewindow%d", seq)
}

func (m *Manager) profile(profileid string) *profileWindows {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[profileid]
	if !ok {
		p = &profileWindows{}
		m.profiles[profileid] = p
	}
	return p
}

// Resolve returns the timewindow identifier owning the given timestamp for
// the profile, creating the profile and any missing windows on the way.
// isNew reports whether resolution created at least one new window.
// Flows older than the profile's most recent window are routed back to the
// window that owns their timestamp; consumers of already-read windows must
// tolerate eventually-consistent reads.
func (m *Manager) Resolve(profileid string, ts time.Time) (twid string, isNew bool, err error) {
	if profileid == "" {
		return "", false, fmt.Errorf("empty profileid")
	}
	if ts.IsZero() || ts.Unix() <= 0 {
		return "", false, fmt.Errorf("%w: %v", model.ErrInvalidTimestamp, ts)
	}

	p := m.profile(profileid)
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastSeq == 0 {
		// First flow for this entity anchors the profile.
		if _, err := m.store.RegisterProfile(profileid, ts); err != nil {
			return "", false, err
		}
		p.start = ts
	}

	seq := int(ts.Sub(p.start)/m.width) + 1
	if seq < 1 {
		// Earlier than the profile anchor: route to the first window
		// rather than rejecting the late arrival.
		seq = 1
	}

	if seq <= p.lastSeq {
		return TWID(seq), false, nil
	}

	// Create every window between the last known one and the one owning
	// this timestamp, keeping sequence numbers contiguous.
	for next := p.lastSeq + 1; next <= seq; next++ {
		info := model.TimewindowInfo{
			TWID:      TWID(next),
			Seq:       next,
			StartTime: p.start.Add(time.Duration(next-1) * m.width),
			EndTime:   p.start.Add(time.Duration(next) * m.width),
		}
		if err := m.store.RegisterTimewindow(profileid, info); err != nil {
			return "", false, err
		}
		m.announce(profileid, info.TWID)
	}
	p.lastSeq = seq
	return TWID(seq), true, nil
}

func (m *Manager) announce(profileid, twid string) {
	if m.pub == nil {
		return
	}
	env := &model.Envelope{
		Topic:     model.TopicNewTimewindow,
		ProfileID: profileid,
		TWID:      twid,
	}
	if err := m.pub.Publish(env); err != nil {
		log.Printf("Failed to publish new_timewindow for %s/%s: %v", profileid, twid, err)
	}
}
