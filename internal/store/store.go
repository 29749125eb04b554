package store

import (
	"FlowSentry/internal/model"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const defaultShardCount = 256

// windowState holds every aggregate scoped to one (profile, timewindow) key.
type windowState struct {
	info      model.TimewindowInfo
	inTuples  map[string][]string
	outTuples map[string][]string
	flows     []model.Flow
	timeline  []string
}

func newWindowState() *windowState {
	return &windowState{
		inTuples:  make(map[string][]string),
		outTuples: make(map[string][]string),
	}
}

// shard is a part of the sharded window map, with its own lock so writers
// on different keys do not contend.
type shard struct {
	mu      sync.RWMutex
	windows map[string]*windowState
}

// profileState tracks one monitored entity and its ordered timewindows.
type profileState struct {
	created time.Time
	twids   []string
}

// Store is the shared keyed storage for profiles, timewindows, tuples and
// flow timelines. All mutation goes through its per-key atomic operations;
// reads return point-in-time copies and never block concurrent writers on
// other keys.
type Store struct {
	shards     []*shard
	shardCount uint32

	pmu      sync.RWMutex
	profiles map[string]*profileState

	mmu      sync.Mutex
	modified map[string]time.Time

	closed atomic.Bool
}

// New creates a new in-memory store with the default shard count.
func New() *Store {
	s := &Store{
		shards:     make([]*shard, defaultShardCount),
		shardCount: defaultShardCount,
		profiles:   make(map[string]*profileState),
		modified:   make(map[string]time.Time),
	}
	for i := range s.shards {
		s.shards[i] = &shard{windows: make(map[string]*windowState)}
	}
	return s
}

// Close marks the store unavailable. Subsequent operations fail with
// model.ErrStoreUnavailable.
func (s *Store) Close() {
	s.closed.Store(true)
}

func windowKey(profileid, twid string) string {
	return profileid + "/" + twid
}

func (s *Store) getShard(key string) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return s.shards[hasher.Sum32()%s.shardCount]
}

func (s *Store) check() error {
	if s.closed.Load() {
		return model.ErrStoreUnavailable
	}
	return nil
}

func (s *Store) markModified(key string) {
	s.mmu.Lock()
	s.modified[key] = time.Now()
	s.mmu.Unlock()
}

// RegisterProfile creates the profile if it does not exist yet and reports
// whether it was new. Profiles are never deleted during a run.
func (s *Store) RegisterProfile(profileid string, created time.Time) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	s.pmu.Lock()
	defer s.pmu.Unlock()
	if _, ok := s.profiles[profileid]; ok {
		return false, nil
	}
	s.profiles[profileid] = &profileState{created: created}
	return true, nil
}

// RegisterTimewindow appends a new timewindow to the profile's ordered list
// and initializes its aggregate state.
func (s *Store) RegisterTimewindow(profileid string, info model.TimewindowInfo) error {
	if err := s.check(); err != nil {
		return err
	}
	s.pmu.Lock()
	p, ok := s.profiles[profileid]
	if !ok {
		p = &profileState{created: info.StartTime}
		s.profiles[profileid] = p
	}
	p.twids = append(p.twids, info.TWID)
	s.pmu.Unlock()

	key := windowKey(profileid, info.TWID)
	sh := s.getShard(key)
	sh.mu.Lock()
	w := sh.windows[key]
	if w == nil {
		w = newWindowState()
		sh.windows[key] = w
	}
	w.info = info
	sh.mu.Unlock()
	return nil
}

// window returns the state for a key, creating it on first write. Callers
// must hold the shard lock.
func (sh *shard) window(key string) *windowState {
	w := sh.windows[key]
	if w == nil {
		w = newWindowState()
		sh.windows[key] = w
	}
	return w
}

// RecordFlow persists a flow record under its (profile, timewindow) key.
func (s *Store) RecordFlow(profileid, twid string, flow model.Flow) error {
	if err := s.check(); err != nil {
		return err
	}
	key := windowKey(profileid, twid)
	sh := s.getShard(key)
	sh.mu.Lock()
	w := sh.window(key)
	w.flows = append(w.flows, flow)
	sh.mu.Unlock()
	s.markModified(key)
	return nil
}

// UpsertTuple appends the descriptor to the tuple's descriptor list,
// creating the tuple with a one-element list when the key is new. Prior
// descriptors are never dropped.
func (s *Store) UpsertTuple(profileid, twid string, dir model.Direction, tk model.TupleKey, descriptor string) error {
	if err := s.check(); err != nil {
		return err
	}
	key := windowKey(profileid, twid)
	sh := s.getShard(key)
	sh.mu.Lock()
	w := sh.window(key)
	tuples := w.inTuples
	if dir == model.DirectionOut {
		tuples = w.outTuples
	}
	tuples[tk.String()] = append(tuples[tk.String()], descriptor)
	sh.mu.Unlock()
	s.markModified(key)
	return nil
}

// AppendTimeline appends a human-readable entry for the flow to the
// window's timeline.
func (s *Store) AppendTimeline(profileid, twid string, flow model.Flow) error {
	if err := s.check(); err != nil {
		return err
	}
	entry := fmt.Sprintf("%s %s %s:%d -> %s:%d state=%s",
		flow.TS.Format(time.RFC3339), flow.Proto,
		flow.SAddr, flow.SPort, flow.DAddr, flow.DPort, flow.State)
	key := windowKey(profileid, twid)
	sh := s.getShard(key)
	sh.mu.Lock()
	w := sh.window(key)
	w.timeline = append(w.timeline, entry)
	sh.mu.Unlock()
	s.markModified(key)
	return nil
}

// GetProfiles returns the sorted set of known profile identifiers.
func (s *Store) GetProfiles() []string {
	s.pmu.RLock()
	defer s.pmu.RUnlock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetTimewindowsWithTimestamps returns the profile's ordered timewindow
// list with their time spans.
func (s *Store) GetTimewindowsWithTimestamps(profileid string) []model.TimewindowInfo {
	s.pmu.RLock()
	p, ok := s.profiles[profileid]
	if !ok {
		s.pmu.RUnlock()
		return nil
	}
	twids := append([]string(nil), p.twids...)
	s.pmu.RUnlock()

	infos := make([]model.TimewindowInfo, 0, len(twids))
	for _, twid := range twids {
		key := windowKey(profileid, twid)
		sh := s.getShard(key)
		sh.mu.RLock()
		if w, ok := sh.windows[key]; ok {
			infos = append(infos, w.info)
		}
		sh.mu.RUnlock()
	}
	return infos
}

// GetTuples returns a point-in-time copy of the window's tuple map for one
// direction.
func (s *Store) GetTuples(profileid, twid string, dir model.Direction) map[string][]string {
	key := windowKey(profileid, twid)
	sh := s.getShard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	w, ok := sh.windows[key]
	if !ok {
		return nil
	}
	tuples := w.inTuples
	if dir == model.DirectionOut {
		tuples = w.outTuples
	}
	out := make(map[string][]string, len(tuples))
	for k, v := range tuples {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// GetTimeline returns a point-in-time copy of the window's flow timeline.
func (s *Store) GetTimeline(profileid, twid string) []string {
	key := windowKey(profileid, twid)
	sh := s.getShard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	w, ok := sh.windows[key]
	if !ok {
		return nil
	}
	return append([]string(nil), w.timeline...)
}

// GetFlows returns a point-in-time copy of the raw flow records stored
// under the window.
func (s *Store) GetFlows(profileid, twid string) []model.Flow {
	key := windowKey(profileid, twid)
	sh := s.getShard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	w, ok := sh.windows[key]
	if !ok {
		return nil
	}
	return append([]model.Flow(nil), w.flows...)
}

// ModifiedSince returns the window keys written after the given instant.
// Incremental consumers use it as their watermark; late-arriving flows may
// resurface an already-read window, so reads are eventually consistent.
func (s *Store) ModifiedSince(since time.Time) []string {
	s.mmu.Lock()
	defer s.mmu.Unlock()
	var keys []string
	for key, at := range s.modified {
		if at.After(since) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
