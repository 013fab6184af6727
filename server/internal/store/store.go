package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// Entry is an agent's latest report together with the time it was received.
type Entry struct {
	Report     *types.Report
	ReceivedAt time.Time
}

// Store is a thread-safe in-memory report store, keyed by agent ID.
// Only the most recent report per agent is retained. A background goroutine
// (Run) periodically evicts entries that have not been updated within the TTL.
// A TTL of zero disables expiry.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores or replaces the report for r.AgentID. A report older than the
// one already held (lower cycle number from the same agent run) still
// replaces it: agents restart their cycle counter on restart.
// Callers must not modify r after calling Put.
func (s *Store) Put(r *types.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[r.AgentID] = &Entry{
		Report:     r,
		ReceivedAt: s.now(),
	}
}

// Get returns the live Entry for the given agent ID. Entries past their TTL
// are reported as missing even before Run evicts them.
func (s *Store) Get(agentID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[agentID]
	if !ok || !s.live(e, s.now()) {
		return nil, false
	}
	return e, true
}

// List returns all live entries ordered by agent ID.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	now := s.now()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if s.live(e, now) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Report.AgentID < out[j].Report.AgentID
	})
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose ReceivedAt is older than now minus TTL.
// It returns the IDs of the agents removed.
func (s *Store) Evict(now time.Time) []string {
	if s.ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, e := range s.data {
		if !s.live(e, now) {
			delete(s.data, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (s *Store) live(e *Entry, now time.Time) bool {
	return s.ttl <= 0 || e.ReceivedAt.After(now.Add(-s.ttl))
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and calls onEvict, when non-nil, with the agents removed.
// Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context, onEvict func(agentIDs []string)) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if ids := s.Evict(now); len(ids) > 0 {
				slog.Debug("store: evicted stale reports", "count", len(ids))
				if onEvict != nil {
					onEvict(ids)
				}
			}
		}
	}
}
