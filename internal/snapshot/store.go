// Package snapshot holds the latest successfully decoded register values.
// The store is updated atomically once per poll cycle and hands out copies,
// never live references.
package snapshot

import (
	"sync"
	"time"

	"github.com/ovum-tools/acp-poller/internal/decode"
)

// Reading is one register's latest decoded value plus freshness state.
type Reading struct {
	Key       string
	Name      string
	Value     decode.Value
	Unit      string
	Group     string
	Timestamp time.Time // time of the last successful decode
	Stale     bool      // true when the most recent cycle failed for this key
}

// View is a point-in-time copy of the snapshot. Mutating it does not affect
// the store.
type View map[string]Reading

// Update carries one cycle's outcome into the store.
type Update struct {
	At       time.Time
	Readings []Reading // successfully decoded this cycle
	Failed   []string  // keys whose read or decode failed this cycle
}

// Store is safe for one writer (the poll loop) and any number of readers.
type Store struct {
	mu       sync.RWMutex
	readings map[string]Reading
}

func NewStore() *Store {
	return &Store{readings: make(map[string]Reading)}
}

// Apply merges a cycle's results. Fresh readings replace prior ones. Failed
// keys keep their last known value, flagged stale; a key that never had a
// value stays absent. Readers never observe a partially merged snapshot.
func (s *Store) Apply(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range u.Readings {
		r.Stale = false
		if r.Timestamp.IsZero() {
			r.Timestamp = u.At
		}
		s.readings[r.Key] = r
	}

	for _, key := range u.Failed {
		prev, ok := s.readings[key]
		if !ok {
			continue
		}
		prev.Stale = true
		s.readings[key] = prev
	}
}

// Current returns a copy of the latest snapshot.
func (s *Store) Current() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := make(View, len(s.readings))
	for k, r := range s.readings {
		view[k] = r
	}
	return view
}

// Get returns a single reading.
func (s *Store) Get(key string) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.readings[key]
	return r, ok
}
