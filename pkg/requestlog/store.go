package requestlog

import (
	"sync"
)

// DefaultCapacity is the number of entries the ring retains before evicting
// the oldest.
const DefaultCapacity = 1000

// subscriberBuffer is the channel depth per subscriber. Slow subscribers
// drop entries rather than block request handling.
const subscriberBuffer = 64

// MemoryStore is a bounded in-memory ring of request log entries with
// fan-out to live subscribers. It implements Logger.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     []*Entry
	capacity    int
	subscribers map[chan *Entry]struct{}
}

// NewMemoryStore creates a store retaining up to capacity entries.
// A capacity <= 0 uses DefaultCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity:    capacity,
		subscribers: make(map[chan *Entry]struct{}),
	}
}

// Log appends an entry, evicting the oldest when full, and publishes it to
// subscribers without blocking.
func (s *MemoryStore) Log(entry *Entry) {
	if entry == nil {
		return
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
	for ch := range s.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
	s.mu.Unlock()
}

// List returns the retained entries, newest first, up to limit.
// A limit <= 0 returns all retained entries.
func (s *MemoryStore) List(limit int) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entries)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*Entry, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.entries[n-1-i]
	}
	return out
}

// Get returns the entry with the given ID, or nil.
func (s *MemoryStore) Get(entryID string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.ID == entryID {
			return e
		}
	}
	return nil
}

// Count returns the number of retained entries.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all retained entries. Subscribers are unaffected.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

// Subscribe registers a live tail of new entries. The returned cancel
// function must be called to release the subscription.
func (s *MemoryStore) Subscribe() (<-chan *Entry, func()) {
	ch := make(chan *Entry, subscriberBuffer)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}
