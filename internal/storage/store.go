// Package storage holds the in-memory rule set served by the gateway.
// Rules are loaded as a snapshot and replaced atomically on reload.
package storage

import (
	"sort"
	"sync"

	"github.com/mockgate/mockgate/pkg/rule"
)

// RuleStore provides read access to the active rule set.
type RuleStore interface {
	// ActiveRoutes returns enabled non-proxy routes sorted by ascending
	// priority.
	ActiveRoutes() []*rule.RouteRule

	// ActiveProxyRoutes returns enabled proxy routes sorted by ascending
	// priority.
	ActiveProxyRoutes() []*rule.RouteRule

	// Get returns the route with the given ID, or nil.
	Get(routeID string) *rule.RouteRule
}

// MemoryStore is a snapshot-based RuleStore. Replace swaps the whole rule
// set under a write lock; readers see either the old or the new snapshot,
// never a mix.
type MemoryStore struct {
	mu     sync.RWMutex
	routes []*rule.RouteRule

	// Derived views, rebuilt on Replace.
	mocks   []*rule.RouteRule
	proxies []*rule.RouteRule
	byID    map[string]*rule.RouteRule
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*rule.RouteRule)}
}

// Replace swaps the entire rule set atomically.
func (s *MemoryStore) Replace(routes []*rule.RouteRule) {
	mocks := make([]*rule.RouteRule, 0, len(routes))
	proxies := make([]*rule.RouteRule, 0)
	byID := make(map[string]*rule.RouteRule, len(routes))

	for _, r := range routes {
		byID[r.ID] = r
		if !r.IsEnabled() {
			continue
		}
		if r.IsProxy() {
			proxies = append(proxies, r)
		} else {
			mocks = append(mocks, r)
		}
	}

	sort.SliceStable(mocks, func(i, j int) bool { return mocks[i].Priority < mocks[j].Priority })
	sort.SliceStable(proxies, func(i, j int) bool { return proxies[i].Priority < proxies[j].Priority })

	s.mu.Lock()
	s.routes = routes
	s.mocks = mocks
	s.proxies = proxies
	s.byID = byID
	s.mu.Unlock()
}

// ActiveRoutes implements RuleStore.
func (s *MemoryStore) ActiveRoutes() []*rule.RouteRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mocks
}

// ActiveProxyRoutes implements RuleStore.
func (s *MemoryStore) ActiveProxyRoutes() []*rule.RouteRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxies
}

// Get implements RuleStore.
func (s *MemoryStore) Get(routeID string) *rule.RouteRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[routeID]
}

// List returns all routes in the current snapshot, including disabled ones.
func (s *MemoryStore) List() []*rule.RouteRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*rule.RouteRule, len(s.routes))
	copy(out, s.routes)
	return out
}

// Count returns the total number of routes in the snapshot.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.routes)
}
