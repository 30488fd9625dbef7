// Package activewait implements the parked-request registry: a resolved but
// undelivered response is held back until an operator releases it, optionally
// with an override payload.
package activewait

import (
	"context"
	"sync"
	"time"

	"github.com/mockgate/mockgate/internal/id"
	"github.com/mockgate/mockgate/pkg/rule"
)

// ParkedRequest is an in-flight request whose response is withheld pending
// manual release. It is owned exclusively by the Registry for its lifetime;
// the holding request handler only keeps the id.
type ParkedRequest struct {
	ID       string    `json:"id"`
	RouteID  string    `json:"routeId,omitempty"`
	Method   string    `json:"method"`
	Path     string    `json:"path"`
	ParkedAt time.Time `json:"parkedAt"`

	// Resolved is the response after condition evaluation, the one that will
	// be sent unless the release carries an override.
	Resolved rule.ResponseSpec `json:"resolved"`

	// Original is the route's pre-condition default response, kept for
	// operator reference.
	Original rule.ResponseSpec `json:"original"`

	// released receives the optional override exactly once.
	released chan *rule.Override
}

// Registry parks requests and wakes them on release. Each parked item is
// independent; parking never blocks the registry's ability to serve other
// requests or accept releases. Safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	items map[string]*ParkedRequest
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*ParkedRequest)}
}

// Park registers the item and suspends the caller until Release is invoked
// for its id or ctx is cancelled. On release it returns the operator's
// override, which may be nil. On cancellation the entry is removed and the
// context error returned, so a client disconnect cannot leak a parked entry.
func (r *Registry) Park(ctx context.Context, item *ParkedRequest) (*rule.Override, error) {
	if item.ID == "" {
		item.ID = id.New()
	}
	if item.ParkedAt.IsZero() {
		item.ParkedAt = time.Now()
	}
	item.released = make(chan *rule.Override, 1)

	r.mu.Lock()
	r.items[item.ID] = item
	r.order = append(r.order, item.ID)
	r.mu.Unlock()

	select {
	case override := <-item.released:
		return override, nil
	case <-ctx.Done():
		r.remove(item.ID)
		return nil, ctx.Err()
	}
}

// Release wakes the parked request with the given id, attaching the optional
// override. Returns false when the id is not parked — including a second
// release of the same id — which is a harmless no-op, not an error.
func (r *Registry) Release(id string, override *rule.Override) bool {
	r.mu.Lock()
	item, ok := r.items[id]
	if ok {
		r.removeLocked(id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	// Buffered channel: the send never blocks, and removal under the lock
	// guarantees the flag flips exactly once.
	item.released <- override
	return true
}

// List returns the currently parked requests in park order.
func (r *Registry) List() []*ParkedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ParkedRequest, 0, len(r.order))
	for _, id := range r.order {
		if item, ok := r.items[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

// Len returns the number of parked requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	r.removeLocked(id)
	r.mu.Unlock()
}

func (r *Registry) removeLocked(id string) {
	delete(r.items, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
