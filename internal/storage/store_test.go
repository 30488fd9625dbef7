package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockgate/mockgate/pkg/rule"
)

func route(id string, priority int, enabled bool, proxy string) *rule.RouteRule {
	r := &rule.RouteRule{
		ID:       id,
		Method:   "get",
		Path:     "/" + id,
		Kind:     rule.KindJSON,
		Priority: priority,
		Enabled:  &enabled,
	}
	if proxy != "" {
		r.Kind = rule.KindProxy
		r.ProxyTarget = proxy
	}
	return r
}

func TestReplaceSplitsAndSorts(t *testing.T) {
	s := NewMemoryStore()
	s.Replace([]*rule.RouteRule{
		route("c", 30, true, ""),
		route("a", 10, true, ""),
		route("p2", 20, true, "http://backend-b"),
		route("b", 20, true, ""),
		route("p1", 5, true, "http://backend-a"),
		route("off", 1, false, ""),
	})

	mocks := s.ActiveRoutes()
	require.Len(t, mocks, 3)
	assert.Equal(t, "a", mocks[0].ID)
	assert.Equal(t, "b", mocks[1].ID)
	assert.Equal(t, "c", mocks[2].ID)

	proxies := s.ActiveProxyRoutes()
	require.Len(t, proxies, 2)
	assert.Equal(t, "p1", proxies[0].ID)
	assert.Equal(t, "p2", proxies[1].ID)

	// Disabled routes stay out of active views but remain listable.
	assert.Equal(t, 6, s.Count())
	assert.NotNil(t, s.Get("off"))
}

func TestReplaceIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	s.Replace([]*rule.RouteRule{route("old", 1, true, "")})

	s.Replace([]*rule.RouteRule{route("new", 1, true, "")})

	mocks := s.ActiveRoutes()
	require.Len(t, mocks, 1)
	assert.Equal(t, "new", mocks[0].ID)
	assert.Nil(t, s.Get("old"))
}

func TestGetUnknown(t *testing.T) {
	s := NewMemoryStore()
	assert.Nil(t, s.Get("nope"))
}

func TestListCopies(t *testing.T) {
	s := NewMemoryStore()
	s.Replace([]*rule.RouteRule{route("x", 1, true, "")})

	list := s.List()
	list[0] = nil
	assert.NotNil(t, s.List()[0])
}
