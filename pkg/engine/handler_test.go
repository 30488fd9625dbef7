package engine

import (
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockgate/mockgate/internal/storage"
	"github.com/mockgate/mockgate/pkg/logging"
	"github.com/mockgate/mockgate/pkg/requestlog"
	"github.com/mockgate/mockgate/pkg/rule"
)

func newTestHandler(t *testing.T, routes ...*rule.RouteRule) (*Handler, *requestlog.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	store.Replace(routes)
	reqlog := requestlog.NewMemoryStore(100)
	h := NewHandler(HandlerConfig{
		Store:      store,
		RequestLog: reqlog,
		Log:        logging.Nop(),
	})
	return h, reqlog
}

func do(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMockJSONRoundTrip(t *testing.T) {
	h, _ := newTestHandler(t,
		&rule.RouteRule{ID: "ok", Method: "get", Path: "/api/data", Kind: rule.KindJSON, Body: `{"a":1}`},
		&rule.RouteRule{ID: "bad", Method: "get", Path: "/api/bad", Kind: rule.KindJSON, Body: `{invalid`},
	)

	rec := do(h, "GET", "http://gw/api/data", "", nil)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, rec.Body.String())

	// Malformed JSON degrades to an empty object, never a 5xx.
	rec = do(h, "GET", "http://gw/api/bad", "", nil)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, `{}`, rec.Body.String())
}

func TestLiteralBeatsRegex(t *testing.T) {
	h, _ := newTestHandler(t,
		&rule.RouteRule{ID: "re", Method: "get", Path: "^/api/.*", PathIsRegex: true, Kind: rule.KindText, Body: "regex", Priority: 1},
		&rule.RouteRule{ID: "lit", Method: "get", Path: "/api/data", Kind: rule.KindText, Body: "literal", Priority: 99},
	)

	rec := do(h, "GET", "http://gw/api/data", "", nil)
	assert.Equal(t, "literal", rec.Body.String())

	rec = do(h, "GET", "http://gw/api/other", "", nil)
	assert.Equal(t, "regex", rec.Body.String())
}

func TestConditionOverride(t *testing.T) {
	status503 := 503
	body := `{"maintenance":true}`
	h, _ := newTestHandler(t, &rule.RouteRule{
		ID: "r", Method: "get", Path: "/api/data", Kind: rule.KindJSON, Body: `{"ok":true}`,
		Conditions: []rule.ConditionRule{
			{ID: "c1", Criteria: `headers["x-mode"] == "maintenance"`, StatusCode: &status503, Body: &body, Order: 1},
		},
	})

	rec := do(h, "GET", "http://gw/api/data", "", map[string]string{"X-Mode": "maintenance"})
	assert.Equal(t, 503, rec.Code)
	assert.Contains(t, rec.Body.String(), "maintenance")

	rec = do(h, "GET", "http://gw/api/data", "", nil)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestConditionSeesBodyAndQuery(t *testing.T) {
	status201 := 201
	h, _ := newTestHandler(t, &rule.RouteRule{
		ID: "r", Method: "post", Path: "/orders", Kind: rule.KindJSON, Body: `{}`,
		Conditions: []rule.ConditionRule{
			{ID: "c1", Criteria: `body.qty > 1 && query["fast"] == "yes"`, StatusCode: &status201, Order: 1},
		},
	})

	rec := do(h, "POST", "http://gw/orders?fast=yes", `{"qty":2}`, nil)
	assert.Equal(t, 201, rec.Code)

	rec = do(h, "POST", "http://gw/orders?fast=yes", `{"qty":1}`, nil)
	assert.Equal(t, 200, rec.Code)
}

func TestNoMatch404(t *testing.T) {
	h, reqlog := newTestHandler(t)

	rec := do(h, "GET", "http://gw/nothing", "", nil)
	assert.Equal(t, 404, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no_match", body["error"])

	entries := reqlog.List(0)
	require.Len(t, entries, 1)
	assert.Equal(t, requestlog.OutcomeNoMatch, entries[0].Outcome)
}

func TestHeadFallsBackToGet(t *testing.T) {
	h, _ := newTestHandler(t,
		&rule.RouteRule{ID: "r", Method: "get", Path: "/api/data", Kind: rule.KindJSON, Body: `{"a":1}`},
	)

	rec := do(h, "HEAD", "http://gw/api/data", "", nil)
	assert.Equal(t, 200, rec.Code)
}

func TestActiveWaitParkAndRelease(t *testing.T) {
	h, reqlog := newTestHandler(t, &rule.RouteRule{
		ID: "r", Method: "get", Path: "/slow", Kind: rule.KindJSON, Body: `{"held":true}`,
		ActiveWait: true,
	})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- do(h, "GET", "http://gw/slow", "", nil)
	}()

	// Wait for the request to park, then inspect it via the control surface.
	require.Eventually(t, func() bool { return h.Registry().Len() == 1 }, time.Second, 5*time.Millisecond)

	rec := do(h, "GET", "http://gw/__mockgate/waiting", "", nil)
	assert.Equal(t, 200, rec.Code)
	var waiting struct {
		Waiting []struct {
			ID   string `json:"id"`
			Path string `json:"path"`
		} `json:"waiting"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &waiting))
	require.Len(t, waiting.Waiting, 1)
	assert.Equal(t, "/slow", waiting.Waiting[0].Path)

	// Release with an override.
	id := waiting.Waiting[0].ID
	rec = do(h, "POST", "http://gw/__mockgate/waiting/"+id+"/release", `{"statusCode":418,"body":"{\"overridden\":true}"}`, nil)
	assert.Equal(t, 200, rec.Code)

	select {
	case result := <-done:
		assert.Equal(t, 418, result.Code)
		assert.Contains(t, result.Body.String(), "overridden")
	case <-time.After(time.Second):
		t.Fatal("parked request never completed")
	}

	// Second release of the same id is a no-op 404.
	rec = do(h, "POST", "http://gw/__mockgate/waiting/"+id+"/release", "", nil)
	assert.Equal(t, 404, rec.Code)

	entries := reqlog.List(0)
	found := false
	for _, e := range entries {
		if e.Outcome == requestlog.OutcomeParked {
			found = true
		}
	}
	assert.True(t, found)
}

func TestControlHealth(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(h, "GET", "http://gw/__mockgate/health", "", nil)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")

	rec = do(h, "GET", "http://gw/__mockgate/nope", "", nil)
	assert.Equal(t, 404, rec.Code)
}

func TestControlRequestsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t,
		&rule.RouteRule{ID: "r", Method: "get", Path: "/x", Kind: rule.KindText, Body: "x"},
	)

	do(h, "GET", "http://gw/x", "", nil)

	rec := do(h, "GET", "http://gw/__mockgate/requests?limit=10", "", nil)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/x"`)
}

func TestProxyTimeoutYields504(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer upstream.Close()

	h, reqlog := newTestHandler(t, &rule.RouteRule{
		ID: "p", Method: rule.MethodAny, Path: "/ext/", Kind: rule.KindProxy,
		ProxyTarget: upstream.URL, ProxyTimeoutMs: 50,
	})

	rec := do(h, "GET", "http://gw/ext/orders/5?x=1", "", nil)
	assert.Equal(t, 504, rec.Code)
	assert.Contains(t, rec.Body.String(), "50")

	entries := reqlog.List(0)
	require.Len(t, entries, 1)
	assert.Equal(t, requestlog.OutcomeError, entries[0].Outcome)
}

func TestProxySuccessRelaysDecompressed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/5", r.URL.Path)
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(`{"order":5}`))
		_ = gz.Close()
	}))
	defer upstream.Close()

	h, reqlog := newTestHandler(t, &rule.RouteRule{
		ID: "p", Method: rule.MethodAny, Path: "/ext/", Kind: rule.KindProxy,
		ProxyTarget: upstream.URL,
		Headers: []rule.HeaderTransform{
			{Op: rule.HeaderSet, Name: "X-Via", Value: "mockgate"},
		},
	})

	rec := do(h, "GET", "http://gw/ext/orders/5", "", nil)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, `{"order":5}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "mockgate", rec.Header().Get("X-Via"))

	entries := reqlog.List(0)
	require.Len(t, entries, 1)
	assert.Equal(t, requestlog.OutcomeProxy, entries[0].Outcome)
	assert.Equal(t, upstream.URL, entries[0].Target)
}

func TestProxy5xxSelectsFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer upstream.Close()

	h, reqlog := newTestHandler(t, &rule.RouteRule{
		ID: "p", Method: rule.MethodAny, Path: "/ext/", Kind: rule.KindProxy,
		ProxyTarget: upstream.URL,
		Fallbacks: []rule.ProxyFallbackRule{
			{
				Name: "degraded", PathPattern: ".*",
				ErrorClasses: []rule.ErrorClass{rule.ErrorHTTP5xx},
				StatusCode:   200, Kind: rule.KindJSON, Body: `{"cached":true}`,
			},
		},
	})

	rec := do(h, "GET", "http://gw/ext/orders", "", nil)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "cached")
	assert.Equal(t, "degraded", rec.Header().Get("X-Mockgate-Fallback"))

	entries := reqlog.List(0)
	require.Len(t, entries, 1)
	assert.Equal(t, requestlog.OutcomeFallback, entries[0].Outcome)
	assert.Equal(t, "degraded", entries[0].FallbackID)
}

func TestProxy5xxWithoutFallbackRelays(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
		_, _ = w.Write([]byte("upstream says no"))
	}))
	defer upstream.Close()

	h, _ := newTestHandler(t, &rule.RouteRule{
		ID: "p", Method: rule.MethodAny, Path: "/ext/", Kind: rule.KindProxy,
		ProxyTarget: upstream.URL,
	})

	rec := do(h, "GET", "http://gw/ext/orders", "", nil)
	assert.Equal(t, 503, rec.Code)
	assert.Equal(t, "upstream says no", rec.Body.String())
}

func TestMockRuleShadowsProxyRule(t *testing.T) {
	h, _ := newTestHandler(t,
		&rule.RouteRule{ID: "m", Method: "get", Path: "/api/data", Kind: rule.KindText, Body: "mocked"},
		&rule.RouteRule{ID: "p", Method: rule.MethodAny, Path: "^/api/", PathIsRegex: true, Kind: rule.KindProxy, ProxyTarget: "http://192.0.2.1:9"},
	)

	// The mock pass runs first, so the proxy is never consulted for this path.
	rec := do(h, "GET", "http://gw/api/data", "", nil)
	assert.Equal(t, "mocked", rec.Body.String())
}

func TestBodyTooLarge(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(h, "POST", "http://gw/x", strings.Repeat("a", MaxBodyBytes+1), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
