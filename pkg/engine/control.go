package engine

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mockgate/mockgate/pkg/httputil"
	"github.com/mockgate/mockgate/pkg/requestlog"
	"github.com/mockgate/mockgate/pkg/rule"
)

// entryLister is satisfied by requestlog.MemoryStore. When the configured
// request logger does not retain entries, the requests endpoint 404s.
type entryLister interface {
	List(limit int) []*requestlog.Entry
}

// controlMux builds the operator-facing control surface under
// ControlPrefix: health probes, the parked-request list, the release
// trigger, and recent request diagnostics.
func (h *Handler) controlMux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /__mockgate/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /__mockgate/ready", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	mux.HandleFunc("GET /__mockgate/waiting", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"waiting": h.registry.List(),
		})
	})

	mux.HandleFunc("POST /__mockgate/waiting/{id}/release", h.handleRelease)

	mux.HandleFunc("GET /__mockgate/requests", func(w http.ResponseWriter, r *http.Request) {
		lister, ok := h.reqlog.(entryLister)
		if !ok {
			httputil.WriteNotFound(w, "no_request_log", "request logging is not retained")
			return
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"requests": lister.List(limit),
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "unknown_control_path", "unknown control endpoint "+r.URL.Path)
	})

	return mux
}

// handleRelease wakes a parked request. The body may carry an override for
// any of the four response fields; an empty body releases with the resolved
// response untouched.
func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	parkID := r.PathValue("id")

	var override *rule.Override
	if r.ContentLength != 0 {
		var o rule.Override
		if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
			httputil.WriteBadRequest(w, "invalid_override", "override body must be JSON")
			return
		}
		override = &o
	}

	if !h.registry.Release(parkID, override) {
		httputil.WriteNotFound(w, "not_parked", "no parked request with id "+parkID)
		return
	}

	h.log.Info("released parked request", "id", parkID, "override", override != nil)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"released": true, "id": parkID})
}
