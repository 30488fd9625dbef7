// Package requestlog records gateway traffic for diagnostics. Every handled
// request produces an Entry describing how it was matched and answered,
// stored in a bounded in-memory ring that live subscribers can tail.
package requestlog

import (
	"time"

	"github.com/mockgate/mockgate/internal/id"
	"github.com/mockgate/mockgate/pkg/util"
)

// Outcome describes how the gateway answered a request.
type Outcome string

// Entry outcomes.
const (
	OutcomeMock     Outcome = "mock"
	OutcomeProxy    Outcome = "proxy"
	OutcomeFallback Outcome = "fallback"
	OutcomeParked   Outcome = "parked"
	OutcomeNoMatch  Outcome = "no_match"
	OutcomeError    Outcome = "error"
)

// Entry is a single logged request/response exchange.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Request side.
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   string            `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`

	// How the request was resolved.
	Outcome    Outcome `json:"outcome"`
	RouteID    string  `json:"route_id,omitempty"`
	Target     string  `json:"target,omitempty"`
	FallbackID string  `json:"fallback_id,omitempty"`

	// Response side.
	Status       int    `json:"status"`
	ResponseBody string `json:"response_body,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

// NewEntry creates an Entry with a generated ID and the current timestamp.
// Bodies are truncated to the diagnostic cap.
func NewEntry(method, path string) *Entry {
	return &Entry{
		ID:        id.New(),
		Timestamp: time.Now().UTC(),
		Method:    method,
		Path:      path,
	}
}

// SetBody stores a truncated copy of the request body.
func (e *Entry) SetBody(body string) {
	e.Body = util.TruncateBody(body, util.MaxLogBodySize)
}

// SetResponseBody stores a truncated copy of the response body.
func (e *Entry) SetResponseBody(body string) {
	e.ResponseBody = util.TruncateBody(body, util.MaxLogBodySize)
}

// Logger receives entries as requests complete.
type Logger interface {
	Log(entry *Entry)
}

// NopLogger discards all entries.
type NopLogger struct{}

// Log implements Logger.
func (NopLogger) Log(*Entry) {}
