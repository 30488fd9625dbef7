package respond

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockgate/mockgate/pkg/logging"
	"github.com/mockgate/mockgate/pkg/render"
	"github.com/mockgate/mockgate/pkg/rule"
	"github.com/mockgate/mockgate/pkg/upload"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("stored"), 0644))
	return NewRenderer(upload.NewResolver(dir), render.NewHTMLRenderer(), logging.Nop())
}

func TestWriteJSONKind(t *testing.T) {
	r := newRenderer(t)

	tests := []struct {
		name     string
		body     string
		wantBody string
	}{
		{"valid object", `{"a": 1}`, `{"a":1}`},
		{"valid array", `[1, 2]`, `[1,2]`},
		{"malformed degrades to empty object", `{"a":`, `{}`},
		{"empty body", ``, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			status := r.Write(rec, rule.ResponseSpec{StatusCode: 200, Kind: rule.KindJSON, Body: tt.body})
			assert.Equal(t, 200, status)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestWriteTextKinds(t *testing.T) {
	r := newRenderer(t)

	tests := []struct {
		kind        rule.ResponseKind
		contentType string
	}{
		{rule.KindText, "text/plain; charset=utf-8"},
		{rule.KindHTML, "text/html; charset=utf-8"},
		{rule.KindXML, "application/xml"},
		{rule.KindSOAP, "text/xml; charset=utf-8"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.Write(rec, rule.ResponseSpec{StatusCode: 200, Kind: tt.kind, Body: "<x/>"})
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			assert.Equal(t, "<x/>", rec.Body.String())
		})
	}
}

func TestWriteSOAPActionHeader(t *testing.T) {
	r := newRenderer(t)
	rec := httptest.NewRecorder()
	r.Write(rec, rule.ResponseSpec{StatusCode: 200, Kind: rule.KindSOAP, Body: "<Envelope/>"})
	assert.Equal(t, `""`, rec.Header().Get("SOAPAction"))
}

func TestWriteRedirect(t *testing.T) {
	r := newRenderer(t)

	rec := httptest.NewRecorder()
	status := r.Write(rec, rule.ResponseSpec{StatusCode: 200, Kind: rule.KindRedirect, Body: "https://example.com/next"})
	assert.Equal(t, 301, status)
	assert.Equal(t, "https://example.com/next", rec.Header().Get("Location"))

	// An explicit 3xx status is honored.
	rec = httptest.NewRecorder()
	status = r.Write(rec, rule.ResponseSpec{StatusCode: 307, Kind: rule.KindRedirect, Body: "/other"})
	assert.Equal(t, 307, status)
}

func TestWriteEmpty(t *testing.T) {
	r := newRenderer(t)
	rec := httptest.NewRecorder()
	status := r.Write(rec, rule.ResponseSpec{StatusCode: 204, Kind: rule.KindEmpty})
	assert.Equal(t, 204, status)
	assert.Empty(t, rec.Body.String())
}

func TestWriteFile(t *testing.T) {
	r := newRenderer(t)

	rec := httptest.NewRecorder()
	status := r.Write(rec, rule.ResponseSpec{StatusCode: 200, Kind: rule.KindFile, Body: "doc.txt"})
	assert.Equal(t, 200, status)
	assert.Equal(t, "stored", rec.Body.String())

	rec = httptest.NewRecorder()
	status = r.Write(rec, rule.ResponseSpec{StatusCode: 200, Kind: rule.KindFile, Body: "missing.txt"})
	assert.Equal(t, 404, status)
}

func TestWriteFileNoResolver(t *testing.T) {
	r := NewRenderer(nil, nil, logging.Nop())
	rec := httptest.NewRecorder()
	status := r.Write(rec, rule.ResponseSpec{StatusCode: 200, Kind: rule.KindFile, Body: "doc.txt"})
	assert.Equal(t, 500, status)
}

func TestWritePage(t *testing.T) {
	r := newRenderer(t)

	rec := httptest.NewRecorder()
	status := r.Write(rec, rule.ResponseSpec{StatusCode: 200, Kind: rule.KindPage, Body: `<b>{{upper "hi"}}</b>`})
	assert.Equal(t, 200, status)
	assert.Equal(t, "<b>HI</b>", rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	status = r.Write(rec, rule.ResponseSpec{StatusCode: 200, Kind: rule.KindPage, Body: "{{broken"})
	assert.Equal(t, 500, status)
}

func TestHeaderTransformsRunLast(t *testing.T) {
	r := newRenderer(t)

	rec := httptest.NewRecorder()
	r.Write(rec, rule.ResponseSpec{
		StatusCode: 200,
		Kind:       rule.KindJSON,
		Body:       `{}`,
		Headers: []rule.HeaderTransform{
			{Op: rule.HeaderSet, Name: "Content-Type", Value: "application/vnd.custom+json"},
			{Op: rule.HeaderSet, Name: "X-Env", Value: "staging"},
			{Op: rule.HeaderRemove, Name: "X-Env"},
		},
	})

	// The transform overrode the kind's content type.
	assert.Equal(t, "application/vnd.custom+json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("X-Env"))
}
