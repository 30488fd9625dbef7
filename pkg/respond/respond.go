// Package respond writes a resolved ResponseSpec to an http.ResponseWriter.
// Both the mock engine and the proxy fallback machine hand their final spec
// to this renderer, so kind dispatch and header-transform semantics live in
// exactly one place.
package respond

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ohler55/ojg/oj"

	"github.com/mockgate/mockgate/pkg/httputil"
	"github.com/mockgate/mockgate/pkg/render"
	"github.com/mockgate/mockgate/pkg/rule"
	"github.com/mockgate/mockgate/pkg/upload"
)

// Renderer writes response specs. The upload resolver and page renderer are
// optional; kinds that need a missing collaborator answer 500.
type Renderer struct {
	uploads *upload.Resolver
	pages   render.PageRenderer
	log     *slog.Logger
}

// NewRenderer creates a renderer. Any of the collaborators may be nil.
func NewRenderer(uploads *upload.Resolver, pages render.PageRenderer, log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{uploads: uploads, pages: pages, log: log}
}

// Write renders spec to w and returns the status code actually written.
// Header transforms run after kind-specific headers so a transform can
// override anything the kind set.
func (r *Renderer) Write(w http.ResponseWriter, spec rule.ResponseSpec) int {
	switch spec.Kind {
	case rule.KindRedirect:
		return r.writeRedirect(w, spec)
	case rule.KindFile:
		return r.writeFile(w, spec)
	case rule.KindPage:
		return r.writePage(w, spec)
	case rule.KindJSON:
		return r.writeBody(w, spec, "application/json", normalizeJSON(spec.Body))
	case rule.KindText:
		return r.writeBody(w, spec, "text/plain; charset=utf-8", []byte(spec.Body))
	case rule.KindHTML:
		return r.writeBody(w, spec, "text/html; charset=utf-8", []byte(spec.Body))
	case rule.KindXML:
		return r.writeBody(w, spec, "application/xml", []byte(spec.Body))
	case rule.KindSOAP:
		w.Header().Set("SOAPAction", `""`)
		return r.writeBody(w, spec, "text/xml; charset=utf-8", []byte(spec.Body))
	case rule.KindEmpty:
		ApplyHeaderTransforms(w.Header(), spec.Headers)
		w.WriteHeader(spec.StatusCode)
		return spec.StatusCode
	default:
		r.log.Warn("unknown response kind", "kind", spec.Kind)
		return r.writeBody(w, spec, "text/plain; charset=utf-8", []byte(spec.Body))
	}
}

func (r *Renderer) writeBody(w http.ResponseWriter, spec rule.ResponseSpec, contentType string, body []byte) int {
	w.Header().Set("Content-Type", contentType)
	ApplyHeaderTransforms(w.Header(), spec.Headers)
	w.WriteHeader(spec.StatusCode)
	_, _ = w.Write(body)
	return spec.StatusCode
}

func (r *Renderer) writeRedirect(w http.ResponseWriter, spec rule.ResponseSpec) int {
	status := spec.StatusCode
	if status < 300 || status > 399 {
		status = http.StatusMovedPermanently
	}
	w.Header().Set("Location", spec.Body)
	ApplyHeaderTransforms(w.Header(), spec.Headers)
	w.WriteHeader(status)
	return status
}

func (r *Renderer) writeFile(w http.ResponseWriter, spec rule.ResponseSpec) int {
	if r.uploads == nil {
		httputil.WriteInternalError(w, "no_upload_store", "no upload directory configured")
		return http.StatusInternalServerError
	}

	f, err := r.uploads.Resolve(spec.Body)
	if err != nil {
		if errors.Is(err, upload.ErrNotFound) || errors.Is(err, upload.ErrForbidden) {
			httputil.WriteNotFound(w, "file_not_found", "no uploaded file at "+spec.Body)
			return http.StatusNotFound
		}
		r.log.Error("resolve upload", "path", spec.Body, "error", err)
		httputil.WriteInternalError(w, "file_error", "failed to read uploaded file")
		return http.StatusInternalServerError
	}
	defer f.Close()

	w.Header().Set("Content-Type", f.ContentType)
	ApplyHeaderTransforms(w.Header(), spec.Headers)
	w.WriteHeader(spec.StatusCode)
	if _, err := io.Copy(w, f); err != nil {
		r.log.Warn("stream upload", "path", spec.Body, "error", err)
	}
	return spec.StatusCode
}

func (r *Renderer) writePage(w http.ResponseWriter, spec rule.ResponseSpec) int {
	if r.pages == nil {
		httputil.WriteInternalError(w, "no_page_renderer", "no page renderer configured")
		return http.StatusInternalServerError
	}

	html, err := r.pages.Render(spec.Body)
	if err != nil {
		r.log.Error("render page", "error", err)
		httputil.WriteInternalError(w, "page_error", "failed to render page template")
		return http.StatusInternalServerError
	}
	return r.writeBody(w, spec, "text/html; charset=utf-8", html)
}

// normalizeJSON parses the body and re-serializes the parsed value so the
// client always receives well-formed JSON. Malformed bodies degrade to an
// empty object, never an error response.
func normalizeJSON(body string) []byte {
	if body == "" {
		return []byte("{}")
	}
	val, err := oj.ParseString(body)
	if err != nil {
		return []byte("{}")
	}
	return []byte(oj.JSON(val))
}

// ApplyHeaderTransforms runs set/remove transforms against a header map.
// The proxy relay uses it on upstream headers; the renderer runs it after
// kind-specific headers.
func ApplyHeaderTransforms(h http.Header, transforms []rule.HeaderTransform) {
	for _, t := range transforms {
		switch t.Op {
		case rule.HeaderSet:
			h.Set(t.Name, t.Value)
		case rule.HeaderRemove:
			h.Del(t.Name)
		}
	}
}
