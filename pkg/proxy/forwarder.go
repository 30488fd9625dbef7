// Package proxy forwards matched requests to a real upstream, reversing
// any compression the upstream applied, and substitutes fallback responses
// when the exchange fails.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mockgate/mockgate/pkg/httputil"
	"github.com/mockgate/mockgate/pkg/respond"
	"github.com/mockgate/mockgate/pkg/rule"
	"github.com/mockgate/mockgate/pkg/util"
)

// DefaultTimeout bounds upstream exchanges for routes without their own
// timeout.
const DefaultTimeout = 30 * time.Second

// SingleFire guards against double-writing a response when both a timer
// and the upstream exchange race to finish an inbound request. Exactly one
// caller wins TryFire; everyone else must no-op.
type SingleFire struct {
	fired atomic.Bool
}

// TryFire claims the right to write the response. Only the first call
// returns true.
func (s *SingleFire) TryFire() bool {
	return s.fired.CompareAndSwap(false, true)
}

// Fired reports whether the response has been claimed.
func (s *SingleFire) Fired() bool {
	return s.fired.Load()
}

// Forwarder performs upstream exchanges for proxy routes.
type Forwarder struct {
	client         *http.Client
	defaultTimeout time.Duration
	log            *slog.Logger
}

// NewForwarder creates a forwarder. A zero defaultTimeout uses
// DefaultTimeout.
func NewForwarder(defaultTimeout time.Duration, log *slog.Logger) *Forwarder {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Forwarder{
		// Automatic gzip handling stays off because Accept-Encoding is set
		// explicitly; decoding happens in Relay where headers are fixed up.
		client:         &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }},
		defaultTimeout: defaultTimeout,
		log:            log,
	}
}

// Exchange sends the inbound request to the route's target and returns the
// raw upstream response along with the rewritten path. The response body
// carries the timeout's cancel, so closing it releases the exchange. The
// error, if any, is pre-classification.
func (f *Forwarder) Exchange(ctx context.Context, r *http.Request, body []byte, route *rule.RouteRule) (*http.Response, string, error) {
	target, err := url.Parse(route.ProxyTarget)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, "", fmt.Errorf("invalid proxy target %q", route.ProxyTarget)
	}

	rewritten := RewritePath(route, r.URL.Path, target)

	outURL := *target
	outURL.Path = rewritten
	outURL.RawQuery = r.URL.RawQuery

	ctx, cancel := context.WithTimeout(ctx, route.ProxyTimeout(f.defaultTimeout))

	req, err := http.NewRequestWithContext(ctx, r.Method, outURL.String(), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, rewritten, err
	}

	copyForwardHeaders(req.Header, r.Header)
	req.Host = target.Host
	req.ContentLength = int64(len(body))

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, rewritten, err
	}

	f.log.Debug("upstream exchange",
		"method", r.Method,
		"target", outURL.String(),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, rewritten, nil
}

// Relay streams an upstream response to the client, decompressing
// gzip/deflate/brotli bodies and stripping the encoding and length headers
// when it does. Header transforms apply before the status line is written.
// Returns the relayed status and a bounded copy of the decoded body for
// diagnostics.
func (f *Forwarder) Relay(w http.ResponseWriter, resp *http.Response, transforms []rule.HeaderTransform, fire *SingleFire) (int, string) {
	defer resp.Body.Close()

	if !fire.TryFire() {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, ""
	}

	body, decoded, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		f.log.Warn("decode upstream body", "error", err)
		httputil.WriteInternalError(w, "decode_error", "failed to decode upstream response")
		return http.StatusInternalServerError, ""
	}
	defer body.Close()

	h := w.Header()
	for name, values := range resp.Header {
		if strings.EqualFold(name, "Connection") {
			continue
		}
		if decoded && (strings.EqualFold(name, "Content-Encoding") || strings.EqualFold(name, "Content-Length")) {
			continue
		}
		h[name] = values
	}
	respond.ApplyHeaderTransforms(h, transforms)

	w.WriteHeader(resp.StatusCode)

	var snippet bytes.Buffer
	tee := io.TeeReader(body, newCappedWriter(&snippet, util.MaxLogBodySize))
	if _, err := io.Copy(w, tee); err != nil {
		f.log.Warn("relay upstream body", "error", err)
	}
	return resp.StatusCode, snippet.String()
}

// WriteGatewayError answers the client for a classified failure no fallback
// covered. Timeouts map to 504, connection failures to 502.
func (f *Forwarder) WriteGatewayError(w http.ResponseWriter, class rule.ErrorClass, route *rule.RouteRule, fire *SingleFire) int {
	if !fire.TryFire() {
		return 0
	}

	switch class {
	case rule.ErrorTimeout:
		timeout := route.ProxyTimeout(f.defaultTimeout)
		msg := fmt.Sprintf("upstream %s did not respond within %dms", route.ProxyTarget, timeout.Milliseconds())
		httputil.WriteError(w, http.StatusGatewayTimeout, "upstream_timeout", msg)
		return http.StatusGatewayTimeout
	default:
		msg := fmt.Sprintf("upstream %s is unreachable", route.ProxyTarget)
		httputil.WriteError(w, http.StatusBadGateway, "upstream_unreachable", msg)
		return http.StatusBadGateway
	}
}

// copyForwardHeaders copies inbound headers upstream, dropping the
// connection-specific ones and replacing Accept-Encoding with the encodings
// this engine can reverse.
func copyForwardHeaders(dst, src http.Header) {
	for name, values := range src {
		if strings.EqualFold(name, "Content-Length") ||
			strings.EqualFold(name, "Connection") ||
			strings.EqualFold(name, "Accept-Encoding") ||
			strings.EqualFold(name, "Host") {
			continue
		}
		dst[name] = values
	}
	dst.Set("Accept-Encoding", acceptEncoding)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// cappedWriter keeps at most cap bytes and silently drops the rest, so the
// diagnostic copy of a large body never grows unbounded.
type cappedWriter struct {
	buf *bytes.Buffer
	max int
}

func newCappedWriter(buf *bytes.Buffer, max int) *cappedWriter {
	return &cappedWriter{buf: buf, max: max}
}

func (c *cappedWriter) Write(p []byte) (int, error) {
	if room := c.max - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}
