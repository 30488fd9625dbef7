package engine

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mockgate/mockgate/internal/matching"
	"github.com/mockgate/mockgate/internal/storage"
	"github.com/mockgate/mockgate/pkg/activewait"
	"github.com/mockgate/mockgate/pkg/criteria"
	"github.com/mockgate/mockgate/pkg/httputil"
	"github.com/mockgate/mockgate/pkg/logging"
	"github.com/mockgate/mockgate/pkg/proxy"
	"github.com/mockgate/mockgate/pkg/render"
	"github.com/mockgate/mockgate/pkg/requestlog"
	"github.com/mockgate/mockgate/pkg/respond"
	"github.com/mockgate/mockgate/pkg/rule"
	"github.com/mockgate/mockgate/pkg/upload"
)

// ControlPrefix reserves the gateway's own control surface. Paths beneath
// it never reach rule matching.
const ControlPrefix = "/__mockgate/"

// MaxBodyBytes caps inbound request bodies.
const MaxBodyBytes = 10 << 20

// HandlerConfig wires the handler's collaborators. Store is required;
// everything else has a working default.
type HandlerConfig struct {
	Store               storage.RuleStore
	Uploads             *upload.Resolver
	Pages               render.PageRenderer
	RequestLog          requestlog.Logger
	DefaultProxyTimeout time.Duration
	Log                 *slog.Logger
}

// Handler resolves every inbound request against the rule set: mock rules
// first, proxy rules second, 404 otherwise.
type Handler struct {
	store     storage.RuleStore
	eval      *criteria.Evaluator
	registry  *activewait.Registry
	renderer  *respond.Renderer
	forwarder *proxy.Forwarder
	fallbacks *proxy.FallbackMachine
	reqlog    requestlog.Logger
	control   http.Handler
	log       *slog.Logger
}

// NewHandler creates the gateway handler.
func NewHandler(cfg HandlerConfig) *Handler {
	log := cfg.Log
	if log == nil {
		log = logging.Nop()
	}
	reqlog := cfg.RequestLog
	if reqlog == nil {
		reqlog = requestlog.NopLogger{}
	}
	pages := cfg.Pages
	if pages == nil {
		pages = render.NewHTMLRenderer()
	}

	eval := criteria.New()
	renderer := respond.NewRenderer(cfg.Uploads, pages, log)
	forwarder := proxy.NewForwarder(cfg.DefaultProxyTimeout, log)

	h := &Handler{
		store:     cfg.Store,
		eval:      eval,
		registry:  activewait.NewRegistry(),
		renderer:  renderer,
		forwarder: forwarder,
		fallbacks: proxy.NewFallbackMachine(eval, renderer, log),
		reqlog:    reqlog,
		log:       log,
	}
	h.control = h.controlMux()
	return h
}

// Registry exposes the active-wait registry for the control surface and
// embedding callers.
func (h *Handler) Registry() *activewait.Registry {
	return h.registry
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, ControlPrefix) {
		h.control.ServeHTTP(w, r)
		return
	}

	start := time.Now()
	entry := requestlog.NewEntry(r.Method, r.URL.Path)
	entry.Query = r.URL.RawQuery

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds limit")
		entry.Status = http.StatusRequestEntityTooLarge
		entry.Outcome = requestlog.OutcomeError
		h.finish(entry, start)
		return
	}
	entry.SetBody(string(body))

	rawURL := r.URL.RequestURI()
	method := r.Method

	result := matching.MatchRoute(method, rawURL, h.store.ActiveRoutes(), h.log)
	if result == nil && method == http.MethodHead {
		// A HEAD request with no HEAD rule answers with the GET rule's
		// headers and status.
		result = matching.MatchRoute(http.MethodGet, rawURL, h.store.ActiveRoutes(), h.log)
	}
	if result != nil {
		h.serveMock(w, r, result, body, entry)
		h.finish(entry, start)
		return
	}

	proxyResult := matching.MatchProxyRoute(method, rawURL, h.store.ActiveProxyRoutes(), h.log)
	if proxyResult != nil {
		h.serveProxy(w, r, proxyResult, body, entry)
		h.finish(entry, start)
		return
	}

	httputil.WriteNotFound(w, "no_match", "no rule matches "+method+" "+r.URL.Path)
	entry.Status = http.StatusNotFound
	entry.Outcome = requestlog.OutcomeNoMatch
	h.finish(entry, start)
}

func (h *Handler) serveMock(w http.ResponseWriter, r *http.Request, result *matching.Result, body []byte, entry *requestlog.Entry) {
	route := result.Route
	entry.RouteID = route.ID
	entry.Outcome = requestlog.OutcomeMock

	env := BuildEnv(r, body, result.Captures)
	entry.Headers = env.Headers

	spec := resolveSpec(h.eval, route, env, h.log)

	if route.ActiveWait {
		item := &activewait.ParkedRequest{
			RouteID:  route.ID,
			Method:   r.Method,
			Path:     r.URL.Path,
			Resolved: spec,
			Original: route.Spec(),
		}
		h.log.Info("parking request", "route", route.ID, "path", r.URL.Path)

		override, err := h.registry.Park(r.Context(), item)
		if err != nil {
			// Client went away while parked; the entry was already cleaned
			// up and there is nobody left to answer.
			h.log.Info("parked request abandoned", "id", item.ID, "error", err)
			entry.Outcome = requestlog.OutcomeError
			entry.Error = err.Error()
			return
		}
		spec = spec.Apply(override)
		entry.Outcome = requestlog.OutcomeParked
	}

	entry.Status = h.renderer.Write(w, spec)
	entry.SetResponseBody(spec.Body)
}

func (h *Handler) serveProxy(w http.ResponseWriter, r *http.Request, result *matching.Result, body []byte, entry *requestlog.Entry) {
	route := result.Route
	entry.RouteID = route.ID
	entry.Target = route.ProxyTarget
	entry.Outcome = requestlog.OutcomeProxy

	env := BuildEnv(r, body, result.Captures)
	entry.Headers = env.Headers

	fire := &proxy.SingleFire{}

	resp, rewritten, err := h.forwarder.Exchange(r.Context(), r, body, route)
	if err != nil {
		class := proxy.ClassifyError(err)
		if class == "" {
			// Client cancelled; nothing to write.
			entry.Outcome = requestlog.OutcomeError
			entry.Error = err.Error()
			return
		}
		h.log.Warn("upstream exchange failed",
			"route", route.ID,
			"target", route.ProxyTarget,
			"class", string(class),
			"error", err)

		entry.Error = err.Error()
		h.answerFailure(w, route, class, rewritten, env, fire, entry)
		return
	}

	if class := proxy.ClassifyStatus(resp.StatusCode); class != "" {
		if status, name, handled := h.fallbacks.Handle(w, route, class, rewritten, env, fire); handled {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			entry.Status = status
			entry.FallbackID = name
			entry.Outcome = requestlog.OutcomeFallback
			return
		}
		// No fallback covers this 5xx: relay the upstream response as-is.
	}

	status, snippet := h.forwarder.Relay(w, resp, route.Headers, fire)
	entry.Status = status
	entry.SetResponseBody(snippet)
}

// answerFailure runs the fallback machine for a classified pre-response
// failure and degrades to a gateway error when nothing matches.
func (h *Handler) answerFailure(w http.ResponseWriter, route *rule.RouteRule, class rule.ErrorClass, rewritten string, env *criteria.Env, fire *proxy.SingleFire, entry *requestlog.Entry) {
	if status, name, handled := h.fallbacks.Handle(w, route, class, rewritten, env, fire); handled {
		entry.Status = status
		entry.FallbackID = name
		entry.Outcome = requestlog.OutcomeFallback
		return
	}
	entry.Status = h.forwarder.WriteGatewayError(w, class, route, fire)
	entry.Outcome = requestlog.OutcomeError
}

func (h *Handler) finish(entry *requestlog.Entry, start time.Time) {
	entry.DurationMs = time.Since(start).Milliseconds()
	h.reqlog.Log(entry)
}
