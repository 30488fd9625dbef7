// Package rule defines the route, condition, and fallback rule types the
// gateway consults to resolve incoming requests.
package rule

import (
	"sort"
	"time"
)

// ResponseKind selects how a resolved response body is rendered.
type ResponseKind string

const (
	KindJSON     ResponseKind = "json"
	KindText     ResponseKind = "text"
	KindHTML     ResponseKind = "html"
	KindXML      ResponseKind = "xml"
	KindSOAP     ResponseKind = "soap"
	KindPage     ResponseKind = "page"
	KindFile     ResponseKind = "file"
	KindEmpty    ResponseKind = "empty"
	KindRedirect ResponseKind = "redirect"
	KindProxy    ResponseKind = "proxy"
)

// MethodAny matches every HTTP method.
const MethodAny = "any"

// HeaderOp is a header transform operation.
type HeaderOp string

const (
	HeaderSet    HeaderOp = "set"
	HeaderRemove HeaderOp = "remove"
)

// HeaderTransform mutates a single response header. Transforms run after
// kind-specific headers so they can override anything the renderer set.
type HeaderTransform struct {
	Op    HeaderOp `json:"op" yaml:"op"`
	Name  string   `json:"name" yaml:"name"`
	Value string   `json:"value,omitempty" yaml:"value,omitempty"`
}

// ErrorClass classifies a failed upstream exchange.
type ErrorClass string

const (
	ErrorTimeout    ErrorClass = "timeout"
	ErrorConnection ErrorClass = "connection"
	ErrorHTTP5xx    ErrorClass = "http5xx"
	ErrorAll        ErrorClass = "all"
)

// ResponseSpec is a concrete status/kind/body/headers tuple, the unit the
// resolution pipeline and the fallback machine both produce.
type ResponseSpec struct {
	StatusCode int
	Kind       ResponseKind
	Body       string
	Headers    []HeaderTransform
}

// Override carries optional replacements for the four response fields.
// Nil fields leave the current value untouched.
type Override struct {
	StatusCode *int              `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	Kind       *ResponseKind     `json:"kind,omitempty" yaml:"kind,omitempty"`
	Body       *string           `json:"body,omitempty" yaml:"body,omitempty"`
	Headers    []HeaderTransform `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Apply returns a copy of the spec with the override's set fields replacing
// the current ones.
func (s ResponseSpec) Apply(o *Override) ResponseSpec {
	if o == nil {
		return s
	}
	out := s
	if o.StatusCode != nil {
		out.StatusCode = *o.StatusCode
	}
	if o.Kind != nil {
		out.Kind = *o.Kind
	}
	if o.Body != nil {
		out.Body = *o.Body
	}
	if o.Headers != nil {
		out.Headers = o.Headers
	}
	return out
}

// ConditionRule is an ordered conditional override attached to a route or a
// proxy fallback. Conditions are evaluated in ascending Order; the first
// criteria expression that evaluates true wins and stops evaluation. Its
// override applies on top of the parent's defaults, never on top of another
// condition's override.
type ConditionRule struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Criteria string `json:"criteria" yaml:"criteria"`

	StatusCode *int              `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	Kind       *ResponseKind     `json:"kind,omitempty" yaml:"kind,omitempty"`
	Body       *string           `json:"body,omitempty" yaml:"body,omitempty"`
	Headers    []HeaderTransform `json:"headers,omitempty" yaml:"headers,omitempty"`

	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Order   int   `json:"order" yaml:"order"`
}

// IsEnabled reports whether the condition participates in evaluation.
// Conditions are enabled unless explicitly disabled.
func (c *ConditionRule) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// AsOverride returns the condition's override fields as an Override.
func (c *ConditionRule) AsOverride() *Override {
	return &Override{
		StatusCode: c.StatusCode,
		Kind:       c.Kind,
		Body:       c.Body,
		Headers:    c.Headers,
	}
}

// ProxyFallbackRule is an ordered substitute response attached to a proxy
// route, selected when an upstream exchange fails with one of its error
// classes and the post-rewrite path matches its pattern.
type ProxyFallbackRule struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// PathPattern is a regex tested against the post-rewrite request path.
	PathPattern string `json:"pathPattern" yaml:"pathPattern"`

	// ErrorClasses lists the error classes this fallback applies to.
	// The wildcard "all" matches every class.
	ErrorClasses []ErrorClass `json:"errorClasses" yaml:"errorClasses"`

	StatusCode int               `json:"statusCode" yaml:"statusCode"`
	Kind       ResponseKind      `json:"kind" yaml:"kind"`
	Body       string            `json:"body,omitempty" yaml:"body,omitempty"`
	Headers    []HeaderTransform `json:"headers,omitempty" yaml:"headers,omitempty"`

	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Order   int   `json:"order" yaml:"order"`

	// Conditions are nested overrides scoped to this fallback's defaults,
	// with the same first-match-wins semantics as route conditions.
	Conditions []ConditionRule `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// IsEnabled reports whether the fallback participates in selection.
func (f *ProxyFallbackRule) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// AppliesTo reports whether the fallback covers the given error class.
func (f *ProxyFallbackRule) AppliesTo(class ErrorClass) bool {
	for _, c := range f.ErrorClasses {
		if c == ErrorAll || c == class {
			return true
		}
	}
	return false
}

// Spec returns the fallback's default response spec.
func (f *ProxyFallbackRule) Spec() ResponseSpec {
	return ResponseSpec{
		StatusCode: f.StatusCode,
		Kind:       f.Kind,
		Body:       f.Body,
		Headers:    f.Headers,
	}
}

// ActiveConditions returns the fallback's enabled conditions in ascending
// order index.
func (f *ProxyFallbackRule) ActiveConditions() []ConditionRule {
	return activeConditions(f.Conditions)
}

// RouteRule is one mock or proxy endpoint definition.
type RouteRule struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method is a lower-cased HTTP method or "any".
	Method string `json:"method" yaml:"method"`

	// Path is matched literally (case-sensitive, query string stripped)
	// unless PathIsRegex is set, in which case it is compiled once and
	// matched against the full raw URL including query string.
	Path        string `json:"path" yaml:"path"`
	PathIsRegex bool   `json:"pathIsRegex,omitempty" yaml:"pathIsRegex,omitempty"`

	StatusCode int               `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	Kind       ResponseKind      `json:"kind" yaml:"kind"`
	Body       string            `json:"body,omitempty" yaml:"body,omitempty"`
	Headers    []HeaderTransform `json:"headers,omitempty" yaml:"headers,omitempty"`

	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Priority orders rules within a pass; lower numbers win. Proxy rules
	// are numbered in their own space and never compete with mock rules.
	Priority int `json:"priority" yaml:"priority"`

	// ActiveWait parks the resolved response until an operator releases it.
	ActiveWait bool `json:"activeWait,omitempty" yaml:"activeWait,omitempty"`

	// ProxyTarget is the upstream base URL for proxy routes.
	ProxyTarget string `json:"proxyTarget,omitempty" yaml:"proxyTarget,omitempty"`

	// ProxyTimeoutMs bounds the whole upstream exchange. Zero means the
	// engine default.
	ProxyTimeoutMs int `json:"proxyTimeoutMs,omitempty" yaml:"proxyTimeoutMs,omitempty"`

	Conditions []ConditionRule     `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Fallbacks  []ProxyFallbackRule `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
}

// IsEnabled reports whether the route participates in matching.
func (r *RouteRule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// IsProxy reports whether the route forwards to an upstream.
func (r *RouteRule) IsProxy() bool {
	return r.Kind == KindProxy
}

// Spec returns the route's default response spec.
func (r *RouteRule) Spec() ResponseSpec {
	status := r.StatusCode
	if status == 0 {
		status = 200
	}
	return ResponseSpec{
		StatusCode: status,
		Kind:       r.Kind,
		Body:       r.Body,
		Headers:    r.Headers,
	}
}

// ProxyTimeout returns the per-rule upstream timeout, or def when unset.
func (r *RouteRule) ProxyTimeout(def time.Duration) time.Duration {
	if r.ProxyTimeoutMs > 0 {
		return time.Duration(r.ProxyTimeoutMs) * time.Millisecond
	}
	return def
}

// ActiveConditions returns the route's enabled conditions in ascending
// order index.
func (r *RouteRule) ActiveConditions() []ConditionRule {
	return activeConditions(r.Conditions)
}

// ActiveFallbacks returns the route's enabled fallbacks in ascending order
// index, each carrying its own ordered conditions.
func (r *RouteRule) ActiveFallbacks() []ProxyFallbackRule {
	out := make([]ProxyFallbackRule, 0, len(r.Fallbacks))
	for _, f := range r.Fallbacks {
		if f.IsEnabled() {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func activeConditions(conds []ConditionRule) []ConditionRule {
	out := make([]ConditionRule, 0, len(conds))
	for _, c := range conds {
		if c.IsEnabled() {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
