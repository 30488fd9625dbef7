package rule

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// validMethods are the accepted route methods (lower-cased), plus "any".
var validMethods = map[string]bool{
	"get":     true,
	"post":    true,
	"put":     true,
	"delete":  true,
	"patch":   true,
	"head":    true,
	"options": true,
	MethodAny: true,
}

// validKinds are the accepted response kinds.
var validKinds = map[ResponseKind]bool{
	KindJSON:     true,
	KindText:     true,
	KindHTML:     true,
	KindXML:      true,
	KindSOAP:     true,
	KindPage:     true,
	KindFile:     true,
	KindEmpty:    true,
	KindRedirect: true,
	KindProxy:    true,
}

var validErrorClasses = map[ErrorClass]bool{
	ErrorTimeout:    true,
	ErrorConnection: true,
	ErrorHTTP5xx:    true,
	ErrorAll:        true,
}

// Validate checks the route and its children for structural errors.
// An invalid regex pattern is a ConfigurationError at match time and is
// skipped there; Validate catches it up front so stored rules stay sane.
func (r *RouteRule) Validate() error {
	if r.Path == "" {
		return &ValidationError{Field: "path", Message: "path is required"}
	}
	if !r.PathIsRegex && !strings.HasPrefix(r.Path, "/") {
		return &ValidationError{Field: "path", Message: "literal path must start with /"}
	}
	if r.PathIsRegex {
		if _, err := regexp.Compile(r.Path); err != nil {
			return &ValidationError{Field: "path", Message: "invalid regex pattern: " + err.Error()}
		}
	}
	if r.Method != "" && !validMethods[strings.ToLower(r.Method)] {
		return &ValidationError{Field: "method", Message: fmt.Sprintf("invalid method: %s", r.Method)}
	}
	if r.Kind == "" {
		return &ValidationError{Field: "kind", Message: "kind is required"}
	}
	if !validKinds[r.Kind] {
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("invalid kind: %s", r.Kind)}
	}
	if r.StatusCode != 0 && (r.StatusCode < 100 || r.StatusCode > 599) {
		return &ValidationError{Field: "statusCode", Message: "statusCode must be between 100 and 599"}
	}
	if err := validateTransforms("headers", r.Headers); err != nil {
		return err
	}

	if r.IsProxy() {
		if r.ProxyTarget == "" {
			return &ValidationError{Field: "proxyTarget", Message: "proxy routes require a target URL"}
		}
		u, err := url.Parse(r.ProxyTarget)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return &ValidationError{Field: "proxyTarget", Message: "target must be an absolute URL"}
		}
		if r.ProxyTimeoutMs < 0 {
			return &ValidationError{Field: "proxyTimeoutMs", Message: "timeout must be >= 0"}
		}
	} else if len(r.Fallbacks) > 0 {
		return &ValidationError{Field: "fallbacks", Message: "fallbacks are only valid on proxy routes"}
	}

	for i := range r.Conditions {
		if err := r.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}
	}
	for i := range r.Fallbacks {
		if err := r.Fallbacks[i].Validate(); err != nil {
			return fmt.Errorf("fallbacks[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks a condition rule for structural errors. Criteria syntax is
// validated separately by the criteria evaluator.
func (c *ConditionRule) Validate() error {
	if strings.TrimSpace(c.Criteria) == "" {
		return &ValidationError{Field: "criteria", Message: "criteria expression is required"}
	}
	if c.Kind != nil && !validKinds[*c.Kind] {
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("invalid kind: %s", *c.Kind)}
	}
	if c.Kind != nil && *c.Kind == KindProxy {
		return &ValidationError{Field: "kind", Message: "conditions cannot override kind to proxy"}
	}
	if c.StatusCode != nil && (*c.StatusCode < 100 || *c.StatusCode > 599) {
		return &ValidationError{Field: "statusCode", Message: "statusCode must be between 100 and 599"}
	}
	return validateTransforms("headers", c.Headers)
}

// Validate checks a fallback rule for structural errors.
func (f *ProxyFallbackRule) Validate() error {
	if f.PathPattern == "" {
		return &ValidationError{Field: "pathPattern", Message: "pathPattern is required"}
	}
	if _, err := regexp.Compile(f.PathPattern); err != nil {
		return &ValidationError{Field: "pathPattern", Message: "invalid regex pattern: " + err.Error()}
	}
	if len(f.ErrorClasses) == 0 {
		return &ValidationError{Field: "errorClasses", Message: "at least one error class is required"}
	}
	for _, c := range f.ErrorClasses {
		if !validErrorClasses[c] {
			return &ValidationError{Field: "errorClasses", Message: fmt.Sprintf("invalid error class: %s", c)}
		}
	}
	if f.Kind == "" || !validKinds[f.Kind] || f.Kind == KindProxy {
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("invalid fallback kind: %s", f.Kind)}
	}
	if f.StatusCode < 100 || f.StatusCode > 599 {
		return &ValidationError{Field: "statusCode", Message: "statusCode must be between 100 and 599"}
	}
	if err := validateTransforms("headers", f.Headers); err != nil {
		return err
	}
	for i := range f.Conditions {
		if err := f.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}
	}
	return nil
}

// headerNameRegex validates HTTP header names (RFC 7230).
var headerNameRegex = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+\-.^_\x60|~]+$`)

func validateTransforms(field string, transforms []HeaderTransform) error {
	for i, t := range transforms {
		if t.Op != HeaderSet && t.Op != HeaderRemove {
			return &ValidationError{
				Field:   fmt.Sprintf("%s[%d].op", field, i),
				Message: fmt.Sprintf("invalid op: %s (must be 'set' or 'remove')", t.Op),
			}
		}
		if !headerNameRegex.MatchString(t.Name) {
			return &ValidationError{
				Field:   fmt.Sprintf("%s[%d].name", field, i),
				Message: fmt.Sprintf("invalid header name: %q", t.Name),
			}
		}
	}
	return nil
}
