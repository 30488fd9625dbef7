package matching

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/mockgate/mockgate/pkg/rule"
)

// patternCache holds compiled regex patterns keyed by source text so each
// pattern is compiled once per process, not once per request.
var patternCache sync.Map // string -> *regexp.Regexp

// CompilePattern compiles a regex pattern through the shared cache.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := patternCache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// Result carries the matched route and, for regex routes, the named capture
// groups extracted from the raw URL.
type Result struct {
	Route    *rule.RouteRule
	Captures map[string]string
}

// MatchRoute finds the best route for a request among the given rules.
//
// Literal rules are checked first against the query-stripped path; among
// literal candidates an exact method match beats "any", then the lowest
// priority number wins. If no literal rule matches, regex rules are tested
// against the full raw URL in ascending priority order and the first match
// wins. Returns nil when nothing matches.
//
// The rules slice is expected to be pre-filtered to active rules and sorted
// by ascending priority; proxy and mock rules occupy disjoint priority
// spaces, so callers pass one population at a time.
func MatchRoute(method, rawURL string, rules []*rule.RouteRule, log *slog.Logger) *Result {
	method = strings.ToLower(method)
	path := stripQuery(rawURL)

	if best := matchLiteral(method, path, rules, pathEqual); best != nil {
		return &Result{Route: best}
	}
	return matchRegex(method, rawURL, rules, log)
}

// MatchProxyRoute is MatchRoute with literal-prefix semantics: a literal
// proxy rule for /ext/ covers /ext/orders/5 and everything else beneath it,
// matching the prefix the forwarder later strips when rewriting the path.
// Regex rules behave exactly as in MatchRoute.
func MatchProxyRoute(method, rawURL string, rules []*rule.RouteRule, log *slog.Logger) *Result {
	method = strings.ToLower(method)
	path := stripQuery(rawURL)

	if best := matchLiteral(method, path, rules, pathPrefix); best != nil {
		return &Result{Route: best}
	}
	return matchRegex(method, rawURL, rules, log)
}

// pathEqual is the literal match used for mock rules.
func pathEqual(rulePath, path string) bool {
	return rulePath == path
}

// pathPrefix matches on segment boundaries: /ext and /ext/ both cover
// /ext and /ext/orders, neither covers /extra.
func pathPrefix(rulePath, path string) bool {
	trimmed := strings.TrimSuffix(rulePath, "/")
	return path == trimmed || strings.HasPrefix(path, trimmed+"/")
}

func matchLiteral(method, path string, rules []*rule.RouteRule, covers func(rulePath, path string) bool) *rule.RouteRule {
	var best *rule.RouteRule
	bestExact := false
	for _, r := range rules {
		if r.PathIsRegex || !covers(r.Path, path) {
			continue
		}
		m := strings.ToLower(r.Method)
		if m != method && m != rule.MethodAny {
			continue
		}
		exact := m == method
		switch {
		case best == nil:
			best, bestExact = r, exact
		case exact && !bestExact:
			best, bestExact = r, exact
		case exact == bestExact && r.Priority < best.Priority:
			best = r
		}
	}
	return best
}

func matchRegex(method, rawURL string, rules []*rule.RouteRule, log *slog.Logger) *Result {
	for _, r := range rules {
		if !r.PathIsRegex {
			continue
		}
		m := strings.ToLower(r.Method)
		if m != method && m != rule.MethodAny {
			continue
		}
		re, err := CompilePattern(r.Path)
		if err != nil {
			if log != nil {
				log.Warn("skipping rule with invalid regex pattern",
					"rule_id", r.ID, "pattern", r.Path, "error", err)
			}
			continue
		}
		match := re.FindStringSubmatch(rawURL)
		if match == nil {
			continue
		}
		return &Result{Route: r, Captures: namedCaptures(re, match)}
	}
	return nil
}

// MatchFallback picks the first active fallback, in ascending order index,
// whose error-class set contains the classified error and whose sub-path
// pattern matches the post-rewrite request path.
func MatchFallback(fallbacks []rule.ProxyFallbackRule, class rule.ErrorClass, path string, log *slog.Logger) *rule.ProxyFallbackRule {
	for i := range fallbacks {
		f := &fallbacks[i]
		if !f.AppliesTo(class) {
			continue
		}
		re, err := CompilePattern(f.PathPattern)
		if err != nil {
			if log != nil {
				log.Warn("skipping fallback with invalid regex pattern",
					"fallback_id", f.ID, "pattern", f.PathPattern, "error", err)
			}
			continue
		}
		if re.MatchString(path) {
			return f
		}
	}
	return nil
}

// namedCaptures extracts named capture groups from a regex match.
func namedCaptures(re *regexp.Regexp, match []string) map[string]string {
	captures := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i > 0 && name != "" && i < len(match) {
			captures[name] = match[i]
		}
	}
	return captures
}

func stripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
