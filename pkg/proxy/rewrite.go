package proxy

import (
	"net/url"
	"strings"

	"github.com/mockgate/mockgate/internal/matching"
	"github.com/mockgate/mockgate/pkg/rule"
)

// RewritePath computes the upstream request path for a matched proxy route.
// Literal routes strip the rule's path prefix; regex routes strip the
// portion of the path the pattern matched. The remainder always begins with
// "/" and is appended to the target URL's own base path when that is
// non-root.
func RewritePath(route *rule.RouteRule, requestPath string, target *url.URL) string {
	remainder := requestPath

	if route.PathIsRegex {
		if re, err := matching.CompilePattern(route.Path); err == nil {
			if loc := re.FindStringIndex(requestPath); loc != nil {
				remainder = requestPath[loc[1]:]
			}
		}
	} else {
		remainder = strings.TrimPrefix(requestPath, strings.TrimSuffix(route.Path, "/"))
	}

	if !strings.HasPrefix(remainder, "/") {
		remainder = "/" + remainder
	}

	if base := strings.TrimSuffix(target.Path, "/"); base != "" {
		remainder = base + remainder
	}
	return remainder
}
