package engine

import (
	"net/http"
	"strings"

	"github.com/ohler55/ojg/oj"

	"github.com/mockgate/mockgate/pkg/criteria"
)

// BuildEnv projects an inbound request into the read-only view criteria
// expressions evaluate against. Header and query names are lower-cased and
// collapsed to their first value; the body is parsed as JSON when possible
// and exposed as the raw string otherwise.
func BuildEnv(r *http.Request, body []byte, params map[string]string) *criteria.Env {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}

	query := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[strings.ToLower(name)] = values[0]
		}
	}

	if params == nil {
		params = map[string]string{}
	}

	return &criteria.Env{
		Headers: headers,
		Body:    parseBody(body),
		Path:    r.URL.Path,
		Query:   query,
		Params:  params,
		Method:  strings.ToLower(r.Method),
	}
}

func parseBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	val, err := oj.Parse(body)
	if err != nil {
		return string(body)
	}
	return val
}
