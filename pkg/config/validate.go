package config

import (
	"fmt"
	"strings"

	"github.com/mockgate/mockgate/internal/id"
	"github.com/mockgate/mockgate/pkg/criteria"
	"github.com/mockgate/mockgate/pkg/rule"
)

// normalize fills generated IDs and canonical casing so the rest of the
// gateway never sees half-initialized rules.
func normalize(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerConfig().Addr
	}
	normalizeRoutes(cfg.Routes)
}

func normalizeRoutes(routes []*rule.RouteRule) {
	for _, r := range routes {
		if r == nil {
			continue
		}
		if r.ID == "" {
			r.ID = id.Short()
		}
		r.Method = strings.ToLower(r.Method)
		if r.Method == "" {
			r.Method = rule.MethodAny
		}
		for i := range r.Conditions {
			if r.Conditions[i].ID == "" {
				r.Conditions[i].ID = id.Short()
			}
		}
		for i := range r.Fallbacks {
			f := &r.Fallbacks[i]
			if f.ID == "" {
				f.ID = id.Short()
			}
			for j := range f.Conditions {
				if f.Conditions[j].ID == "" {
					f.Conditions[j].ID = id.Short()
				}
			}
		}
	}
}

// Validate checks every route structurally and dry-compiles each criteria
// expression. All problems are reported, not just the first.
func Validate(routes []*rule.RouteRule) []error {
	eval := criteria.New()
	var errs []error

	for i, r := range routes {
		if r == nil {
			errs = append(errs, fmt.Errorf("route %d: empty definition", i))
			continue
		}
		label := r.ID
		if r.Name != "" {
			label = r.Name
		}

		// Structural validation recurses into conditions and fallbacks.
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("route %s: %w", label, err))
		}

		for _, c := range r.Conditions {
			if err := eval.Validate(c.Criteria); err != nil {
				errs = append(errs, fmt.Errorf("route %s, condition %s: criteria: %w", label, c.ID, err))
			}
		}
		for _, f := range r.Fallbacks {
			for _, c := range f.Conditions {
				if err := eval.Validate(c.Criteria); err != nil {
					errs = append(errs, fmt.Errorf("route %s, fallback %s, condition %s: criteria: %w", label, f.ID, c.ID, err))
				}
			}
		}
	}
	return errs
}
