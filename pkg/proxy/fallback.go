package proxy

import (
	"log/slog"
	"net/http"

	"github.com/mockgate/mockgate/internal/matching"
	"github.com/mockgate/mockgate/pkg/criteria"
	"github.com/mockgate/mockgate/pkg/respond"
	"github.com/mockgate/mockgate/pkg/rule"
)

// Diagnostic headers identifying which fallback answered and, when a nested
// condition fired, which one.
const (
	HeaderFallback          = "X-Mockgate-Fallback"
	HeaderFallbackCondition = "X-Mockgate-Fallback-Condition"
)

// FallbackMachine substitutes a configured response when an upstream
// exchange fails. Selection reuses the rule matcher's pattern logic over
// the route's ordered fallbacks; the chosen fallback's nested conditions
// then refine the response with first-match-wins semantics.
type FallbackMachine struct {
	eval     *criteria.Evaluator
	renderer *respond.Renderer
	log      *slog.Logger
}

// NewFallbackMachine creates a fallback machine.
func NewFallbackMachine(eval *criteria.Evaluator, renderer *respond.Renderer, log *slog.Logger) *FallbackMachine {
	if log == nil {
		log = slog.Default()
	}
	return &FallbackMachine{eval: eval, renderer: renderer, log: log}
}

// Handle selects and renders a fallback for the classified failure.
// The path is the post-rewrite upstream path. Returns the written status,
// an identifier for the selected fallback, and whether a fallback fired.
// When no fallback covers the failure, nothing is written and the caller
// surfaces a gateway error or relays the upstream response.
func (m *FallbackMachine) Handle(w http.ResponseWriter, route *rule.RouteRule, class rule.ErrorClass, path string, view *criteria.Env, fire *SingleFire) (int, string, bool) {
	fallbacks := route.ActiveFallbacks()
	fb := matching.MatchFallback(fallbacks, class, path, m.log)
	if fb == nil {
		return 0, "", false
	}

	if view == nil {
		view = &criteria.Env{}
	}
	view.Error = string(class)

	spec := fb.Spec()
	matchedCondition := ""
	for _, cond := range fb.ActiveConditions() {
		ok, err := m.eval.Evaluate(cond.Criteria, view)
		if err != nil {
			m.log.Debug("fallback condition failed", "fallback", fallbackName(fb), "condition", conditionName(&cond), "error", err)
			continue
		}
		if ok {
			spec = spec.Apply(cond.AsOverride())
			matchedCondition = conditionName(&cond)
			break
		}
	}

	if !fire.TryFire() {
		return 0, "", false
	}

	w.Header().Set(HeaderFallback, fallbackName(fb))
	if matchedCondition != "" {
		w.Header().Set(HeaderFallbackCondition, matchedCondition)
	}

	status := m.renderer.Write(w, spec)

	m.log.Info("fallback response",
		"route", route.ID,
		"fallback", fallbackName(fb),
		"class", string(class),
		"status", status)

	return status, fallbackName(fb), true
}

func fallbackName(f *rule.ProxyFallbackRule) string {
	if f.Name != "" {
		return f.Name
	}
	return f.ID
}

func conditionName(c *rule.ConditionRule) string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}
