package engine

import (
	"log/slog"

	"github.com/mockgate/mockgate/pkg/criteria"
	"github.com/mockgate/mockgate/pkg/rule"
)

// resolveSpec seeds the response from the route defaults and applies the
// first condition whose predicate evaluates true. Overrides stack on the
// route defaults only; later conditions never see an earlier condition's
// changes because evaluation stops at the first match. An evaluation error
// degrades that condition to false and moves on.
func resolveSpec(eval *criteria.Evaluator, route *rule.RouteRule, env *criteria.Env, log *slog.Logger) rule.ResponseSpec {
	spec := route.Spec()

	for _, cond := range route.ActiveConditions() {
		ok, err := eval.Evaluate(cond.Criteria, env)
		if err != nil {
			log.Debug("condition evaluation failed",
				"route", route.ID,
				"condition", cond.Name,
				"error", err)
			continue
		}
		if ok {
			return spec.Apply(cond.AsOverride())
		}
	}
	return spec
}
