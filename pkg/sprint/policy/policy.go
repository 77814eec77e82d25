// Package policy makes the Sprint Planner's is_actionable predicate
// and the Review Checker's merge gate overridable as Rego policy
// bundles (spec §4.I, §4.N), falling back to the Go-coded default sets
// when no bundle is configured.
package policy

import (
	"context"

	"github.com/open-policy-agent/opa/rego"

	sharederrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

// Engine evaluates one compiled Rego query against per-call input. A
// nil *Engine means no bundle was configured; callers fall back to
// their Go-coded default.
type Engine struct {
	query rego.PreparedEvalQuery
}

// LoadActionable compiles path's module against data.planner.actionable.
func LoadActionable(ctx context.Context, path string) (*Engine, error) {
	return load(ctx, path, "data.planner.actionable")
}

// LoadMergeable compiles path's module against data.review.mergeable.
func LoadMergeable(ctx context.Context, path string) (*Engine, error) {
	return load(ctx, path, "data.review.mergeable")
}

func load(ctx context.Context, path, query string) (*Engine, error) {
	if path == "" {
		return nil, nil
	}
	prepared, err := rego.New(
		rego.Query(query),
		rego.Load([]string{path}, nil),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("compile policy", "policy", path, err)
	}
	return &Engine{query: prepared}, nil
}

// Eval runs the compiled query against input, returning the single
// boolean result. A policy that yields no result or a non-bool result
// is treated as false — the default sets remain authoritative when a
// misconfigured bundle doesn't produce a clean decision.
func (e *Engine) Eval(ctx context.Context, input map[string]interface{}) (bool, error) {
	if e == nil {
		return false, nil
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, sharederrors.FailedTo("evaluate policy", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	decision, _ := results[0].Expressions[0].Value.(bool)
	return decision, nil
}
