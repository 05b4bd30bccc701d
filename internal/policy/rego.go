package policy

import (
	"context"
	_ "embed"
	"fmt"
	"slices"

	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed rego/authz.rego
var defaultModule string

const decisionQuery = "data.rental.authz.decision"

// RegoPolicyEngine evaluates a Rego module. The module must define
// data.rental.authz.decision as {"allow": bool, "rules": set}.
type RegoPolicyEngine struct {
	query rego.PreparedEvalQuery
}

// NewRegoPolicyEngine compiles module, or the built-in policy when module is empty.
func NewRegoPolicyEngine(ctx context.Context, module string) (*RegoPolicyEngine, error) {
	if module == "" {
		module = defaultModule
	}
	q, err := rego.New(
		rego.Query(decisionQuery),
		rego.Module("authz.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	return &RegoPolicyEngine{query: q}, nil
}

func (e *RegoPolicyEngine) Check(ctx context.Context, pctx *PolicyContext) (*PolicyResult, error) {
	roles := make([]string, 0, len(pctx.Roles))
	for _, r := range pctx.Roles {
		roles = append(roles, string(r))
	}
	input := map[string]any{
		"user_id":        pctx.UserID,
		"roles":          roles,
		"action":         string(pctx.Action),
		"target_user_id": pctx.TargetUserID,
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluate policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, fmt.Errorf("policy produced no decision")
	}
	decision, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected decision type %T", rs[0].Expressions[0].Value)
	}

	result := &PolicyResult{Rules: make([]string, 0)}
	result.Allowed, _ = decision["allow"].(bool)
	if raw, ok := decision["rules"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				result.Rules = append(result.Rules, s)
			}
		}
	}
	slices.Sort(result.Rules)

	if result.Allowed {
		result.Reason = fmt.Sprintf("allowed by policy: %v", result.Rules)
	} else {
		result.Reason = "no matching policy found"
	}
	return result, nil
}
