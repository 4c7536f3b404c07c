// Package policy evaluates tool-call steps against an approval policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by Evaluate.
const (
	DecisionAllow           = "allow"
	DecisionRequireApproval = "require_approval"
	DecisionBlock           = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.trace_policy.decision"),
		rego.Module("trace_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks a tool-call step against the policy.
// Input is a map with keys: tool_name, input, user_id, agent_type.
// Returns one of allow, require_approval, block.
func (e *Engine) Evaluate(ctx context.Context, input any) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionAllow, nil
}

// DefaultPolicy is the default policy content. Destructive CRM operations are
// blocked outright; outward-facing bulk actions pause the run for approval.
const DefaultPolicy = `
package trace_policy

default decision = "allow"

decision = "block" {
	input.tool_name == "crm.delete_account"
}

decision = "require_approval" {
	input.tool_name == "mail.send_bulk"
}

decision = "require_approval" {
	input.tool_name == "calendar.cancel_meeting"
	input.agent_type == "support"
}
`
