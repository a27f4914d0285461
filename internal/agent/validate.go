package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rvergara/maestro/internal/engine"
	"github.com/rvergara/maestro/internal/inference"
	"github.com/rvergara/maestro/internal/tools"
	"github.com/rvergara/maestro/pkg/schema"
)

// StageValidate is the graph name of the validation stage.
const StageValidate = "validate"

const validateSystem = `You are a policy validation expert for customer support.
Your job is to determine if customer requests comply with company policies.

You must:
1. Apply business rules strictly and consistently
2. Calculate exact refund/exchange amounts
3. Identify required actions (return shipping, photos, etc.)
4. Clearly state approval or denial with reasoning

Be fair but follow policies exactly. If something is unclear, note it.`

// Validator checks the request against company policy. For refund requests
// naming a known order it runs the deterministic eligibility rules first and
// hands the outcome to the model as ground truth.
type Validator struct {
	base
	policies *tools.PolicyChecker
	orders   *tools.OrderLookup
}

// NewValidator creates the validation stage.
func NewValidator(client inference.Client, policies *tools.PolicyChecker, orders *tools.OrderLookup) *Validator {
	return &Validator{
		base: base{
			cfg: Config{
				Name:         StageValidate,
				Dependencies: []string{StageClassify},
				Model:        "llama-3.1-8b-instant",
				Temperature:  0.2,
				MaxTokens:    700,
				System:       validateSystem,
			},
			client: client,
		},
		policies: policies,
		orders:   orders,
	}
}

// Execute validates the request against the applicable policy set.
func (s *Validator) Execute(ctx context.Context, request string, wfctx *engine.Context) (*schema.StageResult, error) {
	classification, _ := wfctx.Result(StageClassify)
	category := Category(classification)

	policyText := s.policies.Policies(category)

	eligibilityText := "No deterministic eligibility check applies."
	if category == "refund" {
		if num := tools.ExtractOrderNumber(request); num != "" {
			if order, ok := s.orders.Order(num); ok {
				eligibility, err := s.policies.CheckRefundEligibility(order.OrderDate, "good", "changed_mind")
				if err != nil {
					return nil, &schema.StageFailure{Stage: s.cfg.Name, Reason: err.Error(), Cause: err}
				}
				encoded, _ := json.Marshal(eligibility)
				eligibilityText = string(encoded)
			}
		}
	}

	prompt := fmt.Sprintf(`Validate this customer request against company policies.

Request Type: %s
Customer Request: %q

Applicable Policies:
%s

Rule Engine Result (authoritative when present):
%s

Determine:
1. Is the request eligible/approved? (yes/no)
2. What is the refund/exchange amount? (if applicable)
3. What actions are required? (return item, provide photos, etc.)
4. What is the reasoning for approval/denial?

Respond in JSON:
{
    "approved": true/false,
    "amount": "dollar amount or N/A",
    "required_actions": ["action1", "action2"],
    "reasoning": "Clear explanation",
    "policy_references": "Which policies apply",
    "confidence": 0.0-1.0
}`, category, request, policyText, eligibilityText)

	res, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if res.Fields == nil {
		res.Fields = map[string]any{}
	}
	if _, ok := res.Fields["category"]; !ok {
		res.Fields["category"] = category
	}
	return res, nil
}
