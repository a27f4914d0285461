package tools

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rvergara/maestro/pkg/schema"
)

// Policy is one category of business rules.
type Policy struct {
	Name          string
	Rules         []string
	TimeLimitDays int
}

// eligibilityRule is one compiled condition a refund request must satisfy.
// The expression evaluates against an env with days_since_order, time_limit,
// item_condition and reason; Issue is reported when it evaluates false.
type eligibilityRule struct {
	Expression string
	Issue      string
}

// PolicyChecker evaluates support requests against company policy. The
// refund conditions are expr-lang expressions so the rule set stays
// declarative and the programs compile once.
type PolicyChecker struct {
	policies map[string]Policy

	compileOnce sync.Once
	compileErr  error
	compiled    []compiledRule
}

type compiledRule struct {
	rule    eligibilityRule
	program *vm.Program
}

var refundRules = []eligibilityRule{
	{
		Expression: "days_since_order <= time_limit",
		Issue:      "order is outside the return window",
	},
	{
		Expression: `item_condition not in ["worn", "damaged", "used"] or reason in ["defective", "wrong_item"]`,
		Issue:      "item is not in original condition",
	},
}

// NewPolicyChecker creates a checker with the built-in policy set.
func NewPolicyChecker() *PolicyChecker {
	return &PolicyChecker{policies: defaultPolicies()}
}

// Policies returns the formatted rules for a category, for prompt injection.
// Unknown categories fall back to the general support policy.
func (p *PolicyChecker) Policies(category string) string {
	policy, ok := p.policies[category]
	if !ok {
		lower := strings.ToLower(category)
		for key, candidate := range p.policies {
			if strings.Contains(lower, key) || strings.Contains(key, lower) {
				policy, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		policy = p.policies["general_question"]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", policy.Name)
	for _, rule := range policy.Rules {
		fmt.Fprintf(&b, "- %s\n", rule)
	}
	if policy.TimeLimitDays > 0 {
		fmt.Fprintf(&b, "\nTime Limit: %d days from purchase", policy.TimeLimitDays)
	}
	return b.String()
}

// Eligibility is the outcome of a refund policy check.
type Eligibility struct {
	Eligible           bool     `json:"eligible"`
	RefundPercentage   int      `json:"refund_percentage"`
	ShippingRefundable bool     `json:"shipping_refundable"`
	Issues             []string `json:"issues,omitempty"`
	DaysSinceOrder     int      `json:"days_since_order"`
	TimeLimit          int      `json:"time_limit"`
	Reasoning          string   `json:"reasoning"`
}

// CheckRefundEligibility runs the refund rule set against one request.
// itemCondition is one of good, worn, damaged, used; reason is one of
// changed_mind, defective, wrong_item.
func (p *PolicyChecker) CheckRefundEligibility(orderDate time.Time, itemCondition, reason string) (*Eligibility, error) {
	if err := p.compileRules(); err != nil {
		return nil, err
	}

	timeLimit := p.policies["refund"].TimeLimitDays
	daysSinceOrder := int(math.Floor(time.Since(orderDate).Hours() / 24))

	env := map[string]any{
		"days_since_order": daysSinceOrder,
		"time_limit":       timeLimit,
		"item_condition":   strings.ToLower(itemCondition),
		"reason":           strings.ToLower(reason),
	}

	result := &Eligibility{
		Eligible:           true,
		ShippingRefundable: reason == "defective" || reason == "wrong_item",
		DaysSinceOrder:     daysSinceOrder,
		TimeLimit:          timeLimit,
	}

	for _, cr := range p.compiled {
		out, err := vm.Run(cr.program, env)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"policy rule %q failed: %v", cr.rule.Expression, err).WithCause(err)
		}
		if ok, _ := out.(bool); !ok {
			result.Eligible = false
			result.Issues = append(result.Issues, cr.rule.Issue)
		}
	}

	if result.Eligible {
		result.RefundPercentage = 100
		result.Reasoning = fmt.Sprintf(
			"Refund approved. Item is within return window and meets policy requirements. Reason: %s", reason)
	} else {
		result.Reasoning = "Refund denied. Issues: " + strings.Join(result.Issues, "; ")
	}
	return result, nil
}

// RefundBreakdown is the amount split of an approved refund.
type RefundBreakdown struct {
	ProductRefund  float64 `json:"product_refund"`
	ShippingRefund float64 `json:"shipping_refund"`
	TotalRefund    float64 `json:"total_refund"`
}

// CalculateRefund computes the refund amounts for an order.
func CalculateRefund(orderTotal, shippingCost float64, refundPercentage int, includeShipping bool) RefundBreakdown {
	productRefund := (orderTotal - shippingCost) * float64(refundPercentage) / 100
	shippingRefund := 0.0
	if includeShipping {
		shippingRefund = shippingCost
	}
	round := func(v float64) float64 { return math.Round(v*100) / 100 }
	return RefundBreakdown{
		ProductRefund:  round(productRefund),
		ShippingRefund: round(shippingRefund),
		TotalRefund:    round(productRefund + shippingRefund),
	}
}

func (p *PolicyChecker) compileRules() error {
	p.compileOnce.Do(func() {
		for _, rule := range refundRules {
			program, err := expr.Compile(rule.Expression,
				expr.Env(map[string]any{
					"days_since_order": 0,
					"time_limit":       0,
					"item_condition":   "",
					"reason":           "",
				}),
				expr.AsBool(),
			)
			if err != nil {
				p.compileErr = schema.NewErrorf(schema.ErrCodeValidation,
					"compile policy rule %q: %v", rule.Expression, err).WithCause(err)
				return
			}
			p.compiled = append(p.compiled, compiledRule{rule: rule, program: program})
		}
	})
	return p.compileErr
}

func defaultPolicies() map[string]Policy {
	return map[string]Policy{
		"refund": {
			Name: "Refund Policy",
			Rules: []string{
				"Returns accepted within 30 days of purchase",
				"Items must be in original condition with tags",
				"Full refund to original payment method",
				"Shipping costs non-refundable (unless defective/wrong item)",
				"Processing time: 5-7 business days",
			},
			TimeLimitDays: 30,
		},
		"exchange": {
			Name: "Exchange Policy",
			Rules: []string{
				"Exchanges within 30 days of purchase",
				"Items must be unworn and in original condition",
				"Free exchange shipping for defective/wrong items",
				"Customer pays return shipping for size/color exchanges",
				"Processing time: 3-5 business days",
			},
			TimeLimitDays: 30,
		},
		"complaint": {
			Name: "Complaint Handling",
			Rules: []string{
				"All complaints acknowledged within 24 hours",
				"Investigation completed within 3 business days",
				"Resolution offered based on issue severity",
				"Customer satisfaction tracked and followed up",
			},
		},
		"general_question": {
			Name: "Customer Support",
			Rules: []string{
				"Response provided within 2 hours during business hours",
				"All questions answered thoroughly",
				"Additional resources provided when applicable",
				"Follow-up offered if needed",
			},
		},
	}
}
