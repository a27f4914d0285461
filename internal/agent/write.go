package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rvergara/maestro/internal/engine"
	"github.com/rvergara/maestro/internal/extract"
	"github.com/rvergara/maestro/internal/inference"
	"github.com/rvergara/maestro/pkg/schema"
)

// StageWrite is the graph name of the response drafting stage.
const StageWrite = "write"

const writeSystem = `You are an expert customer support email writer.
Your emails are known for being empathetic, clear, and professional.

Email Writing Guidelines:
1. Start with empathy - acknowledge the customer's situation
2. Be clear and direct - explain the resolution or next steps
3. Use professional but warm tone
4. Include specific details (amounts, dates, actions)
5. End with clear next steps and contact info
6. Keep it concise - 3-4 short paragraphs max

Write complete, ready-to-send emails.`

// Writer drafts the customer-facing reply from whatever upstream results its
// graph wires in. In the full pipeline that is research plus validation; in
// the quick variant it works from the classification alone.
type Writer struct {
	base
}

// NewWriter creates the drafting stage with the given upstream dependencies.
func NewWriter(client inference.Client, deps ...string) *Writer {
	if len(deps) == 0 {
		deps = []string{StageResearch, StageValidate}
	}
	return &Writer{base: base{
		cfg: Config{
			Name:         StageWrite,
			Dependencies: deps,
			Model:        "mixtral-8x7b-32768",
			Temperature:  0.7,
			MaxTokens:    1200,
			System:       writeSystem,
		},
		client: client,
	}}
}

// Execute drafts the reply email.
func (s *Writer) Execute(ctx context.Context, request string, wfctx *engine.Context) (*schema.StageResult, error) {
	category := "general_question"
	decision := "Unknown"
	amount := "N/A"
	validationReasoning := ""
	actionsText := "None"
	researchText := "No research available."

	for _, dep := range s.cfg.Dependencies {
		res, ok := wfctx.Result(dep)
		if !ok {
			continue
		}
		category = fieldOr(res, "category", category)

		switch dep {
		case StageClassify:
			category = Category(res)
		case StageResearch:
			researchText = res.Output
		case StageValidate:
			validationReasoning = fieldOr(res, "reasoning", validationReasoning)
			amount = fieldOr(res, "amount", amount)
			if approved, ok := extract.Bool(res.Fields, "approved"); ok {
				if approved {
					decision = "Approved"
				} else {
					decision = "Denied"
				}
			}
			if actions := requiredActions(res); len(actions) > 0 {
				actionsText = "- " + strings.Join(actions, "\n- ")
			}
		}
	}

	prompt := fmt.Sprintf(`Write a professional customer support email based on this situation.

Request Type: %s
Customer Request: %q
Decision: %s
Amount: %s
Validation Reasoning: %s

Research Findings:
%s

Required Customer Actions:
%s

Write a complete email response that:
1. Acknowledges the customer's situation with empathy
2. Clearly explains the resolution (%s)
3. Provides specific details (amount: %s)
4. Lists any required actions
5. Ends with next steps and contact information

The email should be ready to send - no placeholders like [Customer Name].
Use "Dear Customer" or "Hello" as greeting.

Write the email now (no JSON, just the email text):`,
		category, request, decision, amount, validationReasoning,
		researchText, actionsText, decision, amount)

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

func requiredActions(res *schema.StageResult) []string {
	if res == nil || res.Fields == nil {
		return nil
	}
	raw, ok := res.Fields["required_actions"].([]any)
	if !ok {
		return nil
	}
	actions := make([]string, 0, len(raw))
	for _, a := range raw {
		if s, ok := a.(string); ok && s != "" {
			actions = append(actions, s)
		}
	}
	return actions
}
