package agent

import (
	"context"
	"fmt"

	"github.com/rvergara/maestro/internal/engine"
	"github.com/rvergara/maestro/internal/extract"
	"github.com/rvergara/maestro/internal/inference"
	"github.com/rvergara/maestro/pkg/schema"
)

// StageQA is the graph name of the quality review stage.
const StageQA = "qa"

const qaSystem = `You are a quality assurance expert for customer support.
Your job is to review email responses and ensure they meet high quality standards.

Evaluation Criteria:
1. ACCURACY (1-10): Does the email match the validation decision and amounts?
2. TONE (1-10): Is it empathetic, professional, and customer-friendly?
3. COMPLETENESS (1-10): Are all points addressed? Clear next steps?
4. CLARITY (1-10): Is it easy to understand? Free of jargon?

For each criterion:
- 9-10: Excellent, ready to send
- 7-8: Good, minor improvements possible
- 5-6: Acceptable, some issues
- 1-4: Poor, needs revision

Provide specific, actionable feedback for improvements.
Be thorough but fair in your evaluation.`

// QA reviews the drafted reply and scores it on accuracy, tone,
// completeness and clarity. Terminal stage of the full pipeline.
type QA struct {
	base
}

// NewQA creates the quality review stage.
func NewQA(client inference.Client) *QA {
	return &QA{base: base{
		cfg: Config{
			Name:         StageQA,
			Dependencies: []string{StageWrite},
			Model:        "llama-3.1-70b-versatile",
			Temperature:  0.3,
			MaxTokens:    1000,
			System:       qaSystem,
		},
		client: client,
	}}
}

// Execute reviews the drafted email.
func (s *QA) Execute(ctx context.Context, request string, wfctx *engine.Context) (*schema.StageResult, error) {
	draft, _ := wfctx.Result(StageWrite)
	draftText := ""
	category := "general_question"
	if draft != nil {
		draftText = draft.Output
		category = fieldOr(draft, "category", category)
	}

	prompt := fmt.Sprintf(`Review this customer support email for quality.

REQUEST TYPE: %s
ORIGINAL REQUEST: %q

EMAIL TO REVIEW:
---
%s
---

Evaluate the email on these criteria (score 1-10 each):

1. ACCURACY: Does the email correctly address the request?
2. TONE: Is it empathetic, professional, and friendly?
3. COMPLETENESS: Are all necessary details included? Clear next steps?
4. CLARITY: Is it easy to understand? Well-structured?

Respond in JSON:
{
    "accuracy_score": 1-10,
    "tone_score": 1-10,
    "completeness_score": 1-10,
    "clarity_score": 1-10,
    "overall_score": 1-10,
    "strengths": ["strength1", "strength2"],
    "improvements": ["improvement1", "improvement2"],
    "recommendation": "APPROVE|REVISE|REJECT",
    "approved_response": "the full email text to send, with your corrections applied",
    "reasoning": "Overall assessment",
    "confidence": 0.0-1.0
}`, category, request, draftText)

	res, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	// As the terminal stage, qa's output becomes the workflow's final output.
	// That must be the customer-facing email, not the review itself; the
	// scores stay available in Fields. Prefer the reviewer's corrected text,
	// fall back to the writer's draft.
	if edited := extract.String(res.Fields, "approved_response"); edited != "" {
		res.Output = edited
	} else {
		res.Output = draftText
	}
	return res, nil
}

// Approved reports whether the review cleared the draft for sending: an
// explicit APPROVE recommendation or an overall score of at least 7.
func Approved(res *schema.StageResult) bool {
	if res == nil || res.Fields == nil {
		return false
	}
	if extract.String(res.Fields, "recommendation") == "APPROVE" {
		return true
	}
	score, ok := extract.Float(res.Fields, "overall_score")
	return ok && score >= 7
}

// OverallScore returns the review's overall score, or 0 when absent.
func OverallScore(res *schema.StageResult) float64 {
	if res == nil || res.Fields == nil {
		return 0
	}
	score, _ := extract.Float(res.Fields, "overall_score")
	return score
}
