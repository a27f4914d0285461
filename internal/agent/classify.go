package agent

import (
	"context"
	"fmt"

	"github.com/rvergara/maestro/internal/engine"
	"github.com/rvergara/maestro/internal/inference"
	"github.com/rvergara/maestro/pkg/schema"
)

// StageClassify is the graph name of the classification stage.
const StageClassify = "classify"

const classifySystem = `You are a customer support classification expert.
Your job is to analyze customer messages and accurately categorize them.

Categories:
- refund: Customer wants their money back
- exchange: Customer wants to swap/replace a product
- complaint: Customer is expressing dissatisfaction
- general_question: Customer needs information or help

Urgency Levels:
- high: Angry customer, legal threats, time-sensitive (same-day delivery issue)
- medium: Product defect, wrong item received, payment issues
- low: General questions, tracking info, policy questions

Always respond in valid JSON format with category, urgency, and reasoning.
Be concise but accurate in your reasoning.`

// Classifier categorizes the incoming request and grades its urgency. It is
// the root of every workflow graph.
type Classifier struct {
	base
}

// NewClassifier creates the classification stage.
func NewClassifier(client inference.Client) *Classifier {
	return &Classifier{base: base{
		cfg: Config{
			Name:        StageClassify,
			Model:       "llama-3.1-8b-instant",
			Temperature: 0.3,
			MaxTokens:   500,
			System:      classifySystem,
		},
		client: client,
	}}
}

// Execute classifies the customer request.
func (s *Classifier) Execute(ctx context.Context, request string, wfctx *engine.Context) (*schema.StageResult, error) {
	prompt := fmt.Sprintf(`Analyze this customer support message and classify it.

Customer Message:
%q

Respond with valid JSON only:
{
    "category": "refund|exchange|complaint|general_question",
    "urgency": "low|medium|high",
    "reasoning": "Brief explanation of your classification",
    "confidence": 0.0-1.0
}`, request)

	return s.complete(ctx, prompt)
}

// Category returns the classified category, defaulting to general_question
// when the output carried none.
func Category(res *schema.StageResult) string {
	return fieldOr(res, "category", "general_question")
}

// Urgency returns the classified urgency, defaulting to medium.
func Urgency(res *schema.StageResult) string {
	return fieldOr(res, "urgency", "medium")
}
