package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvergara/maestro/internal/engine"
	"github.com/rvergara/maestro/internal/inference"
	"github.com/rvergara/maestro/internal/tools"
	"github.com/rvergara/maestro/pkg/schema"
)

// fakeClient returns canned completions and records the prompts it saw.
type fakeClient struct {
	reply   string
	err     error
	prompts []string
	systems []string
}

func (c *fakeClient) Complete(ctx context.Context, req *inference.Request) (*inference.Completion, error) {
	c.prompts = append(c.prompts, req.Prompt)
	c.systems = append(c.systems, req.System)
	if c.err != nil {
		return nil, c.err
	}
	return &inference.Completion{
		Text:      c.reply,
		Model:     req.Model,
		Tokens:    150,
		CostUSD:   0.0001,
		LatencyMs: 42,
	}, nil
}

func newToolkit(client inference.Client) Toolkit {
	return Toolkit{
		Client:    client,
		Knowledge: tools.NewKnowledgeBase(),
		Orders:    tools.NewOrderLookup(),
		Policies:  tools.NewPolicyChecker(),
	}
}

func TestClassifierExecute(t *testing.T) {
	client := &fakeClient{reply: `{"category": "refund", "urgency": "high", "reasoning": "customer demands money back", "confidence": 0.92}`}
	s := NewClassifier(client)

	assert.Equal(t, StageClassify, s.Name())
	assert.Empty(t, s.Dependencies())

	res, err := s.Execute(context.Background(), "I want my money back for order #12345!", engine.NewContext())
	require.NoError(t, err)

	assert.Equal(t, "refund", Category(res))
	assert.Equal(t, "high", Urgency(res))
	assert.InDelta(t, 0.92, res.Confidence, 1e-9)
	assert.Equal(t, "customer demands money back", res.Reasoning)
	assert.Equal(t, 150, res.Tokens)
	assert.InDelta(t, 0.0001, res.CostUSD, 1e-9)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "I want my money back")
	assert.Contains(t, client.systems[0], "classification expert")
}

func TestCategoryDefaults(t *testing.T) {
	assert.Equal(t, "general_question", Category(nil))
	assert.Equal(t, "medium", Urgency(&schema.StageResult{Fields: map[string]any{}}))
}

func TestResearcherExecute(t *testing.T) {
	client := &fakeClient{reply: `{"key_findings": "30 day return window", "confidence": 0.8}`}
	tk := newToolkit(client)
	s := NewResearcher(client, tk.Knowledge, tk.Orders)

	assert.Equal(t, []string{StageClassify}, s.Dependencies())

	wfctx := engine.NewContext()
	seedResult(wfctx, &schema.StageResult{Stage: StageClassify, Fields: map[string]any{"category": "refund"}})

	res, err := s.Execute(context.Background(), "I want a refund for order #12345", wfctx)
	require.NoError(t, err)

	prompt := client.prompts[len(client.prompts)-1]
	assert.Contains(t, prompt, "Refund Policy")
	assert.Contains(t, prompt, "Order #12345")
	assert.Contains(t, prompt, "Query Category: refund")

	// Category rides along for downstream stages.
	assert.Equal(t, "refund", res.Fields["category"])
}

func TestValidatorRunsEligibilityForRefunds(t *testing.T) {
	client := &fakeClient{reply: `{"approved": true, "amount": "$799.00", "required_actions": ["return item"], "reasoning": "within window", "confidence": 0.9}`}
	tk := newToolkit(client)
	s := NewValidator(client, tk.Policies, tk.Orders)

	wfctx := engine.NewContext()
	seedResult(wfctx, &schema.StageResult{Stage: StageClassify, Fields: map[string]any{"category": "refund"}})

	res, err := s.Execute(context.Background(), "refund please, order #12345", wfctx)
	require.NoError(t, err)

	prompt := client.prompts[0]
	// Order 12345 is 10 days old so the rule engine approves.
	assert.Contains(t, prompt, `"eligible":true`)
	assert.Contains(t, prompt, "Refund Policy")

	approved, ok := res.Fields["approved"].(bool)
	require.True(t, ok)
	assert.True(t, approved)
}

func TestValidatorSkipsEligibilityWithoutOrder(t *testing.T) {
	client := &fakeClient{reply: `{"approved": false, "reasoning": "no order identified"}`}
	tk := newToolkit(client)
	s := NewValidator(client, tk.Policies, tk.Orders)

	wfctx := engine.NewContext()
	seedResult(wfctx, &schema.StageResult{Stage: StageClassify, Fields: map[string]any{"category": "refund"}})

	_, err := s.Execute(context.Background(), "I want a refund", wfctx)
	require.NoError(t, err)
	assert.Contains(t, client.prompts[0], "No deterministic eligibility check applies")
}

func TestWriterExecuteFullPipeline(t *testing.T) {
	client := &fakeClient{reply: "Dear Customer,\n\nYour refund of $799.00 has been approved.\n\nBest regards"}
	s := NewWriter(client)

	assert.Equal(t, []string{StageResearch, StageValidate}, s.Dependencies())

	wfctx := engine.NewContext()
	seedResult(wfctx, &schema.StageResult{
		Stage:  StageResearch,
		Output: "order was delivered 3 days ago",
		Fields: map[string]any{"category": "refund"},
	})
	seedResult(wfctx, &schema.StageResult{
		Stage: StageValidate,
		Fields: map[string]any{
			"category":         "refund",
			"approved":         true,
			"amount":           "$799.00",
			"required_actions": []any{"return the item", "keep the receipt"},
			"reasoning":        "within 30 day window",
		},
	})

	res, err := s.Execute(context.Background(), "refund order #12345", wfctx)
	require.NoError(t, err)

	prompt := client.prompts[0]
	assert.Contains(t, prompt, "Decision: Approved")
	assert.Contains(t, prompt, "Amount: $799.00")
	assert.Contains(t, prompt, "- return the item")
	assert.Contains(t, prompt, "order was delivered 3 days ago")

	assert.Contains(t, res.Output, "Dear Customer")
	assert.Equal(t, "refund", res.Fields["category"])
}

func TestWriterDeniedDecision(t *testing.T) {
	client := &fakeClient{reply: "Hello, unfortunately..."}
	s := NewWriter(client)

	wfctx := engine.NewContext()
	seedResult(wfctx, &schema.StageResult{Stage: StageResearch, Output: "n/a"})
	seedResult(wfctx, &schema.StageResult{
		Stage:  StageValidate,
		Fields: map[string]any{"approved": false, "reasoning": "outside window"},
	})

	_, err := s.Execute(context.Background(), "old refund", wfctx)
	require.NoError(t, err)
	assert.Contains(t, client.prompts[0], "Decision: Denied")
}

func TestWriterQuickVariant(t *testing.T) {
	client := &fakeClient{reply: "Hello, thanks for reaching out."}
	s := NewWriter(client, StageClassify)

	assert.Equal(t, []string{StageClassify}, s.Dependencies())

	wfctx := engine.NewContext()
	seedResult(wfctx, &schema.StageResult{Stage: StageClassify, Fields: map[string]any{"category": "general_question"}})

	_, err := s.Execute(context.Background(), "what are your hours?", wfctx)
	require.NoError(t, err)
	assert.Contains(t, client.prompts[0], "Request Type: general_question")
	assert.Contains(t, client.prompts[0], "Decision: Unknown")
}

func TestQAExecuteAndHelpers(t *testing.T) {
	client := &fakeClient{reply: `{"accuracy_score": 9, "tone_score": 8, "completeness_score": 9, "clarity_score": 9, "overall_score": 9, "recommendation": "APPROVE", "reasoning": "solid reply", "confidence": 0.88}`}
	s := NewQA(client)

	assert.Equal(t, []string{StageWrite}, s.Dependencies())

	wfctx := engine.NewContext()
	seedResult(wfctx, &schema.StageResult{
		Stage:  StageWrite,
		Output: "Dear Customer, your refund is approved.",
		Fields: map[string]any{"category": "refund"},
	})

	res, err := s.Execute(context.Background(), "refund order #12345", wfctx)
	require.NoError(t, err)

	assert.Contains(t, client.prompts[0], "Dear Customer, your refund is approved.")
	assert.Contains(t, client.prompts[0], "REQUEST TYPE: refund")

	assert.True(t, Approved(res))
	assert.Equal(t, 9.0, OverallScore(res))

	// The output is the email to send, not the review JSON; the review
	// stays accessible through Fields.
	assert.Equal(t, "Dear Customer, your refund is approved.", res.Output)
	assert.Equal(t, "APPROVE", res.Fields["recommendation"])
}

func TestQAOutputPrefersCorrectedResponse(t *testing.T) {
	client := &fakeClient{reply: `{"overall_score": 8, "recommendation": "APPROVE", "approved_response": "Dear Customer, your refund of $799.00 is approved.", "confidence": 0.9}`}
	s := NewQA(client)

	wfctx := engine.NewContext()
	seedResult(wfctx, &schema.StageResult{
		Stage:  StageWrite,
		Output: "Dear Customer, your refund is approved.",
		Fields: map[string]any{"category": "refund"},
	})

	res, err := s.Execute(context.Background(), "refund order #12345", wfctx)
	require.NoError(t, err)
	assert.Equal(t, "Dear Customer, your refund of $799.00 is approved.", res.Output)
}

func TestQAApprovedByScoreAlone(t *testing.T) {
	res := &schema.StageResult{Fields: map[string]any{"recommendation": "REVISE", "overall_score": 7.0}}
	assert.True(t, Approved(res))

	res = &schema.StageResult{Fields: map[string]any{"recommendation": "REVISE", "overall_score": 5.0}}
	assert.False(t, Approved(res))

	assert.False(t, Approved(nil))
}

func TestCompleteWrapsClientErrors(t *testing.T) {
	client := &fakeClient{err: errors.New("provider unavailable")}
	s := NewClassifier(client)

	_, err := s.Execute(context.Background(), "hello", engine.NewContext())
	require.Error(t, err)

	var failure *schema.StageFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, StageClassify, failure.Stage)
	assert.Contains(t, failure.Reason, "provider unavailable")
	assert.False(t, failure.Timeout)
}

func TestCompleteMarksTimeouts(t *testing.T) {
	client := &fakeClient{err: context.DeadlineExceeded}
	s := NewClassifier(client)

	_, err := s.Execute(context.Background(), "hello", engine.NewContext())
	var failure *schema.StageFailure
	require.ErrorAs(t, err, &failure)
	assert.True(t, failure.Timeout)
}

func TestConfidenceScoreHeuristics(t *testing.T) {
	// Self-reported confidence wins.
	assert.InDelta(t, 0.42, confidenceScore(`{"confidence": 0.42}`), 1e-9)

	// Plain short text: base only.
	assert.InDelta(t, 0.7, confidenceScore("short answer"), 1e-9)

	// Structured output without a confidence field earns the bonus.
	assert.InDelta(t, 0.8, confidenceScore(`{"category": "refund"}`), 1e-9)

	// Long structured output caps below certainty.
	long := `{"category": "refund", "detail": "` + strings.Repeat("x", 250) + `"}`
	assert.InDelta(t, 0.9, confidenceScore(long), 1e-9)

	// Out-of-range self-reports fall back to the heuristic.
	assert.InDelta(t, 0.8, confidenceScore(`{"confidence": 3.5}`), 1e-9)
}

func TestExtractReasoning(t *testing.T) {
	assert.Equal(t, "because", extractReasoning(`{"reasoning": "because"}`))
	assert.Equal(t, "First sentence here", extractReasoning("First sentence here. Second sentence."))

	long := strings.Repeat("a", 150)
	assert.Len(t, extractReasoning(long), 100)
}

func TestGraphs(t *testing.T) {
	graphs, err := Graphs(newToolkit(&fakeClient{reply: "{}"}))
	require.NoError(t, err)
	require.Len(t, graphs, 2)

	support := graphs[TypeCustomerSupport]
	assert.Equal(t, StageQA, support.Terminal())
	assert.Equal(t, 5, support.Len())
	assert.True(t, support.RequiredForTerminal(StageValidate))
	assert.True(t, support.RequiredForTerminal(StageResearch))

	quick := graphs[TypeQuickReply]
	assert.Equal(t, StageWrite, quick.Terminal())
	assert.Equal(t, 2, quick.Len())
}

// seedResult places a dependency result in the context the way the
// orchestrator does after a stage completes.
func seedResult(wfctx *engine.Context, res *schema.StageResult) {
	wfctx.Put(res.Stage, res)
}
