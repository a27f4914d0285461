package agent

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rvergara/maestro/internal/extract"
	"github.com/rvergara/maestro/internal/inference"
	"github.com/rvergara/maestro/pkg/schema"
)

// Config describes one agent stage: its graph position and model settings.
type Config struct {
	Name         string
	Dependencies []string
	Model        string
	Temperature  float64
	MaxTokens    int
	System       string
}

// base carries the behavior shared by all agent stages: calling the model,
// recovering structured output, and scoring confidence.
type base struct {
	cfg    Config
	client inference.Client
}

func (b *base) Name() string { return b.cfg.Name }

func (b *base) Dependencies() []string { return b.cfg.Dependencies }

// complete calls the model and shapes the reply into a stage result. Model
// errors come back as a StageFailure carrying the elapsed latency; the call
// produced no usable usage numbers so cost and tokens stay zero.
func (b *base) complete(ctx context.Context, prompt string) (*schema.StageResult, error) {
	start := time.Now()
	comp, err := b.client.Complete(ctx, &inference.Request{
		Model:       b.cfg.Model,
		System:      b.cfg.System,
		Prompt:      prompt,
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
	})
	if err != nil {
		return nil, &schema.StageFailure{
			Stage:     b.cfg.Name,
			Reason:    err.Error(),
			Timeout:   errors.Is(err, context.DeadlineExceeded),
			LatencyMs: time.Since(start).Milliseconds(),
			Cause:     err,
		}
	}

	res := &schema.StageResult{
		Stage:      b.cfg.Name,
		Output:     comp.Text,
		Reasoning:  extractReasoning(comp.Text),
		Confidence: confidenceScore(comp.Text),
		CostUSD:    comp.CostUSD,
		LatencyMs:  comp.LatencyMs,
		Tokens:     comp.Tokens,
	}
	if obj, ok := extract.Object(comp.Text); ok {
		res.Fields = obj
	}
	return res, nil
}

// confidenceScore prefers the model's own confidence field when the output
// carries a valid one, and otherwise estimates from quality signals:
// structured output and a substantive length each add a little, capped below
// a self-reported score.
func confidenceScore(output string) float64 {
	if obj, ok := extract.Object(output); ok {
		if c, ok := extract.Float(obj, "confidence"); ok && c >= 0 && c <= 1 {
			return c
		}
	}

	conf := 0.7
	if strings.Contains(output, "{") && strings.Contains(output, "}") {
		conf += 0.1
	}
	if len(output) > 200 {
		conf += 0.1
	}
	return math.Min(conf, 0.95)
}

// extractReasoning pulls the reasoning field from structured output, falling
// back to the first sentence trimmed to 100 characters.
func extractReasoning(output string) string {
	if obj, ok := extract.Object(output); ok {
		if r := extract.String(obj, "reasoning"); r != "" {
			return r
		}
	}

	sentence, _, _ := strings.Cut(output, ".")
	sentence = strings.TrimSpace(sentence)
	if len(sentence) > 100 {
		sentence = sentence[:100]
	}
	return sentence
}

// fieldOr returns a string field from a dependency result, or the fallback.
func fieldOr(res *schema.StageResult, key, fallback string) string {
	if res == nil || res.Fields == nil {
		return fallback
	}
	if v := extract.String(res.Fields, key); v != "" {
		return v
	}
	return fallback
}
