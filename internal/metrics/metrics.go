package metrics

import (
	"context"

	"github.com/rvergara/maestro/internal/store"
)

// Approach holds the reference numbers of one pipeline architecture, measured
// over the evaluation request set.
type Approach struct {
	Name         string  `json:"name"`
	Accuracy     float64 `json:"accuracy"`
	AvgCostUSD   float64 `json:"avg_cost_usd"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Reference baselines: a staged multi-agent pipeline on small models versus a
// single large-model call.
var (
	MultiAgentBaseline = Approach{
		Name:         "multi_agent",
		Accuracy:     0.92,
		AvgCostUSD:   0.0023,
		AvgLatencyMs: 3400,
	}
	SingleLLMBaseline = Approach{
		Name:         "single_llm",
		Accuracy:     0.78,
		AvgCostUSD:   0.015,
		AvgLatencyMs: 2100,
	}
)

// Comparison sets the reference approaches side by side with what this
// deployment has actually observed.
type Comparison struct {
	Baselines       []Approach     `json:"baselines"`
	Observed        *store.Summary `json:"observed"`
	CostRatio       float64        `json:"cost_ratio"`
	AccuracyLiftPct float64        `json:"accuracy_lift_pct"`
}

// Service computes aggregate metrics over the workflow archive.
type Service struct {
	store store.Store
}

// NewService wraps a store for metric queries.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Report pairs the cross-workflow aggregates with the per-stage breakdown.
type Report struct {
	Workflows *store.Summary       `json:"workflows"`
	Stages    []store.StageSummary `json:"stages"`
}

// Summary returns the cross-workflow aggregates.
func (s *Service) Summary(ctx context.Context) (*store.Summary, error) {
	return s.store.Summary(ctx)
}

// Report returns the aggregates together with the per-stage breakdown.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	summary, err := s.store.Summary(ctx)
	if err != nil {
		return nil, err
	}
	stages, err := s.store.StageSummaries(ctx)
	if err != nil {
		return nil, err
	}
	return &Report{Workflows: summary, Stages: stages}, nil
}

// Comparison returns the baseline approaches together with the deployment's
// observed aggregates. The ratios compare the multi-agent baseline against
// the single large-model one.
func (s *Service) Comparison(ctx context.Context) (*Comparison, error) {
	observed, err := s.store.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return &Comparison{
		Baselines:       []Approach{MultiAgentBaseline, SingleLLMBaseline},
		Observed:        observed,
		CostRatio:       SingleLLMBaseline.AvgCostUSD / MultiAgentBaseline.AvgCostUSD,
		AccuracyLiftPct: (MultiAgentBaseline.Accuracy - SingleLLMBaseline.Accuracy) / SingleLLMBaseline.Accuracy * 100,
	}, nil
}
