package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvergara/maestro/internal/store"
)

// summaryStore stubs the store contract; only Summary matters here.
type summaryStore struct {
	store.Store

	summary *store.Summary
	stages  []store.StageSummary
	err     error
}

func (s *summaryStore) Summary(ctx context.Context) (*store.Summary, error) {
	return s.summary, s.err
}

func (s *summaryStore) StageSummaries(ctx context.Context) ([]store.StageSummary, error) {
	return s.stages, s.err
}

func TestSummaryDelegatesToStore(t *testing.T) {
	want := &store.Summary{WorkflowCount: 3, TotalCostUSD: 0.01}
	svc := NewService(&summaryStore{summary: want})

	got, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReportCombinesSummaryAndStages(t *testing.T) {
	svc := NewService(&summaryStore{
		summary: &store.Summary{WorkflowCount: 2},
		stages: []store.StageSummary{
			{Stage: "classify", Runs: 2, AvgConfidence: 0.85},
		},
	})

	report, err := svc.Report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Workflows.WorkflowCount)
	require.Len(t, report.Stages, 1)
	assert.Equal(t, "classify", report.Stages[0].Stage)
}

func TestComparison(t *testing.T) {
	observed := &store.Summary{
		WorkflowCount: 10,
		AvgCostUSD:    0.0021,
		AvgLatencyMs:  3100,
		AvgConfidence: 0.88,
	}
	svc := NewService(&summaryStore{summary: observed})

	cmp, err := svc.Comparison(context.Background())
	require.NoError(t, err)

	require.Len(t, cmp.Baselines, 2)
	assert.Equal(t, "multi_agent", cmp.Baselines[0].Name)
	assert.Equal(t, "single_llm", cmp.Baselines[1].Name)
	assert.Equal(t, observed, cmp.Observed)
	assert.InDelta(t, 0.015/0.0023, cmp.CostRatio, 1e-9)
	assert.InDelta(t, (0.92-0.78)/0.78*100, cmp.AccuracyLiftPct, 1e-9)
}

func TestComparisonPropagatesStoreError(t *testing.T) {
	svc := NewService(&summaryStore{err: errors.New("db gone")})

	_, err := svc.Comparison(context.Background())
	require.Error(t, err)
}
