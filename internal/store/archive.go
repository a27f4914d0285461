package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rvergara/maestro/internal/engine"
)

// Archiver persists terminal workflow snapshots into the archive tables.
// It satisfies the orchestrator's Archiver contract.
type Archiver struct {
	store Store
}

// NewArchiver wraps a store for snapshot archiving.
func NewArchiver(s Store) *Archiver {
	return &Archiver{store: s}
}

// ArchiveWorkflow converts the snapshot into an archive row plus per-stage
// metric rows and saves them in one transaction.
func (a *Archiver) ArchiveWorkflow(ctx context.Context, snap *engine.InstanceSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	category, urgency := triageFields(snap)
	wf := &Workflow{
		ID:              snap.WorkflowID,
		Type:            snap.Type,
		Status:          snap.Status,
		Request:         snap.Request,
		Category:        category,
		Urgency:         urgency,
		FinalOutput:     snap.FinalOutput,
		FailedStage:     snap.FailedStage,
		Snapshot:        raw,
		CostUSD:         snap.Totals.CostUSD,
		LatencyMs:       snap.Totals.LatencyMs,
		Tokens:          snap.Totals.Tokens,
		AvgConfidence:   snap.Totals.ConfidenceAvg,
		StagesCompleted: snap.Totals.StagesCompleted,
		CreatedAt:       snap.CreatedAt,
		CompletedAt:     snap.CompletedAt,
	}

	metrics := make([]StageMetric, 0, len(snap.Stages))
	for _, ss := range snap.Stages {
		metrics = append(metrics, StageMetric{
			WorkflowID: snap.WorkflowID,
			Stage:      ss.Stage,
			Status:     ss.Status,
			Confidence: ss.Confidence,
			CostUSD:    ss.CostUSD,
			LatencyMs:  ss.LatencyMs,
			Tokens:     ss.Tokens,
		})
	}

	return a.store.SaveWorkflow(ctx, wf, metrics)
}

// triageFields pulls the classification outcome out of the snapshot for the
// denormalized archive columns.
func triageFields(snap *engine.InstanceSnapshot) (category, urgency string) {
	for _, ss := range snap.Stages {
		if ss.Fields == nil {
			continue
		}
		if category == "" {
			category, _ = ss.Fields["category"].(string)
		}
		if urgency == "" {
			urgency, _ = ss.Fields["urgency"].(string)
		}
	}
	return category, urgency
}
