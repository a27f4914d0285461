package store

import (
	"encoding/json"
	"time"

	"github.com/rvergara/maestro/pkg/schema"
)

// Workflow is the archived record of a terminal workflow instance. Snapshot
// holds the full instance view as JSON; the remaining columns are denormalized
// for filtering and aggregate queries.
type Workflow struct {
	ID              string                `json:"workflow_id"`
	Type            string                `json:"workflow_type"`
	Status          schema.WorkflowStatus `json:"status"`
	Request         string                `json:"request"`
	Category        string                `json:"category,omitempty"`
	Urgency         string                `json:"urgency,omitempty"`
	FinalOutput     string                `json:"final_output,omitempty"`
	FailedStage     string                `json:"failed_stage,omitempty"`
	Snapshot        json.RawMessage       `json:"snapshot"`
	CostUSD         float64               `json:"total_cost_usd"`
	LatencyMs       int64                 `json:"total_latency_ms"`
	Tokens          int                   `json:"total_tokens"`
	AvgConfidence   float64               `json:"avg_confidence"`
	StagesCompleted int                   `json:"stages_completed"`
	CreatedAt       time.Time             `json:"created_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
}

// StageMetric is the per-stage outcome row of an archived workflow.
type StageMetric struct {
	WorkflowID string             `json:"workflow_id"`
	Stage      string             `json:"stage"`
	Status     schema.StageStatus `json:"status"`
	Confidence float64            `json:"confidence"`
	CostUSD    float64            `json:"cost_usd"`
	LatencyMs  int64              `json:"latency_ms"`
	Tokens     int                `json:"tokens"`
}

// WorkflowFilter narrows ListWorkflows results.
type WorkflowFilter struct {
	Status   *schema.WorkflowStatus
	Type     string
	Category string
	Since    *time.Time
	Limit    int
	Offset   int
}

// StageSummary is the per-stage aggregate over completed stage attempts.
type StageSummary struct {
	Stage         string  `json:"stage"`
	Runs          int64   `json:"runs"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgCostUSD    float64 `json:"avg_cost_usd"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	AvgTokens     float64 `json:"avg_tokens"`
}

// Summary is the cross-workflow aggregate over the archive.
type Summary struct {
	WorkflowCount  int64   `json:"workflow_count"`
	CompletedCount int64   `json:"completed_count"`
	FailedCount    int64   `json:"failed_count"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	AvgCostUSD     float64 `json:"avg_cost_usd"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	TotalTokens    int64   `json:"total_tokens"`
	AvgConfidence  float64 `json:"avg_confidence"`
}
