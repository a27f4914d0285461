package schema

import "time"

// StageResult is produced exactly once per stage per workflow instance on success.
// Fields holds stage-specific structured data (category, urgency, approval
// decision, quality scores) consumed by downstream stages.
type StageResult struct {
	Stage      string         `json:"stage"`
	Output     string         `json:"output"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Confidence float64        `json:"confidence"`
	CostUSD    float64        `json:"cost_usd"`
	LatencyMs  int64          `json:"latency_ms"`
	Tokens     int            `json:"tokens"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// StageFailure is the error a stage returns when its external call failed.
// It carries the partial metrics the failed attempt incurred (a timed-out
// inference call still costs tokens); the orchestrator folds those into the
// instance totals without counting the stage as completed.
type StageFailure struct {
	Stage     string  `json:"stage"`
	Reason    string  `json:"reason"`
	Timeout   bool    `json:"timeout,omitempty"`
	CostUSD   float64 `json:"cost_usd,omitempty"`
	LatencyMs int64   `json:"latency_ms,omitempty"`
	Tokens    int     `json:"tokens,omitempty"`
	Cause     error   `json:"-"`
}

func (f *StageFailure) Error() string {
	if f.Timeout {
		return "stage " + f.Stage + " timed out: " + f.Reason
	}
	return "stage " + f.Stage + " failed: " + f.Reason
}

func (f *StageFailure) Unwrap() error {
	return f.Cause
}

// Totals are the running workflow-level metric aggregates.
// ConfidenceAvg is the arithmetic mean over completed stages only;
// cost, latency and tokens also include failed attempts' partial figures.
type Totals struct {
	CostUSD         float64 `json:"total_cost_usd"`
	LatencyMs       int64   `json:"total_latency_ms"`
	Tokens          int     `json:"total_tokens"`
	ConfidenceAvg   float64 `json:"avg_confidence"`
	StagesCompleted int     `json:"stages_completed"`
}

// Event is one ordered notification of a state transition within a workflow.
// Stage is empty for workflow-level transitions. Sequence is monotonically
// increasing per workflow and assigned by the event log on append.
type Event struct {
	ID         int64          `json:"id,omitempty"`
	WorkflowID string         `json:"workflow_id"`
	Stage      string         `json:"stage,omitempty"`
	Type       string         `json:"event_type"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Sequence   int64          `json:"sequence"`
}
