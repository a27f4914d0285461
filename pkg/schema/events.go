package schema

// Event type constants for the append-only event log.
const (
	EventWorkflowStarted   = "workflow_started"
	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowFailed    = "workflow_failed"
	EventWorkflowTimedOut  = "workflow_timed_out"

	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventStageFailed    = "stage_failed"
	EventStageSkipped   = "stage_skipped"
)

// WorkflowStatus represents the lifecycle state of a workflow instance.
type WorkflowStatus string

const (
	WorkflowStatusCreated   WorkflowStatus = "created"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

// Terminal reports whether the workflow status is final.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed
}

// StageStatus represents the lifecycle state of a stage within an instance.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// Terminal reports whether the stage status is final.
func (s StageStatus) Terminal() bool {
	return s == StageStatusCompleted || s == StageStatusFailed || s == StageStatusSkipped
}
