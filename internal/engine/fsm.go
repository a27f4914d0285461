package engine

import "github.com/rvergara/maestro/pkg/schema"

// ValidWorkflowTransitions defines the allowed workflow status transitions.
var ValidWorkflowTransitions = map[schema.WorkflowStatus][]schema.WorkflowStatus{
	schema.WorkflowStatusCreated:   {schema.WorkflowStatusRunning},
	schema.WorkflowStatusRunning:   {schema.WorkflowStatusCompleted, schema.WorkflowStatusFailed},
	schema.WorkflowStatusCompleted: {},
	schema.WorkflowStatusFailed:    {},
}

// ValidStageTransitions defines the allowed stage status transitions.
// Running -> Skipped covers results that arrive after the instance already
// failed: the attempt is discarded and recorded as skipped.
var ValidStageTransitions = map[schema.StageStatus][]schema.StageStatus{
	schema.StageStatusPending:   {schema.StageStatusRunning, schema.StageStatusSkipped},
	schema.StageStatusRunning:   {schema.StageStatusCompleted, schema.StageStatusFailed, schema.StageStatusSkipped},
	schema.StageStatusCompleted: {},
	schema.StageStatusFailed:    {},
	schema.StageStatusSkipped:   {},
}

// CanTransitionWorkflow reports whether the workflow transition is allowed.
func CanTransitionWorkflow(from, to schema.WorkflowStatus) bool {
	for _, a := range ValidWorkflowTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// CanTransitionStage reports whether the stage transition is allowed.
func CanTransitionStage(from, to schema.StageStatus) bool {
	for _, a := range ValidStageTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// WorkflowEventType maps a workflow status to the event emitted on entering it.
func WorkflowEventType(to schema.WorkflowStatus) string {
	switch to {
	case schema.WorkflowStatusRunning:
		return schema.EventWorkflowStarted
	case schema.WorkflowStatusCompleted:
		return schema.EventWorkflowCompleted
	case schema.WorkflowStatusFailed:
		return schema.EventWorkflowFailed
	default:
		return ""
	}
}

// StageEventType maps a stage status to the event emitted on entering it.
func StageEventType(to schema.StageStatus) string {
	switch to {
	case schema.StageStatusRunning:
		return schema.EventStageStarted
	case schema.StageStatusCompleted:
		return schema.EventStageCompleted
	case schema.StageStatusFailed:
		return schema.EventStageFailed
	case schema.StageStatusSkipped:
		return schema.EventStageSkipped
	default:
		return ""
	}
}
