package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rvergara/maestro/pkg/schema"
)

func TestWorkflowTransitions(t *testing.T) {
	assert.True(t, CanTransitionWorkflow(schema.WorkflowStatusCreated, schema.WorkflowStatusRunning))
	assert.True(t, CanTransitionWorkflow(schema.WorkflowStatusRunning, schema.WorkflowStatusCompleted))
	assert.True(t, CanTransitionWorkflow(schema.WorkflowStatusRunning, schema.WorkflowStatusFailed))

	// No transition skips Running, and terminal states are final.
	assert.False(t, CanTransitionWorkflow(schema.WorkflowStatusCreated, schema.WorkflowStatusCompleted))
	assert.False(t, CanTransitionWorkflow(schema.WorkflowStatusCreated, schema.WorkflowStatusFailed))
	assert.False(t, CanTransitionWorkflow(schema.WorkflowStatusCompleted, schema.WorkflowStatusRunning))
	assert.False(t, CanTransitionWorkflow(schema.WorkflowStatusFailed, schema.WorkflowStatusRunning))
	assert.False(t, CanTransitionWorkflow(schema.WorkflowStatusCompleted, schema.WorkflowStatusFailed))
}

func TestStageTransitions(t *testing.T) {
	assert.True(t, CanTransitionStage(schema.StageStatusPending, schema.StageStatusRunning))
	assert.True(t, CanTransitionStage(schema.StageStatusPending, schema.StageStatusSkipped))
	assert.True(t, CanTransitionStage(schema.StageStatusRunning, schema.StageStatusCompleted))
	assert.True(t, CanTransitionStage(schema.StageStatusRunning, schema.StageStatusFailed))
	assert.True(t, CanTransitionStage(schema.StageStatusRunning, schema.StageStatusSkipped))

	assert.False(t, CanTransitionStage(schema.StageStatusPending, schema.StageStatusCompleted))
	assert.False(t, CanTransitionStage(schema.StageStatusCompleted, schema.StageStatusRunning))
	assert.False(t, CanTransitionStage(schema.StageStatusFailed, schema.StageStatusRunning))
	assert.False(t, CanTransitionStage(schema.StageStatusSkipped, schema.StageStatusRunning))
}

func TestInstanceTransitionRejectsInvalid(t *testing.T) {
	g, err := NewGraph("qa", diamondStages()...)
	assert.NoError(t, err)

	in := NewInstance("customer_support", "help", g)
	assert.Equal(t, schema.WorkflowStatusCreated, in.Status())

	err = in.transition(schema.WorkflowStatusCompleted)
	assert.Error(t, err)
	var serr *schema.Error
	assert.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeInvalidTransition, serr.Code)

	assert.NoError(t, in.transition(schema.WorkflowStatusRunning))
	assert.NoError(t, in.transition(schema.WorkflowStatusFailed))
	assert.Error(t, in.transition(schema.WorkflowStatusRunning))
}

func TestInstanceStageTransitionRejectsInvalid(t *testing.T) {
	g, err := NewGraph("qa", diamondStages()...)
	assert.NoError(t, err)

	in := NewInstance("customer_support", "help", g)
	assert.Error(t, in.transitionStage("classify", schema.StageStatusCompleted))
	assert.NoError(t, in.transitionStage("classify", schema.StageStatusRunning))
	assert.NoError(t, in.transitionStage("classify", schema.StageStatusCompleted))
	assert.Error(t, in.transitionStage("classify", schema.StageStatusRunning))
}

func TestEventTypeMapping(t *testing.T) {
	assert.Equal(t, schema.EventWorkflowStarted, WorkflowEventType(schema.WorkflowStatusRunning))
	assert.Equal(t, schema.EventWorkflowCompleted, WorkflowEventType(schema.WorkflowStatusCompleted))
	assert.Equal(t, schema.EventWorkflowFailed, WorkflowEventType(schema.WorkflowStatusFailed))
	assert.Empty(t, WorkflowEventType(schema.WorkflowStatusCreated))

	assert.Equal(t, schema.EventStageStarted, StageEventType(schema.StageStatusRunning))
	assert.Equal(t, schema.EventStageCompleted, StageEventType(schema.StageStatusCompleted))
	assert.Equal(t, schema.EventStageFailed, StageEventType(schema.StageStatusFailed))
	assert.Equal(t, schema.EventStageSkipped, StageEventType(schema.StageStatusSkipped))
	assert.Empty(t, StageEventType(schema.StageStatusPending))
}
