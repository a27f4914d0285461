package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvergara/maestro/pkg/schema"
)

// --- helpers ---

type fakeStage struct {
	name string
	deps []string
	fn   func(ctx context.Context, request string, wfctx *Context) (*schema.StageResult, error)
}

func (s *fakeStage) Name() string           { return s.name }
func (s *fakeStage) Dependencies() []string { return s.deps }

func (s *fakeStage) Execute(ctx context.Context, request string, wfctx *Context) (*schema.StageResult, error) {
	if s.fn != nil {
		return s.fn(ctx, request, wfctx)
	}
	return &schema.StageResult{Stage: s.name, Output: s.name + " output", Confidence: 0.8}, nil
}

func stage(name string, deps ...string) *fakeStage {
	return &fakeStage{name: name, deps: deps}
}

// diamondStages is the support pipeline shape: one root fanning out to two
// parallel stages that join into a writer, followed by a terminal reviewer.
func diamondStages() []Stage {
	return []Stage{
		stage("classify"),
		stage("research", "classify"),
		stage("validate", "classify"),
		stage("write", "research", "validate"),
		stage("qa", "write"),
	}
}

func allPending(g *Graph) map[string]schema.StageStatus {
	status := make(map[string]schema.StageStatus, g.Len())
	for _, name := range g.Names() {
		status[name] = schema.StageStatusPending
	}
	return status
}

// --- tests ---

func TestNewGraphValid(t *testing.T) {
	g, err := NewGraph("qa", diamondStages()...)
	require.NoError(t, err)

	assert.Equal(t, 5, g.Len())
	assert.Equal(t, "qa", g.Terminal())

	// Topological order: classify first, qa last, the parallel pair between.
	names := g.Names()
	require.Len(t, names, 5)
	assert.Equal(t, "classify", names[0])
	assert.Equal(t, "write", names[3])
	assert.Equal(t, "qa", names[4])
}

func TestNewGraphErrors(t *testing.T) {
	tests := []struct {
		name     string
		terminal string
		stages   []Stage
		contains string
	}{
		{
			name:     "empty graph",
			terminal: "a",
			stages:   nil,
			contains: "no stages",
		},
		{
			name:     "duplicate name",
			terminal: "a",
			stages:   []Stage{stage("a"), stage("a")},
			contains: "duplicate stage name",
		},
		{
			name:     "unknown dependency",
			terminal: "a",
			stages:   []Stage{stage("a", "ghost")},
			contains: "unknown stage",
		},
		{
			name:     "self dependency",
			terminal: "a",
			stages:   []Stage{stage("a", "a")},
			contains: "depends on itself",
		},
		{
			name:     "duplicate dependency",
			terminal: "b",
			stages:   []Stage{stage("a"), stage("b", "a", "a")},
			contains: "duplicate dependency",
		},
		{
			name:     "terminal not in graph",
			terminal: "ghost",
			stages:   []Stage{stage("a")},
			contains: "not in graph",
		},
		{
			name:     "cycle",
			terminal: "a",
			stages:   []Stage{stage("a", "b"), stage("b", "a")},
			contains: "cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGraph(tt.terminal, tt.stages...)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.Contains(t, err.Error(), tt.contains)

			var serr *schema.Error
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, schema.ErrCodeGraph, serr.Code)
		})
	}
}

func TestReadySet(t *testing.T) {
	g, err := NewGraph("qa", diamondStages()...)
	require.NoError(t, err)

	status := allPending(g)
	assert.Equal(t, []string{"classify"}, g.ReadySet(status))

	status["classify"] = schema.StageStatusCompleted
	assert.Equal(t, []string{"research", "validate"}, g.ReadySet(status))

	status["research"] = schema.StageStatusRunning
	assert.Equal(t, []string{"validate"}, g.ReadySet(status))

	status["research"] = schema.StageStatusCompleted
	status["validate"] = schema.StageStatusCompleted
	assert.Equal(t, []string{"write"}, g.ReadySet(status))

	status["write"] = schema.StageStatusCompleted
	assert.Equal(t, []string{"qa"}, g.ReadySet(status))

	status["qa"] = schema.StageStatusCompleted
	assert.Empty(t, g.ReadySet(status))
}

func TestReadySetBlockedByFailedDependency(t *testing.T) {
	g, err := NewGraph("qa", diamondStages()...)
	require.NoError(t, err)

	status := allPending(g)
	status["classify"] = schema.StageStatusCompleted
	status["research"] = schema.StageStatusFailed
	status["validate"] = schema.StageStatusCompleted

	// write needs research Completed; a Failed dependency never unblocks it.
	assert.Empty(t, g.ReadySet(status))
}

func TestTransitiveDependents(t *testing.T) {
	g, err := NewGraph("qa", diamondStages()...)
	require.NoError(t, err)

	assert.Equal(t, []string{"write", "qa"}, g.TransitiveDependents("research"))
	assert.Equal(t, []string{"qa"}, g.TransitiveDependents("write"))
	assert.Empty(t, g.TransitiveDependents("qa"))

	deps := g.TransitiveDependents("classify")
	assert.Len(t, deps, 4)
	assert.Equal(t, "qa", deps[len(deps)-1])
}

func TestRequiredForTerminal(t *testing.T) {
	// enrich hangs off research but nothing downstream of the terminal
	// depends on it.
	g, err := NewGraph("write",
		stage("classify"),
		stage("research", "classify"),
		stage("enrich", "research"),
		stage("write", "classify"),
	)
	require.NoError(t, err)

	assert.True(t, g.RequiredForTerminal("write"))
	assert.True(t, g.RequiredForTerminal("classify"))
	assert.False(t, g.RequiredForTerminal("research"))
	assert.False(t, g.RequiredForTerminal("enrich"))
}

func TestDependenciesReturnsCopy(t *testing.T) {
	g, err := NewGraph("qa", diamondStages()...)
	require.NoError(t, err)

	deps := g.Dependencies("write")
	assert.ElementsMatch(t, []string{"research", "validate"}, deps)

	deps[0] = "mutated"
	assert.NotContains(t, g.Dependencies("write"), "mutated")
}
