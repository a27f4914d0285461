package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rvergara/maestro/pkg/schema"
)

// Context is the shared per-instance result map. The orchestrator writes each
// entry exactly once, immediately after the owning stage completes; stages
// read the entries of their declared dependencies. Scheduling guarantees a
// stage never observes a dependency's entry before that dependency completed.
type Context struct {
	mu      sync.RWMutex
	results map[string]*schema.StageResult
}

// NewContext creates an empty workflow context.
func NewContext() *Context {
	return &Context{results: make(map[string]*schema.StageResult)}
}

// Result returns the recorded result for a stage, if present.
func (c *Context) Result(stage string) (*schema.StageResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[stage]
	return r, ok
}

// Put records a stage result. The orchestrator calls this exactly once per
// completed stage, before the stage becomes visible as Completed.
func (c *Context) Put(stage string, r *schema.StageResult) {
	c.mu.Lock()
	c.results[stage] = r
	c.mu.Unlock()
}

// Instance is the mutable record of one workflow execution. It is mutated
// exclusively by the orchestrator driving it and becomes immutable once the
// status reaches a terminal value.
type Instance struct {
	mu sync.RWMutex

	id        string
	wfType    string
	request   string
	status    schema.WorkflowStatus
	stages    map[string]schema.StageStatus
	failures  map[string]*schema.StageFailure
	wfctx     *Context
	totals    schema.Totals
	final     string
	failed    string // name of the stage that failed the instance
	createdAt time.Time
	doneAt    *time.Time
}

// NewInstance creates a Created instance bound to the given graph.
func NewInstance(wfType, request string, g *Graph) *Instance {
	stages := make(map[string]schema.StageStatus, g.Len())
	for _, name := range g.Names() {
		stages[name] = schema.StageStatusPending
	}
	return &Instance{
		id:        uuid.New().String(),
		wfType:    wfType,
		request:   request,
		status:    schema.WorkflowStatusCreated,
		stages:    stages,
		failures:  make(map[string]*schema.StageFailure),
		wfctx:     NewContext(),
		createdAt: time.Now().UTC(),
	}
}

// ID returns the generated workflow identifier.
func (in *Instance) ID() string { return in.id }

// Context returns the shared result map.
func (in *Instance) Context() *Context { return in.wfctx }

// Status returns the current workflow status.
func (in *Instance) Status() schema.WorkflowStatus {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.status
}

// StageStatus returns the current status of one stage.
func (in *Instance) StageStatus(name string) schema.StageStatus {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.stages[name]
}

// stageStatuses returns a copy of the per-stage status map.
func (in *Instance) stageStatuses() map[string]schema.StageStatus {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make(map[string]schema.StageStatus, len(in.stages))
	for k, v := range in.stages {
		out[k] = v
	}
	return out
}

// recordResult writes the stage result into the context and folds its metrics
// into the running totals. The context write happens before the Completed
// transition is visible to the scheduler.
func (in *Instance) recordResult(res *schema.StageResult) {
	in.wfctx.Put(res.Stage, res)

	in.mu.Lock()
	n := float64(in.totals.StagesCompleted)
	in.totals.ConfidenceAvg = (in.totals.ConfidenceAvg*n + res.Confidence) / (n + 1)
	in.totals.StagesCompleted++
	in.totals.CostUSD += res.CostUSD
	in.totals.LatencyMs += res.LatencyMs
	in.totals.Tokens += res.Tokens
	in.mu.Unlock()
}

// recordFailure retains the failure for the stage's snapshot view and folds
// the failed attempt's partial cost/latency/tokens into the totals.
// Confidence and the completed-stage count are unaffected.
func (in *Instance) recordFailure(f *schema.StageFailure) {
	in.mu.Lock()
	in.failures[f.Stage] = f
	in.totals.CostUSD += f.CostUSD
	in.totals.LatencyMs += f.LatencyMs
	in.totals.Tokens += f.Tokens
	in.mu.Unlock()
}

// setFailedStage records the stage whose failure made the instance fail.
func (in *Instance) setFailedStage(name string) {
	in.mu.Lock()
	in.failed = name
	in.mu.Unlock()
}

// transition validates and applies a workflow status change.
func (in *Instance) transition(to schema.WorkflowStatus) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !CanTransitionWorkflow(in.status, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid workflow transition: %s -> %s", in.status, to).
			WithDetails(map[string]any{"workflow_id": in.id})
	}
	in.status = to
	if to.Terminal() {
		now := time.Now().UTC()
		in.doneAt = &now
	}
	return nil
}

// transitionStage validates and applies a stage status change.
func (in *Instance) transitionStage(name string, to schema.StageStatus) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	from := in.stages[name]
	if !CanTransitionStage(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid stage transition: %s -> %s", from, to).
			WithStage(name).
			WithDetails(map[string]any{"workflow_id": in.id})
	}
	in.stages[name] = to
	return nil
}

func (in *Instance) setFinalOutput(out string) {
	in.mu.Lock()
	in.final = out
	in.mu.Unlock()
}

// StageSnapshot is the immutable view of one stage within a snapshot.
type StageSnapshot struct {
	Stage      string             `json:"stage"`
	Status     schema.StageStatus `json:"status"`
	Output     string             `json:"output,omitempty"`
	Reasoning  string             `json:"reasoning,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
	CostUSD    float64            `json:"cost_usd,omitempty"`
	LatencyMs  int64              `json:"latency_ms,omitempty"`
	Tokens     int                `json:"tokens,omitempty"`
	Fields     map[string]any     `json:"fields,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// InstanceSnapshot is the point-in-time view of an instance, served by the
// query interface and archived on terminal transition.
type InstanceSnapshot struct {
	WorkflowID  string                `json:"workflow_id"`
	Type        string                `json:"workflow_type"`
	Status      schema.WorkflowStatus `json:"status"`
	Request     string                `json:"request"`
	FinalOutput string                `json:"final_output,omitempty"`
	FailedStage string                `json:"failed_stage,omitempty"`
	Stages      []StageSnapshot       `json:"stages"`
	Totals      schema.Totals         `json:"metrics"`
	CreatedAt   time.Time             `json:"created_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// Snapshot builds an immutable view of the instance. Stage order follows the
// graph's topological order.
func (in *Instance) Snapshot(g *Graph) *InstanceSnapshot {
	in.mu.RLock()
	defer in.mu.RUnlock()

	snap := &InstanceSnapshot{
		WorkflowID:  in.id,
		Type:        in.wfType,
		Status:      in.status,
		Request:     in.request,
		FinalOutput: in.final,
		FailedStage: in.failed,
		Totals:      in.totals,
		CreatedAt:   in.createdAt,
		CompletedAt: in.doneAt,
	}
	for _, name := range g.Names() {
		ss := StageSnapshot{Stage: name, Status: in.stages[name]}
		if res, ok := in.wfctx.Result(name); ok {
			ss.Output = res.Output
			ss.Reasoning = res.Reasoning
			ss.Confidence = res.Confidence
			ss.CostUSD = res.CostUSD
			ss.LatencyMs = res.LatencyMs
			ss.Tokens = res.Tokens
			ss.Fields = res.Fields
		} else if f, ok := in.failures[name]; ok {
			// A failed attempt's partial metrics and reason travel with the
			// stage, matching what was folded into the totals.
			ss.CostUSD = f.CostUSD
			ss.LatencyMs = f.LatencyMs
			ss.Tokens = f.Tokens
			ss.Error = f.Reason
		}
		snap.Stages = append(snap.Stages, ss)
	}
	return snap
}
