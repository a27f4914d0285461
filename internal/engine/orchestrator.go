package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rvergara/maestro/internal/logging"
	"github.com/rvergara/maestro/pkg/schema"
)

// EventAppender persists events to the durable log. The log assigns the
// per-workflow sequence number on append.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *schema.Event) error
}

// EventBroadcaster fans events out to live subscribers. Delivery is best
// effort and must never block the caller.
type EventBroadcaster interface {
	Broadcast(event *schema.Event)
}

// Archiver persists the terminal snapshot of an instance.
type Archiver interface {
	ArchiveWorkflow(ctx context.Context, snap *InstanceSnapshot) error
}

// Options configures an Orchestrator.
type Options struct {
	Graphs          map[string]*Graph // workflow type -> graph
	Pool            *WorkerPool
	Events          EventAppender
	Hub             EventBroadcaster
	Archiver        Archiver
	Logger          *slog.Logger
	StageTimeout    time.Duration // per stage execution, 0 disables
	WorkflowTimeout time.Duration // whole instance, 0 disables
}

// Orchestrator drives workflow instances through their stage graphs. Each
// running instance is owned by a single run loop; stages execute on the
// shared worker pool and report back over a completion channel.
type Orchestrator struct {
	graphs   map[string]*Graph
	pool     *WorkerPool
	events   EventAppender
	hub      EventBroadcaster
	archiver Archiver
	logger   *slog.Logger

	stageTimeout    time.Duration
	workflowTimeout time.Duration

	mu     sync.RWMutex
	active map[string]*activeRun
}

type activeRun struct {
	instance *Instance
	graph    *Graph
}

type completion struct {
	stage string
	res   *schema.StageResult
	err   error
}

// NewOrchestrator creates an orchestrator for the given workflow graphs.
func NewOrchestrator(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pool := opts.Pool
	if pool == nil {
		pool = NewWorkerPool(4)
	}
	return &Orchestrator{
		graphs:          opts.Graphs,
		pool:            pool,
		events:          opts.Events,
		hub:             opts.Hub,
		archiver:        opts.Archiver,
		logger:          logger,
		stageTimeout:    opts.StageTimeout,
		workflowTimeout: opts.WorkflowTimeout,
	}
}

// Types returns the registered workflow type names.
func (o *Orchestrator) Types() []string {
	out := make([]string, 0, len(o.graphs))
	for t := range o.graphs {
		out = append(out, t)
	}
	return out
}

// Execute runs a workflow instance to a terminal status and returns its
// final snapshot. It blocks until the instance completes, fails, or the
// context is done.
func (o *Orchestrator) Execute(ctx context.Context, wfType, request string) (*InstanceSnapshot, error) {
	in, g, err := o.prepare(wfType, request)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, in, g), nil
}

// Start launches a workflow instance in the background and returns its ID
// immediately. The run is bound to a fresh context, not the caller's.
func (o *Orchestrator) Start(wfType, request string) (string, error) {
	in, g, err := o.prepare(wfType, request)
	if err != nil {
		return "", err
	}
	go o.run(context.Background(), in, g)
	return in.ID(), nil
}

func (o *Orchestrator) prepare(wfType, request string) (*Instance, *Graph, error) {
	g, ok := o.graphs[wfType]
	if !ok {
		return nil, nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown workflow type: %s", wfType)
	}
	in := NewInstance(wfType, request, g)

	o.mu.Lock()
	if o.active == nil {
		o.active = make(map[string]*activeRun)
	}
	o.active[in.ID()] = &activeRun{instance: in, graph: g}
	o.mu.Unlock()

	return in, g, nil
}

// Snapshot returns the live snapshot of an active instance, or false when
// the instance is not currently running (it may already be archived).
func (o *Orchestrator) Snapshot(workflowID string) (*InstanceSnapshot, bool) {
	o.mu.RLock()
	run, ok := o.active[workflowID]
	o.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return run.instance.Snapshot(run.graph), true
}

// Active returns snapshots of all currently running instances.
func (o *Orchestrator) Active() []*InstanceSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*InstanceSnapshot, 0, len(o.active))
	for _, run := range o.active {
		out = append(out, run.instance.Snapshot(run.graph))
	}
	return out
}

// run is the per-instance scheduling loop. It dispatches every ready stage,
// waits for a completion, and re-evaluates the ready set until no stage is
// in flight and none can become ready.
func (o *Orchestrator) run(ctx context.Context, in *Instance, g *Graph) *InstanceSnapshot {
	ctx = logging.WithWorkflowID(ctx, in.ID())

	runCtx := ctx
	if o.workflowTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.workflowTimeout)
		defer cancel()
	}

	if err := in.transition(schema.WorkflowStatusRunning); err != nil {
		o.logger.ErrorContext(ctx, "workflow start rejected", "error", err)
		return in.Snapshot(g)
	}
	o.emit(ctx, &schema.Event{
		WorkflowID: in.ID(),
		Type:       schema.EventWorkflowStarted,
		Payload:    map[string]any{"workflow_type": in.wfType},
	})

	// Buffered to the stage count so a stage goroutine can always deliver
	// its completion without blocking, even after the loop stopped reading.
	completions := make(chan completion, g.Len())
	inFlight := 0
	aborted := false
	timedOut := false

	for {
		if !aborted {
			for _, name := range g.ReadySet(in.stageStatuses()) {
				o.dispatch(runCtx, in, g, name, completions)
				inFlight++
			}
		}
		if inFlight == 0 {
			break
		}

		if timedOut {
			c := <-completions
			inFlight--
			o.handleCompletion(ctx, in, g, c, &aborted)
			continue
		}

		// The deadline takes priority over completions already queued.
		select {
		case <-runCtx.Done():
			timedOut = true
			aborted = true
			o.failForTimeout(ctx, in, g)
			continue
		default:
		}

		select {
		case c := <-completions:
			inFlight--
			o.handleCompletion(ctx, in, g, c, &aborted)
		case <-runCtx.Done():
			timedOut = true
			aborted = true
			o.failForTimeout(ctx, in, g)
		}
	}

	o.finish(ctx, in, g)

	snap := in.Snapshot(g)
	if o.archiver != nil {
		if err := o.archiver.ArchiveWorkflow(ctx, snap); err != nil {
			o.logger.ErrorContext(ctx, "archive workflow", "error", err)
		}
	}

	o.mu.Lock()
	delete(o.active, in.ID())
	o.mu.Unlock()

	return snap
}

// dispatch marks a stage Running and submits its execution to the pool. The
// stage goroutine always sends exactly one completion.
func (o *Orchestrator) dispatch(ctx context.Context, in *Instance, g *Graph, name string, completions chan<- completion) {
	if err := in.transitionStage(name, schema.StageStatusRunning); err != nil {
		o.logger.ErrorContext(ctx, "stage dispatch rejected", "stage", name, "error", err)
		completions <- completion{stage: name, err: err}
		return
	}
	o.emit(ctx, &schema.Event{
		WorkflowID: in.ID(),
		Stage:      name,
		Type:       schema.EventStageStarted,
	})

	stage := g.Stage(name)
	request := in.request
	wfctx := in.Context()

	err := o.pool.Submit(ctx, func(ctx context.Context) {
		ctx = logging.WithStage(ctx, name)
		if o.stageTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.stageTimeout)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				completions <- completion{stage: name, err: &schema.StageFailure{
					Stage:  name,
					Reason: fmt.Sprintf("panic: %v", r),
				}}
			}
		}()

		res, err := stage.Execute(ctx, request, wfctx)
		if err != nil {
			completions <- completion{stage: name, err: err}
			return
		}
		completions <- completion{stage: name, res: res}
	})
	if err != nil {
		completions <- completion{stage: name, err: &schema.StageFailure{
			Stage:  name,
			Reason: "submit to worker pool: " + err.Error(),
			Cause:  err,
		}}
	}
}

func (o *Orchestrator) handleCompletion(ctx context.Context, in *Instance, g *Graph, c completion, aborted *bool) {
	if c.err == nil {
		if *aborted {
			// The instance already failed; discard the late result.
			o.skipStage(ctx, in, c.stage, "workflow already failed")
			return
		}
		in.recordResult(c.res)
		if err := in.transitionStage(c.stage, schema.StageStatusCompleted); err != nil {
			o.logger.ErrorContext(ctx, "stage completion rejected", "stage", c.stage, "error", err)
			return
		}
		o.emit(ctx, &schema.Event{
			WorkflowID: in.ID(),
			Stage:      c.stage,
			Type:       schema.EventStageCompleted,
			Payload: map[string]any{
				"confidence": c.res.Confidence,
				"cost_usd":   c.res.CostUSD,
				"latency_ms": c.res.LatencyMs,
				"tokens":     c.res.Tokens,
			},
		})
		return
	}

	f := asStageFailure(c.stage, c.err)
	in.recordFailure(f)
	if err := in.transitionStage(c.stage, schema.StageStatusFailed); err != nil {
		o.logger.ErrorContext(ctx, "stage failure rejected", "stage", c.stage, "error", err)
	}
	o.emit(ctx, &schema.Event{
		WorkflowID: in.ID(),
		Stage:      c.stage,
		Type:       schema.EventStageFailed,
		Payload:    map[string]any{"reason": f.Reason, "timeout": f.Timeout},
	})
	o.logger.WarnContext(ctx, "stage failed", "stage", c.stage, "reason", f.Reason, "timeout", f.Timeout)

	if *aborted {
		return
	}

	if g.RequiredForTerminal(c.stage) {
		*aborted = true
		for _, name := range g.Names() {
			if in.StageStatus(name) == schema.StageStatusPending {
				o.skipStage(ctx, in, name, "required stage "+c.stage+" failed")
			}
		}
		in.setFailedStage(c.stage)
		o.failWorkflow(ctx, in, map[string]any{"failed_stage": c.stage})
		return
	}

	// Optional branch: only the stages downstream of the failure are lost.
	for _, name := range g.TransitiveDependents(c.stage) {
		if in.StageStatus(name) == schema.StageStatusPending {
			o.skipStage(ctx, in, name, "dependency "+c.stage+" failed")
		}
	}
}

// failForTimeout fails the instance when the workflow deadline expires.
// In-flight stages keep draining through the completion channel; their
// cancelled contexts surface as timeout failures.
func (o *Orchestrator) failForTimeout(ctx context.Context, in *Instance, g *Graph) {
	o.logger.WarnContext(ctx, "workflow timed out")
	for _, name := range g.Names() {
		if in.StageStatus(name) == schema.StageStatusPending {
			o.skipStage(ctx, in, name, "workflow timed out")
		}
	}
	if err := in.transition(schema.WorkflowStatusFailed); err != nil {
		o.logger.ErrorContext(ctx, "timeout transition rejected", "error", err)
		return
	}
	o.emit(ctx, &schema.Event{
		WorkflowID: in.ID(),
		Type:       schema.EventWorkflowTimedOut,
		Payload:    map[string]any{"timeout_ms": o.workflowTimeout.Milliseconds()},
	})
}

// finish resolves the instance status once no stage is in flight or ready.
func (o *Orchestrator) finish(ctx context.Context, in *Instance, g *Graph) {
	if in.Status().Terminal() {
		return
	}

	terminal := g.Terminal()
	if in.StageStatus(terminal) == schema.StageStatusCompleted {
		if res, ok := in.Context().Result(terminal); ok {
			in.setFinalOutput(res.Output)
		}
		if err := in.transition(schema.WorkflowStatusCompleted); err != nil {
			o.logger.ErrorContext(ctx, "completion transition rejected", "error", err)
			return
		}
		o.emit(ctx, &schema.Event{
			WorkflowID: in.ID(),
			Type:       schema.EventWorkflowCompleted,
			Payload:    map[string]any{"stages_completed": in.Snapshot(g).Totals.StagesCompleted},
		})
		return
	}

	// No runnable stage, nothing in flight, terminal not completed. The
	// graph is validated acyclic so this indicates a scheduling stall.
	o.logger.ErrorContext(ctx, "workflow stalled before terminal stage", "terminal", terminal)
	o.failWorkflow(ctx, in, map[string]any{"reason": "no runnable stages remain"})
}

func (o *Orchestrator) failWorkflow(ctx context.Context, in *Instance, payload map[string]any) {
	if err := in.transition(schema.WorkflowStatusFailed); err != nil {
		o.logger.ErrorContext(ctx, "failure transition rejected", "error", err)
		return
	}
	o.emit(ctx, &schema.Event{
		WorkflowID: in.ID(),
		Type:       schema.EventWorkflowFailed,
		Payload:    payload,
	})
}

func (o *Orchestrator) skipStage(ctx context.Context, in *Instance, name, reason string) {
	if err := in.transitionStage(name, schema.StageStatusSkipped); err != nil {
		o.logger.ErrorContext(ctx, "skip transition rejected", "stage", name, "error", err)
		return
	}
	o.emit(ctx, &schema.Event{
		WorkflowID: in.ID(),
		Stage:      name,
		Type:       schema.EventStageSkipped,
		Payload:    map[string]any{"reason": reason},
	})
}

// emit appends the event to the durable log, then fans it out to live
// subscribers. A log append failure is logged and does not interrupt the
// workflow; the broadcast is best effort by construction.
func (o *Orchestrator) emit(ctx context.Context, e *schema.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if o.events != nil {
		if err := o.events.AppendEvent(ctx, e); err != nil {
			o.logger.ErrorContext(ctx, "append event", "event_type", e.Type, "error", err)
		}
	}
	if o.hub != nil {
		o.hub.Broadcast(e)
	}
}

func asStageFailure(stage string, err error) *schema.StageFailure {
	var f *schema.StageFailure
	if errors.As(err, &f) {
		if errors.Is(err, context.DeadlineExceeded) {
			f.Timeout = true
		}
		if f.Stage == "" {
			f.Stage = stage
		}
		return f
	}
	return &schema.StageFailure{
		Stage:   stage,
		Reason:  err.Error(),
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Cause:   err,
	}
}
