package store

import (
	"context"
	"time"

	"github.com/rvergara/maestro/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflow archive
	SaveWorkflow(ctx context.Context, wf *Workflow, stages []StageMetric) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)
	GetStageMetrics(ctx context.Context, workflowID string) ([]StageMetric, error)
	DeleteWorkflowsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *schema.Event) error
	GetEvents(ctx context.Context, workflowID string, since int64) ([]*schema.Event, error)

	// Aggregates
	Summary(ctx context.Context) (*Summary, error)
	StageSummaries(ctx context.Context) ([]StageSummary, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
