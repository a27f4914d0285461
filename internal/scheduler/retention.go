package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionStore is the slice of the persistence layer the sweep needs.
type RetentionStore interface {
	DeleteWorkflowsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Vacuum(ctx context.Context) error
}

// Options configures a retention scheduler.
type Options struct {
	// CronExpression decides when the sweep runs. Default: daily at 03:00.
	CronExpression string
	// Retention is how long terminal workflows are kept. Default: 30 days.
	Retention time.Duration
	// TickInterval is how often due-ness is checked. Default: one minute.
	TickInterval time.Duration
	Logger       *slog.Logger
}

// RetentionScheduler deletes archived workflows past the retention window on
// a cron schedule and reclaims the freed space.
type RetentionScheduler struct {
	store     RetentionStore
	schedule  cron.Schedule
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	nextAt time.Time
}

// NewRetentionScheduler parses the cron expression and builds the scheduler.
func NewRetentionScheduler(s RetentionStore, opts Options) (*RetentionScheduler, error) {
	expr := opts.CronExpression
	if expr == "" {
		expr = "0 3 * * *"
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	interval := opts.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse retention cron expression %q: %w", expr, err)
	}

	return &RetentionScheduler{
		store:     s,
		schedule:  schedule,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}, nil
}

// Start launches the background sweep loop.
func (r *RetentionScheduler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return fmt.Errorf("retention scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.nextAt = r.schedule.Next(time.Now().UTC())

	go r.loop(loopCtx)
	r.logger.Info("retention scheduler started",
		slog.Time("next_sweep", r.nextAt),
		slog.Duration("retention", r.retention))
	return nil
}

func (r *RetentionScheduler) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			due := !r.nextAt.After(time.Now().UTC())
			r.mu.Unlock()
			if !due {
				continue
			}
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("retention sweep failed", slog.String("error", err.Error()))
			}
			r.mu.Lock()
			r.nextAt = r.schedule.Next(time.Now().UTC())
			r.mu.Unlock()
		}
	}
}

// Sweep deletes everything older than the retention window, then vacuums when
// rows were removed. Safe to call directly, outside the loop.
func (r *RetentionScheduler) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.retention)
	deleted, err := r.store.DeleteWorkflowsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete workflows before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if deleted == 0 {
		return nil
	}

	r.logger.Info("retention sweep removed workflows",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff))

	if err := r.store.Vacuum(ctx); err != nil {
		return fmt.Errorf("vacuum after sweep: %w", err)
	}
	return nil
}

// NextSweep returns when the next sweep is due.
func (r *RetentionScheduler) NextSweep() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextAt
}

// Stop shuts the loop down and waits for it to exit.
func (r *RetentionScheduler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Info("retention scheduler stopped")
}
