package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rvergara/maestro/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows so QueryRow is used.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflow archive ---

// SaveWorkflow upserts the archived workflow and replaces its stage rows in
// one transaction.
func (s *LibSQLStore) SaveWorkflow(ctx context.Context, wf *Workflow, stages []StageMetric) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save workflow: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workflows (id, workflow_type, status, request, category, urgency, final_output, failed_stage, snapshot,
			total_cost_usd, total_latency_ms, total_tokens, avg_confidence, stages_completed, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, category=excluded.category, urgency=excluded.urgency,
			final_output=excluded.final_output, failed_stage=excluded.failed_stage,
			snapshot=excluded.snapshot, total_cost_usd=excluded.total_cost_usd,
			total_latency_ms=excluded.total_latency_ms, total_tokens=excluded.total_tokens,
			avg_confidence=excluded.avg_confidence, stages_completed=excluded.stages_completed,
			completed_at=excluded.completed_at`,
		wf.ID, wf.Type, string(wf.Status), wf.Request, nullStr(wf.Category), nullStr(wf.Urgency),
		nullStr(wf.FinalOutput), nullStr(wf.FailedStage),
		string(wf.Snapshot), wf.CostUSD, wf.LatencyMs, wf.Tokens, wf.AvgConfidence, wf.StagesCompleted,
		timeOrNow(wf.CreatedAt), nullTime(wf.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stage_metrics WHERE workflow_id = ?`, wf.ID); err != nil {
		return fmt.Errorf("clear stage metrics: %w", err)
	}
	for _, sm := range stages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stage_metrics (workflow_id, stage, status, confidence, cost_usd, latency_ms, tokens)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			wf.ID, sm.Stage, string(sm.Status), sm.Confidence, sm.CostUSD, sm.LatencyMs, sm.Tokens,
		); err != nil {
			return fmt.Errorf("insert stage metric %s: %w", sm.Stage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save workflow: %w", err)
	}
	return nil
}

const workflowColumns = `id, workflow_type, status, request, category, urgency, final_output, failed_stage, snapshot,
	total_cost_usd, total_latency_ms, total_tokens, avg_confidence, stages_completed, created_at, completed_at`

// GetWorkflow returns the archived workflow or a NOT_FOUND error.
func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	return wf, nil
}

// ListWorkflows returns archived workflows matching the filter, newest first.
func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	var where []string
	var args []any

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Type != "" {
		where = append(where, "workflow_type = ?")
		args = append(args, filter.Type)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// GetStageMetrics returns the stage rows of an archived workflow in insertion order.
func (s *LibSQLStore) GetStageMetrics(ctx context.Context, workflowID string) ([]StageMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id, stage, status, confidence, cost_usd, latency_ms, tokens
		 FROM stage_metrics WHERE workflow_id = ? ORDER BY rowid`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []StageMetric
	for rows.Next() {
		var sm StageMetric
		var status string
		if err := rows.Scan(&sm.WorkflowID, &sm.Stage, &status, &sm.Confidence, &sm.CostUSD, &sm.LatencyMs, &sm.Tokens); err != nil {
			return nil, err
		}
		sm.Status = schema.StageStatus(status)
		metrics = append(metrics, sm)
	}
	return metrics, rows.Err()
}

// DeleteWorkflowsBefore removes archived workflows created before the cutoff,
// along with their stage rows and events, returning the number removed.
func (s *LibSQLStore) DeleteWorkflowsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin retention delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM events WHERE workflow_id IN (SELECT id FROM workflows WHERE created_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete workflows: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit retention delete: %w", err)
	}
	return n, nil
}

// --- Aggregates ---

// Summary computes the cross-workflow aggregates over the archive. Averages
// come back zero when the archive is empty.
func (s *LibSQLStore) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(total_cost_usd), 0),
			COALESCE(AVG(total_cost_usd), 0),
			COALESCE(AVG(total_latency_ms), 0),
			COALESCE(SUM(total_tokens), 0),
			COALESCE(AVG(CASE WHEN status = 'completed' THEN avg_confidence END), 0)
		 FROM workflows`,
	).Scan(&sum.WorkflowCount, &sum.CompletedCount, &sum.FailedCount,
		&sum.TotalCostUSD, &sum.AvgCostUSD, &sum.AvgLatencyMs, &sum.TotalTokens, &sum.AvgConfidence)
	if err != nil {
		return nil, fmt.Errorf("summary query: %w", err)
	}
	return sum, nil
}

// StageSummaries aggregates completed stage attempts per stage name.
func (s *LibSQLStore) StageSummaries(ctx context.Context) ([]StageSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*), AVG(confidence), AVG(cost_usd), AVG(latency_ms), AVG(tokens)
		 FROM stage_metrics WHERE status = 'completed' GROUP BY stage ORDER BY stage`)
	if err != nil {
		return nil, fmt.Errorf("stage summary query: %w", err)
	}
	defer rows.Close()

	var summaries []StageSummary
	for rows.Next() {
		var ss StageSummary
		if err := rows.Scan(&ss.Stage, &ss.Runs, &ss.AvgConfidence, &ss.AvgCostUSD, &ss.AvgLatencyMs, &ss.AvgTokens); err != nil {
			return nil, err
		}
		summaries = append(summaries, ss)
	}
	return summaries, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*Workflow, error) {
	wf := &Workflow{}
	var (
		status                   string
		category, urgency        sql.NullString
		finalOutput, failedStage sql.NullString
		snapshot                 string
		completedAt              sql.NullTime
	)
	err := row.Scan(&wf.ID, &wf.Type, &status, &wf.Request, &category, &urgency, &finalOutput, &failedStage, &snapshot,
		&wf.CostUSD, &wf.LatencyMs, &wf.Tokens, &wf.AvgConfidence, &wf.StagesCompleted,
		&wf.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	wf.Status = schema.WorkflowStatus(status)
	wf.Category = category.String
	wf.Urgency = urgency.String
	wf.FinalOutput = finalOutput.String
	wf.FailedStage = failedStage.String
	wf.Snapshot = []byte(snapshot)
	if completedAt.Valid {
		t := completedAt.Time
		wf.CompletedAt = &t
	}
	return wf, nil
}

func storeNotFound(kind, id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s not found: %s", kind, id)
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
