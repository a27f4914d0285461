package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rvergara/maestro/pkg/schema"
)

// AppendEvent appends the event to the log, assigning the next per-workflow
// sequence number inside the transaction. The event's ID and Sequence fields
// are filled in on return.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *schema.Event) error {
	if event.WorkflowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "event missing workflow id")
	}

	var payload any
	if len(event.Payload) > 0 {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		payload = string(data)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append event: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE workflow_id = ?`, event.WorkflowID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("next event sequence: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (workflow_id, stage, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.WorkflowID, nullStr(event.Stage), event.Type, payload, ts, seq)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append event: %w", err)
	}

	event.Sequence = seq
	event.Timestamp = ts
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// GetEvents returns a workflow's events with sequence greater than since,
// in sequence order. Pass since = 0 for the full history.
func (s *LibSQLStore) GetEvents(ctx context.Context, workflowID string, since int64) ([]*schema.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, stage, event_type, payload, timestamp, sequence
		 FROM events WHERE workflow_id = ? AND sequence > ? ORDER BY sequence`,
		workflowID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*schema.Event
	for rows.Next() {
		ev := &schema.Event{}
		var stage, payload sql.NullString
		if err := rows.Scan(&ev.ID, &ev.WorkflowID, &stage, &ev.Type, &payload, &ev.Timestamp, &ev.Sequence); err != nil {
			return nil, err
		}
		ev.Stage = stage.String
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
