package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flitsinc/agentrun/internal/runs"
)

// Store persists run logs. Each run is a row in runs plus an ordered
// sequence of rows in run_events.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Create inserts the run and its initial log.
func (s *Store) Create(ctx context.Context, run runs.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create run tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (id, agent_id, title, created_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.AgentID, nullString(runs.Title(run.Log)), formatTime(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if err := s.insertEvents(ctx, tx, run.ID, 0, run.Log); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create run: %w", err)
	}
	return nil
}

func (s *Store) Fetch(ctx context.Context, runID string) (runs.Run, error) {
	var run runs.Run
	var title sql.NullString
	var createdAtStr string
	err := s.db.QueryRowContext(ctx, `SELECT id, agent_id, title, created_at FROM runs WHERE id = ?`, runID).
		Scan(&run.ID, &run.AgentID, &title, &createdAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return runs.Run{}, fmt.Errorf("%w: %s", runs.ErrRunNotFound, runID)
	}
	if err != nil {
		return runs.Run{}, fmt.Errorf("load run: %w", err)
	}
	run.Title = title.String
	run.CreatedAt = parseTime(createdAtStr)

	rows, err := s.db.QueryContext(ctx, `SELECT body FROM run_events WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return runs.Run{}, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	run.Log = []runs.Event{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return runs.Run{}, fmt.Errorf("scan run event: %w", err)
		}
		var ev runs.Event
		if err := json.Unmarshal([]byte(body), &ev); err != nil {
			return runs.Run{}, fmt.Errorf("decode run event %d: %w", len(run.Log), err)
		}
		run.Log = append(run.Log, ev.Normalized())
	}
	if err := rows.Err(); err != nil {
		return runs.Run{}, fmt.Errorf("iterate run events: %w", err)
	}
	return run, nil
}

// AppendEvents adds events to the end of the run's log. Ephemeral events
// are rejected rather than silently persisted.
func (s *Store) AppendEvents(ctx context.Context, runID string, events []runs.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var title sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT title FROM runs WHERE id = ?`, runID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", runs.ErrRunNotFound, runID)
	}
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq) + 1, 0) FROM run_events WHERE run_id = ?`, runID).Scan(&next); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}
	if err := s.insertEvents(ctx, tx, runID, next, events); err != nil {
		return err
	}
	if !title.Valid || title.String == "" {
		if t := runs.Title(events); t != "" {
			if _, err := tx.ExecContext(ctx, `UPDATE runs SET title = ? WHERE id = ?`, t, runID); err != nil {
				return fmt.Errorf("update run title: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *Store) insertEvents(ctx context.Context, tx *sql.Tx, runID string, seq int64, events []runs.Event) error {
	for _, ev := range events {
		if ev.Ephemeral() {
			return fmt.Errorf("refusing to persist %s event", ev.Type)
		}
		if ev.TS.IsZero() {
			ev.TS = s.now().UTC()
		}
		body, err := encodeJSON(ev)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", ev.Type, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO run_events (run_id, seq, type, body, created_at) VALUES (?, ?, ?, ?, ?)`,
			runID, seq, string(ev.Type), body, formatTime(ev.TS))
		if err != nil {
			return fmt.Errorf("insert run event: %w", err)
		}
		seq++
	}
	return nil
}

// List returns runs newest first. cursor is the id of the last run of the
// previous page; the returned cursor is empty when there are no more pages.
func (s *Store) List(ctx context.Context, cursor string, limit int) ([]runs.Summary, string, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, agent_id, title, created_at FROM runs ORDER BY id DESC LIMIT ?`
	args := []any{limit + 1}
	if cursor != "" {
		query = `SELECT id, agent_id, title, created_at FROM runs WHERE id < ? ORDER BY id DESC LIMIT ?`
		args = []any{cursor, limit + 1}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []runs.Summary
	for rows.Next() {
		var sum runs.Summary
		var title sql.NullString
		var createdAtStr string
		if err := rows.Scan(&sum.ID, &sum.AgentID, &title, &createdAtStr); err != nil {
			return nil, "", fmt.Errorf("scan run: %w", err)
		}
		sum.Title = title.String
		sum.CreatedAt = parseTime(createdAtStr)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate runs: %w", err)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}
