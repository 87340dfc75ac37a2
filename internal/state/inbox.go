package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flitsinc/agentrun/internal/runs"
)

type IDSource interface {
	Next() string
}

// Inbox is a per-run FIFO of user messages waiting to be picked up by the
// run controller. Ids come from a monotonic source so they double as
// message ids in the run log.
type Inbox struct {
	db  *sql.DB
	ids IDSource
}

func NewInbox(db *sql.DB, ids IDSource) *Inbox {
	return &Inbox{db: db, ids: ids}
}

func (q *Inbox) Enqueue(ctx context.Context, runID, text string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}
	id := q.ids.Next()
	_, err := q.db.ExecContext(ctx, `INSERT INTO run_inbox (id, run_id, body, created_at) VALUES (?, ?, ?, ?)`,
		id, runID, text, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("enqueue message: %w", err)
	}
	return id, nil
}

// Dequeue removes and returns the oldest message for runID, or nil when
// the inbox is empty. It never blocks waiting for input.
func (q *Inbox) Dequeue(ctx context.Context, runID string) (*runs.QueuedMessage, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var msg runs.QueuedMessage
	err = tx.QueryRowContext(ctx, `SELECT id, body FROM run_inbox WHERE run_id = ? ORDER BY id ASC LIMIT 1`, runID).
		Scan(&msg.MessageID, &msg.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load queued message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_inbox WHERE id = ?`, msg.MessageID); err != nil {
		return nil, fmt.Errorf("delete queued message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}
	return &msg, nil
}
