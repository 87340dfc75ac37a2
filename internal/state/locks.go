package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flitsinc/agentrun/internal/idgen"
)

const DefaultLockTTL = 10 * time.Minute

// Locks is a lease-based run lock shared by every process using the same
// database. Expiry is stored as unix nanoseconds so it compares
// numerically. A lease that is never released, for example after a crash,
// becomes available again once it expires.
type Locks struct {
	db    *sql.DB
	owner string
	ttl   time.Duration
	now   func() time.Time
}

func NewLocks(db *sql.DB, ttl time.Duration) *Locks {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Locks{db: db, owner: idgen.New(), ttl: ttl, now: time.Now}
}

// Lock acquires the lease for runID. It returns false without error when
// another owner holds an unexpired lease.
func (l *Locks) Lock(ctx context.Context, runID string) (bool, error) {
	now := l.now().UTC()
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO run_locks (run_id, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE run_locks.expires_at < ?
	`, runID, l.owner, now.Add(l.ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return n == 1, nil
}

func (l *Locks) Release(ctx context.Context, runID string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM run_locks WHERE run_id = ? AND owner = ?`, runID, l.owner)
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

// Renew extends a lease this owner still holds. It returns false when the
// lease was released or taken over by another owner.
func (l *Locks) Renew(ctx context.Context, runID string) (bool, error) {
	res, err := l.db.ExecContext(ctx, `UPDATE run_locks SET expires_at = ? WHERE run_id = ? AND owner = ?`,
		l.now().UTC().Add(l.ttl).UnixNano(), runID, l.owner)
	if err != nil {
		return false, fmt.Errorf("renew run lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("renew run lock: %w", err)
	}
	return n == 1, nil
}

// RenewInterval leaves two renewal attempts before a held lease expires.
func (l *Locks) RenewInterval() time.Duration {
	return l.ttl / 3
}
