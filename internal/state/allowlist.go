package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AllowList persists command names that never need permission.
type AllowList struct {
	db *sql.DB
}

func NewAllowList(db *sql.DB) *AllowList {
	return &AllowList{db: db}
}

func (a *AllowList) Commands(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT name FROM command_allowlist ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list allowed commands: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan allowed command: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowed commands: %w", err)
	}
	return out, nil
}

func (a *AllowList) Add(ctx context.Context, names ...string) error {
	now := formatTime(time.Now())
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, err := a.db.ExecContext(ctx, `INSERT INTO command_allowlist (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, name, now); err != nil {
			return fmt.Errorf("add allowed command: %w", err)
		}
	}
	return nil
}
