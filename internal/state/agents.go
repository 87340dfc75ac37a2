package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flitsinc/agentrun/internal/agents"
)

// AgentStore keeps agent definitions in the database.
type AgentStore struct {
	db *sql.DB
}

func NewAgentStore(db *sql.DB) *AgentStore {
	return &AgentStore{db: db}
}

func (s *AgentStore) Put(ctx context.Context, agent agents.Agent) error {
	if agent.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	body, err := encodeJSON(agent)
	if err != nil {
		return fmt.Errorf("encode agent: %w", err)
	}
	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (name, definition, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at
	`, agent.Name, body, now, now)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (s *AgentStore) Fetch(ctx context.Context, name string) (agents.Agent, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM agents WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return agents.Agent{}, fmt.Errorf("%w: %s", agents.ErrAgentNotFound, name)
	}
	if err != nil {
		return agents.Agent{}, fmt.Errorf("load agent: %w", err)
	}
	var agent agents.Agent
	if err := json.Unmarshal([]byte(body), &agent); err != nil {
		return agents.Agent{}, fmt.Errorf("decode agent %s: %w", name, err)
	}
	return agent, nil
}

func (s *AgentStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM agents ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return out, nil
}
