package agenttools

import (
	"context"
	"fmt"
	"sync"
)

// AllowListStore persists command names approved with "always" scope.
type AllowListStore interface {
	Commands(ctx context.Context) ([]string, error)
	Add(ctx context.Context, names ...string) error
}

// CommandPolicy decides whether a shell command needs human permission. The
// allowlist is the union of the configured names and the persisted store.
type CommandPolicy struct {
	Static []string
	Store  AllowListStore

	mu       sync.Mutex
	remember []string
}

func (p *CommandPolicy) AllowList(ctx context.Context) ([]string, error) {
	allow := append([]string(nil), p.Static...)
	if p.Store != nil {
		stored, err := p.Store.Commands(ctx)
		if err != nil {
			return nil, fmt.Errorf("load command allowlist: %w", err)
		}
		allow = append(allow, stored...)
		return allow, nil
	}
	p.mu.Lock()
	allow = append(allow, p.remember...)
	p.mu.Unlock()
	return allow, nil
}

func (p *CommandPolicy) Blocked(ctx context.Context, command string, session map[string]bool) (bool, error) {
	allow, err := p.AllowList(ctx)
	if err != nil {
		return true, err
	}
	return IsBlocked(command, allow, session), nil
}

// Remember permanently allows the commands invoked by command.
func (p *CommandPolicy) Remember(ctx context.Context, command string) ([]string, error) {
	names := ExtractCommandNames(command)
	if len(names) == 0 {
		return nil, nil
	}
	if p.Store != nil {
		if err := p.Store.Add(ctx, names...); err != nil {
			return nil, err
		}
		return names, nil
	}
	p.mu.Lock()
	p.remember = append(p.remember, names...)
	p.mu.Unlock()
	return names, nil
}
