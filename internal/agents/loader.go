package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Repository resolves agents that are not built in.
type Repository interface {
	Fetch(ctx context.Context, name string) (Agent, error)
}

// Chain consults each repository in turn, moving on only when an agent is
// not found.
type Chain []Repository

func (c Chain) Fetch(ctx context.Context, name string) (Agent, error) {
	for _, repo := range c {
		agent, err := repo.Fetch(ctx, name)
		if err == nil {
			return agent, nil
		}
		if !errors.Is(err, ErrAgentNotFound) {
			return Agent{}, err
		}
	}
	return Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
}

// Bundle produces a built-in agent. Bundles are evaluated on every load so
// parameterised ones can pick up setting changes.
type Bundle func(ctx context.Context) (Agent, error)

// Static wraps a fixed agent definition.
func Static(agent Agent) Bundle {
	return func(context.Context) (Agent, error) {
		return agent, nil
	}
}

// Variants selects one of several raw definitions (markdown with optional
// front-matter) by the key returned from pick.
func Variants(name string, pick func() string, variants map[string]string, fallback string) Bundle {
	return func(context.Context) (Agent, error) {
		key := fallback
		if pick != nil {
			if k := pick(); k != "" {
				key = k
			}
		}
		raw, ok := variants[key]
		if !ok {
			return Agent{}, fmt.Errorf("agent %s has no %q variant", name, key)
		}
		return ParseDefinition(name, []byte(raw))
	}
}

// Loader checks built-in bundles first and falls back to the repository.
type Loader struct {
	mu      sync.RWMutex
	bundles map[string]Bundle
	repo    Repository
}

func NewLoader(repo Repository) *Loader {
	return &Loader{bundles: map[string]Bundle{}, repo: repo}
}

func (l *Loader) Register(name string, bundle Bundle) {
	l.mu.Lock()
	l.bundles[name] = bundle
	l.mu.Unlock()
}

func (l *Loader) Load(ctx context.Context, name string) (Agent, error) {
	l.mu.RLock()
	bundle, ok := l.bundles[name]
	l.mu.RUnlock()
	if ok {
		agent, err := bundle(ctx)
		if err != nil {
			return Agent{}, fmt.Errorf("load built-in agent %s: %w", name, err)
		}
		if agent.Name == "" {
			agent.Name = name
		}
		return agent, nil
	}
	if l.repo == nil {
		return Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return l.repo.Fetch(ctx, name)
}
