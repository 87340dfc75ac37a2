package runlock

import (
	"context"
	"sync"
)

// Memory is an in-process run lock for single-daemon deployments and tests.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: map[string]struct{}{}}
}

func (m *Memory) Lock(_ context.Context, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[runID]; ok {
		return false, nil
	}
	m.held[runID] = struct{}{}
	return true, nil
}

func (m *Memory) Release(_ context.Context, runID string) error {
	m.mu.Lock()
	delete(m.held, runID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Held(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[runID]
	return ok
}
