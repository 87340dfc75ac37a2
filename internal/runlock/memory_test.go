package runlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMemoryMutualExclusion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.Lock(ctx, "run-1"); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	if winners.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners.Load())
	}
	if ok, _ := m.Lock(ctx, "run-2"); !ok {
		t.Fatalf("locks must be per run")
	}
	_ = m.Release(ctx, "run-1")
	if m.Held("run-1") {
		t.Fatalf("expected run-1 released")
	}
	if ok, _ := m.Lock(ctx, "run-1"); !ok {
		t.Fatalf("expected relock after release")
	}
}
