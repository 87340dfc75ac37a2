package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/flitsinc/agentrun/internal/runs"
)

const subscriberBuffer = 64

// Bus fans run events out to live subscribers. Nothing is stored; the run
// log is the durable record.
type Bus struct {
	mu    sync.RWMutex
	subs  map[string]*subscriber
	sinks []Sink

	dropped atomic.Int64
}

// Sink receives every published event synchronously, before subscribers.
type Sink interface {
	Publish(ctx context.Context, ev runs.Event)
}

type subscriber struct {
	runs map[string]struct{}
	ch   chan runs.Event
}

func NewBus() *Bus {
	return &Bus{subs: map[string]*subscriber{}}
}

// Mirror adds a sink. Sinks are not removed.
func (b *Bus) Mirror(sink Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, sink)
	b.mu.Unlock()
}

func (b *Bus) Publish(ctx context.Context, ev runs.Event) {
	ev = ev.Normalized()
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, sink := range sinks {
		sink.Publish(ctx, ev)
	}
	b.broadcast(ev)
}

// Subscribe delivers events of the given runs, or of every run when runIDs
// is empty, until ctx is done. The channel is closed afterwards.
func (b *Bus) Subscribe(ctx context.Context, runIDs []string) <-chan runs.Event {
	ch := make(chan runs.Event, subscriberBuffer)
	runSet := map[string]struct{}{}
	for _, id := range runIDs {
		if id == "" {
			continue
		}
		runSet[id] = struct{}{}
	}
	id := ulid.Make().String()

	sub := &subscriber{runs: runSet, ch: ch}
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped counts events not delivered to slow subscribers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) broadcast(ev runs.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if len(sub.runs) > 0 {
			if _, ok := sub.runs[ev.RunID]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
			// Drop if subscriber is slow.
			b.dropped.Add(1)
		}
	}
}
