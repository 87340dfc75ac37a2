package runlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flitsinc/agentrun/internal/runs"
)

func newRun(id string, ts time.Time) runs.Run {
	return runs.Run{
		ID:        id,
		AgentID:   "helper",
		CreatedAt: ts,
		Log:       []runs.Event{{RunID: id, Type: runs.EventStart, AgentName: "helper", TS: ts}},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "runs"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.Create(ctx, newRun("r1", ts)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, newRun("r1", ts)); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}
	user := runs.UserMessage("plan the trip")
	if err := store.AppendEvents(ctx, "r1", []runs.Event{
		{RunID: "r1", Type: runs.EventMessage, MessageID: "m1", Message: &user},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	run, err := store.Fetch(ctx, "r1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if run.AgentID != "helper" || !run.CreatedAt.Equal(ts) || run.Title != "plan the trip" {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(run.Log) != 2 || run.Log[1].Message.Content.PlainText() != "plan the trip" {
		t.Fatalf("unexpected log %+v", run.Log)
	}

	data, err := os.ReadFile(filepath.Join(store.Dir, "r1.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Fatalf("expected one event per line, got %d lines", lines)
	}
}

func TestFileStoreRejects(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Fetch(ctx, "missing"); !errors.Is(err, runs.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := store.AppendEvents(ctx, "missing", []runs.Event{{Type: runs.EventError}}); !errors.Is(err, runs.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound on append, got %v", err)
	}
	if _, err := store.Fetch(ctx, "../etc"); err == nil {
		t.Fatalf("expected path-like ids to be rejected")
	}
	if err := store.Create(ctx, runs.Run{ID: "r1"}); err == nil {
		t.Fatalf("expected run without start event to be rejected")
	}
	if err := store.Create(ctx, newRun("r1", time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.AppendEvents(ctx, "r1", []runs.Event{{Type: runs.EventLLMStream}}); err == nil {
		t.Fatalf("expected stream events to be rejected")
	}
	if err := os.WriteFile(filepath.Join(store.Dir, "bad.jsonl"), []byte("{not json\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Fetch(ctx, "bad"); !errors.Is(err, ErrCorruptRun) {
		t.Fatalf("expected ErrCorruptRun, got %v", err)
	}
}

func TestFileStoreListPages(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, id := range []string{"r1", "r2", "r3", "r4", "r5"} {
		if err := store.Create(ctx, newRun(id, time.Now())); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	var seen []string
	cursor := ""
	for page := 0; page < 5; page++ {
		list, next, err := store.List(ctx, cursor, 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, sum := range list {
			seen = append(seen, sum.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if strings.Join(seen, ",") != "r5,r4,r3,r2,r1" {
		t.Fatalf("unexpected listing order %v", seen)
	}
}

func TestWriterMirrorsPersistentEvents(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	w := NewWriter(store, nil)
	w.Publish(ctx, runs.Event{RunID: "orphan", Type: runs.EventError, Error: "x"})
	w.Publish(ctx, runs.Event{RunID: "r1", Type: runs.EventStart, AgentName: "helper", TS: time.Now()})
	w.Publish(ctx, runs.Event{RunID: "r1", Type: runs.EventProcessingStart})
	w.Publish(ctx, runs.Event{RunID: "r1", Type: runs.EventLLMStream, Stream: &runs.StreamEvent{Type: runs.StreamTextDelta, Delta: "h"}})
	w.Publish(ctx, runs.Event{RunID: "r1", Type: runs.EventError, Error: "model down"})

	run, err := store.Fetch(ctx, "r1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(run.Log) != 2 || run.Log[1].Error != "model down" {
		t.Fatalf("unexpected mirrored log %+v", run.Log)
	}
	if _, err := store.Fetch(ctx, "orphan"); !errors.Is(err, runs.ErrRunNotFound) {
		t.Fatalf("expected events of unknown runs to be dropped")
	}
}

func TestWriterAppendsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	first := NewWriter(store, nil)
	first.Publish(ctx, runs.Event{RunID: "r1", Type: runs.EventStart, AgentName: "helper", TS: time.Now()})

	// a later process mirrors into the same directory without seeing the start
	second := NewWriter(store, nil)
	user := runs.UserMessage("hello")
	second.Publish(ctx, runs.Event{RunID: "r1", Type: runs.EventMessage, MessageID: "m1", Message: &user})
	second.Publish(ctx, runs.Event{RunID: "r1", Type: runs.EventError, Error: "model down", Subflow: []string{"c1"}})

	run, err := store.Fetch(ctx, "r1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(run.Log) != 3 {
		t.Fatalf("expected start, message and nested error, got %+v", run.Log)
	}
	if run.Log[1].MessageID != "m1" || len(run.Log[2].Subflow) != 1 {
		t.Fatalf("unexpected mirrored log %+v", run.Log)
	}
}
