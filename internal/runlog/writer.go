package runlog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/flitsinc/agentrun/internal/runs"
)

// Writer mirrors the persistent events it is published into per-run JSONL
// files. It is meant to sit behind the event bus next to a primary store,
// so runs kept in SQLite still leave a greppable trail on disk.
type Writer struct {
	Files  *FileStore
	Logger *slog.Logger
}

func NewWriter(files *FileStore, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{Files: files, Logger: logger}
}

// Publish records ev. Processing markers are not part of a run log and are
// skipped, as are events of runs with no file, which were started before
// mirroring was enabled.
func (w *Writer) Publish(ctx context.Context, ev runs.Event) {
	if ev.Ephemeral() || ev.Type == runs.EventProcessingStart || ev.Type == runs.EventProcessingEnd {
		return
	}
	if ev.Type == runs.EventStart && len(ev.Subflow) == 0 {
		run := runs.Run{ID: ev.RunID, AgentID: ev.AgentName, CreatedAt: ev.TS, Log: []runs.Event{ev}}
		if err := w.Files.Create(ctx, run); err != nil {
			w.Logger.Warn("mirror run start", "run_id", ev.RunID, "error", err)
		}
		return
	}
	err := w.Files.AppendEvents(ctx, ev.RunID, []runs.Event{ev})
	if errors.Is(err, runs.ErrRunNotFound) {
		return
	}
	if err != nil {
		w.Logger.Warn("mirror run event", "run_id", ev.RunID, "type", ev.Type, "error", err)
	}
}
