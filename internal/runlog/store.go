package runlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/flitsinc/agentrun/internal/runs"
)

const ext = ".jsonl"

var ErrCorruptRun = errors.New("corrupt run log")

// FileStore keeps each run as a JSON-lines file of its events under Dir.
// The first line is always the start event. Run ids must sort by creation
// time for List to page newest first.
type FileStore struct {
	Dir string

	mu sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create runs dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.Dir, runID+ext), nil
}

func (s *FileStore) Create(_ context.Context, run runs.Run) error {
	if len(run.Log) == 0 || run.Log[0].Type != runs.EventStart {
		return fmt.Errorf("run %s must begin with a start event", run.ID)
	}
	path, err := s.path(run.ID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create run file: %w", err)
	}
	defer f.Close()
	return writeEvents(f, run.Log)
}

func (s *FileStore) AppendEvents(_ context.Context, runID string, events []runs.Event) error {
	for _, ev := range events {
		if ev.Ephemeral() {
			return fmt.Errorf("refusing to persist ephemeral %s event", ev.Type)
		}
	}
	path, err := s.path(runID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", runs.ErrRunNotFound, runID)
	}
	if err != nil {
		return fmt.Errorf("open run file: %w", err)
	}
	defer f.Close()
	return writeEvents(f, events)
}

func writeEvents(f *os.File, events []runs.Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encode %s event: %w", ev.Type, err)
		}
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write run events: %w", err)
	}
	return nil
}

func (s *FileStore) Fetch(_ context.Context, runID string) (runs.Run, error) {
	path, err := s.path(runID)
	if err != nil {
		return runs.Run{}, err
	}
	events, err := readEvents(path, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return runs.Run{}, fmt.Errorf("%w: %s", runs.ErrRunNotFound, runID)
	}
	if err != nil {
		return runs.Run{}, err
	}
	if len(events) == 0 || events[0].Type != runs.EventStart {
		return runs.Run{}, fmt.Errorf("%w: %s", ErrCorruptRun, runID)
	}
	return runs.Run{
		ID:        runID,
		Title:     runs.Title(events),
		AgentID:   events[0].AgentName,
		CreatedAt: events[0].TS,
		Log:       events,
	}, nil
}

// readEvents decodes the file's events, stopping after limit events when
// limit is positive. Blank lines are skipped.
func readEvents(path string, limit int) ([]runs.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []runs.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev runs.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRun, filepath.Base(path), err)
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	return out, nil
}

// List pages runs newest first. cursor is the last id of the previous page.
func (s *FileStore) List(_ context.Context, cursor string, limit int) ([]runs.Summary, string, error) {
	if limit <= 0 {
		limit = 20
	}
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("read runs dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ext) {
			ids = append(ids, strings.TrimSuffix(e.Name(), ext))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	start := 0
	if cursor != "" {
		start = sort.Search(len(ids), func(i int) bool { return ids[i] < cursor })
	}
	end := min(start+limit, len(ids))

	var out []runs.Summary
	for _, id := range ids[start:end] {
		sum, ok := s.summary(id)
		if !ok {
			continue
		}
		out = append(out, sum)
	}
	next := ""
	if end < len(ids) && end > start {
		next = ids[end-1]
	}
	return out, next, nil
}

// titleScan bounds how far into a run List looks for a title.
const titleScan = 64

func (s *FileStore) summary(id string) (runs.Summary, bool) {
	events, err := readEvents(filepath.Join(s.Dir, id+ext), titleScan)
	if err != nil || len(events) == 0 || events[0].Type != runs.EventStart {
		return runs.Summary{}, false
	}
	return runs.Summary{
		ID:        id,
		Title:     runs.Title(events),
		AgentID:   events[0].AgentName,
		CreatedAt: events[0].TS,
	}, true
}
