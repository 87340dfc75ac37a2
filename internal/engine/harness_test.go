package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flitsinc/agentrun/internal/abort"
	"github.com/flitsinc/agentrun/internal/agents"
	"github.com/flitsinc/agentrun/internal/agenttools"
	"github.com/flitsinc/agentrun/internal/ai"
	"github.com/flitsinc/agentrun/internal/eventbus"
	"github.com/flitsinc/agentrun/internal/idgen"
	"github.com/flitsinc/agentrun/internal/runlock"
	"github.com/flitsinc/agentrun/internal/runs"
	"github.com/flitsinc/agentrun/internal/state"
	"github.com/flitsinc/agentrun/internal/testutil"
)

var (
	helperAgent = agents.Agent{
		Name:         "helper",
		Instructions: "You help.",
		Tools: map[string]agents.ToolAttachment{
			"search":         {Type: agents.ToolRemote, Name: "search", Server: "docs"},
			"ask-human":      {Type: agents.ToolBuiltin, Name: agents.BuiltinAskHuman},
			"executeCommand": {Type: agents.ToolBuiltin, Name: agents.BuiltinExecuteCommand},
			"researcher":     {Type: agents.ToolAgent, Name: "researcher"},
		},
	}
	researcherAgent = agents.Agent{
		Name:         "researcher",
		Description:  "Looks things up",
		Instructions: "You research.",
		Tools: map[string]agents.ToolAttachment{
			"ask-human": {Type: agents.ToolBuiltin, Name: agents.BuiltinAskHuman},
		},
	}
)

type harness struct {
	t        *testing.T
	ctx      context.Context
	rt       *Runtime
	svc      *Service
	store    *state.Store
	locks    *runlock.Memory
	bus      *eventbus.Bus
	model    *testutil.ScriptedModel
	exec     *testutil.RecordingExecutor
	commands *agenttools.CommandPolicy
	metrics  *Metrics
}

func newHarness(t *testing.T, turns ...[]runs.StreamEvent) *harness {
	t.Helper()
	db, closeFn := testutil.OpenTestDB(t)
	t.Cleanup(closeFn)

	ids := idgen.NewMonotonic()
	loader := agents.NewLoader(nil)
	loader.Register("helper", agents.Static(helperAgent))
	loader.Register("researcher", agents.Static(researcherAgent))

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		store:    state.NewStore(db),
		locks:    runlock.NewMemory(),
		bus:      eventbus.NewBus(),
		model:    testutil.NewScriptedModel(turns...),
		exec:     &testutil.RecordingExecutor{Results: map[string]any{}, Errors: map[string]error{}},
		commands: &agenttools.CommandPolicy{Static: []string{"ls"}},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	h.rt = &Runtime{
		Store:  h.store,
		Locks:  h.locks,
		Aborts: abort.NewRegistry(nil),
		Inbox:  state.NewInbox(db, ids),
		Bus:    h.bus,
		IDs:    ids,
		Agents: loader,
		Tools: &agenttools.Resolver{
			Builtins: agenttools.NewRegistry(agenttools.AskHumanTool()),
			Agents:   loader,
		},
		Executor: h.exec,
		Model:    h.model,
		Models:   ai.StaticConfig{Model: "test"},
		Commands: h.commands,
		Metrics:  h.metrics,
	}
	h.svc = &Service{Runtime: h.rt}
	return h
}

func (h *harness) newRun() string {
	h.t.Helper()
	run, err := h.svc.CreateRun(h.ctx, "helper")
	if err != nil {
		h.t.Fatalf("create run: %v", err)
	}
	return run.ID
}

func (h *harness) send(runID, text string) {
	h.t.Helper()
	if _, err := h.svc.SendMessage(h.ctx, runID, text); err != nil {
		h.t.Fatalf("send message: %v", err)
	}
}

func (h *harness) log(runID string) []runs.Event {
	h.t.Helper()
	run, err := h.store.Fetch(h.ctx, runID)
	if err != nil {
		h.t.Fatalf("fetch run: %v", err)
	}
	return run.Log
}

// kinds renders the log as "type" or "type:role" entries, prefixed with the
// subflow path when there is one.
func kinds(log []runs.Event) []string {
	out := make([]string, 0, len(log))
	for _, ev := range log {
		kind := string(ev.Type)
		if ev.Message != nil {
			kind += ":" + string(ev.Message.Role)
		}
		for i := len(ev.Subflow) - 1; i >= 0; i-- {
			kind = ev.Subflow[i] + "/" + kind
		}
		out = append(out, kind)
	}
	return out
}

func expectKinds(t *testing.T, log []runs.Event, want ...string) {
	t.Helper()
	got := kinds(log)
	if len(got) != len(want) {
		t.Fatalf("expected %d events %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (log %v)", i, want[i], got[i], got)
		}
	}
}

func lastMessage(log []runs.Event) *runs.Message {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Type == runs.EventMessage && len(log[i].Subflow) == 0 {
			return log[i].Message
		}
	}
	return nil
}

func eventsOf(log []runs.Event, typ runs.EventType) []runs.Event {
	var out []runs.Event
	for _, ev := range log {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
