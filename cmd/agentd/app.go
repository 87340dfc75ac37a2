package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flitsinc/agentrun/internal/abort"
	"github.com/flitsinc/agentrun/internal/agents"
	"github.com/flitsinc/agentrun/internal/agenttools"
	"github.com/flitsinc/agentrun/internal/ai"
	"github.com/flitsinc/agentrun/internal/config"
	"github.com/flitsinc/agentrun/internal/engine"
	"github.com/flitsinc/agentrun/internal/eventbus"
	"github.com/flitsinc/agentrun/internal/idgen"
	"github.com/flitsinc/agentrun/internal/runlock"
	"github.com/flitsinc/agentrun/internal/runlog"
	"github.com/flitsinc/agentrun/internal/state"
	"github.com/flitsinc/agentrun/internal/workdir"
)

// app is the wired runtime shared by the daemon and the one-shot commands.
type app struct {
	cfg     config.Config
	db      *sql.DB
	bus     *eventbus.Bus
	runtime *engine.Runtime
	service *engine.Service
	agents  *state.AgentStore
	dir     agents.DirRepository
	mcp     *agenttools.MCPCaller
	metrics http.Handler
	logger  *slog.Logger
}

func newApp(cfg config.Config, logger *slog.Logger, background bool) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := workdir.Ensure(workdir.Layout{DataDir: cfg.DataDir, RunsDir: cfg.RunsDir, AgentsDir: cfg.AgentsDir}); err != nil {
		return nil, err
	}
	db, err := state.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	bus := eventbus.NewBus()
	files, err := runlog.NewFileStore(cfg.RunsDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	var (
		store engine.RunRepository
		locks engine.RunLocker
	)
	switch cfg.Store {
	case config.StoreSQLite:
		store = state.NewStore(db)
		locks = state.NewLocks(db, cfg.LockTTL)
		// keep a plain-file copy of every persisted event for inspection
		bus.Mirror(runlog.NewWriter(files, logger.With("component", "runlog")))
	case config.StoreJSONL:
		store = files
		locks = runlock.NewMemory()
	default:
		db.Close()
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	agentStore := state.NewAgentStore(db)
	dir := agents.DirRepository{Dir: cfg.AgentsDir}
	loader := agents.NewLoader(agents.Chain{dir, agentStore})
	strictness := cfg.NoteStrictness
	agents.RegisterDefaults(loader, func() string { return strictness })

	servers, err := agenttools.ParseServers(cfg.MCPServers)
	if err != nil {
		db.Close()
		return nil, err
	}
	mcp := agenttools.NewMCPCaller(servers, nil)
	builtins := agenttools.DefaultRegistry(agenttools.CommandConfig{WorkDir: cfg.WorkDir})

	var model ai.Model
	client, err := ai.NewClient(ai.Config{Provider: cfg.LLMProvider, APIKey: cfg.LLMAPIKey, BaseURL: cfg.LLMBaseURL})
	if err != nil {
		logger.Warn("model disabled", "provider", cfg.LLMProvider, "error", err)
		model = ai.Unavailable{Err: err}
	} else {
		model = client
	}

	ids := idgen.NewMonotonic()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt := &engine.Runtime{
		Store:  store,
		Locks:  locks,
		Aborts: abort.NewRegistry(logger.With("component", "abort")),
		Inbox:  state.NewInbox(db, ids),
		Bus:    bus,
		IDs:    ids,
		Agents: loader,
		Tools: &agenttools.Resolver{
			Builtins: builtins,
			Agents:   loader,
			Logger:   logger.With("component", "tools"),
		},
		Executor: &agenttools.Executor{
			Builtins: builtins,
			Remote:   mcp,
			Logger:   logger.With("component", "tools"),
		},
		Model: model,
		Models: ai.StaticConfig{
			Provider:            cfg.LLMProvider,
			Model:               cfg.LLMModel,
			KnowledgeGraphModel: cfg.LLMGraphModel,
		},
		Commands: &agenttools.CommandPolicy{Static: cfg.AllowCommands, Store: state.NewAllowList(db)},
		Metrics:  engine.NewMetrics(reg),
		Logger:   logger.With("component", "engine"),
	}

	return &app{
		cfg:     cfg,
		db:      db,
		bus:     bus,
		runtime: rt,
		service: &engine.Service{Runtime: rt, Background: background, ForceClose: mcp.Close},
		agents:  agentStore,
		dir:     dir,
		mcp:     mcp,
		metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		logger:  logger,
	}, nil
}

func (a *app) mcpServerCount() int {
	n := 0
	for _, item := range strings.Split(a.cfg.MCPServers, ",") {
		if strings.TrimSpace(item) != "" {
			n++
		}
	}
	return n
}

// Close waits for background passes before releasing connections.
func (a *app) Close() error {
	a.runtime.Wait()
	return errors.Join(a.mcp.Close(), a.db.Close())
}
