// Command agentcore runs the edge automation core: event bus, streaming
// agent runtime, scheduler, device onboarding, and rule engine, backed
// by a single bbolt substrate.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/edgemind/internal/agentrt"
	"github.com/cuemby/edgemind/internal/config"
	"github.com/cuemby/edgemind/internal/events"
	"github.com/cuemby/edgemind/internal/llm"
	"github.com/cuemby/edgemind/internal/onboarding"
	"github.com/cuemby/edgemind/internal/rules"
	"github.com/cuemby/edgemind/internal/scheduler"
	"github.com/cuemby/edgemind/internal/store"
	"github.com/cuemby/edgemind/internal/tools"
	"github.com/cuemby/edgemind/internal/web"
)

// App owns every long-lived component explicitly; there is no hidden
// global state.
type App struct {
	logger  *slog.Logger
	cfg     *config.Config
	kv      *store.Store
	bus     *events.Bus
	sched   *scheduler.Scheduler
	tools   *tools.Registry
	runtime *agentrt.Runtime
	onboard *onboarding.Manager
	rules   *rules.Engine
	web     *web.Server
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentcore:", err)
		os.Exit(1)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.kv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.sched.Start(ctx); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}
	defer app.sched.Stop()

	httpSrv := app.startHTTP(cfg.Listen)

	logger.Info("agentcore started", "data_dir", cfg.DataDir, "listen", httpSrv.Addr)
	<-ctx.Done()
	logger.Info("agentcore shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpSrv.Shutdown(shutdownCtx)
}

// startHTTP mounts the WS boundary and starts listening in the
// background; a listen error after startup is logged, not fatal,
// since the scheduler and event bus keep running independently of the
// HTTP surface.
func (a *App) startHTTP(listen config.ListenConfig) *http.Server {
	mux := http.NewServeMux()
	a.web.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", listen.Address, listen.Port)
	if listen.Port == 0 {
		addr = fmt.Sprintf("%s:8080", listen.Address)
	}
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("http server stopped", "error", err)
		}
	}()

	return srv
}

func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	kv, err := store.Open(cfg.DataDir + "/edgemind.db")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := events.New(logger, events.NewStoreAuditSink(kv), events.Config{Source: "agentcore"})

	schedStore, err := scheduler.NewStore(cfg.Scheduler.DBPath)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("open scheduler store: %w", err)
	}
	sched := scheduler.NewWithOptions(logger, schedStore, newTaskExecutor(bus, logger),
		time.Duration(cfg.Scheduler.TickMS)*time.Millisecond, cfg.Scheduler.MaxConcurrent)

	reg := tools.NewRegistry(sched)

	obCfg := onboarding.DefaultConfig()
	obCfg.Enabled = cfg.Onboarding.Enabled
	obCfg.MaxDraftDevices = cfg.Onboarding.MaxDraftDevices
	obCfg.MaxSamples = cfg.Onboarding.MaxSamples
	obCfg.MinSamples = cfg.Onboarding.MinSamples
	obCfg.AutoApproveThresh = cfg.Onboarding.AutoApproveThresh
	obCfg.DraftRetentionSecs = cfg.Onboarding.DraftRetentionSecs
	onboard := onboarding.NewManager(obCfg, nil, nil, logger)
	if err := onboard.AttachStore(kv); err != nil {
		logger.Warn("onboarding: failed to restore drafts/signatures from store", "error", err)
	}

	ruleEngine, err := rules.NewEngine(kv, &onboardingCatalog{onboard: onboard})
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("load rule engine: %w", err)
	}
	reg.SetRuleManager(ruleEngine)

	backends := llm.NewBackendRegistry(newDefaultBackend(cfg, logger))
	gov := llm.NewGovernor(llm.StreamConfig{MaxStreamDuration: 2 * time.Minute})
	sessions := agentrt.NewSessionRegistry()
	history := newSessionHistory(4000)
	rt := agentrt.NewRuntime(backends, gov, reg, sessions, history)

	webSrv := web.NewServer(rt, logger)

	return &App{
		logger:  logger,
		cfg:     cfg,
		kv:      kv,
		bus:     bus,
		sched:   sched,
		tools:   reg,
		runtime: rt,
		onboard: onboard,
		rules:   ruleEngine,
		web:     webSrv,
	}, nil
}

// newTaskExecutor logs each task the scheduler dispatches and returns
// nil. It publishes nothing to the bus and invokes no agent or rule.
func newTaskExecutor(bus *events.Bus, logger *slog.Logger) scheduler.ExecuteFunc {
	return func(ctx context.Context, task *scheduler.Task, execution *scheduler.Execution) error {
		logger.Info("task fired", "task_id", task.ID, "name", task.Name, "payload_kind", task.Payload.Kind)
		return nil
	}
}

func newDefaultBackend(cfg *config.Config, logger *slog.Logger) llm.Backend {
	client := llm.NewOllamaClient(cfg.Models.OllamaURL, logger)
	return llm.NewOllamaBackend(client, cfg.Models.Default, llm.Capabilities{FunctionCalling: true, Streaming: true})
}
