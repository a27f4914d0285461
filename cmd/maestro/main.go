package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rvergara/maestro/internal/agent"
	"github.com/rvergara/maestro/internal/api"
	"github.com/rvergara/maestro/internal/config"
	"github.com/rvergara/maestro/internal/engine"
	"github.com/rvergara/maestro/internal/extract"
	"github.com/rvergara/maestro/internal/inference"
	"github.com/rvergara/maestro/internal/logging"
	"github.com/rvergara/maestro/internal/metrics"
	"github.com/rvergara/maestro/internal/scheduler"
	"github.com/rvergara/maestro/internal/store"
	"github.com/rvergara/maestro/internal/streaming"
	"github.com/rvergara/maestro/internal/tools"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/maestro/
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)
	logger.Info("starting maestro", "version", version, "addr", cfg.Server.Addr)

	st, err := store.NewLibSQLStore(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	client := inference.NewHTTPClient(inference.HTTPClientOptions{
		BaseURL: cfg.Inference.BaseURL,
		APIKey:  cfg.Inference.APIKey,
		Timeout: cfg.Inference.Timeout,
		Logger:  logger,
	})

	graphs, err := agent.Graphs(agent.Toolkit{
		Client:    client,
		Knowledge: tools.NewKnowledgeBase(),
		Orders:    tools.NewOrderLookup(),
		Policies:  tools.NewPolicyChecker(),
	})
	if err != nil {
		return fmt.Errorf("build workflow graphs: %w", err)
	}

	hub := streaming.NewHub()
	pool := engine.NewWorkerPool(cfg.Engine.PoolSize)
	defer pool.Shutdown()

	orch := engine.NewOrchestrator(engine.Options{
		Graphs:          graphs,
		Pool:            pool,
		Events:          st,
		Hub:             hub,
		Archiver:        store.NewArchiver(st),
		Logger:          logger,
		StageTimeout:    cfg.Engine.StageTimeout,
		WorkflowTimeout: cfg.Engine.WorkflowTimeout,
	})

	retention, err := scheduler.NewRetentionScheduler(st, scheduler.Options{
		CronExpression: cfg.Retention.Cron,
		Retention:      cfg.Retention.Window,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	if err := retention.Start(ctx); err != nil {
		return err
	}
	defer retention.Stop()

	srv, err := api.NewServer(api.Deps{
		Orchestrator: orch,
		Store:        st,
		Metrics:      metrics.NewService(st),
		Hub:          hub,
		Queries:      extract.NewQueryEngine(),
		Logger:       logger,
		DefaultType:  agent.TypeCustomerSupport,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
