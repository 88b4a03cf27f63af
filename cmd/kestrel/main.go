// Kestrel - Rule-based streaming analytics scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/activity"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bulk"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/dashboard"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/noise"
	"github.com/opensource-finance/kestrel/internal/observability"
	"github.com/opensource-finance/kestrel/internal/predict"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := domain.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	metrics := observability.NewMetrics()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	source, err := noise.FromConfig(cfg.Scoring.Seed)
	if err != nil {
		slog.Error("failed to seed perturbation source", "error", err)
		os.Exit(1)
	}
	slog.Info("perturbation source seeded",
		"seed", source.Seed(),
		"perturbation_scale", cfg.Scoring.PerturbationScale,
	)

	engine := rules.NewEngine(source, rules.WithPerturbationScale(cfg.Scoring.PerturbationScale))
	if err := loadRuleTables(ctx, repo, engine); err != nil {
		slog.Error("failed to load rule tables", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "tables_count", engine.TablesCount())

	metrics.Registerer().MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "kestrel_rule_tables_loaded",
		Help: "Number of rule tables loaded into the engine.",
	}, func() float64 {
		return float64(engine.TablesCount())
	}))

	activitySvc := activity.NewService(repo, cacheImpl, 0)
	predictSvc := predict.NewService(engine, source,
		predict.WithRepository(repo),
		predict.WithBus(busImpl),
		predict.WithActivity(activitySvc),
		predict.WithRecorder(metrics),
	)
	bulkProcessor := bulk.NewProcessor(predictSvc, busImpl, cfg.Bulk)
	dashboardSvc := dashboard.NewService(cacheImpl, source, cfg.Dashboard.SeriesTTL, activitySvc)

	trainingWorker := worker.NewWorker(busImpl, repo, source, metrics, cfg.Training)
	if err := trainingWorker.Start(); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	if cfg.Training.SeedDemo {
		if err := seedDemo(ctx, repo, busImpl, source); err != nil {
			slog.Warn("failed to seed demo data", "error", err)
		}
	}

	srv := api.NewServer(api.Options{
		Server:    cfg.Server,
		RateLimit: cfg.RateLimit,
		Bulk:      cfg.Bulk,
		Version:   Version,
	}, api.Dependencies{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Engine:    engine,
		Predict:   predictSvc,
		Bulk:      bulkProcessor,
		Dashboard: dashboardSvc,
		Metrics:   metrics,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if err := trainingWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadRuleTables loads the stored tables. An empty store is filled with
// the built-in tables so they can be edited through the API.
func loadRuleTables(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	stored, err := repo.ListRuleTables(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rule tables: %w", err)
	}

	if len(stored) > 0 {
		slog.Info("loading rule tables from database", "count", len(stored))
		return engine.LoadTables(stored)
	}

	builtin := rules.BuiltinTables()
	if err := engine.LoadTables(builtin); err != nil {
		return err
	}
	for _, table := range builtin {
		if err := repo.SaveRuleTable(ctx, table); err != nil {
			return fmt.Errorf("failed to store built-in table %s: %w", table.Domain, err)
		}
	}
	slog.Info("no rule tables in database, stored built-in tables", "count", len(builtin))
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL")
	fmt.Println("  Streaming analytics scoring engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict/{churn,content-success,viewership,revenue}")
	fmt.Println("    GET  /predictions              - Prediction history")
	fmt.Println("    POST /predictions/bulk         - Score a CSV file")
	fmt.Println("    GET  /predictions/bulk/template")
	fmt.Println("    GET  /rule-tables              - Loaded rule tables")
	fmt.Println("    PUT  /rule-tables/{domain}     - Store a rule table")
	fmt.Println("    POST /rule-tables/reload       - Hot-reload rule tables")
	fmt.Println("    GET  /dashboard                - Analytics datasets")
	fmt.Println("    GET  /datasets                 - Training datasets")
	fmt.Println("    POST /training/jobs            - Start a training job")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println("    GET  /metrics                  - Prometheus metrics")
	fmt.Println()
}
