package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/underpines/pines/internal/db"
	"github.com/underpines/pines/internal/reconcile"
	"github.com/underpines/pines/pkg/config"
	"github.com/underpines/pines/pkg/logging"
	"github.com/underpines/pines/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Under Pines counter reconciler")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	repo := db.NewRepository(database.DB)
	r := reconcile.New(db.NewCounterRepository(repo), db.NewPreviewRepository(repo), cfg.Reconciler)

	// --once runs a single pass, for cron style scheduling
	if len(os.Args) > 1 && os.Args[1] == "--once" {
		if _, err := r.RunOnce(ctx); err != nil {
			logger.Fatal("Reconcile pass failed", zap.Error(err))
		}
		return
	}

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Reconciler stopped with error", zap.Error(err))
	}
	logger.Info("Reconciler exited")
}
