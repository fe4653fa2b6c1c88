package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/underpines/pines/internal/api"
	"github.com/underpines/pines/internal/app"
	"github.com/underpines/pines/internal/cache"
	"github.com/underpines/pines/internal/db"
	"github.com/underpines/pines/internal/identity"
	"github.com/underpines/pines/internal/media"
	"github.com/underpines/pines/internal/notify"
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
	logger.Info("Starting Under Pines API server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	ctx := context.Background()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	checks := map[string]api.HealthChecker{"database": database}

	// Redis is optional; without it unread counts and previews are read from the store
	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		redisCache = nil
	}
	if redisCache != nil {
		defer redisCache.Close()
		checks["cache"] = redisCache
	}

	var transport notify.Transport = notify.LogTransport{}
	if cfg.Push.Enabled {
		fcm, err := notify.NewFCMTransport(ctx, cfg.Push.CredentialsFile, cfg.Push.ProjectID)
		if err != nil {
			logger.Fatal("Failed to initialize push transport", zap.Error(err))
		}
		transport = fcm
	}

	deps := app.Deps{
		Repo:      db.NewRepository(database.DB),
		Cache:     redisCache,
		Transport: transport,
		Preview:   cfg.Preview,
	}
	if cfg.Storage.Bucket != "" {
		objects, err := media.NewS3Store(ctx, &cfg.Storage)
		if err != nil {
			logger.Fatal("Failed to initialize object storage", zap.Error(err))
		}
		deps.Objects = objects
	} else {
		logger.Warn("No storage bucket configured, image uploads are disabled")
	}

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	verifier := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	api.NewRouter(app.New(deps), verifier, checks).SetupRoutes(engine)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
