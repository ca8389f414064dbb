package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/trustline-data/trustline-engine/pkg/codegen"
	"github.com/trustline-data/trustline-engine/pkg/config"
	"github.com/trustline-data/trustline-engine/pkg/database"
	"github.com/trustline-data/trustline-engine/pkg/handlers"
	"github.com/trustline-data/trustline-engine/pkg/logging"
	"github.com/trustline-data/trustline-engine/pkg/notify"
	"github.com/trustline-data/trustline-engine/pkg/repositories"
	"github.com/trustline-data/trustline-engine/pkg/sandbox"
	"github.com/trustline-data/trustline-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("database", cfg.Database.Database),
		zap.String("generator_provider", cfg.Generator.Provider),
		zap.String("sandbox_mode", cfg.Sandbox.Mode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Migrations failed", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
		ConnLifetime:   cfg.Database.ConnLifetime,
		ConnIdleTime:   cfg.Database.ConnIdleTime,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	planRepo := repositories.NewPlanRepository(db)
	iterationRepo := repositories.NewIterationRepository(db)
	approvalRepo := repositories.NewApprovalRepository(db)
	executionRepo := repositories.NewExecutionRepository(db)
	lineageRepo := repositories.NewLineageRepository(db)

	generator, err := codegen.NewGenerator(&cfg.Generator, logger)
	if err != nil {
		logger.Fatal("Failed to build code generator", zap.Error(err))
	}

	executor, err := sandbox.NewExecutor(ctx, &cfg.Sandbox, logger)
	if err != nil {
		logger.Fatal("Failed to build sandbox executor", zap.Error(err))
	}
	defer func() {
		if err := executor.Close(context.Background()); err != nil {
			logger.Warn("Failed to close sandbox executor", zap.Error(err))
		}
	}()

	notifier, err := notify.NewWebhookNotifier(&cfg.Notifier, logger)
	if err != nil {
		logger.Fatal("Failed to build notifier", zap.Error(err))
	}

	planService := services.NewPlanService(
		planRepo, iterationRepo, approvalRepo, executionRepo, lineageRepo,
		&cfg.Engine, logger)
	iterationService := services.NewIterationService(
		planRepo, iterationRepo, generator, executor,
		services.NewRowCountScorer(), &cfg.Engine, logger, nil)
	approvalService := services.NewApprovalService(
		planRepo, approvalRepo, services.NewThresholdAutoApprovalPolicy(),
		notifier, &cfg.Engine, logger, nil)
	executionService := services.NewExecutionService(
		planRepo, approvalRepo, executionRepo, lineageRepo, executor,
		notifier, &cfg.Engine, logger, nil)

	approvalService.StartSweeper(ctx, cfg.Engine.ExpirySweepInterval)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewPlanHandler(planService, iterationService, approvalService, executionService, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Sandbox.Timeout + 30*time.Second,
	}

	go func() {
		logger.Info("Starting trustline-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// runMigrations opens a short-lived database/sql connection for the migration
// tooling, separate from the pgx pool used at runtime.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}
