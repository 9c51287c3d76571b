package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/settleup/reconciler/internal/api"
	"github.com/settleup/reconciler/internal/config"
	"github.com/settleup/reconciler/internal/ingestion"
	"github.com/settleup/reconciler/internal/observability"
	"github.com/settleup/reconciler/internal/reconciliation"
	"github.com/settleup/reconciler/internal/repository"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("Starting payout reconciler",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_path", cfg.Database.Path),
		zap.String("tolerance", cfg.Reconcile.Tolerance.String()),
		zap.Int("workers", cfg.Reconcile.Workers))

	db, err := repository.InitDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to init DB", zap.Error(err))
	}
	defer db.Close()

	// Create repositories.
	cardRepo := repository.NewRateCardRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	settRepo := repository.NewSettlementRepo(db)
	uploadRepo := repository.NewUploadRepo(db)

	// Create services.
	reconSvc := reconciliation.NewService(orderRepo, settRepo, cardRepo, reconciliation.Options{
		Tolerance: cfg.Reconcile.Tolerance,
		Workers:   cfg.Reconcile.Workers,
	}, logger)
	ingestionSvc := ingestion.NewService(uploadRepo, cardRepo, orderRepo, settRepo, reconSvc, logger)

	// Seed rate cards if DB is empty.
	count, err := cardRepo.Count()
	if err != nil {
		logger.Fatal("Failed to count rate cards", zap.Error(err))
	}
	if count == 0 && cfg.Server.SeedRateCard != "" {
		if err := seedRateCards(ingestionSvc, cfg.Server.SeedRateCard, logger); err != nil {
			logger.Warn("Failed to seed rate cards", zap.Error(err))
		}
	} else {
		logger.Info("Skipping rate card seed", zap.Int("rate_cards", count))
	}

	orderCount, err := orderRepo.Count()
	if err != nil {
		logger.Fatal("Failed to count orders", zap.Error(err))
	}
	logger.Info("Database ready", zap.Int("orders", orderCount))

	router := api.NewRouter(api.Deps{
		CardRepo:     cardRepo,
		OrderRepo:    orderRepo,
		IngestionSvc: ingestionSvc,
		ReconSvc:     reconSvc,
		Health:       observability.NewHealthChecker(db),
		Tolerance:    cfg.Reconcile.Tolerance,
		MaxUploadMB:  cfg.Server.MaxUploadMB,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening",
			zap.String("address", srv.Addr),
			zap.String("api_base", "/api/v1"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// initLogger initializes the logger
func initLogger(cfg config.LoggerConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Production() {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func seedRateCards(svc *ingestion.Service, path string, logger *zap.Logger) error {
	// Try the configured path, then relative to the executable.
	candidates := []string{path}
	if exe, err := os.Executable(); err == nil && !filepath.IsAbs(path) {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, path),
			filepath.Join(dir, "..", "..", path),
		)
	}

	var data []byte
	var loadErr error
	for _, p := range candidates {
		data, loadErr = os.ReadFile(p)
		if loadErr == nil {
			logger.Info("Loaded rate cards", zap.String("path", p))
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("could not find %s in any candidate path: %w", path, loadErr)
	}

	result, err := svc.Ingest(context.Background(), ingestion.KindRateCards, data)
	if err != nil {
		return fmt.Errorf("ingest rate cards: %w", err)
	}

	logger.Info("Seeded rate cards", zap.Int("rate_cards", result.RecordsIngested))
	return nil
}
