package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"valutatrade-hub/internal/bootstrap"
	"valutatrade-hub/internal/config"
	"valutatrade-hub/internal/domain"
	"valutatrade-hub/internal/infrastructure/logx"
	"valutatrade-hub/internal/infrastructure/worker"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	log := logx.L()
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, cleanup, err := bootstrap.BuildStores(ctx, cfg)
	if err != nil {
		log.Fatal("bootstrap stores", zap.Error(err))
	}
	defer cleanup()

	registry := domain.DefaultRegistry()
	fetcher := bootstrap.BuildFetcher(cfg, registry)
	engine, err := bootstrap.BuildEngine(ctx, cfg, registry, stores, fetcher, nil)
	if err != nil {
		log.Fatal("bootstrap engine", zap.Error(err))
	}

	w := &worker.RefreshWorker{
		Engine:   engine,
		Interval: cfg.RefreshInterval,
		Log:      log,
	}
	log.Info("refresh worker started", zap.Duration("interval", cfg.RefreshInterval))
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("worker exited", zap.Error(err))
	}
	log.Info("refresh worker stopped")
}
