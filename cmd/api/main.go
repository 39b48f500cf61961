package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"valutatrade-hub/internal/bootstrap"
	"valutatrade-hub/internal/config"
	"valutatrade-hub/internal/domain"
	infraconfig "valutatrade-hub/internal/infrastructure/config"
	httpserver "valutatrade-hub/internal/infrastructure/http"
	"valutatrade-hub/internal/infrastructure/logx"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	ctx := context.Background()
	logger := logx.L()
	cfg := config.Load()
	addr := ":" + cfg.Port

	stores, cleanup, err := bootstrap.BuildStores(ctx, cfg)
	if err != nil {
		logger.Fatal("bootstrap stores", zap.Error(err))
	}
	defer cleanup()

	idem, closeIdem, err := bootstrap.BuildIdempotency(cfg)
	if err != nil {
		logger.Fatal("bootstrap idempotency", zap.Error(err))
	}
	defer closeIdem()

	registry := domain.DefaultRegistry()
	fetcher := bootstrap.BuildFetcher(cfg, registry)
	engine, err := bootstrap.BuildEngine(ctx, cfg, registry, stores, fetcher, idem)
	if err != nil {
		logger.Fatal("bootstrap engine", zap.Error(err))
	}

	srv := httpserver.NewServer(engine, stores.Ping)
	mux := httpserver.NewRouter(srv)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("server started", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, shCancel := context.WithTimeout(context.Background(), infraconfig.DefaultShutdownTimeout)
	defer shCancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}
