package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/listing-api/internal/app"
	"github.com/yourorg/listing-api/internal/env"
	"github.com/yourorg/listing-api/internal/logger"
)

func main() {
	cfg, err := env.Load()
	if err != nil {
		log.Fatal(err)
	}
	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, zl)
	stop()
	if err != nil {
		zl.Error("listing-api stopped", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
	_ = zl.Sync()
}

// run serves until ctx ends or the listener fails. Resources are released
// before it returns either way.
func run(ctx context.Context, cfg env.Config, zl *zap.Logger) error {
	a, err := app.Build(ctx, cfg, zl, app.Options{})
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer a.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.Run(runCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           BuildRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zl.Info("listing-api listening", zap.Int("port", cfg.Port), zap.String("shards", cfg.ShardBaseURL), zap.String("cache", cfg.CacheBackend))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
