package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/listing-api/internal/app"
	"github.com/yourorg/listing-api/internal/env"
	"github.com/yourorg/listing-api/internal/logger"
	"github.com/yourorg/listing-api/internal/warmer"
	"github.com/yourorg/listing-api/shard"
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
	defer zl.Sync() //nolint:errcheck

	categories, err := parseCategories(splitList(os.Getenv("WARMER_CATEGORIES")))
	if err != nil {
		zl.Fatal("bad WARMER_CATEGORIES", zap.Error(err))
	}
	interval := parseDuration(os.Getenv("WARMER_INTERVAL"), 6*time.Hour)
	pause := parseDuration(os.Getenv("WARMER_PAUSE"), 500*time.Millisecond)
	requestTimeout := parseDuration(os.Getenv("WARMER_REQUEST_TIMEOUT"), 30*time.Second)
	refresh := parseBool(os.Getenv("WARMER_REFRESH"), true)
	runOnce := parseBool(os.Getenv("WARMER_RUN_ONCE"), false)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(rootCtx, cfg, zl, app.Options{SkipFavorites: true, SkipRefresher: true})
	if err != nil {
		zl.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	job := &warmer.BulkJob{
		Loader: a.Loader,
		Logger: zl.Named("warmer"),
		Config: warmer.BulkConfig{
			Locations:            splitList(os.Getenv("WARMER_LOCATIONS")),
			Categories:           categories,
			Interval:             interval,
			PauseBetweenRequests: pause,
			RequestTimeout:       requestTimeout,
			Refresh:              refresh,
		},
	}

	if runOnce {
		if _, err := job.RunOnce(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			zl.Fatal("warmer run failed", zap.Error(err))
		}
		return
	}
	if err := job.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		zl.Fatal("warmer stopped with error", zap.Error(err))
	}
}

func parseCategories(in []string) ([]shard.Category, error) {
	out := make([]shard.Category, 0, len(in))
	for _, s := range in {
		c, ok := shard.ParseCategory(s)
		if !ok {
			return nil, errors.New("unknown category " + strconv.Quote(s))
		}
		out = append(out, c)
	}
	return out, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	fields := strings.FieldsFunc(v, func(r rune) bool {
		switch r {
		case ',', ';', '\n', '\r', '\t':
			return true
		default:
			return false
		}
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	dur, err := time.ParseDuration(v)
	if err == nil {
		return dur
	}
	if i, err2 := strconv.Atoi(v); err2 == nil {
		return time.Duration(i) * time.Second
	}
	return def
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
