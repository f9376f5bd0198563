// Package warmer loads every catalog shard into the cache, once or on an
// interval, so the first visitor to a location does not pay the fetch.
package warmer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/listing-api/shard"
)

// Loader fills the shared shard cache. Warming reads the stored order only,
// so no visitor's order is drawn or changed by a pass.
type Loader interface {
	Stored(ctx context.Context, cat shard.Category, location string) ([]shard.PropertyRecord, error)
	Invalidate(ctx context.Context, cat shard.Category, location string) error
	Catalog() *shard.Catalog
}

type BulkConfig struct {
	// Locations and Categories narrow the run; empty means all.
	Locations            []string
	Categories           []shard.Category
	Interval             time.Duration
	PauseBetweenRequests time.Duration
	RequestTimeout       time.Duration
	// Refresh drops the cached entry first so the network copy replaces it.
	Refresh bool
}

type BulkJob struct {
	Loader Loader
	Logger *zap.Logger
	Config BulkConfig
}

// Report counts the outcome of one pass.
type Report struct {
	Shards  int
	Records int
	Failed  int
}

func (j *BulkJob) validate() error {
	if j == nil {
		return errors.New("nil bulk job")
	}
	if j.Loader == nil {
		return errors.New("warmer bulk job missing loader")
	}
	if j.Logger == nil {
		j.Logger = zap.NewNop()
	}
	cat := j.Loader.Catalog()
	for _, key := range j.Config.Locations {
		if _, ok := cat.Location(key); !ok {
			return fmt.Errorf("warmer: unknown location %q", key)
		}
	}
	for _, c := range j.Config.Categories {
		if !c.Valid() {
			return fmt.Errorf("warmer: unknown category %q", c)
		}
	}
	return nil
}

func (j *BulkJob) Run(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	interval := j.Config.Interval
	if interval <= 0 {
		_, err := j.RunOnce(ctx)
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	j.Logger.Info("warmer starting", zap.Duration("interval", interval))
	if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.Logger.Warn("warmer initial run error", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			j.Logger.Info("warmer stopping", zap.Error(ctx.Err()))
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				j.Logger.Warn("warmer iteration error", zap.Error(err))
			}
		}
	}
}

// RunOnce warms every selected shard. Individual shard failures are joined
// into the returned error; the pass continues past them.
func (j *BulkJob) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	if err := j.validate(); err != nil {
		return rep, err
	}
	timeout := j.Config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var joined error
	refs := j.selected()
	for i, ref := range refs {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		n, err := j.warm(ctx, ref, timeout)
		rep.Shards++
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			rep.Failed++
			j.Logger.Warn("warm shard failed", zap.String("path", ref.Path), zap.Error(err))
			joined = errors.Join(joined, err)
		} else {
			rep.Records += n
		}
		if pause := j.Config.PauseBetweenRequests; pause > 0 && i < len(refs)-1 {
			select {
			case <-ctx.Done():
				return rep, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	j.Logger.Info("warmer pass done", zap.Int("shards", rep.Shards), zap.Int("records", rep.Records), zap.Int("failed", rep.Failed))
	return rep, joined
}

func (j *BulkJob) warm(ctx context.Context, ref shard.Ref, timeout time.Duration) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if j.Config.Refresh {
		if err := j.Loader.Invalidate(reqCtx, ref.Category, ref.Location); err != nil {
			j.Logger.Warn("warm invalidate failed", zap.String("path", ref.Path), zap.Error(err))
		}
	}
	recs, err := j.Loader.Stored(reqCtx, ref.Category, ref.Location)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (j *BulkJob) selected() []shard.Ref {
	all := j.Loader.Catalog().Refs()
	if len(j.Config.Locations) == 0 && len(j.Config.Categories) == 0 {
		return all
	}
	locs := make(map[string]bool, len(j.Config.Locations))
	for _, l := range j.Config.Locations {
		locs[l] = true
	}
	cats := make(map[shard.Category]bool, len(j.Config.Categories))
	for _, c := range j.Config.Categories {
		cats[c] = true
	}
	out := make([]shard.Ref, 0, len(all))
	for _, ref := range all {
		if len(locs) > 0 && !locs[ref.Location] {
			continue
		}
		if len(cats) > 0 && !cats[ref.Category] {
			continue
		}
		out = append(out, ref)
	}
	return out
}
