// Package refresh warms shards in the background. Jobs for a shard already
// queued or loading are dropped, and so is anything beyond queue capacity.
package refresh

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/listing-api/shard"
)

type Job struct {
	Category shard.Category
	Location string
}

func (j Job) key() string { return string(j.Category) + ":" + j.Location }

type Refresher struct {
	ch      chan Job
	inFly   sync.Map // key -> struct{}
	Do      func(ctx context.Context, j Job) error
	Timeout time.Duration
	log     *zap.Logger

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(capacity int, workerCount int, log *zap.Logger, do func(ctx context.Context, j Job) error) *Refresher {
	if capacity <= 0 {
		capacity = 256
	}
	if workerCount <= 0 {
		workerCount = 2
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Refresher{ch: make(chan Job, capacity), Do: do, Timeout: 15 * time.Second, log: log}
	r.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go r.worker()
	}
	return r
}

// Enqueue reports whether the job was accepted.
func (r *Refresher) Enqueue(j Job) (accepted bool) {
	if _, exists := r.inFly.LoadOrStore(j.key(), struct{}{}); exists {
		return false
	}
	defer func() {
		// send on a closed queue
		if recover() != nil {
			r.inFly.Delete(j.key())
			accepted = false
		}
	}()
	select {
	case r.ch <- j:
		return true
	default:
		// drop if saturated
		r.inFly.Delete(j.key())
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (r *Refresher) Close() {
	r.closeOnce.Do(func() { close(r.ch) })
	r.wg.Wait()
}

func (r *Refresher) worker() {
	defer r.wg.Done()
	for j := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
		func() {
			defer func() {
				r.inFly.Delete(j.key())
				cancel()
			}()
			if r.Do == nil {
				return
			}
			if err := r.Do(ctx, j); err != nil {
				r.log.Warn("refresh failed",
					zap.String("category", string(j.Category)),
					zap.String("location", j.Location),
					zap.Error(err))
			}
		}()
	}
}
