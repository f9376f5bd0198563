package search

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/yourorg/listing-api/internal/events"
	"github.com/yourorg/listing-api/shard"
)

// Indexer consumes shard.loaded events and remembers which shard each native
// id was last seen in, so a cold lookup can scan the likely shard first.
type Indexer struct {
	Pub events.Publisher
	Log *zap.Logger

	mu    sync.RWMutex
	byKey map[string]shard.Ref
}

func NewIndexer(pub events.Publisher, log *zap.Logger) *Indexer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Indexer{Pub: pub, Log: log, byKey: make(map[string]shard.Ref)}
}

func (i *Indexer) Run(ctx context.Context) {
	sub := i.Pub.SubscribeShardLoaded()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-sub:
			i.Apply(evt)
		}
	}
}

// Apply indexes one event; Run calls it for every event received.
func (i *Indexer) Apply(evt events.ShardLoaded) {
	ref := shard.Ref{Category: evt.Category, Location: evt.Location}
	i.mu.Lock()
	if i.byKey == nil {
		i.byKey = make(map[string]shard.Ref)
	}
	for _, id := range evt.NativeIDs {
		if id != "" {
			i.byKey[id] = ref
		}
	}
	n := len(i.byKey)
	i.mu.Unlock()
	i.Log.Debug("indexed shard",
		zap.String("category", string(evt.Category)),
		zap.String("location", evt.Location),
		zap.Int("records", len(evt.NativeIDs)),
		zap.Int("index_size", n))
}

// Lookup returns the shard a native id was last seen in.
func (i *Indexer) Lookup(nativeID string) (shard.Ref, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	ref, ok := i.byKey[nativeID]
	return ref, ok
}
