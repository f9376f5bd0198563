package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yourorg/listing-api/internal/events"
	"github.com/yourorg/listing-api/shard"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestIndexerRun(t *testing.T) {
	pub := events.NewInMemory(4)
	idx := NewIndexer(pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		idx.Run(ctx)
		close(done)
	}()

	pub.PublishShardLoaded(ctx, events.ShardLoaded{Category: shard.Lease, Location: "austin", NativeIDs: []string{"z1", "", "z2"}})

	require.Eventually(t, func() bool {
		_, ok := idx.Lookup("z2")
		return ok
	}, time.Second, 5*time.Millisecond)

	ref, ok := idx.Lookup("z1")
	require.True(t, ok)
	assert.Equal(t, shard.Ref{Category: shard.Lease, Location: "austin"}, ref)
	_, ok = idx.Lookup("")
	assert.False(t, ok)

	cancel()
	<-done
}

func TestIndexerLatestWins(t *testing.T) {
	idx := NewIndexer(events.NewInMemory(1), nil)
	idx.Apply(events.ShardLoaded{Category: shard.Sale, Location: "miami", NativeIDs: []string{"x"}})
	idx.Apply(events.ShardLoaded{Category: shard.Sale, Location: "miami-beach", NativeIDs: []string{"x"}})
	ref, _ := idx.Lookup("x")
	assert.Equal(t, "miami-beach", ref.Location)
}
