package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/listing-api/shard"
)

func TestInMemoryDropsWhenFull(t *testing.T) {
	p := NewInMemory(1)
	ctx := context.Background()
	p.PublishShardLoaded(ctx, ShardLoaded{Category: shard.Sale, Location: "miami"})
	p.PublishShardLoaded(ctx, ShardLoaded{Category: shard.Lease, Location: "miami"})

	ch := p.SubscribeShardLoaded()
	got := <-ch
	assert.Equal(t, shard.Sale, got.Category)
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}
}
