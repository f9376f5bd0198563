package events

import (
	"context"

	"github.com/yourorg/listing-api/shard"
)

// ShardLoaded is published after a shard is fetched and transformed.
type ShardLoaded struct {
	Category  shard.Category
	Location  string
	NativeIDs []string
}

type Publisher interface {
	PublishShardLoaded(ctx context.Context, evt ShardLoaded)
	SubscribeShardLoaded() <-chan ShardLoaded
}

type inMemory struct{ ch chan ShardLoaded }

func NewInMemory(buffer int) Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &inMemory{ch: make(chan ShardLoaded, buffer)}
}

// PublishShardLoaded drops the event when the buffer is full.
func (m *inMemory) PublishShardLoaded(_ context.Context, evt ShardLoaded) {
	select {
	case m.ch <- evt:
	default:
	}
}

func (m *inMemory) SubscribeShardLoaded() <-chan ShardLoaded { return m.ch }
