package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/hyper-market/pkg/contracts/events"
)

// WSUpdate é o payload repassado ao hub do market-feed
type WSUpdate struct {
	Market  string          `json:"market"`
	Seq     uint64          `json:"seq"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Update monta o payload do hub a partir do envelope indexado
func Update(env events.Envelope) ([]byte, error) {
	return json.Marshal(WSUpdate{Market: env.Market, Seq: env.Seq, Kind: env.Kind, Payload: env.Payload})
}

// RedisBroadcaster publica as atualizações no canal escutado pelo market-feed
type RedisBroadcaster struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisBroadcaster(rdb *redis.Client, log *zap.Logger) *RedisBroadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBroadcaster{rdb: rdb, log: log}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	n, err := b.rdb.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	if n == 0 {
		b.log.Debug("no feed subscribed", zap.String("channel", channel))
	}
	return nil
}
