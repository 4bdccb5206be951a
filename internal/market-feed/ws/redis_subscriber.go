package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StartRedisSubscriber escuta o canal de broadcast do indexer e repassa ao Hub
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	go func() {
		defer sub.Close()
		relay(ctx, sub.Channel(), hub.Broadcast, log)
	}()
}

// relay decodifica cada mensagem e entrega até o contexto encerrar ou o canal fechar
func relay(ctx context.Context, ch <-chan *redis.Message, deliver func(MarketUpdate) int, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			var upd MarketUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
				log.Warn("ws subscriber unmarshal error", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if upd.Market == "" {
				continue
			}
			deliver(upd)
		}
	}
}
