package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/hyper-market/internal/market"
	"github.com/radieske/hyper-market/internal/market-indexer/pubsub"
	"github.com/radieske/hyper-market/pkg/contracts/events"
)

// MessageReader é o subconjunto de *kafka.Reader usado pelo loop
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// MessageWriter é o subconjunto de *kafka.Writer usado para a DLQ
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Store projeta um evento; applied=false em reentrega
type Store interface {
	Apply(ctx context.Context, env events.Envelope, ev market.Event) (bool, error)
}

// Broadcaster publica no Redis Pub/Sub
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Processor consome market_events, indexa no Postgres e repassa ao feed.
// Mensagens que não decodificam ou não persistem vão para a DLQ.
type Processor struct {
	Log         *zap.Logger
	Reader      MessageReader
	DLQ         MessageWriter
	Store       Store
	Broadcaster Broadcaster
	Channel     string

	OnConsumed  func()       // métricas (counter++)
	OnIndexed   func(string) // métricas por kind
	OnDuplicate func()
	OnError     func(string) // métricas por fase
}

// Run inicia o loop principal de consumo
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		p.Handle(ctx, m)
	}
}

// Handle processa uma mensagem; nunca devolve erro para não travar a partição
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		p.Log.Warn("invalid message", zap.Error(err))
		p.deadLetter(ctx, m, "decode", err)
		return
	}
	_, rec, err := market.FromEnvelope(env)
	if err != nil {
		p.Log.Warn("invalid event", zap.String("kind", env.Kind), zap.Error(err))
		p.deadLetter(ctx, m, "decode", err)
		return
	}

	applied, err := p.Store.Apply(ctx, env, rec.Event)
	if err != nil {
		p.Log.Error("index failed", zap.String("market", env.Market), zap.Uint64("seq", env.Seq), zap.Error(err))
		p.deadLetter(ctx, m, "db", err)
		return
	}
	if !applied {
		p.Log.Debug("duplicate event skipped", zap.String("id", env.ID))
		if p.OnDuplicate != nil {
			p.OnDuplicate()
		}
		return
	}
	if p.OnIndexed != nil {
		p.OnIndexed(env.Kind)
	}

	if p.Broadcaster == nil {
		return
	}
	b, err := pubsub.Update(env)
	if err != nil {
		p.fail("broadcast")
		return
	}
	bctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := p.Broadcaster.Publish(bctx, p.Channel, b); err != nil {
		p.Log.Warn("ws broadcast publish failed", zap.Error(err))
		p.fail("broadcast")
	}
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, stage string, cause error) {
	p.fail(stage)
	if p.DLQ == nil {
		return
	}
	dlq := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: append(m.Headers,
			kafka.Header{Key: "dlq_stage", Value: []byte(stage)},
			kafka.Header{Key: "dlq_error", Value: []byte(cause.Error())},
		),
		Time: time.Now(),
	}
	if err := p.DLQ.WriteMessages(ctx, dlq); err != nil {
		p.Log.Error("dlq write failed", zap.Error(err))
		p.fail("dlq")
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
