package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/radieske/hyper-market/internal/market"
)

// CursorStore guarda até qual seq de cada market o relay já publicou
type CursorStore interface {
	Cursor(ctx context.Context, mkt common.Address) (uint64, error)
	Advance(ctx context.Context, mkt common.Address, seq uint64) error
}

// Relay publica no tópico a partir do journal, não do commit.
// O cursor só avança depois que o broker aceitou a mensagem, então uma falha
// de publish atrasa a entrega mas não perde evento; reentregas têm o mesmo
// event_id e o indexer descarta duplicatas.
type Relay struct {
	Journal  market.Journal
	Cursors  CursorStore
	Out      market.Publisher
	Log      *zap.Logger
	Interval time.Duration

	// OnPublished é chamado a cada evento entregue (métricas)
	OnPublished func(kind string)

	once sync.Once
	wake chan struct{}
	mu   sync.Mutex
}

func (r *Relay) init() {
	r.once.Do(func() {
		r.wake = make(chan struct{}, 1)
		if r.Log == nil {
			r.Log = zap.NewNop()
		}
		if r.Interval <= 0 {
			r.Interval = 2 * time.Second
		}
	})
}

// Publish só acorda o loop: serve de market.Publisher para o engine
func (r *Relay) Publish(context.Context, common.Address, market.Record) error {
	r.init()
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run drena o journal no início, a cada commit e a cada Interval até ctx acabar
func (r *Relay) Run(ctx context.Context) {
	r.init()
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		if err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.Log.Warn("relay flush failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Flush publica tudo que está no journal depois do cursor de cada market.
// Para no primeiro erro de um market sem avançar o cursor dele.
func (r *Relay) Flush(ctx context.Context) error {
	r.init()
	r.mu.Lock()
	defer r.mu.Unlock()

	addrs, err := r.Journal.Markets(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}
	var firstErr error
	for _, addr := range addrs {
		if err := r.flushMarket(ctx, addr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Relay) flushMarket(ctx context.Context, addr common.Address) error {
	cursor, err := r.Cursors.Cursor(ctx, addr)
	if err != nil {
		return fmt.Errorf("cursor %s: %w", addr.Hex(), err)
	}
	recs, err := r.Journal.LoadSince(ctx, addr, cursor)
	if err != nil {
		return fmt.Errorf("load %s: %w", addr.Hex(), err)
	}
	for _, rec := range recs {
		if err := r.Out.Publish(ctx, addr, rec); err != nil {
			return fmt.Errorf("publish %s #%d: %w", addr.Hex(), rec.Seq, err)
		}
		if err := r.Cursors.Advance(ctx, addr, rec.Seq); err != nil {
			return fmt.Errorf("advance %s #%d: %w", addr.Hex(), rec.Seq, err)
		}
		if r.OnPublished != nil {
			r.OnPublished(rec.Event.Kind())
		}
	}
	if len(recs) > 0 {
		r.Log.Debug("events relayed", zap.String("market", addr.Hex()), zap.Int("count", len(recs)), zap.Uint64("seq", recs[len(recs)-1].Seq))
	}
	return nil
}

var _ market.Publisher = (*Relay)(nil)
