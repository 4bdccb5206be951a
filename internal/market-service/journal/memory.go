package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/radieske/hyper-market/internal/market"
)

// Memory guarda o journal em memória, serializando cada evento como o Postgres faria
type Memory struct {
	mu      sync.RWMutex
	records map[common.Address][]row
	order   []common.Address
	now     func() time.Time
}

type row struct {
	seq     uint64
	kind    string
	payload []byte
	at      time.Time
}

func NewMemory() *Memory {
	return &Memory{records: make(map[common.Address][]row), now: time.Now}
}

func (m *Memory) Append(_ context.Context, mkt common.Address, seq uint64, ev market.Event) error {
	payload, err := market.EncodeEvent(ev)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.records[mkt]
	if want := uint64(len(rows)) + 1; seq != want {
		return fmt.Errorf("%w: %s seq %d, next is %d", market.ErrConcurrentUpdate, mkt.Hex(), seq, want)
	}
	if len(rows) == 0 {
		m.order = append(m.order, mkt)
	}
	m.records[mkt] = append(rows, row{seq: seq, kind: ev.Kind(), payload: payload, at: m.now().UTC()})
	return nil
}

func (m *Memory) LoadSince(_ context.Context, mkt common.Address, afterSeq uint64) ([]market.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.records[mkt]
	if afterSeq >= uint64(len(rows)) {
		return nil, nil
	}
	out := make([]market.Record, 0, len(rows)-int(afterSeq))
	for _, r := range rows[afterSeq:] {
		ev, err := market.DecodeEvent(r.kind, r.payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s #%d: %w", mkt.Hex(), r.seq, err)
		}
		out = append(out, market.Record{Seq: r.seq, At: r.at, Event: ev})
	}
	return out, nil
}

func (m *Memory) Markets(context.Context) ([]common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]common.Address(nil), m.order...), nil
}

var _ market.Journal = (*Memory)(nil)
