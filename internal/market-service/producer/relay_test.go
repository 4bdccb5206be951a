package producer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/hyper-market/internal/market"
	"github.com/radieske/hyper-market/internal/market-service/journal"
)

var mktA = common.HexToAddress("0x00000000000000000000000000000000000000aa")

// stubPublisher falha nos seqs listados em fail (uma vez cada)
type stubPublisher struct {
	mu   sync.Mutex
	seqs []uint64
	fail map[uint64]bool
}

func (p *stubPublisher) Publish(_ context.Context, _ common.Address, rec market.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[rec.Seq] {
		delete(p.fail, rec.Seq)
		return errors.New("broker down")
	}
	p.seqs = append(p.seqs, rec.Seq)
	return nil
}

func (p *stubPublisher) published() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.seqs...)
}

func appendDays(t *testing.T, j *journal.Memory, seqs ...uint64) {
	t.Helper()
	for _, seq := range seqs {
		require.NoError(t, j.Append(context.Background(), mktA, seq, market.DefaultBindingSet{Days: uint32(seq)}))
	}
}

func TestRelay_PublishFailureKeepsCursor(t *testing.T) {
	ctx := context.Background()
	j := journal.NewMemory()
	cursors := journal.NewMemoryCursors()
	out := &stubPublisher{fail: map[uint64]bool{2: true}}
	kinds := 0
	r := &Relay{Journal: j, Cursors: cursors, Out: out, OnPublished: func(string) { kinds++ }}
	appendDays(t, j, 1, 2, 3)

	err := r.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, []uint64{1}, out.published())
	cur, _ := cursors.Cursor(ctx, mktA)
	assert.Equal(t, uint64(1), cur)

	// o retry entrega o que faltou, sem repetir o seq 1
	require.NoError(t, r.Flush(ctx))
	assert.Equal(t, []uint64{1, 2, 3}, out.published())
	cur, _ = cursors.Cursor(ctx, mktA)
	assert.Equal(t, uint64(3), cur)

	require.NoError(t, r.Flush(ctx))
	assert.Equal(t, []uint64{1, 2, 3}, out.published())
	assert.Equal(t, 3, kinds)
}

func TestRelay_RunWakesOnPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j := journal.NewMemory()
	out := &stubPublisher{}
	r := &Relay{Journal: j, Cursors: journal.NewMemoryCursors(), Out: out, Interval: time.Hour}

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	appendDays(t, j, 1)
	require.NoError(t, r.Publish(ctx, mktA, market.Record{Seq: 1}))
	require.Eventually(t, func() bool { return len(out.published()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestMemoryCursors_NeverMoveBack(t *testing.T) {
	ctx := context.Background()
	c := journal.NewMemoryCursors()
	require.NoError(t, c.Advance(ctx, mktA, 5))
	require.NoError(t, c.Advance(ctx, mktA, 3))
	cur, err := c.Cursor(ctx, mktA)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cur)
}
