package ws

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRelay_DecodesAndSkipsGarbage(t *testing.T) {
	ch := make(chan *redis.Message, 4)
	ch <- &redis.Message{Channel: "c", Payload: `not json`}
	ch <- &redis.Message{Channel: "c", Payload: `{"seq":1}`}
	ch <- nil
	ch <- &redis.Message{Channel: "c", Payload: `{"market":"0xabc","seq":7,"kind":"deposited","payload":{"x":1}}`}
	close(ch)

	var got []MarketUpdate
	relay(context.Background(), ch, func(u MarketUpdate) int {
		got = append(got, u)
		return 1
	}, zap.NewNop())

	require.Len(t, got, 1)
	assert.Equal(t, "0xabc", got[0].Market)
	assert.Equal(t, uint64(7), got[0].Seq)
	assert.Equal(t, "deposited", got[0].Kind)
	assert.JSONEq(t, `{"x":1}`, string(got[0].Payload))
}

func TestRelay_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay(ctx, make(chan *redis.Message), func(MarketUpdate) int { return 0 }, zap.NewNop())
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}
