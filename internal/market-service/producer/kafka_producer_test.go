package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/hyper-market/internal/market"
	"github.com/radieske/hyper-market/pkg/contracts/events"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaPublisher(w, "market_events")
	mkt := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), mkt, market.Record{Seq: 3, At: at, Event: market.DefaultBindingSet{Days: 90}})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, mkt.Hex(), string(msg.Key))
	assert.Equal(t, at, msg.Time)
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, market.KindDefaultBindingSet, headers["kind"])
	assert.Equal(t, market.EnvelopeID(mkt, 3).String(), headers["event_id"])

	var env events.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, uint64(3), env.Seq)
	assert.JSONEq(t, `{"days":90}`, string(env.Payload))
}

func TestKafkaPublisher_WriterError(t *testing.T) {
	w := &captureWriter{err: errors.New("no brokers")}
	err := NewKafkaPublisher(w, "t").Publish(context.Background(), common.Address{}, market.Record{Seq: 1, Event: market.DefaultBindingSet{Days: 1}})
	require.Error(t, err)
}
