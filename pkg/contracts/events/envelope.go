package events

import (
	"encoding/json"
	"time"
)

// Envelope é a mensagem publicada no tópico market_events.
// ID é derivado de (market, seq), então reentregas têm o mesmo ID.
type Envelope struct {
	ID      string          `json:"id"`
	Market  string          `json:"market"`
	Seq     uint64          `json:"seq"`
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}
