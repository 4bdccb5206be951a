package ws

import "encoding/json"

// ClientMsg é o que o cliente envia: subscribe | unsubscribe | ping
type ClientMsg struct {
	Type   string `json:"type"`
	Market string `json:"market"` // requerido em subscribe/unsubscribe
}

// MarketUpdate é o evento repassado aos inscritos (mesmo formato do pubsub do indexer)
type MarketUpdate struct {
	Market  string          `json:"market"`
	Seq     uint64          `json:"seq"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}
