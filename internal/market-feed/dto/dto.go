package dto

import (
	"encoding/json"
	"time"
)

// Market é a linha de indexed_markets
type Market struct {
	Market         string    `json:"market"`
	Asset          string    `json:"asset"`
	Owner          string    `json:"owner"`
	Oracle         string    `json:"oracle"`
	MinLockDays    uint32    `json:"min_lock_days"`
	MaxLockDays    uint32    `json:"max_lock_days"`
	ResolutionTime time.Time `json:"resolution_time"`
	CreatedAt      time.Time `json:"created_at"`
	Resolved       bool      `json:"resolved"`
	Outcome        string    `json:"outcome"`
	PrincipalA     string    `json:"principal_a"`
	PrincipalB     string    `json:"principal_b"`
	PowerA         string    `json:"power_a"`
	PowerB         string    `json:"power_b"`
	LastSeq        uint64    `json:"last_seq"`
}

// Event é uma linha de indexed_events
type Event struct {
	ID      string          `json:"id"`
	Seq     uint64          `json:"seq"`
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

type Position struct {
	Depositor string          `json:"depositor"`
	Side      string          `json:"side"`
	Principal string          `json:"principal"`
	Power     string          `json:"power"`
	Claimed   bool            `json:"claimed"`
	Payout    json.RawMessage `json:"payout,omitempty"`
}
