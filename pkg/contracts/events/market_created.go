package events

import "time"

// Evento emitido pela factory ao criar um market (sempre seq 1)
type MarketCreated struct {
	Market         string    `json:"market"`
	Asset          string    `json:"asset"`
	Owner          string    `json:"owner"`
	Oracle         string    `json:"oracle"`
	MinLockDays    uint32    `json:"min_lock_days"`
	MaxLockDays    uint32    `json:"max_lock_days"`
	ResolutionTime time.Time `json:"resolution_time"`
	CreatedAt      time.Time `json:"created_at"`
}
