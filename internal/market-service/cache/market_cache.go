package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

const snapshotPrefix = "market:snapshot:"

// Cache guarda snapshots de market serializados (MarketView) no Redis
type Cache struct{ R *redis.Client }

func New(r *redis.Client) *Cache { return &Cache{R: r} }

// SnapshotKey usa o hex minúsculo para não depender do checksum enviado pelo cliente
func SnapshotKey(mkt common.Address) string {
	return snapshotPrefix + strings.ToLower(mkt.Hex())
}

// GetSnapshot devolve false quando não há entrada
func (c *Cache) GetSnapshot(ctx context.Context, mkt common.Address, dst any) (bool, error) {
	b, err := c.R.Get(ctx, SnapshotKey(mkt)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("get snapshot: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		// entrada corrompida conta como miss e é descartada
		_ = c.R.Del(ctx, SnapshotKey(mkt)).Err()
		return false, nil
	}
	return true, nil
}

func (c *Cache) SetSnapshot(ctx context.Context, mkt common.Address, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.R.Set(ctx, SnapshotKey(mkt), b, ttl).Err()
}

// Invalidate remove o snapshot depois de uma mutação
func (c *Cache) Invalidate(ctx context.Context, mkt common.Address) error {
	return c.R.Del(ctx, SnapshotKey(mkt)).Err()
}
