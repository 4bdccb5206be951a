package journal

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// CursorSchema guarda o último seq publicado por market (relay do journal)
const CursorSchema = `
CREATE TABLE IF NOT EXISTS market_publish_cursor (
	market     TEXT PRIMARY KEY,
	seq        BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresCursors implementa producer.CursorStore. Advance nunca recua.
type PostgresCursors struct{ db *sql.DB }

func NewPostgresCursors(db *sql.DB) *PostgresCursors { return &PostgresCursors{db: db} }

func (c *PostgresCursors) Cursor(ctx context.Context, mkt common.Address) (uint64, error) {
	var seq int64
	err := c.db.QueryRowContext(ctx, `SELECT seq FROM market_publish_cursor WHERE market=$1`, mkt.Hex()).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

func (c *PostgresCursors) Advance(ctx context.Context, mkt common.Address, seq uint64) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO market_publish_cursor(market, seq) VALUES($1,$2)
		ON CONFLICT (market) DO UPDATE SET
		  seq = GREATEST(market_publish_cursor.seq, EXCLUDED.seq),
		  updated_at = now()`,
		mkt.Hex(), int64(seq))
	return err
}

// MemoryCursors é o CursorStore de testes e do modo local
type MemoryCursors struct {
	mu   sync.Mutex
	seqs map[common.Address]uint64
}

func NewMemoryCursors() *MemoryCursors {
	return &MemoryCursors{seqs: make(map[common.Address]uint64)}
}

func (c *MemoryCursors) Cursor(_ context.Context, mkt common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seqs[mkt], nil
}

func (c *MemoryCursors) Advance(_ context.Context, mkt common.Address, seq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq > c.seqs[mkt] {
		c.seqs[mkt] = seq
	}
	return nil
}
