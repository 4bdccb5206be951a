package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"

	"github.com/radieske/hyper-market/internal/market"
)

// Schema do journal. A PK (market, seq) é o que lineariza réplicas concorrentes:
// o segundo INSERT do mesmo seq falha com unique_violation.
const Schema = `
CREATE TABLE IF NOT EXISTS market_events (
	market     TEXT NOT NULL,
	seq        BIGINT NOT NULL,
	kind       TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (market, seq)
);`

const uniqueViolation = "23505"

// Postgres implementa market.Journal sobre a tabela market_events
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Append(ctx context.Context, mkt common.Address, seq uint64, ev market.Event) error {
	payload, err := market.EncodeEvent(ev)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO market_events(market, seq, kind, payload) VALUES($1,$2,$3,$4)`,
		mkt.Hex(), int64(seq), ev.Kind(), payload)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s seq %d already written", market.ErrConcurrentUpdate, mkt.Hex(), seq)
	}
	return err
}

func (p *Postgres) LoadSince(ctx context.Context, mkt common.Address, afterSeq uint64) ([]market.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT seq, kind, payload, created_at FROM market_events
		WHERE market=$1 AND seq>$2 ORDER BY seq`, mkt.Hex(), int64(afterSeq))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Record
	for rows.Next() {
		var (
			seq     int64
			kind    string
			payload []byte
			at      time.Time
		)
		if err := rows.Scan(&seq, &kind, &payload, &at); err != nil {
			return nil, err
		}
		ev, err := market.DecodeEvent(kind, payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s #%d: %w", mkt.Hex(), seq, err)
		}
		out = append(out, market.Record{Seq: uint64(seq), At: at.UTC(), Event: ev})
	}
	return out, rows.Err()
}

// Markets lista os markets pela ordem do MarketCreated
func (p *Postgres) Markets(ctx context.Context) ([]common.Address, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT market FROM market_events WHERE seq=1 ORDER BY created_at, market`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []common.Address
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, rows.Err()
}

var _ market.Journal = (*Postgres)(nil)
