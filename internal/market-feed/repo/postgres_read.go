package repo

import (
	"context"
	"database/sql"

	"github.com/radieske/hyper-market/internal/market-feed/dto"
)

// ReadRepo lê as projeções mantidas pelo market-indexer
type ReadRepo struct {
	DB *sql.DB
}

func (r *ReadRepo) ListMarkets(ctx context.Context) ([]dto.Market, error) {
	const q = `
		SELECT market, asset, owner, oracle, min_lock_days, max_lock_days, resolution_time, created_at,
		       resolved, outcome, principal_a::text, principal_b::text, power_a::text, power_b::text, last_seq
		FROM indexed_markets
		ORDER BY created_at, market`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []dto.Market{}
	for rows.Next() {
		var m dto.Market
		var lastSeq int64
		if err := rows.Scan(&m.Market, &m.Asset, &m.Owner, &m.Oracle, &m.MinLockDays, &m.MaxLockDays,
			&m.ResolutionTime, &m.CreatedAt, &m.Resolved, &m.Outcome,
			&m.PrincipalA, &m.PrincipalB, &m.PowerA, &m.PowerB, &lastSeq); err != nil {
			return nil, err
		}
		m.LastSeq = uint64(lastSeq)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListEvents devolve o histórico a partir de afterSeq, em ordem
func (r *ReadRepo) ListEvents(ctx context.Context, market string, afterSeq uint64, limit int) ([]dto.Event, error) {
	const q = `
		SELECT id, seq, kind, at, payload
		FROM indexed_events
		WHERE market = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, q, market, int64(afterSeq), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []dto.Event{}
	for rows.Next() {
		var e dto.Event
		var seq int64
		var payload []byte
		if err := rows.Scan(&e.ID, &seq, &e.Kind, &e.At, &payload); err != nil {
			return nil, err
		}
		e.Seq, e.Payload = uint64(seq), payload
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ReadRepo) ListPositions(ctx context.Context, market string) ([]dto.Position, error) {
	const q = `
		SELECT depositor, side, principal::text, power::text, claimed, payout
		FROM indexed_positions
		WHERE market = $1
		ORDER BY depositor`
	rows, err := r.DB.QueryContext(ctx, q, market)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []dto.Position{}
	for rows.Next() {
		var p dto.Position
		var payout []byte
		if err := rows.Scan(&p.Depositor, &p.Side, &p.Principal, &p.Power, &p.Claimed, &payout); err != nil {
			return nil, err
		}
		p.Payout = payout
		out = append(out, p)
	}
	return out, rows.Err()
}
