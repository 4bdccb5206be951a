package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/radieske/hyper-market/internal/market"
	"github.com/radieske/hyper-market/pkg/contracts/events"
)

// Schema das tabelas de leitura alimentadas pelo indexer
const Schema = `
CREATE TABLE IF NOT EXISTS indexed_events (
	id      UUID PRIMARY KEY,
	market  TEXT NOT NULL,
	seq     BIGINT NOT NULL,
	kind    TEXT NOT NULL,
	payload JSONB NOT NULL,
	at      TIMESTAMPTZ NOT NULL,
	UNIQUE (market, seq)
);
CREATE TABLE IF NOT EXISTS indexed_markets (
	market          TEXT PRIMARY KEY,
	asset           TEXT NOT NULL,
	owner           TEXT NOT NULL,
	oracle          TEXT NOT NULL,
	min_lock_days   INT NOT NULL,
	max_lock_days   INT NOT NULL,
	resolution_time TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	resolved        BOOLEAN NOT NULL DEFAULT false,
	outcome         TEXT NOT NULL DEFAULT 'NONE',
	principal_a     NUMERIC(78,0) NOT NULL DEFAULT 0,
	principal_b     NUMERIC(78,0) NOT NULL DEFAULT 0,
	power_a         NUMERIC(78,0) NOT NULL DEFAULT 0,
	power_b         NUMERIC(78,0) NOT NULL DEFAULT 0,
	last_seq        BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS indexed_positions (
	market     TEXT NOT NULL,
	depositor  TEXT NOT NULL,
	side       TEXT NOT NULL,
	principal  NUMERIC(78,0) NOT NULL DEFAULT 0,
	power      NUMERIC(78,0) NOT NULL DEFAULT 0,
	claimed    BOOLEAN NOT NULL DEFAULT false,
	payout     JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (market, depositor)
);`

// ErrMarketNotIndexed: evento de um market cujo MarketCreated não foi projetado.
// O erro desfaz a transação e a mensagem vai para a DLQ.
var ErrMarketNotIndexed = errors.New("market not indexed")

// PostgresRepo projeta os eventos do engine nas tabelas indexed_*
type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// Apply grava o evento e atualiza as projeções numa transação.
// Reentregas (mesmo id) devolvem applied=false sem tocar nas projeções.
func (r *PostgresRepo) Apply(ctx context.Context, env events.Envelope, ev market.Event) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO indexed_events (id, market, seq, kind, payload, at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT DO NOTHING`,
		env.ID, env.Market, int64(env.Seq), env.Kind, []byte(env.Payload), env.At)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if err := project(ctx, tx, env, ev); err != nil {
		return false, fmt.Errorf("project %s: %w", env.Kind, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE indexed_markets SET last_seq = GREATEST(last_seq, $2) WHERE market = $1`,
		env.Market, int64(env.Seq)); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func project(ctx context.Context, tx *sql.Tx, env events.Envelope, ev market.Event) error {
	switch e := ev.(type) {
	case market.MarketCreated:
		p := e.Params
		_, err := tx.ExecContext(ctx, `
			INSERT INTO indexed_markets
			  (market, asset, owner, oracle, min_lock_days, max_lock_days, resolution_time, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (market) DO NOTHING`,
			env.Market, p.Asset.Hex(), p.Owner.Hex(), p.Oracle.Hex(),
			p.MinLockDays, p.MaxLockDays, p.ResolutionTime, p.CreatedAt)
		return err

	case market.Deposited:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO indexed_positions (market, depositor, side, principal, power)
			VALUES ($1,$2,$3,$4::numeric,$5::numeric)
			ON CONFLICT (market, depositor) DO UPDATE SET
			  principal  = indexed_positions.principal + EXCLUDED.principal,
			  power      = indexed_positions.power + EXCLUDED.power,
			  updated_at = now()`,
			env.Market, e.Depositor.Hex(), e.Side.String(), e.Amount.Dec(), e.Power.Dec()); err != nil {
			return err
		}
		q := `UPDATE indexed_markets SET principal_a = principal_a + $2::numeric, power_a = power_a + $3::numeric WHERE market = $1`
		if e.Side == market.SideB {
			q = `UPDATE indexed_markets SET principal_b = principal_b + $2::numeric, power_b = power_b + $3::numeric WHERE market = $1`
		}
		res, err := tx.ExecContext(ctx, q, env.Market, e.Amount.Dec(), e.Power.Dec())
		if err != nil {
			return err
		}
		return requireOne(res, env.Market)

	case market.Resolved:
		res, err := tx.ExecContext(ctx,
			`UPDATE indexed_markets SET resolved = true, outcome = $2 WHERE market = $1`,
			env.Market, e.Outcome.String())
		if err != nil {
			return err
		}
		return requireOne(res, env.Market)

	case market.ClaimStarted:
		// a posição fecha no início do claim; o payout final chega no Claimed
		res, err := tx.ExecContext(ctx, `
			UPDATE indexed_positions SET claimed = true, payout = $3, updated_at = now()
			WHERE market = $1 AND depositor = $2`,
			env.Market, e.Depositor.Hex(), []byte(env.Payload))
		if err != nil {
			return err
		}
		return requireOne(res, env.Market+"/"+e.Depositor.Hex())

	case market.Claimed:
		res, err := tx.ExecContext(ctx, `
			UPDATE indexed_positions SET claimed = true, payout = $3, updated_at = now()
			WHERE market = $1 AND depositor = $2`,
			env.Market, e.Depositor.Hex(), []byte(env.Payload))
		if err != nil {
			return err
		}
		return requireOne(res, env.Market+"/"+e.Depositor.Hex())
	}
	// binding_registered / default_binding_set / deposit_started / deposit_aborted: só o histórico
	return nil
}

// requireOne falha quando o UPDATE não encontrou a linha projetada
func requireOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%w: %s (%d rows)", ErrMarketNotIndexed, what, n)
	}
	return nil
}
