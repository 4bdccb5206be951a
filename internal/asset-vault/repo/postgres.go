package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/radieske/hyper-market/internal/market"
)

// Postgres implementa o vault em banco: saldos, allowances e ledger de movimentações.
// Valores ficam em NUMERIC(78,0) e trafegam como string decimal.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Transfer aplica todas as movimentações numa única transação
func (p *Postgres) Transfer(ctx context.Context, moves ...market.Movement) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := applyMoves(ctx, tx, moves); err != nil {
		return err
	}
	return tx.Commit()
}

// TransferOnce registra a key em token_batches na mesma transação do lote.
// Key repetida não insere linha e o lote não é aplicado.
func (p *Postgres) TransferOnce(ctx context.Context, key string, moves ...market.Movement) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO token_batches(key) VALUES($1) ON CONFLICT (key) DO NOTHING`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := applyMoves(ctx, tx, moves); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Postgres) Applied(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM token_batches WHERE key=$1)`, key).Scan(&ok)
	return ok, err
}

// applyMoves trava as linhas de saldo/allowance tocadas (lock pessimista)
func applyMoves(ctx context.Context, tx *sql.Tx, moves []market.Movement) error {
	for _, mv := range moves {
		if mv.Amount == nil {
			return fmt.Errorf("%w: nil amount", market.ErrInvalidAmount)
		}
		amount := mv.Amount.Dec()

		if mv.Spender != zero && mv.From != zero {
			cur, err := selectAmount(ctx, tx, `SELECT amount FROM token_allowances WHERE token=$1 AND owner=$2 AND spender=$3 FOR UPDATE`,
				mv.Token.Hex(), mv.From.Hex(), mv.Spender.Hex())
			if err != nil {
				return err
			}
			if cur.Lt(mv.Amount) {
				return fmt.Errorf("%w: %s allowed %s, need %s", market.ErrAllowance, mv.From.Hex(), cur.Dec(), amount)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE token_allowances SET amount = amount - $1::numeric WHERE token=$2 AND owner=$3 AND spender=$4`,
				amount, mv.Token.Hex(), mv.From.Hex(), mv.Spender.Hex()); err != nil {
				return err
			}
		}

		if mv.From != zero {
			cur, err := selectAmount(ctx, tx, `SELECT balance FROM token_balances WHERE token=$1 AND owner=$2 FOR UPDATE`,
				mv.Token.Hex(), mv.From.Hex())
			if err != nil {
				return err
			}
			if cur.Lt(mv.Amount) {
				return fmt.Errorf("%w: %s holds %s of %s, need %s", market.ErrInsufficientFunds, mv.From.Hex(), cur.Dec(), mv.Token.Hex(), amount)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE token_balances SET balance = balance - $1::numeric, version = version + 1 WHERE token=$2 AND owner=$3`,
				amount, mv.Token.Hex(), mv.From.Hex()); err != nil {
				return err
			}
		}

		if mv.To != zero {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO token_balances(token, owner, balance, version) VALUES($1,$2,$3::numeric,1)
				ON CONFLICT (token, owner) DO UPDATE SET
				  balance = token_balances.balance + EXCLUDED.balance,
				  version = token_balances.version + 1`,
				mv.Token.Hex(), mv.To.Hex(), amount); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO token_ledger(id, token, from_addr, to_addr, amount, memo) VALUES($1,$2,$3,$4,$5::numeric,$6)`,
			uuid.NewString(), mv.Token.Hex(), mv.From.Hex(), mv.To.Hex(), amount, mv.Memo); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) BalanceOf(ctx context.Context, token, owner common.Address) (*uint256.Int, error) {
	return selectAmount(ctx, p.db, `SELECT balance FROM token_balances WHERE token=$1 AND owner=$2`, token.Hex(), owner.Hex())
}

func (p *Postgres) Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	return selectAmount(ctx, p.db, `SELECT amount FROM token_allowances WHERE token=$1 AND owner=$2 AND spender=$3`,
		token.Hex(), owner.Hex(), spender.Hex())
}

// Mint credita saldo (faucet do ambiente de testes)
func (p *Postgres) Mint(ctx context.Context, token, to common.Address, amount *uint256.Int) error {
	return p.Transfer(ctx, market.Movement{Token: token, To: to, Amount: amount, Memo: "mint"})
}

// Approve define a allowance de spender; idempotente para o mesmo valor
func (p *Postgres) Approve(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO token_allowances(token, owner, spender, amount) VALUES($1,$2,$3,$4::numeric)
		ON CONFLICT (token, owner, spender) DO UPDATE SET amount = EXCLUDED.amount`,
		token.Hex(), owner.Hex(), spender.Hex(), amount.Dec())
	return err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// selectAmount lê um NUMERIC; linha ausente vale zero
func selectAmount(ctx context.Context, q queryer, query string, args ...any) (*uint256.Int, error) {
	var raw string
	err := q.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return market.ParseAmount(raw)
}

var _ market.Vault = (*Postgres)(nil)
