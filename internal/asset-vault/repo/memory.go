package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/radieske/hyper-market/internal/market"
)

type allowanceKey struct{ token, owner, spender common.Address }

type balanceKey struct{ token, owner common.Address }

// Memory implementa o vault em memória (testes e modo local sem Postgres)
type Memory struct {
	mu         sync.Mutex
	balances   map[balanceKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	batches    map[string]struct{}
	entries    []Entry
}

// Entry é uma linha do ledger de movimentações
type Entry struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *uint256.Int
	Memo   string
}

func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[balanceKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		batches:    make(map[string]struct{}),
	}
}

func (m *Memory) Transfer(_ context.Context, moves ...market.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apply(moves)
}

// TransferOnce grava a key junto com o lote; lote recusado não consome a key
func (m *Memory) TransferOnce(_ context.Context, key string, moves ...market.Movement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[key]; ok {
		return false, nil
	}
	if err := m.apply(moves); err != nil {
		return false, err
	}
	m.batches[key] = struct{}{}
	return true, nil
}

func (m *Memory) Applied(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.batches[key]
	return ok, nil
}

// apply aplica o lote inteiro ou nada: trabalha numa cópia dos saldos tocados
func (m *Memory) apply(moves []market.Movement) error {
	bal := make(map[balanceKey]*uint256.Int)
	alw := make(map[allowanceKey]*uint256.Int)
	getBal := func(k balanceKey) *uint256.Int {
		if v, ok := bal[k]; ok {
			return v
		}
		v := new(uint256.Int)
		if cur, ok := m.balances[k]; ok {
			v.Set(cur)
		}
		bal[k] = v
		return v
	}
	getAlw := func(k allowanceKey) *uint256.Int {
		if v, ok := alw[k]; ok {
			return v
		}
		v := new(uint256.Int)
		if cur, ok := m.allowances[k]; ok {
			v.Set(cur)
		}
		alw[k] = v
		return v
	}

	for _, mv := range moves {
		if mv.Amount == nil {
			return fmt.Errorf("%w: nil amount", market.ErrInvalidAmount)
		}
		if mv.Spender != zero && mv.From != zero {
			a := getAlw(allowanceKey{mv.Token, mv.From, mv.Spender})
			if a.Lt(mv.Amount) {
				return fmt.Errorf("%w: %s allowed %s, need %s", market.ErrAllowance, mv.From.Hex(), a.Dec(), mv.Amount.Dec())
			}
			a.Sub(a, mv.Amount)
		}
		if mv.From != zero {
			b := getBal(balanceKey{mv.Token, mv.From})
			if b.Lt(mv.Amount) {
				return fmt.Errorf("%w: %s holds %s of %s, need %s", market.ErrInsufficientFunds, mv.From.Hex(), b.Dec(), mv.Token.Hex(), mv.Amount.Dec())
			}
			b.Sub(b, mv.Amount)
		}
		if mv.To != zero {
			b := getBal(balanceKey{mv.Token, mv.To})
			if _, overflow := b.AddOverflow(b, mv.Amount); overflow {
				return fmt.Errorf("%w: balance overflow", market.ErrInvalidAmount)
			}
		}
	}

	for k, v := range bal {
		m.balances[k] = v
	}
	for k, v := range alw {
		m.allowances[k] = v
	}
	for _, mv := range moves {
		m.entries = append(m.entries, Entry{Token: mv.Token, From: mv.From, To: mv.To, Amount: mv.Amount.Clone(), Memo: mv.Memo})
	}
	return nil
}

func (m *Memory) BalanceOf(_ context.Context, token, owner common.Address) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.balances[balanceKey{token, owner}]; ok {
		return v.Clone(), nil
	}
	return new(uint256.Int), nil
}

func (m *Memory) Allowance(_ context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.allowances[allowanceKey{token, owner, spender}]; ok {
		return v.Clone(), nil
	}
	return new(uint256.Int), nil
}

// Mint credita amount de token para to (faucet)
func (m *Memory) Mint(ctx context.Context, token, to common.Address, amount *uint256.Int) error {
	return m.Transfer(ctx, market.Movement{Token: token, To: to, Amount: amount, Memo: "mint"})
}

// Approve define (não soma) a allowance de spender sobre os fundos de owner
func (m *Memory) Approve(_ context.Context, token, owner, spender common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{token, owner, spender}] = amount.Clone()
	return nil
}

// Entries devolve uma cópia do ledger
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

var zero common.Address

var _ market.Vault = (*Memory)(nil)
