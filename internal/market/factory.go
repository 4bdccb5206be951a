package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// MarketSpec são os parâmetros imutáveis de criação
type MarketSpec struct {
	Asset          common.Address
	Owner          common.Address
	Oracle         common.Address
	MinLockDays    uint32
	MaxLockDays    uint32
	ResolutionTime time.Time
}

func (s MarketSpec) validate(now time.Time) error {
	switch {
	case s.Asset == (common.Address{}):
		return fmt.Errorf("%w: asset required", ErrInvalidParams)
	case s.Oracle == (common.Address{}):
		return fmt.Errorf("%w: oracle required", ErrInvalidParams)
	case s.Owner == (common.Address{}):
		return fmt.Errorf("%w: owner required", ErrInvalidParams)
	case s.MinLockDays == 0 || s.MinLockDays > s.MaxLockDays:
		return fmt.Errorf("%w: lock range [%d, %d]", ErrInvalidParams, s.MinLockDays, s.MaxLockDays)
	case !s.ResolutionTime.After(now):
		return fmt.Errorf("%w: resolution time must be in the future", ErrInvalidParams)
	}
	return nil
}

// Factory cria e mantém os markets. O endereço de custódia de cada um é
// derivado como num deploy de contrato: keccak(rlp(factory, nonce)).
type Factory struct {
	mu      sync.RWMutex
	address common.Address
	markets map[common.Address]*Market
	order   []common.Address
	deps    Deps
	log     *zap.Logger
}

func NewFactory(address common.Address, deps Deps) *Factory {
	deps = deps.withDefaults()
	return &Factory{
		address: address,
		markets: make(map[common.Address]*Market),
		deps:    deps,
		log:     deps.Log.With(zap.String("factory", address.Hex())),
	}
}

func (f *Factory) Address() common.Address { return f.address }

// CreateMarket valida o spec, deriva o endereço e grava MarketCreated como seq 1
func (f *Factory) CreateMarket(ctx context.Context, spec MarketSpec) (*Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.deps.Clock()
	if err := spec.validate(now); err != nil {
		if f.deps.OnReject != nil {
			f.deps.OnReject("create_market", Class(err))
		}
		return nil, err
	}

	addr := crypto.CreateAddress(f.address, uint64(len(f.order)))
	if _, ok := f.markets[addr]; ok {
		return nil, fmt.Errorf("%w: %s already exists", ErrConcurrentUpdate, addr.Hex())
	}
	m := newMarket(addr, f.deps)
	m.mu.Lock()
	_, err := m.commit(ctx, MarketCreated{Params: Params{
		Address:        addr,
		Asset:          spec.Asset,
		Owner:          spec.Owner,
		Oracle:         spec.Oracle,
		MinLockDays:    spec.MinLockDays,
		MaxLockDays:    spec.MaxLockDays,
		ResolutionTime: spec.ResolutionTime.UTC(),
		CreatedAt:      now.UTC(),
	}})
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	f.markets[addr] = m
	f.order = append(f.order, addr)
	f.log.Info("market created",
		zap.String("market", addr.Hex()),
		zap.Uint32("min_lock_days", spec.MinLockDays),
		zap.Uint32("max_lock_days", spec.MaxLockDays),
		zap.Time("resolution_time", spec.ResolutionTime),
	)
	return m, nil
}

func (f *Factory) Market(addr common.Address) (*Market, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, ok := f.markets[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, addr.Hex())
	}
	return m, nil
}

// Markets devolve os endereços na ordem de criação
func (f *Factory) Markets() []common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]common.Address(nil), f.order...)
}

// Restore carrega do journal os markets que esta réplica ainda não conhece
func (f *Factory) Restore(ctx context.Context) error {
	if f.deps.Journal == nil {
		return nil
	}
	addrs, err := f.deps.Journal.Markets(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, addr := range addrs {
		if _, ok := f.markets[addr]; ok {
			continue
		}
		m, err := Open(ctx, addr, f.deps)
		if err != nil {
			return err
		}
		f.markets[addr] = m
		f.order = append(f.order, addr)
	}
	if len(addrs) > 0 {
		f.log.Info("markets restored", zap.Int("count", len(f.order)))
	}
	return nil
}

// Recover retoma os intents pendentes de todos os markets. Um market travado
// não impede os demais; os erros voltam juntos.
func (f *Factory) Recover(ctx context.Context) error {
	f.mu.RLock()
	markets := make([]*Market, 0, len(f.order))
	for _, addr := range f.order {
		markets = append(markets, f.markets[addr])
	}
	f.mu.RUnlock()

	var errs []error
	for _, m := range markets {
		if err := m.Recover(ctx); err != nil {
			errs = append(errs, fmt.Errorf("recover %s: %w", m.Address().Hex(), err))
		}
	}
	return errors.Join(errs...)
}
