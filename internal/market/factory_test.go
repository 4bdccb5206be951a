package market_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/hyper-market/internal/market"
	"github.com/radieske/hyper-market/internal/yield-source/curve"
)

func validSpec() market.MarketSpec {
	return market.MarketSpec{
		Asset:          asset,
		Owner:          owner,
		Oracle:         oracle,
		MinLockDays:    30,
		MaxLockDays:    365,
		ResolutionTime: epoch.Add(24 * time.Hour),
	}
}

func TestCreateMarket_DerivesAddresses(t *testing.T) {
	e := newEnv(t, 30, 365)
	assert.Equal(t, crypto.CreateAddress(factoryAddr, 0), e.m.Address())

	second, err := e.factory.CreateMarket(e.ctx, validSpec())
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(factoryAddr, 1), second.Address())
	assert.Equal(t, []common.Address{e.m.Address(), second.Address()}, e.factory.Markets())

	p := second.Params()
	assert.Equal(t, second.Address(), p.Address)
	assert.Equal(t, epoch, p.CreatedAt)
	assert.False(t, p.Resolved)
	assert.Equal(t, market.SideNone, p.Outcome)

	got, err := e.factory.Market(second.Address())
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestCreateMarket_InvalidParams(t *testing.T) {
	e := newEnv(t, 30, 365)
	cases := map[string]func(s *market.MarketSpec){
		"no asset":          func(s *market.MarketSpec) { s.Asset = common.Address{} },
		"no oracle":         func(s *market.MarketSpec) { s.Oracle = common.Address{} },
		"no owner":          func(s *market.MarketSpec) { s.Owner = common.Address{} },
		"zero min":          func(s *market.MarketSpec) { s.MinLockDays = 0 },
		"min above max":     func(s *market.MarketSpec) { s.MinLockDays = 400 },
		"resolution now":    func(s *market.MarketSpec) { s.ResolutionTime = epoch },
		"resolution passed": func(s *market.MarketSpec) { s.ResolutionTime = epoch.Add(-time.Hour) },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			spec := validSpec()
			mut(&spec)
			_, err := e.factory.CreateMarket(e.ctx, spec)
			require.ErrorIs(t, err, market.ErrInvalidParams)
			assert.Equal(t, "validation", market.Class(err))
		})
	}
	assert.Len(t, e.factory.Markets(), 1)
}

func TestFactory_MarketNotFound(t *testing.T) {
	e := newEnv(t, 30, 365)
	_, err := e.factory.Market(stranger)
	require.ErrorIs(t, err, market.ErrMarketNotFound)
	assert.Equal(t, "not_found", market.Class(err))
}

func TestFactory_Restore(t *testing.T) {
	e := newEnv(t, 30, 365, curve.Term{Days: 30, RateBps: 500})
	e.register(30)
	e.fund(alice, 50)
	e.deposit(alice, 50, 30, market.SideB)
	_, err := e.factory.CreateMarket(e.ctx, validSpec())
	require.NoError(t, err)

	replica := market.NewFactory(factoryAddr, e.deps)
	require.NoError(t, replica.Restore(e.ctx))
	assert.Equal(t, e.factory.Markets(), replica.Markets())

	m, err := replica.Market(e.m.Address())
	require.NoError(t, err)
	assert.Equal(t, e.m.Snapshot(), m.Snapshot())

	// idempotente
	require.NoError(t, replica.Restore(e.ctx))
	assert.Len(t, replica.Markets(), 2)

	// o próximo nonce continua a sequência
	third, err := replica.CreateMarket(e.ctx, validSpec())
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(factoryAddr, 2), third.Address())
}

func TestFactory_StaleReplicaCannotReuseNonce(t *testing.T) {
	e := newEnv(t, 30, 365)
	stale := market.NewFactory(factoryAddr, e.deps)

	// a réplica sem Restore deriva o mesmo endereço e o journal recusa seq 1
	_, err := stale.CreateMarket(e.ctx, validSpec())
	require.ErrorIs(t, err, market.ErrConcurrentUpdate)
	assert.Empty(t, stale.Markets())
}

func TestFactory_RestoreWithoutJournal(t *testing.T) {
	f := market.NewFactory(factoryAddr, market.Deps{})
	require.NoError(t, f.Restore(context.Background()))
	assert.Empty(t, f.Markets())
}
