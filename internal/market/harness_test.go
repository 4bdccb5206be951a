package market_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/radieske/hyper-market/internal/asset-vault/repo"
	"github.com/radieske/hyper-market/internal/market"
	"github.com/radieske/hyper-market/internal/market-service/journal"
	"github.com/radieske/hyper-market/internal/yield-source/curve"
)

var (
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000fac70")
	asset       = common.HexToAddress("0x0000000000000000000000000000000000005d51")
	owner       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	oracle      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol       = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
	stranger    = common.HexToAddress("0x0000000000000000000000000000000000000bad")
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// testEnv monta factory + market sobre vault e journal em memória, com relógio controlado
type testEnv struct {
	t       *testing.T
	ctx     context.Context
	now     time.Time
	vault   *repo.Memory
	journal *journal.Memory
	faults  *faults
	sources market.SourceMap
	curves  map[uint32]*curve.Curve
	deps    market.Deps
	factory *market.Factory
	m       *market.Market
}

// newEnv cria um market [minDays, maxDays] que resolve 60 dias após epoch.
// Cada term vira uma curva registrável (ainda não registrada no market).
func newEnv(t *testing.T, minDays, maxDays uint32, terms ...curve.Term) *testEnv {
	t.Helper()
	e := &testEnv{
		t:       t,
		ctx:     context.Background(),
		now:     epoch,
		vault:   repo.NewMemory(),
		journal: journal.NewMemory(),
		faults:  &faults{appends: map[string]int{}, transfers: map[string]int{}},
		sources: market.SourceMap{},
		curves:  map[uint32]*curve.Curve{},
	}
	for _, term := range terms {
		c := curve.Named(term.Name("TEST"), asset, term.RateBps, epoch.AddDate(0, 0, int(term.Days)), e.vault)
		e.curves[term.Days] = c
		e.sources[c.Ref] = c
	}
	e.deps = market.Deps{
		Sources: e.sources,
		Vault:   faultyVault{e.vault, e.faults},
		Journal: faultyJournal{e.journal, e.faults},
		Clock:   func() time.Time { return e.now },
	}
	e.factory = market.NewFactory(factoryAddr, e.deps)
	m, err := e.factory.CreateMarket(e.ctx, market.MarketSpec{
		Asset:          asset,
		Owner:          owner,
		Oracle:         oracle,
		MinLockDays:    minDays,
		MaxLockDays:    maxDays,
		ResolutionTime: epoch.AddDate(0, 0, 60),
	})
	require.NoError(t, err)
	e.m = m
	return e
}

// register liga days à curva de mesmo prazo
func (e *testEnv) register(days uint32) market.Binding {
	e.t.Helper()
	c, ok := e.curves[days]
	require.True(e.t, ok, "no curve for %d days", days)
	b, err := e.m.RegisterBinding(e.ctx, owner, days, c.Ref, c.Maturity)
	require.NoError(e.t, err)
	return b
}

// fund credita units inteiras e aprova a custódia do market
func (e *testEnv) fund(who common.Address, units uint64) {
	e.t.Helper()
	require.NoError(e.t, e.vault.Mint(e.ctx, asset, who, market.Units(units)))
	require.NoError(e.t, e.vault.Approve(e.ctx, asset, who, e.m.Address(), market.Units(units)))
}

func (e *testEnv) deposit(who common.Address, units uint64, days uint32, side market.Side) market.Deposited {
	e.t.Helper()
	ev, err := e.m.Deposit(e.ctx, who, market.Units(units), days, side)
	require.NoError(e.t, err)
	return ev
}

func (e *testEnv) resolve(outcome market.Side) {
	e.t.Helper()
	e.now = e.m.Params().ResolutionTime
	_, err := e.m.Resolve(e.ctx, oracle, outcome)
	require.NoError(e.t, err)
}

func (e *testEnv) balance(token, who common.Address) *uint256.Int {
	e.t.Helper()
	b, err := e.vault.BalanceOf(e.ctx, token, who)
	require.NoError(e.t, err)
	return b
}

func power(t *testing.T, units uint64, rateBps, days uint32) *uint256.Int {
	t.Helper()
	p, err := market.BettingPower(market.Units(units), rateBps, days)
	require.NoError(t, err)
	return p
}

func add(xs ...*uint256.Int) *uint256.Int {
	out := new(uint256.Int)
	for _, x := range xs {
		out.Add(out, x)
	}
	return out
}

func mulDiv(x, y, z *uint256.Int) *uint256.Int {
	out, _ := new(uint256.Int).MulDivOverflow(x, y, z)
	return out
}

var (
	errJournalDown = errors.New("journal unavailable")
	errVaultDown   = errors.New("vault unavailable")
)

// faults injeta falhas no journal (por kind) e no vault (por memo) vistos pelo market.
// As curvas usam o vault direto e não passam por aqui.
type faults struct {
	mu        sync.Mutex
	appends   map[string]int
	transfers map[string]int
}

func (f *faults) failAppend(kind string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends[kind] = times
}

func (f *faults) failTransfer(memo string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers[memo] = times
}

func (f *faults) take(m map[string]int, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m[key] == 0 {
		return false
	}
	m[key]--
	return true
}

type faultyJournal struct {
	*journal.Memory
	f *faults
}

func (j faultyJournal) Append(ctx context.Context, mkt common.Address, seq uint64, ev market.Event) error {
	if j.f.take(j.f.appends, ev.Kind()) {
		return errJournalDown
	}
	return j.Memory.Append(ctx, mkt, seq, ev)
}

type faultyVault struct {
	*repo.Memory
	f *faults
}

func (v faultyVault) TransferOnce(ctx context.Context, key string, moves ...market.Movement) (bool, error) {
	if len(moves) > 0 && v.f.take(v.f.transfers, moves[0].Memo) {
		return false, errVaultDown
	}
	return v.Memory.TransferOnce(ctx, key, moves...)
}

// flakySource falha os próximos splits/redeems antes de chegar na curva
type flakySource struct {
	*curve.Curve
	mu      sync.Mutex
	redeems int
	splits  int
}

var errSourceDown = errors.New("yield source timeout")

func (s *flakySource) fail(counter *int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *counter == 0 {
		return false
	}
	*counter--
	return true
}

func (s *flakySource) Split(ctx context.Context, key string, custody common.Address, amount *uint256.Int, days uint32) (*uint256.Int, *uint256.Int, error) {
	if s.fail(&s.splits) {
		return nil, nil, errSourceDown
	}
	return s.Curve.Split(ctx, key, custody, amount, days)
}

func (s *flakySource) Redeem(ctx context.Context, key string, custody common.Address, pt, yt *uint256.Int) (*uint256.Int, error) {
	if s.fail(&s.redeems) {
		return nil, errSourceDown
	}
	return s.Curve.Redeem(ctx, key, custody, pt, yt)
}
