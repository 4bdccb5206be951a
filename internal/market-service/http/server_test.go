package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/hyper-market/internal/asset-vault/repo"
	"github.com/radieske/hyper-market/internal/market"
	"github.com/radieske/hyper-market/internal/market-service/dto"
	"github.com/radieske/hyper-market/internal/market-service/journal"
	"github.com/radieske/hyper-market/internal/yield-source/curve"
)

var (
	asset  = common.HexToAddress("0x0000000000000000000000000000000000005d51")
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	oracle = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	epoch  = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

type fakeLocker struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return func() {}, nil
}

type fakeCache struct {
	mu          sync.Mutex
	data        map[common.Address][]byte
	invalidated int
}

func (c *fakeCache) GetSnapshot(_ context.Context, mkt common.Address, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[mkt]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) SetSnapshot(_ context.Context, mkt common.Address, v any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.data[mkt] = b
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, mkt common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, mkt)
	c.invalidated++
	return nil
}

type fixture struct {
	t      *testing.T
	now    time.Time
	vault  *repo.Memory
	curve  *curve.Curve
	api    *API
	locker *fakeLocker
	cache  *fakeCache
	h      http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, now: epoch, vault: repo.NewMemory(), locker: &fakeLocker{}, cache: &fakeCache{data: map[common.Address][]byte{}}}
	f.curve = curve.Named("USDY-30D", asset, 500, epoch.AddDate(0, 0, 30), f.vault)
	deps := market.Deps{
		Sources: market.SourceMap{f.curve.Ref: f.curve},
		Vault:   f.vault,
		Journal: journal.NewMemory(),
		Clock:   func() time.Time { return f.now },
	}
	f.api = &API{
		Log:     zap.NewNop(),
		Factory: market.NewFactory(common.HexToAddress("0xfac7"), deps),
		Asset:   asset,
		Cache:   f.cache,
		Locker:  f.locker,
	}
	f.h = f.api.Router()
	return f
}

func (f *fixture) do(method, path string, who common.Address, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if who != (common.Address{}) {
		req.Header.Set(CallerHeader, who.Hex())
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// createMarket cria um market [30, 365] com binding de 30 dias registrado
func (f *fixture) createMarket() string {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/markets", owner, fmt.Sprintf(
		`{"oracle":%q,"min_lock_days":30,"max_lock_days":365,"resolution_time":%q}`,
		oracle.Hex(), epoch.AddDate(0, 0, 10).Format(time.RFC3339)))
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	mv := decodeBody[dto.MarketView](f.t, rec)

	rec = f.do(http.MethodPost, "/markets/"+mv.Address+"/bindings", owner, fmt.Sprintf(
		`{"days":30,"source":%q,"maturity":%q}`, f.curve.Ref.Hex(), f.curve.Maturity.Format(time.RFC3339)))
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	return mv.Address
}

func (f *fixture) fund(who common.Address, mkt string, units uint64) {
	f.t.Helper()
	ctx := context.Background()
	require.NoError(f.t, f.vault.Mint(ctx, asset, who, market.Units(units)))
	require.NoError(f.t, f.vault.Approve(ctx, asset, who, common.HexToAddress(mkt), market.Units(units)))
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		market.ErrInvalidTimeLock:  http.StatusBadRequest,
		market.ErrNotOracle:        http.StatusForbidden,
		market.ErrTooEarly:         http.StatusConflict,
		market.ErrConcurrentUpdate: http.StatusConflict,
		market.ErrCannotHedge:      http.StatusUnprocessableEntity,
		market.ErrMarketNotFound:   http.StatusNotFound,
		errors.New("db down"):      http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestCreateMarket(t *testing.T) {
	f := newFixture(t)
	addr := f.createMarket()

	rec := f.do(http.MethodGet, "/markets/"+addr+"/", common.Address{}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mv := decodeBody[dto.MarketView](t, rec)
	assert.Equal(t, owner.Hex(), mv.Owner)
	assert.Equal(t, asset.Hex(), mv.Asset)
	assert.Equal(t, uint64(2), mv.Seq)
	require.Len(t, mv.Bindings, 1)
	assert.Equal(t, f.curve.Principal.Hex(), mv.Bindings[0].PrincipalToken)

	assert.Contains(t, f.locker.keys, "factory:"+f.api.Factory.Address().Hex())
	assert.Contains(t, f.locker.keys, "market:"+addr)

	rec = f.do(http.MethodGet, "/markets", common.Address{}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]dto.MarketView](t, rec), 1)
}

func TestCreateMarket_Rejections(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/markets", common.Address{}, `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/markets", owner, `{"oracle":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/markets", owner, fmt.Sprintf(
		`{"oracle":%q,"min_lock_days":30,"max_lock_days":365,"resolution_time":%q}`,
		oracle.Hex(), epoch.Add(-time.Hour).Format(time.RFC3339)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeBody[dto.ErrorResponse](t, rec).Class)
}

func TestDepositResolveClaim(t *testing.T) {
	f := newFixture(t)
	addr := f.createMarket()
	f.fund(alice, addr, 1000)
	f.fund(bob, addr, 800)

	rec := f.do(http.MethodPost, "/markets/"+addr+"/deposits", alice, `{"amount":"1000000000000000000000","lock_days":30,"side":"A"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dep := decodeBody[dto.DepositResponse](t, rec)
	want, _ := market.BettingPower(market.Units(1000), 500, 30)
	assert.Equal(t, want.Dec(), dep.Power)
	assert.Equal(t, uint32(30), dep.BindingDays)

	rec = f.do(http.MethodPost, "/markets/"+addr+"/deposits", bob, `{"amount":"800000000000000000000","lock_days":30,"side":"NO"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// hedge
	rec = f.do(http.MethodPost, "/markets/"+addr+"/deposits", bob, `{"amount":"1","lock_days":30,"side":"A"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invariant", decodeBody[dto.ErrorResponse](t, rec).Class)

	rec = f.do(http.MethodPost, "/markets/"+addr+"/resolve", oracle, `{"outcome":"A"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "too early")

	rec = f.do(http.MethodPost, "/markets/"+addr+"/resolve", alice, `{"outcome":"A"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.now = epoch.AddDate(0, 0, 10)
	rec = f.do(http.MethodPost, "/markets/"+addr+"/resolve", oracle, `{"outcome":"A"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "A", decodeBody[dto.ResolveResponse](t, rec).Outcome)

	rec = f.do(http.MethodPost, "/markets/"+addr+"/claims", alice, `{"mode":"cash"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pv := decodeBody[dto.PayoutView](t, rec)
	assert.True(t, pv.Won)
	assert.Equal(t, "cash", pv.Mode)
	powerB, _ := market.BettingPower(market.Units(800), 500, 30)
	cash := market.Units(1000)
	cash.Add(cash, want)
	cash.Add(cash, powerB)
	assert.Equal(t, cash.Dec(), pv.Cash)

	// modo é obrigatório e só aceita os nomes do wire
	for _, body := range []string{`{}`, `{"mode":"0"}`, `{"mode":"Token"}`} {
		rec = f.do(http.MethodPost, "/markets/"+addr+"/claims", bob, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec = f.do(http.MethodPost, "/markets/"+addr+"/claims", alice, `{"mode":"token"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "already claimed")

	rec = f.do(http.MethodGet, "/markets/"+addr+"/positions/"+alice.Hex(), common.Address{}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	pos := decodeBody[dto.PositionView](t, rec)
	assert.True(t, pos.Claimed)
	require.NotNil(t, pos.Payout)
	require.Len(t, pos.Lots, 1)

	rec = f.do(http.MethodGet, "/markets/"+addr+"/positions", common.Address{}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]dto.PositionView](t, rec), 2)
}

func TestBindings(t *testing.T) {
	f := newFixture(t)
	addr := f.createMarket()

	rec := f.do(http.MethodGet, "/markets/"+addr+"/bindings/default", common.Address{}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPut, "/markets/"+addr+"/bindings/default", alice, `{"days":30}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPut, "/markets/"+addr+"/bindings/default", owner, `{"days":45}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/markets/"+addr+"/bindings/default", owner, `{"days":30}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/markets/"+addr+"/bindings/default", common.Address{}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint32(30), decodeBody[dto.BindingView](t, rec).Days)

	rec = f.do(http.MethodGet, "/markets/"+addr+"/bindings/30", common.Address{}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodGet, "/markets/"+addr+"/bindings/90", common.Address{}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodGet, "/markets/"+addr+"/bindings/abc", common.Address{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/markets/"+addr+"/bindings", owner, fmt.Sprintf(`{"days":30,"source":%q}`, f.curve.Ref.Hex()))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "duplicate")
}

func TestSnapshotCache(t *testing.T) {
	f := newFixture(t)
	addr := f.createMarket()
	a := common.HexToAddress(addr)
	invalidated := f.cache.invalidated

	rec := f.do(http.MethodGet, "/markets/"+addr+"/", common.Address{}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, cached := f.cache.data[a]
	assert.True(t, cached)

	f.fund(alice, addr, 10)
	rec = f.do(http.MethodPost, "/markets/"+addr+"/deposits", alice, `{"amount":"10000000000000000000","lock_days":30,"side":"B"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, cached = f.cache.data[a]
	assert.False(t, cached, "mutations drop the snapshot")
	assert.Equal(t, invalidated+1, f.cache.invalidated)
}

func TestLockFailureIsConflict(t *testing.T) {
	f := newFixture(t)
	addr := f.createMarket()
	f.locker.err = errors.New("lock held")

	rec := f.do(http.MethodPut, "/markets/"+addr+"/bindings/default", owner, `{"days":30}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeBody[dto.ErrorResponse](t, rec).Class)
}

func TestUnknownMarket(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/markets/0x0000000000000000000000000000000000000bad/", common.Address{}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/markets/nope/", common.Address{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
