package curve

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/hyper-market/internal/asset-vault/repo"
	"github.com/radieske/hyper-market/internal/market"
)

var (
	usd     = common.HexToAddress("0x0000000000000000000000000000000000005d51")
	custody = common.HexToAddress("0x000000000000000000000000000000000000c057")
)

func newCurve(t *testing.T) (*Curve, *repo.Memory) {
	t.Helper()
	v := repo.NewMemory()
	return Named("USDY-30D", usd, 500, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), v), v
}

func TestNamed_DeterministicAddresses(t *testing.T) {
	a, _ := newCurve(t)
	b, _ := newCurve(t)
	assert.Equal(t, a.Ref, b.Ref)
	assert.Equal(t, NameAddress("PT-USDY-30D"), a.Principal)
	assert.NotEqual(t, a.Principal, a.Yield)
	assert.NotEqual(t, a.Ref, Named("USDY-90D", usd, 500, time.Time{}, nil).Ref)
}

func TestSplitAndRedeem(t *testing.T) {
	ctx := context.Background()
	c, v := newCurve(t)
	require.NoError(t, v.Mint(ctx, usd, custody, market.Units(1000)))

	rate, err := c.QuoteRate(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, uint32(500), rate)

	ptAmt, ytAmt, err := c.Split(ctx, "d1/split", custody, market.Units(1000), 30)
	require.NoError(t, err)
	want, _ := market.BettingPower(market.Units(1000), 500, 30)
	assert.Equal(t, market.Units(1000), ptAmt)
	assert.Equal(t, want, ytAmt)

	bal, _ := v.BalanceOf(ctx, usd, custody)
	assert.True(t, bal.IsZero())
	bal, _ = v.BalanceOf(ctx, c.Yield, custody)
	assert.Equal(t, want, bal)

	out, err := c.Redeem(ctx, "c1/redeem", custody, ptAmt, ytAmt)
	require.NoError(t, err)
	assert.Equal(t, new(uint256.Int).Add(ptAmt, ytAmt), out)
	bal, _ = v.BalanceOf(ctx, usd, custody)
	assert.Equal(t, out, bal)
	bal, _ = v.BalanceOf(ctx, c.Principal, custody)
	assert.True(t, bal.IsZero())
}

func TestSplit_Rejections(t *testing.T) {
	ctx := context.Background()
	c, _ := newCurve(t)

	_, err := c.QuoteRate(ctx, 0)
	require.ErrorIs(t, err, market.ErrInvalidTimeLock)

	_, _, err = c.Split(ctx, "d2/split", custody, market.Units(0), 30)
	require.ErrorIs(t, err, market.ErrInvalidAmount)

	// custódia sem saldo
	_, _, err = c.Split(ctx, "d3/split", custody, market.Units(1), 30)
	require.ErrorIs(t, err, market.ErrInsufficientFunds)
}

func TestSplitAndRedeem_RepeatedKey(t *testing.T) {
	ctx := context.Background()
	c, v := newCurve(t)
	require.NoError(t, v.Mint(ctx, usd, custody, market.Units(2000)))

	pt1, yt1, err := c.Split(ctx, "d1/split", custody, market.Units(1000), 30)
	require.NoError(t, err)
	pt2, yt2, err := c.Split(ctx, "d1/split", custody, market.Units(1000), 30)
	require.NoError(t, err)
	assert.Equal(t, pt1, pt2)
	assert.Equal(t, yt1, yt2)

	// só um split queimou o ativo
	bal, _ := v.BalanceOf(ctx, usd, custody)
	assert.Equal(t, market.Units(1000), bal)
	bal, _ = v.BalanceOf(ctx, c.Principal, custody)
	assert.Equal(t, market.Units(1000), bal)

	out1, err := c.Redeem(ctx, "c1/redeem", custody, pt1, yt1)
	require.NoError(t, err)
	out2, err := c.Redeem(ctx, "c1/redeem", custody, pt1, yt1)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
	bal, _ = v.BalanceOf(ctx, usd, custody)
	assert.Equal(t, new(uint256.Int).Add(market.Units(1000), out1), bal)
}

func TestRedeem_NothingToRedeem(t *testing.T) {
	c, _ := newCurve(t)
	out, err := c.Redeem(context.Background(), "c2/redeem", custody, nil, nil)
	require.NoError(t, err)
	assert.True(t, out.IsZero())
}

func TestParseTerms(t *testing.T) {
	terms, err := ParseTerms(" 90:550, 30:500 ,")
	require.NoError(t, err)
	assert.Equal(t, []Term{{Days: 30, RateBps: 500}, {Days: 90, RateBps: 550}}, terms)
	assert.Equal(t, "USDY-90D", terms[1].Name("USDY"))

	for _, bad := range []string{"30", "0:500", "x:500", "30:y", "30:500,30:600"} {
		_, err := ParseTerms(bad)
		assert.Error(t, err, bad)
	}

	terms, err = ParseTerms("")
	require.NoError(t, err)
	assert.Empty(t, terms)
}
