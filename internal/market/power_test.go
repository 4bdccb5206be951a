package market_test

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/hyper-market/internal/market"
)

func TestBettingPower_Table(t *testing.T) {
	cases := []struct {
		name  string
		units uint64
		rate  uint32
		days  uint32
		want  string
	}{
		// 1000 * 5% * 365/365 = 50
		{"one year", 1000, 500, 365, "50000000000000000000"},
		// 1000 * 5% * 30/365 = 4.109589041095890410...
		{"thirty days", 1000, 500, 30, "4109589041095890410"},
		{"zero amount", 0, 500, 30, "0"},
		{"zero rate", 1000, 0, 30, "0"},
		{"zero days", 1000, 500, 0, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := market.BettingPower(market.Units(tc.units), tc.rate, tc.days)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Dec())
		})
	}
}

func TestBettingPower_SingleTruncation(t *testing.T) {
	// 1 wei * 1bps * 1 dia trunca para zero numa divisão só
	got, err := market.BettingPower(uint256.NewInt(1), 1, 1)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	// 3650000 wei * 1bps * 1 dia = exatamente 1
	got, err = market.BettingPower(uint256.NewInt(3_650_000), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Uint64())
}

func TestBettingPower_Overflow(t *testing.T) {
	top := new(uint256.Int).SetAllOne()
	_, err := market.BettingPower(top, math.MaxUint32, math.MaxUint32)
	require.ErrorIs(t, err, market.ErrPowerOverflow)

	// o intermediário passa de 256 bits mas o resultado cabe
	got, err := market.BettingPower(top, 1, 1)
	require.NoError(t, err)
	assert.False(t, got.IsZero())
}

func TestBettingPower_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 300
	properties := gopter.NewProperties(params)

	pw := func(units uint64, rate, days uint32) *uint256.Int {
		p, err := market.BettingPower(market.Units(units), rate, days)
		if err != nil {
			panic(err)
		}
		return p
	}
	units := gen.UInt64Range(1, 1_000_000_000)
	rates := gen.UInt32Range(1, 5_000)
	days := gen.UInt32Range(1, 3_650)
	delta := gen.UInt32Range(1, 1_000)

	properties.Property("strictly increasing in amount", prop.ForAll(
		func(u uint64, r, d, k uint32) bool {
			return pw(u, r, d).Lt(pw(u+uint64(k), r, d))
		},
		units, rates, days, delta,
	))
	properties.Property("strictly increasing in rate", prop.ForAll(
		func(u uint64, r, d, k uint32) bool {
			return pw(u, r, d).Lt(pw(u, r+k, d))
		},
		units, rates, days, delta,
	))
	properties.Property("strictly increasing in days", prop.ForAll(
		func(u uint64, r, d, k uint32) bool {
			return pw(u, r, d).Lt(pw(u, r, d+k))
		},
		units, rates, days, delta,
	))
	properties.Property("zero amount has zero power", prop.ForAll(
		func(r, d uint32) bool {
			p, err := market.BettingPower(new(uint256.Int), r, d)
			return err == nil && p.IsZero()
		},
		rates, days,
	))
	properties.Property("never exceeds amount*rate*days/3650000 nor undershoots it by one", prop.ForAll(
		func(u uint64, r, d uint32) bool {
			amount := market.Units(u)
			p := pw(u, r, d)
			num := new(uint256.Int).Mul(amount, uint256.NewInt(uint64(r)*uint64(d)))
			lo := new(uint256.Int).Mul(p, uint256.NewInt(market.BpsDenominator*market.DaysPerYear))
			hi := new(uint256.Int).Add(lo, uint256.NewInt(market.BpsDenominator*market.DaysPerYear))
			return !num.Lt(lo) && num.Lt(hi)
		},
		units, rates, days,
	))

	properties.TestingRun(t)
}
