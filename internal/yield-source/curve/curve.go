package curve

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/radieske/hyper-market/internal/market"
)

// Curve é uma fonte de yield com taxa anual fixa, liquidada sobre um Vault.
// Split queima o ativo da custódia e cunha PT (1:1) e YT (yield esperado no prazo);
// Redeem faz o caminho inverso pagando PT + YT no ativo.
// Os valores são função só dos argumentos, então repetir uma key devolve o mesmo resultado.
type Curve struct {
	Ref        common.Address
	Underlying common.Address
	Principal  common.Address
	Yield      common.Address
	RateBps    uint32
	Maturity   time.Time
	Vault      market.Vault
}

// Named cria uma curva com endereços determinísticos derivados do nome (ex: "USDY-30D")
func Named(name string, underlying common.Address, rateBps uint32, maturity time.Time, vault market.Vault) *Curve {
	return &Curve{
		Ref:        NameAddress("market:" + name),
		Underlying: underlying,
		Principal:  NameAddress("PT-" + name),
		Yield:      NameAddress("YT-" + name),
		RateBps:    rateBps,
		Maturity:   maturity,
		Vault:      vault,
	}
}

// NameAddress = últimos 20 bytes de keccak256(name)
func NameAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(name)))
}

func (c *Curve) Instruments(context.Context) (common.Address, common.Address, error) {
	return c.Principal, c.Yield, nil
}

func (c *Curve) QuoteRate(_ context.Context, days uint32) (uint32, error) {
	if days == 0 {
		return 0, fmt.Errorf("%w: zero days", market.ErrInvalidTimeLock)
	}
	return c.RateBps, nil
}

// ExpectedYield é o YT cunhado para amount travado por days
func (c *Curve) ExpectedYield(amount *uint256.Int, days uint32) (*uint256.Int, error) {
	return market.BettingPower(amount, c.RateBps, days)
}

// batchKey separa as keys desta curva das de outras fontes no mesmo vault
func (c *Curve) batchKey(key string) string { return c.Ref.Hex() + ":" + key }

func (c *Curve) Split(ctx context.Context, key string, custody common.Address, amount *uint256.Int, days uint32) (*uint256.Int, *uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, nil, market.ErrInvalidAmount
	}
	yt, err := c.ExpectedYield(amount, days)
	if err != nil {
		return nil, nil, err
	}
	pt := amount.Clone()
	if _, err := c.Vault.TransferOnce(ctx, c.batchKey(key),
		market.Movement{Token: c.Underlying, From: custody, Amount: amount, Memo: "split-burn"},
		market.Movement{Token: c.Principal, To: custody, Amount: pt, Memo: "split-pt"},
		market.Movement{Token: c.Yield, To: custody, Amount: yt, Memo: "split-yt"},
	); err != nil {
		return nil, nil, err
	}
	return pt, yt, nil
}

func (c *Curve) Redeem(ctx context.Context, key string, custody common.Address, pt, yt *uint256.Int) (*uint256.Int, error) {
	if pt == nil {
		pt = new(uint256.Int)
	}
	if yt == nil {
		yt = new(uint256.Int)
	}
	out := new(uint256.Int).Add(pt, yt)
	if out.IsZero() {
		return out, nil
	}
	if _, err := c.Vault.TransferOnce(ctx, c.batchKey(key),
		market.Movement{Token: c.Principal, From: custody, Amount: pt, Memo: "redeem-pt"},
		market.Movement{Token: c.Yield, From: custody, Amount: yt, Memo: "redeem-yt"},
		market.Movement{Token: c.Underlying, To: custody, Amount: out, Memo: "redeem"},
	); err != nil {
		return nil, err
	}
	return out, nil
}

var _ market.YieldSource = (*Curve)(nil)
