package dto

import (
	"strconv"
	"time"

	"github.com/radieske/hyper-market/internal/market"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

type BindingView struct {
	Days           uint32    `json:"days"`
	PrincipalToken string    `json:"principal_token"`
	YieldToken     string    `json:"yield_token"`
	Source         string    `json:"source"`
	Maturity       time.Time `json:"maturity"`
}

type PoolView struct {
	Principal string            `json:"principal"`
	Power     string            `json:"power"`
	Yield     map[string]string `json:"yield"` // dias -> YT
}

// MarketView é o snapshot público de um market (também o que vai para o cache)
type MarketView struct {
	Address        string              `json:"address"`
	Seq            uint64              `json:"seq"`
	Asset          string              `json:"asset"`
	Owner          string              `json:"owner"`
	Oracle         string              `json:"oracle"`
	MinLockDays    uint32              `json:"min_lock_days"`
	MaxLockDays    uint32              `json:"max_lock_days"`
	ResolutionTime time.Time           `json:"resolution_time"`
	CreatedAt      time.Time           `json:"created_at"`
	Resolved       bool                `json:"resolved"`
	Outcome        string              `json:"outcome"`
	Bindings       []BindingView       `json:"bindings"`
	DefaultDays    *uint32             `json:"default_binding_days,omitempty"`
	Pools          map[string]PoolView `json:"pools"`
	Depositors     int                 `json:"depositors"`
	PendingIntents int                 `json:"pending_intents"`
}

type LotView struct {
	BindingDays    uint32 `json:"binding_days"`
	Principal      string `json:"principal"`
	PrincipalClaim string `json:"principal_claim"`
	YieldClaim     string `json:"yield_claim"`
	Power          string `json:"power"`
}

type InstrumentView struct {
	BindingDays uint32 `json:"binding_days"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
}

type PayoutView struct {
	Mode      string           `json:"mode"`
	Won       bool             `json:"won"`
	Principal []InstrumentView `json:"principal"`
	Yield     []InstrumentView `json:"yield"`
	Cash      string           `json:"cash,omitempty"`
}

type PositionView struct {
	Market    string      `json:"market"`
	Depositor string      `json:"depositor"`
	Side      string      `json:"side"`
	Principal string      `json:"principal"`
	Power     string      `json:"power"`
	Claimed   bool        `json:"claimed"`
	Lots      []LotView   `json:"lots"`
	Payout    *PayoutView `json:"payout,omitempty"`
}

type DepositResponse struct {
	Market      string `json:"market"`
	Depositor   string `json:"depositor"`
	Amount      string `json:"amount"`
	LockDays    uint32 `json:"lock_days"`
	BindingDays uint32 `json:"binding_days"`
	Side        string `json:"side"`
	RateBps     uint32 `json:"rate_bps"`
	Power       string `json:"power"`
}

type ResolveResponse struct {
	Market  string `json:"market"`
	Outcome string `json:"outcome"`
}

func FromBinding(b market.Binding) BindingView {
	return BindingView{
		Days:           b.Days,
		PrincipalToken: b.PrincipalToken.Hex(),
		YieldToken:     b.YieldToken.Hex(),
		Source:         b.Source.Hex(),
		Maturity:       b.Maturity,
	}
}

func FromPool(p *market.Pool) PoolView {
	out := PoolView{Principal: p.Principal.Dec(), Power: p.Power.Dec(), Yield: make(map[string]string, len(p.Yield))}
	for days, v := range p.Yield {
		out.Yield[strconv.FormatUint(uint64(days), 10)] = v.Dec()
	}
	return out
}

// FromState monta a view a partir de um snapshot do engine
func FromState(s *market.State) MarketView {
	p := s.Params
	v := MarketView{
		Address:        p.Address.Hex(),
		Seq:            s.Seq,
		Asset:          p.Asset.Hex(),
		Owner:          p.Owner.Hex(),
		Oracle:         p.Oracle.Hex(),
		MinLockDays:    p.MinLockDays,
		MaxLockDays:    p.MaxLockDays,
		ResolutionTime: p.ResolutionTime,
		CreatedAt:      p.CreatedAt,
		Resolved:       p.Resolved,
		Outcome:        p.Outcome.String(),
		Bindings:       []BindingView{},
		Pools: map[string]PoolView{
			market.SideA.String(): FromPool(s.Ledger.Pool(market.SideA)),
			market.SideB.String(): FromPool(s.Ledger.Pool(market.SideB)),
		},
		Depositors:     len(s.Ledger.Positions()),
		PendingIntents: len(s.Pending),
	}
	for _, b := range s.Registry.All() {
		v.Bindings = append(v.Bindings, FromBinding(b))
	}
	if b, ok := s.Registry.Default(); ok {
		days := b.Days
		v.DefaultDays = &days
	}
	return v
}

func fromInstruments(in []market.InstrumentAmount) []InstrumentView {
	out := make([]InstrumentView, 0, len(in))
	for _, a := range in {
		out = append(out, InstrumentView{BindingDays: a.BindingDays, Token: a.Token.Hex(), Amount: a.Amount.Dec()})
	}
	return out
}

func FromPayout(p *market.Payout) *PayoutView {
	if p == nil {
		return nil
	}
	out := &PayoutView{
		Mode:      p.Mode.String(),
		Won:       p.Won,
		Principal: fromInstruments(p.Principal),
		Yield:     fromInstruments(p.Yield),
	}
	if p.Cash != nil {
		out.Cash = p.Cash.Dec()
	}
	return out
}

func FromPosition(mkt string, p *market.Position) PositionView {
	out := PositionView{
		Market:    mkt,
		Depositor: p.Depositor.Hex(),
		Side:      p.Side.String(),
		Principal: p.Principal.Dec(),
		Power:     p.Power.Dec(),
		Claimed:   p.Claimed,
		Lots:      []LotView{},
		Payout:    FromPayout(p.Payout),
	}
	for _, l := range p.SortedLots() {
		out.Lots = append(out.Lots, LotView{
			BindingDays:    l.BindingDays,
			Principal:      l.Principal.Dec(),
			PrincipalClaim: l.PrincipalClaim.Dec(),
			YieldClaim:     l.YieldClaim.Dec(),
			Power:          l.Power.Dec(),
		})
	}
	return out
}

func FromDeposit(mkt string, d market.Deposited) DepositResponse {
	return DepositResponse{
		Market:      mkt,
		Depositor:   d.Depositor.Hex(),
		Amount:      d.Amount.Dec(),
		LockDays:    d.LockDays,
		BindingDays: d.BindingDays,
		Side:        d.Side.String(),
		RateBps:     d.RateBps,
		Power:       d.Power.Dec(),
	}
}
