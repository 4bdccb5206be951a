package market

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger guarda uma Position por depositante e os agregados por lado
type Ledger struct {
	positions map[common.Address]*Position
	pools     map[Side]*Pool
}

func newLedger() *Ledger {
	return &Ledger{
		positions: make(map[common.Address]*Position),
		pools:     map[Side]*Pool{SideA: newPool(), SideB: newPool()},
	}
}

func (l *Ledger) clone() *Ledger {
	out := &Ledger{
		positions: make(map[common.Address]*Position, len(l.positions)),
		pools:     make(map[Side]*Pool, len(l.pools)),
	}
	for k, p := range l.positions {
		out.positions[k] = p.clone()
	}
	for s, p := range l.pools {
		out.pools[s] = p.clone()
	}
	return out
}

// checkSide impede exposição aos dois lados (hedge interno)
func (l *Ledger) checkSide(depositor common.Address, side Side) error {
	if p, ok := l.positions[depositor]; ok && p.Side != SideNone && p.Side != side {
		return fmt.Errorf("%w: position is on side %s", ErrCannotHedge, p.Side)
	}
	return nil
}

// upsert inicializa a posição explicitamente no primeiro toque e acumula o lote
func (l *Ledger) upsert(d Deposited) error {
	if !d.Side.Valid() {
		return ErrInvalidSide
	}
	if err := l.checkSide(d.Depositor, d.Side); err != nil {
		return err
	}
	pos, ok := l.positions[d.Depositor]
	if !ok {
		pos = newPosition(d.Depositor, d.Side)
		l.positions[d.Depositor] = pos
	}
	lot, ok := pos.Lots[d.BindingDays]
	if !ok {
		lot = &Lot{
			BindingDays:    d.BindingDays,
			Principal:      new(uint256.Int),
			PrincipalClaim: new(uint256.Int),
			YieldClaim:     new(uint256.Int),
			Power:          new(uint256.Int),
		}
		pos.Lots[d.BindingDays] = lot
	}
	lot.Principal.Add(lot.Principal, d.Amount)
	lot.PrincipalClaim.Add(lot.PrincipalClaim, d.PrincipalClaim)
	lot.YieldClaim.Add(lot.YieldClaim, d.YieldClaim)
	lot.Power.Add(lot.Power, d.Power)

	pos.Principal.Add(pos.Principal, d.Amount)
	pos.Power.Add(pos.Power, d.Power)

	pool := l.pools[d.Side]
	pool.Principal.Add(pool.Principal, d.Amount)
	pool.Power.Add(pool.Power, d.Power)
	y, ok := pool.Yield[d.BindingDays]
	if !ok {
		y = new(uint256.Int)
		pool.Yield[d.BindingDays] = y
	}
	y.Add(y, d.YieldClaim)
	return nil
}

func (l *Ledger) checkClaim(depositor common.Address) (*Position, error) {
	pos, ok := l.positions[depositor]
	if !ok || pos.Principal.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrNoPosition, depositor.Hex())
	}
	if pos.Claimed {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClaimed, depositor.Hex())
	}
	return pos, nil
}

// markClaimed fecha a posição para novos claims; o payout definitivo vem em setPayout
func (l *Ledger) markClaimed(depositor common.Address, p *Payout) error {
	pos, err := l.checkClaim(depositor)
	if err != nil {
		return err
	}
	pos.Claimed = true
	pos.Payout = p.clone()
	return nil
}

func (l *Ledger) setPayout(depositor common.Address, p *Payout) error {
	pos, ok := l.positions[depositor]
	if !ok || !pos.Claimed {
		return fmt.Errorf("%w: %s", ErrNoPosition, depositor.Hex())
	}
	pos.Payout = p.clone()
	return nil
}

func (l *Ledger) Position(depositor common.Address) (*Position, bool) {
	p, ok := l.positions[depositor]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

func (l *Ledger) Pool(side Side) *Pool {
	p, ok := l.pools[side]
	if !ok {
		return newPool()
	}
	return p.clone()
}

// Positions devolve cópias ordenadas por endereço
func (l *Ledger) Positions() []*Position {
	out := make([]*Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Depositor.Cmp(out[j].Depositor) < 0 })
	return out
}
