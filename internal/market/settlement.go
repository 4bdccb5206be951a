package market

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"
)

// entitlement calcula PT/YT devidos a uma posição, sem efeitos colaterais.
//
// Todo lote devolve o PT do seu binding. Vencedores ficam também com o YT
// dos próprios lotes e recebem, para cada binding do pool perdedor,
// floor(yieldPerdedor * power / powerVencedor). O floor garante que a soma
// distribuída nunca passa do que os perdedores entregaram; o resto fica na custódia.
func entitlement(s *State, pos *Position) (*Payout, error) {
	outcome := s.Params.Outcome
	won := pos.Side == outcome
	out := &Payout{Won: won}

	yield := make(map[uint32]*uint256.Int)
	addYield := func(days uint32, v *uint256.Int) {
		if v.IsZero() {
			return
		}
		cur, ok := yield[days]
		if !ok {
			cur = new(uint256.Int)
			yield[days] = cur
		}
		cur.Add(cur, v)
	}

	for _, days := range sortedKeys(pos.Lots) {
		lot := pos.Lots[days]
		b, ok := s.Registry.Get(days)
		if !ok {
			return nil, fmt.Errorf("%w: lot bound to %d days", ErrUnknownDuration, days)
		}
		if !lot.PrincipalClaim.IsZero() {
			out.Principal = append(out.Principal, InstrumentAmount{
				BindingDays: days,
				Token:       b.PrincipalToken,
				Amount:      lot.PrincipalClaim.Clone(),
			})
		}
		if won {
			addYield(days, lot.YieldClaim)
		}
	}

	if won {
		winners := s.Ledger.pools[outcome]
		losers := s.Ledger.pools[outcome.Opposite()]
		for _, days := range sortedKeys(losers.Yield) {
			addYield(days, proRata(losers.Yield[days], pos.Power, winners.Power))
		}
	}

	for _, days := range sortedKeys(yield) {
		b, ok := s.Registry.Get(days)
		if !ok {
			return nil, fmt.Errorf("%w: yield bound to %d days", ErrUnknownDuration, days)
		}
		out.Yield = append(out.Yield, InstrumentAmount{BindingDays: days, Token: b.YieldToken, Amount: yield[days]})
	}
	return out, nil
}

// redeemable agrupa PT e YT por binding para o resgate em CashMode
func (p *Payout) redeemable() map[uint32][2]*uint256.Int {
	out := make(map[uint32][2]*uint256.Int)
	get := func(days uint32) [2]*uint256.Int {
		v, ok := out[days]
		if !ok {
			v = [2]*uint256.Int{new(uint256.Int), new(uint256.Int)}
			out[days] = v
		}
		return v
	}
	for _, a := range p.Principal {
		v := get(a.BindingDays)
		v[0].Add(v[0], a.Amount)
	}
	for _, a := range p.Yield {
		v := get(a.BindingDays)
		v[1].Add(v[1], a.Amount)
	}
	return out
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
