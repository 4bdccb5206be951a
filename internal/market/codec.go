package market

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/radieske/hyper-market/pkg/contracts/events"
)

// EncodeEvent serializa o evento no formato de pkg/contracts/events
func EncodeEvent(ev Event) ([]byte, error) {
	var wire any
	switch e := ev.(type) {
	case MarketCreated:
		p := e.Params
		wire = events.MarketCreated{
			Market:         p.Address.Hex(),
			Asset:          p.Asset.Hex(),
			Owner:          p.Owner.Hex(),
			Oracle:         p.Oracle.Hex(),
			MinLockDays:    p.MinLockDays,
			MaxLockDays:    p.MaxLockDays,
			ResolutionTime: p.ResolutionTime,
			CreatedAt:      p.CreatedAt,
		}
	case BindingRegistered:
		b := e.Binding
		wire = events.BindingRegistered{
			Days:           b.Days,
			PrincipalToken: b.PrincipalToken.Hex(),
			YieldToken:     b.YieldToken.Hex(),
			Source:         b.Source.Hex(),
			Maturity:       b.Maturity,
		}
	case DefaultBindingSet:
		wire = events.DefaultBindingSet{Days: e.Days}
	case Deposited:
		wire = events.Deposited{
			Depositor:      e.Depositor.Hex(),
			Amount:         e.Amount.Dec(),
			LockDays:       e.LockDays,
			BindingDays:    e.BindingDays,
			Side:           e.Side.String(),
			RateBps:        e.RateBps,
			Power:          e.Power.Dec(),
			PrincipalClaim: e.PrincipalClaim.Dec(),
			YieldClaim:     e.YieldClaim.Dec(),
		}
	case Resolved:
		wire = events.Resolved{Outcome: e.Outcome.String(), Oracle: e.Oracle.Hex()}
	case Claimed:
		wire = wirePayout(e.Depositor, e.Payout)
	case DepositStarted:
		wire = events.DepositStarted{
			Depositor:   e.Depositor.Hex(),
			Amount:      e.Amount.Dec(),
			LockDays:    e.LockDays,
			BindingDays: e.BindingDays,
			Side:        e.Side.String(),
			RateBps:     e.RateBps,
			Power:       e.Power.Dec(),
		}
	case DepositAborted:
		wire = events.DepositAborted{Depositor: e.Depositor.Hex(), Reason: e.Reason}
	case ClaimStarted:
		wire = events.ClaimStarted(wirePayout(e.Depositor, e.Payout))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	return json.Marshal(wire)
}

// DecodeEvent é o inverso de EncodeEvent
func DecodeEvent(kind string, payload []byte) (Event, error) {
	switch kind {
	case KindMarketCreated:
		var w events.MarketCreated
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		return MarketCreated{Params: Params{
			Address:        common.HexToAddress(w.Market),
			Asset:          common.HexToAddress(w.Asset),
			Owner:          common.HexToAddress(w.Owner),
			Oracle:         common.HexToAddress(w.Oracle),
			MinLockDays:    w.MinLockDays,
			MaxLockDays:    w.MaxLockDays,
			ResolutionTime: w.ResolutionTime.UTC(),
			CreatedAt:      w.CreatedAt.UTC(),
		}}, nil
	case KindBindingRegistered:
		var w events.BindingRegistered
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		return BindingRegistered{Binding: Binding{
			Days:           w.Days,
			PrincipalToken: common.HexToAddress(w.PrincipalToken),
			YieldToken:     common.HexToAddress(w.YieldToken),
			Source:         common.HexToAddress(w.Source),
			Maturity:       w.Maturity.UTC(),
		}}, nil
	case KindDefaultBindingSet:
		var w events.DefaultBindingSet
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		return DefaultBindingSet{Days: w.Days}, nil
	case KindDeposited:
		var w events.Deposited
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		side, err := ParseSide(w.Side)
		if err != nil {
			return nil, err
		}
		ev := Deposited{
			Depositor:   common.HexToAddress(w.Depositor),
			LockDays:    w.LockDays,
			BindingDays: w.BindingDays,
			Side:        side,
			RateBps:     w.RateBps,
		}
		for _, f := range []struct {
			dst **uint256.Int
			src string
		}{
			{&ev.Amount, w.Amount},
			{&ev.Power, w.Power},
			{&ev.PrincipalClaim, w.PrincipalClaim},
			{&ev.YieldClaim, w.YieldClaim},
		} {
			if *f.dst, err = ParseAmount(f.src); err != nil {
				return nil, err
			}
		}
		return ev, nil
	case KindResolved:
		var w events.Resolved
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		side, err := ParseSide(w.Outcome)
		if err != nil {
			return nil, err
		}
		return Resolved{Outcome: side, Oracle: common.HexToAddress(w.Oracle)}, nil
	case KindClaimed:
		var w events.Claimed
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		p, err := parsePayout(w)
		if err != nil {
			return nil, err
		}
		return Claimed{Depositor: common.HexToAddress(w.Depositor), Payout: p}, nil
	case KindDepositStarted:
		var w events.DepositStarted
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		side, err := ParseSide(w.Side)
		if err != nil {
			return nil, err
		}
		ev := DepositStarted{
			Depositor:   common.HexToAddress(w.Depositor),
			LockDays:    w.LockDays,
			BindingDays: w.BindingDays,
			Side:        side,
			RateBps:     w.RateBps,
		}
		if ev.Amount, err = ParseAmount(w.Amount); err != nil {
			return nil, err
		}
		if ev.Power, err = ParseAmount(w.Power); err != nil {
			return nil, err
		}
		return ev, nil
	case KindDepositAborted:
		var w events.DepositAborted
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		return DepositAborted{Depositor: common.HexToAddress(w.Depositor), Reason: w.Reason}, nil
	case KindClaimStarted:
		var w events.ClaimStarted
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		p, err := parsePayout(events.Claimed(w))
		if err != nil {
			return nil, err
		}
		return ClaimStarted{Depositor: common.HexToAddress(w.Depositor), Payout: p}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
}

// NewEnvelope monta a mensagem de wire de um evento já sequenciado
func NewEnvelope(market common.Address, rec Record) (events.Envelope, error) {
	payload, err := EncodeEvent(rec.Event)
	if err != nil {
		return events.Envelope{}, err
	}
	return events.Envelope{
		ID:      EnvelopeID(market, rec.Seq).String(),
		Market:  market.Hex(),
		Seq:     rec.Seq,
		Kind:    rec.Event.Kind(),
		At:      rec.At,
		Payload: payload,
	}, nil
}

// FromEnvelope decodifica uma mensagem recebida do tópico
func FromEnvelope(env events.Envelope) (common.Address, Record, error) {
	if !common.IsHexAddress(env.Market) {
		return common.Address{}, Record{}, fmt.Errorf("%w: bad market address %q", ErrInvalidParams, env.Market)
	}
	ev, err := DecodeEvent(env.Kind, env.Payload)
	if err != nil {
		return common.Address{}, Record{}, err
	}
	return common.HexToAddress(env.Market), Record{Seq: env.Seq, At: env.At, Event: ev}, nil
}

func EnvelopeID(market common.Address, seq uint64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(market.Hex()+"/"+strconv.FormatUint(seq, 10)))
}

// ParseAmount lê um inteiro decimal não negativo de até 256 bits
func ParseAmount(v string) (*uint256.Int, error) {
	out, err := uint256.FromDecimal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, v, err)
	}
	return out, nil
}

func wirePayout(depositor common.Address, p *Payout) events.Claimed {
	c := events.Claimed{
		Depositor: depositor.Hex(),
		Mode:      p.Mode.String(),
		Won:       p.Won,
		Principal: wireAmounts(p.Principal),
		Yield:     wireAmounts(p.Yield),
	}
	if p.Cash != nil {
		c.Cash = p.Cash.Dec()
	}
	return c
}

func parsePayout(w events.Claimed) (*Payout, error) {
	mode, err := ParseClaimMode(w.Mode)
	if err != nil {
		return nil, err
	}
	p := &Payout{Mode: mode, Won: w.Won}
	if p.Principal, err = parseAmounts(w.Principal); err != nil {
		return nil, err
	}
	if p.Yield, err = parseAmounts(w.Yield); err != nil {
		return nil, err
	}
	if w.Cash != "" {
		if p.Cash, err = ParseAmount(w.Cash); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func wireAmounts(in []InstrumentAmount) []events.InstrumentAmount {
	out := make([]events.InstrumentAmount, 0, len(in))
	for _, a := range in {
		out = append(out, events.InstrumentAmount{BindingDays: a.BindingDays, Token: a.Token.Hex(), Amount: a.Amount.Dec()})
	}
	return out
}

func parseAmounts(in []events.InstrumentAmount) ([]InstrumentAmount, error) {
	var out []InstrumentAmount
	for _, a := range in {
		amt, err := ParseAmount(a.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, InstrumentAmount{BindingDays: a.BindingDays, Token: common.HexToAddress(a.Token), Amount: amt})
	}
	return out, nil
}
