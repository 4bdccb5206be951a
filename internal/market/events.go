package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	KindMarketCreated     = "market_created"
	KindBindingRegistered = "binding_registered"
	KindDefaultBindingSet = "default_binding_set"
	KindDeposited         = "deposited"
	KindResolved          = "resolved"
	KindClaimed           = "claimed"
	KindDepositStarted    = "deposit_started"
	KindDepositAborted    = "deposit_aborted"
	KindClaimStarted      = "claim_started"
)

// Event é uma transição já validada; apply deve ser determinístico para o replay
type Event interface {
	Kind() string
	apply(s *State) error
}

type MarketCreated struct {
	Params Params
}

type BindingRegistered struct {
	Binding Binding
}

type DefaultBindingSet struct {
	Days uint32
}

type Deposited struct {
	Depositor      common.Address
	Amount         *uint256.Int
	LockDays       uint32
	BindingDays    uint32 // binding efetivo (difere de LockDays em modo bypass)
	Side           Side
	RateBps        uint32
	Power          *uint256.Int
	PrincipalClaim *uint256.Int
	YieldClaim     *uint256.Int
}

// DepositStarted é gravado antes de qualquer movimentação de fundos.
// Deposited ou DepositAborted encerram o intent.
type DepositStarted struct {
	Depositor   common.Address
	Amount      *uint256.Int
	LockDays    uint32
	BindingDays uint32
	Side        Side
	RateBps     uint32
	Power       *uint256.Int
}

// settled monta o Deposited com os instrumentos emitidos pela fonte
func (d DepositStarted) settled(principal, yield *uint256.Int) Deposited {
	return Deposited{
		Depositor:      d.Depositor,
		Amount:         d.Amount.Clone(),
		LockDays:       d.LockDays,
		BindingDays:    d.BindingDays,
		Side:           d.Side,
		RateBps:        d.RateBps,
		Power:          d.Power.Clone(),
		PrincipalClaim: principal.Clone(),
		YieldClaim:     yield.Clone(),
	}
}

func (d DepositStarted) clone() DepositStarted {
	d.Amount = d.Amount.Clone()
	d.Power = d.Power.Clone()
	return d
}

// DepositAborted encerra um depósito sem posição: nada ficou na custódia
type DepositAborted struct {
	Depositor common.Address
	Reason    string
}

type Resolved struct {
	Outcome Side
	Oracle  common.Address
}

// ClaimStarted marca a posição como liquidada antes de pagar; Claimed confirma o pagamento
type ClaimStarted struct {
	Depositor common.Address
	Payout    *Payout
}

type Claimed struct {
	Depositor common.Address
	Payout    *Payout
}

func (MarketCreated) Kind() string     { return KindMarketCreated }
func (BindingRegistered) Kind() string { return KindBindingRegistered }
func (DefaultBindingSet) Kind() string { return KindDefaultBindingSet }
func (Deposited) Kind() string         { return KindDeposited }
func (Resolved) Kind() string          { return KindResolved }
func (Claimed) Kind() string           { return KindClaimed }
func (DepositStarted) Kind() string    { return KindDepositStarted }
func (DepositAborted) Kind() string    { return KindDepositAborted }
func (ClaimStarted) Kind() string      { return KindClaimStarted }

func (e MarketCreated) apply(s *State) error {
	if s.Seq != 0 {
		return fmt.Errorf("%w: market already created", ErrInvalidParams)
	}
	s.Params = e.Params
	return nil
}

func (e BindingRegistered) apply(s *State) error { return s.Registry.register(e.Binding) }

func (e DefaultBindingSet) apply(s *State) error { return s.Registry.setDefault(e.Days) }

func (e DepositStarted) apply(s *State) error {
	if s.Params.Resolved {
		return ErrMarketResolved
	}
	if e.Amount == nil || e.Amount.IsZero() || e.Power == nil || e.Power.IsZero() {
		return ErrInvalidAmount
	}
	if !e.Side.Valid() {
		return ErrInvalidSide
	}
	if _, ok := s.Pending[e.Depositor]; ok {
		return fmt.Errorf("%w: %s", ErrSettlementPending, e.Depositor.Hex())
	}
	if err := s.Ledger.checkSide(e.Depositor, e.Side); err != nil {
		return err
	}
	started := e.clone()
	s.Pending[e.Depositor] = &Intent{Seq: s.Seq + 1, Deposit: &started}
	return nil
}

func (e DepositAborted) apply(s *State) error {
	if _, err := s.pendingDeposit(e.Depositor); err != nil {
		return err
	}
	delete(s.Pending, e.Depositor)
	return nil
}

func (e Deposited) apply(s *State) error {
	if s.Params.Resolved {
		return ErrMarketResolved
	}
	d, err := s.pendingDeposit(e.Depositor)
	if err != nil {
		return err
	}
	if !d.Amount.Eq(e.Amount) || d.BindingDays != e.BindingDays || d.Side != e.Side {
		return fmt.Errorf("deposit for %s does not match its start", e.Depositor.Hex())
	}
	if err := s.Ledger.upsert(e); err != nil {
		return err
	}
	delete(s.Pending, e.Depositor)
	return nil
}

func (e Resolved) apply(s *State) error {
	if s.Params.Resolved {
		return ErrAlreadyResolved
	}
	for dep, in := range s.Pending {
		if in.Deposit != nil {
			return fmt.Errorf("%w: deposit of %s", ErrSettlementPending, dep.Hex())
		}
	}
	if !e.Outcome.Valid() {
		return ErrInvalidSide
	}
	s.Params.Resolved = true
	s.Params.Outcome = e.Outcome
	return nil
}

func (e ClaimStarted) apply(s *State) error {
	if !s.Params.Resolved {
		return ErrMarketNotResolved
	}
	if e.Payout == nil {
		return fmt.Errorf("claim of %s without payout", e.Depositor.Hex())
	}
	if _, ok := s.Pending[e.Depositor]; ok {
		return fmt.Errorf("%w: %s", ErrSettlementPending, e.Depositor.Hex())
	}
	if err := s.Ledger.markClaimed(e.Depositor, e.Payout); err != nil {
		return err
	}
	started := ClaimStarted{Depositor: e.Depositor, Payout: e.Payout.clone()}
	s.Pending[e.Depositor] = &Intent{Seq: s.Seq + 1, Claim: &started}
	return nil
}

func (e Claimed) apply(s *State) error {
	if !s.Params.Resolved {
		return ErrMarketNotResolved
	}
	in, ok := s.Pending[e.Depositor]
	if !ok || in.Claim == nil {
		return fmt.Errorf("claim of %s was not started", e.Depositor.Hex())
	}
	if e.Payout == nil || e.Payout.Mode != in.Claim.Payout.Mode {
		return fmt.Errorf("claim of %s does not match its start", e.Depositor.Hex())
	}
	if err := s.Ledger.setPayout(e.Depositor, e.Payout); err != nil {
		return err
	}
	delete(s.Pending, e.Depositor)
	return nil
}
