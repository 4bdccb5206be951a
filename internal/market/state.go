package market

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// State é o store explícito de um Market: params, registry, ledger, intents e versão
type State struct {
	Seq      uint64
	Params   Params
	Registry *Registry
	Ledger   *Ledger
	Pending  map[common.Address]*Intent
}

// Intent é uma operação já gravada no journal cujos efeitos externos ainda não
// foram confirmados. Seq é a versão do evento de abertura e compõe as chaves de
// idempotência usadas no vault e na fonte de yield. No máximo um por depositante.
type Intent struct {
	Seq     uint64
	Deposit *DepositStarted
	Claim   *ClaimStarted
}

func (in *Intent) Kind() string {
	if in.Deposit != nil {
		return KindDepositStarted
	}
	return KindClaimStarted
}

func (in *Intent) clone() *Intent {
	out := &Intent{Seq: in.Seq}
	if in.Deposit != nil {
		d := in.Deposit.clone()
		out.Deposit = &d
	}
	if in.Claim != nil {
		out.Claim = &ClaimStarted{Depositor: in.Claim.Depositor, Payout: in.Claim.Payout.clone()}
	}
	return out
}

func NewState() *State {
	return &State{Registry: newRegistry(), Ledger: newLedger(), Pending: make(map[common.Address]*Intent)}
}

func (s *State) pendingDeposit(depositor common.Address) (*DepositStarted, error) {
	in, ok := s.Pending[depositor]
	if !ok || in.Deposit == nil {
		return nil, fmt.Errorf("deposit of %s was not started", depositor.Hex())
	}
	return in.Deposit, nil
}

// pendingOrder devolve os depositantes com intent aberto, do mais antigo ao mais novo
func (s *State) pendingOrder() []common.Address {
	out := make([]common.Address, 0, len(s.Pending))
	for dep := range s.Pending {
		out = append(out, dep)
	}
	sort.Slice(out, func(i, j int) bool { return s.Pending[out[i]].Seq < s.Pending[out[j]].Seq })
	return out
}

// Apply avança o estado em uma versão.
// Cada apply valida tudo antes de mutar, então em erro o estado fica intacto.
func (s *State) Apply(rec Record) error {
	if rec.Seq != s.Seq+1 {
		return fmt.Errorf("%w: expected seq %d, got %d", ErrConcurrentUpdate, s.Seq+1, rec.Seq)
	}
	if err := rec.Event.apply(s); err != nil {
		return fmt.Errorf("apply %s #%d: %w", rec.Event.Kind(), rec.Seq, err)
	}
	s.Seq = rec.Seq
	return nil
}

func (s *State) Clone() *State {
	return &State{
		Seq:      s.Seq,
		Params:   s.Params,
		Registry: s.Registry.clone(),
		Ledger:   s.Ledger.clone(),
		Pending:  s.clonePending(),
	}
}

func (s *State) clonePending() map[common.Address]*Intent {
	out := make(map[common.Address]*Intent, len(s.Pending))
	for dep, in := range s.Pending {
		out[dep] = in.clone()
	}
	return out
}

// CheckInvariants confere os agregados contra as posições.
// Usado pelos testes e pelo replay.
func (s *State) CheckInvariants() error {
	for _, side := range []Side{SideA, SideB} {
		principal, power := new(uint256.Int), new(uint256.Int)
		for _, p := range s.Ledger.positions {
			if p.Side != side {
				continue
			}
			if p.Power.IsZero() != p.Principal.IsZero() {
				return fmt.Errorf("position %s: power/principal zero mismatch", p.Depositor.Hex())
			}
			principal.Add(principal, p.Principal)
			power.Add(power, p.Power)
		}
		pool := s.Ledger.pools[side]
		if !pool.Principal.Eq(principal) {
			return fmt.Errorf("side %s: pool principal %s != positions %s", side, pool.Principal.Dec(), principal.Dec())
		}
		if !pool.Power.Eq(power) {
			return fmt.Errorf("side %s: pool power %s != positions %s", side, pool.Power.Dec(), power.Dec())
		}
	}
	for dep, in := range s.Pending {
		if in.Claim == nil {
			continue
		}
		if pos, ok := s.Ledger.positions[dep]; !ok || !pos.Claimed {
			return fmt.Errorf("pending claim of %s on an open position", dep.Hex())
		}
	}
	if s.Params.Resolved != s.Params.Outcome.Valid() {
		return fmt.Errorf("outcome %s inconsistent with resolved=%t", s.Params.Outcome, s.Params.Resolved)
	}
	return nil
}
