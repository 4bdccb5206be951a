package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Deps são os colaboradores injetados na construção.
// Journal e Publisher são opcionais; OnCommit/OnReject servem para métricas.
type Deps struct {
	Sources   Sources
	Vault     Vault
	Journal   Journal
	Publisher Publisher
	Clock     Clock
	Log       *zap.Logger

	OnCommit func(kind string)
	OnReject func(op, class string)
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Sources == nil {
		d.Sources = SourceMap{}
	}
	return d
}

// Market é a máquina de estados de uma rodada.
// Toda mutação roda sob mu, do início ao fim: as operações ficam totalmente ordenadas.
type Market struct {
	mu      sync.Mutex
	address common.Address
	state   *State
	deps    Deps
	log     *zap.Logger
}

func newMarket(address common.Address, deps Deps) *Market {
	deps = deps.withDefaults()
	return &Market{
		address: address,
		state:   NewState(),
		deps:    deps,
		log:     deps.Log.With(zap.String("market", address.Hex())),
	}
}

// Open reconstrói um Market a partir do journal
func Open(ctx context.Context, address common.Address, deps Deps) (*Market, error) {
	m := newMarket(address, deps)
	if err := m.Sync(ctx); err != nil {
		return nil, err
	}
	if m.state.Seq == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, address.Hex())
	}
	if err := m.state.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("replay %s: %w", address.Hex(), err)
	}
	return m, nil
}

func (m *Market) Address() common.Address { return m.address }

// Sync aplica os eventos do journal ainda não vistos por esta réplica
func (m *Market) Sync(ctx context.Context) error {
	if m.deps.Journal == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, err := m.deps.Journal.LoadSince(ctx, m.address, m.state.Seq)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	for _, rec := range recs {
		if err := m.state.Apply(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *Market) now() time.Time { return m.deps.Clock() }

func (m *Market) reject(op string, err error) error {
	class := Class(err)
	switch class {
	case "authorization":
		m.log.Warn("unauthorized call", zap.String("op", op), zap.Error(err))
	case "internal", "conflict":
		m.log.Error("operation failed", zap.String("op", op), zap.Error(err))
	default:
		m.log.Debug("operation rejected", zap.String("op", op), zap.String("class", class), zap.Error(err))
	}
	if m.deps.OnReject != nil {
		m.deps.OnReject(op, class)
	}
	return err
}

// commit grava no journal, aplica e publica. Chamado sempre com mu travado
// e depois de todas as validações da operação.
func (m *Market) commit(ctx context.Context, ev Event) (Record, error) {
	rec := Record{Seq: m.state.Seq + 1, At: m.now().UTC(), Event: ev}
	if m.deps.Journal != nil {
		if err := m.deps.Journal.Append(ctx, m.address, rec.Seq, ev); err != nil {
			return Record{}, fmt.Errorf("journal append %s: %w", ev.Kind(), err)
		}
	}
	if err := m.state.Apply(rec); err != nil {
		// o journal já tem o evento; só acontece se validação e apply divergirem
		m.log.Error("apply after journal append", zap.Uint64("seq", rec.Seq), zap.Error(err))
		return Record{}, err
	}
	if m.deps.OnCommit != nil {
		m.deps.OnCommit(ev.Kind())
	}
	if m.deps.Publisher != nil {
		if err := m.deps.Publisher.Publish(ctx, m.address, rec); err != nil {
			m.log.Warn("event publish failed", zap.String("kind", ev.Kind()), zap.Uint64("seq", rec.Seq), zap.Error(err))
		}
	}
	return rec, nil
}

// RegisterBinding liga days a uma fonte de yield. Nunca sobrescreve.
func (m *Market) RegisterBinding(ctx context.Context, caller common.Address, days uint32, ref common.Address, maturity time.Time) (Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.state.Params.Owner {
		return Binding{}, m.reject("register_binding", fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex()))
	}
	if err := m.state.Registry.checkRegister(days); err != nil {
		return Binding{}, m.reject("register_binding", err)
	}
	src, ok := m.deps.Sources.Lookup(ref)
	if !ok {
		return Binding{}, m.reject("register_binding", fmt.Errorf("%w: %s", ErrUnknownYieldSource, ref.Hex()))
	}
	pt, yt, err := src.Instruments(ctx)
	if err != nil {
		return Binding{}, m.reject("register_binding", fmt.Errorf("yield source instruments: %w", err))
	}
	b := Binding{Days: days, PrincipalToken: pt, YieldToken: yt, Source: ref, Maturity: maturity.UTC()}
	if _, err := m.commit(ctx, BindingRegistered{Binding: b}); err != nil {
		return Binding{}, m.reject("register_binding", err)
	}
	m.log.Info("binding registered", zap.Uint32("days", days), zap.String("source", ref.Hex()))
	return b, nil
}

// SetDefaultBinding define o binding usado em modo bypass
func (m *Market) SetDefaultBinding(ctx context.Context, caller common.Address, days uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.state.Params.Owner {
		return m.reject("set_default_binding", fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex()))
	}
	if err := m.state.Registry.checkDefault(days); err != nil {
		return m.reject("set_default_binding", err)
	}
	if cur, ok := m.state.Registry.Default(); ok && cur.Days == days {
		return nil
	}
	if _, err := m.commit(ctx, DefaultBindingSet{Days: days}); err != nil {
		return m.reject("set_default_binding", err)
	}
	m.log.Info("default binding set", zap.Uint32("days", days))
	return nil
}

// Deposit trava amount do ativo por lockDays no lado escolhido.
// DepositStarted vai para o journal antes de qualquer movimentação; se um efeito
// falhar sem resposta definitiva o intent fica pendente e é retomado depois.
func (m *Market) Deposit(ctx context.Context, depositor common.Address, amount *uint256.Int, lockDays uint32, side Side) (Deposited, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in, ok := m.state.Pending[depositor]; ok && in.Deposit != nil {
		if err := m.settle(ctx, in.clone()); err != nil {
			return Deposited{}, m.reject("deposit", err)
		}
	}
	started, err := m.prepareDeposit(ctx, depositor, amount, lockDays, side)
	if err != nil {
		return Deposited{}, m.reject("deposit", err)
	}
	rec, err := m.commit(ctx, started)
	if err != nil {
		return Deposited{}, m.reject("deposit", err)
	}
	ev, err := m.settleDeposit(ctx, rec.Seq, started)
	if err != nil {
		return Deposited{}, m.reject("deposit", err)
	}
	return ev, nil
}

func (m *Market) prepareDeposit(ctx context.Context, depositor common.Address, amount *uint256.Int, lockDays uint32, side Side) (DepositStarted, error) {
	p := m.state.Params
	if amount == nil || amount.IsZero() {
		return DepositStarted{}, ErrInvalidAmount
	}
	if !side.Valid() {
		return DepositStarted{}, fmt.Errorf("%w: %d", ErrInvalidSide, side)
	}
	if lockDays < p.MinLockDays || lockDays > p.MaxLockDays {
		return DepositStarted{}, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidTimeLock, lockDays, p.MinLockDays, p.MaxLockDays)
	}
	if p.Resolved {
		return DepositStarted{}, ErrMarketResolved
	}
	b, err := m.state.Registry.Resolve(lockDays)
	if err != nil {
		return DepositStarted{}, err
	}
	if err := m.state.Ledger.checkSide(depositor, side); err != nil {
		return DepositStarted{}, err
	}
	src, ok := m.deps.Sources.Lookup(b.Source)
	if !ok {
		return DepositStarted{}, fmt.Errorf("%w: %s", ErrUnknownYieldSource, b.Source.Hex())
	}
	rate, err := src.QuoteRate(ctx, lockDays)
	if err != nil {
		return DepositStarted{}, fmt.Errorf("yield source quote: %w", err)
	}
	power, err := BettingPower(amount, rate, lockDays)
	if err != nil {
		return DepositStarted{}, err
	}
	if power.IsZero() {
		return DepositStarted{}, ErrDustDeposit
	}
	if err := m.checkFunds(ctx, depositor, amount); err != nil {
		return DepositStarted{}, err
	}
	return DepositStarted{
		Depositor:   depositor,
		Amount:      amount.Clone(),
		LockDays:    lockDays,
		BindingDays: b.Days,
		Side:        side,
		RateBps:     rate,
		Power:       power,
	}, nil
}

// checkFunds antecipa as recusas do vault para que não gerem intents no journal
func (m *Market) checkFunds(ctx context.Context, depositor common.Address, amount *uint256.Int) error {
	p := m.state.Params
	allowance, err := m.deps.Vault.Allowance(ctx, p.Asset, depositor, p.Address)
	if err != nil {
		return fmt.Errorf("read allowance: %w", err)
	}
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s < %s", ErrAllowance, allowance.Dec(), amount.Dec())
	}
	balance, err := m.deps.Vault.BalanceOf(ctx, p.Asset, depositor)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s < %s", ErrInsufficientFunds, balance.Dec(), amount.Dec())
	}
	return nil
}

// settleDeposit executa os efeitos de um DepositStarted gravado com versão seq.
// Cada efeito tem key própria, então a retomada nunca repete uma movimentação.
func (m *Market) settleDeposit(ctx context.Context, seq uint64, d DepositStarted) (Deposited, error) {
	p := m.state.Params
	refundKey := m.effectKey(seq, "refund")
	refunded, err := m.deps.Vault.Applied(ctx, refundKey)
	if err != nil {
		return Deposited{}, pending(KindDepositStarted, seq, err)
	}
	if refunded {
		return Deposited{}, m.abortDeposit(ctx, seq, d.Depositor, ErrSourceRejected)
	}
	src, err := m.source(d.BindingDays)
	if err != nil {
		return Deposited{}, pending(KindDepositStarted, seq, err)
	}

	if _, err := m.deps.Vault.TransferOnce(ctx, m.effectKey(seq, "in"), Movement{
		Token:   p.Asset,
		From:    d.Depositor,
		To:      p.Address,
		Spender: p.Address,
		Amount:  d.Amount,
		Memo:    "deposit",
	}); err != nil {
		if IsValidation(err) {
			return Deposited{}, m.abortDeposit(ctx, seq, d.Depositor, fmt.Errorf("transfer in: %w", err))
		}
		return Deposited{}, pending(KindDepositStarted, seq, fmt.Errorf("transfer in: %w", err))
	}

	pt, yt, err := src.Split(ctx, m.effectKey(seq, "split"), p.Address, d.Amount, d.LockDays)
	if err != nil {
		if !IsValidation(err) {
			return Deposited{}, pending(KindDepositStarted, seq, fmt.Errorf("yield source split: %w", err))
		}
		// recusa definitiva: o ativo ainda está na custódia e volta ao depositante
		if _, rerr := m.deps.Vault.TransferOnce(ctx, refundKey, Movement{
			Token: p.Asset, From: p.Address, To: d.Depositor, Amount: d.Amount, Memo: "deposit-refund",
		}); rerr != nil {
			return Deposited{}, pending(KindDepositStarted, seq, fmt.Errorf("deposit refund: %w", rerr))
		}
		return Deposited{}, m.abortDeposit(ctx, seq, d.Depositor, fmt.Errorf("yield source split: %w", err))
	}

	ev := d.settled(pt, yt)
	if _, err := m.commit(ctx, ev); err != nil {
		return Deposited{}, pending(KindDepositStarted, seq, err)
	}
	m.log.Info("deposited",
		zap.String("depositor", d.Depositor.Hex()),
		zap.String("amount", d.Amount.Dec()),
		zap.Uint32("lock_days", d.LockDays),
		zap.Stringer("side", d.Side),
		zap.String("power", d.Power.Dec()),
		zap.Uint64("intent", seq),
	)
	return ev, nil
}

// abortDeposit encerra o intent e devolve a causa; só é chamado quando nada ficou na custódia
func (m *Market) abortDeposit(ctx context.Context, seq uint64, depositor common.Address, cause error) error {
	if _, err := m.commit(ctx, DepositAborted{Depositor: depositor, Reason: cause.Error()}); err != nil {
		return pending(KindDepositStarted, seq, fmt.Errorf("%v: %w", cause, err))
	}
	m.log.Info("deposit aborted", zap.String("depositor", depositor.Hex()), zap.Uint64("intent", seq), zap.Error(cause))
	return cause
}

// Resolve fecha o market com o lado vencedor. Não existe rollback.
// Depósitos pendentes precisam ser liquidados antes: o pool fica congelado no Resolved.
func (m *Market) Resolve(ctx context.Context, caller common.Address, outcome Side) (Resolved, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.state.Params
	if caller != p.Oracle {
		return Resolved{}, m.reject("resolve", fmt.Errorf("%w: %s", ErrNotOracle, caller.Hex()))
	}
	if !outcome.Valid() {
		return Resolved{}, m.reject("resolve", fmt.Errorf("%w: %d", ErrInvalidSide, outcome))
	}
	if m.now().Before(p.ResolutionTime) {
		return Resolved{}, m.reject("resolve", fmt.Errorf("%w: resolution at %s", ErrTooEarly, p.ResolutionTime.Format(time.RFC3339)))
	}
	if p.Resolved {
		return Resolved{}, m.reject("resolve", ErrAlreadyResolved)
	}
	for _, dep := range m.state.pendingOrder() {
		in := m.state.Pending[dep]
		if in.Deposit == nil {
			continue
		}
		if err := m.settle(ctx, in.clone()); err != nil {
			return Resolved{}, m.reject("resolve", err)
		}
	}
	ev := Resolved{Outcome: outcome, Oracle: caller}
	if _, err := m.commit(ctx, ev); err != nil {
		return Resolved{}, m.reject("resolve", err)
	}
	m.log.Info("market resolved", zap.Stringer("outcome", outcome))
	return ev, nil
}

// Claim liquida a posição do depositante no modo escolhido.
// ClaimStarted fecha a posição no journal antes do pagamento; um claim
// interrompido é retomado pela mesma chamada com o mesmo modo.
func (m *Market) Claim(ctx context.Context, depositor common.Address, mode ClaimMode) (*Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !mode.Valid() {
		return nil, m.reject("claim", fmt.Errorf("%w: %d", ErrInvalidMode, mode))
	}
	if !m.state.Params.Resolved {
		return nil, m.reject("claim", ErrMarketNotResolved)
	}
	if in, ok := m.state.Pending[depositor]; ok && in.Claim != nil {
		if in.Claim.Payout.Mode != mode {
			return nil, m.reject("claim", fmt.Errorf("%w: claim already started in %s mode", ErrInvalidMode, in.Claim.Payout.Mode))
		}
		payout, err := m.settleClaim(ctx, in.Seq, depositor, in.Claim.Payout)
		if err != nil {
			return nil, m.reject("claim", err)
		}
		return payout, nil
	}

	pos, err := m.state.Ledger.checkClaim(depositor)
	if err != nil {
		return nil, m.reject("claim", err)
	}
	payout, err := entitlement(m.state, pos)
	if err != nil {
		return nil, m.reject("claim", err)
	}
	payout.Mode = mode

	rec, err := m.commit(ctx, ClaimStarted{Depositor: depositor, Payout: payout})
	if err != nil {
		return nil, m.reject("claim", err)
	}
	payout, err = m.settleClaim(ctx, rec.Seq, depositor, payout)
	if err != nil {
		return nil, m.reject("claim", err)
	}
	return payout, nil
}

func (m *Market) settleClaim(ctx context.Context, seq uint64, depositor common.Address, started *Payout) (*Payout, error) {
	payout := started.clone()
	var err error
	switch payout.Mode {
	case TokenMode:
		err = m.payTokens(ctx, seq, depositor, payout)
	case CashMode:
		err = m.payCash(ctx, seq, depositor, payout)
	}
	if err != nil {
		return nil, pending(KindClaimStarted, seq, err)
	}
	if _, err := m.commit(ctx, Claimed{Depositor: depositor, Payout: payout}); err != nil {
		return nil, pending(KindClaimStarted, seq, err)
	}

	fields := []zap.Field{
		zap.String("depositor", depositor.Hex()),
		zap.Stringer("mode", payout.Mode),
		zap.Bool("won", payout.Won),
		zap.String("principal", payout.TotalPrincipal().Dec()),
		zap.String("yield", payout.TotalYield().Dec()),
		zap.Uint64("intent", seq),
	}
	if payout.Cash != nil {
		fields = append(fields, zap.String("cash", payout.Cash.Dec()))
	}
	m.log.Info("claimed", fields...)
	return payout.clone(), nil
}

func (m *Market) payTokens(ctx context.Context, seq uint64, depositor common.Address, p *Payout) error {
	custody := m.state.Params.Address
	var moves []Movement
	for _, a := range append(append([]InstrumentAmount{}, p.Principal...), p.Yield...) {
		if a.Amount.IsZero() {
			continue
		}
		moves = append(moves, Movement{Token: a.Token, From: custody, To: depositor, Amount: a.Amount, Memo: "claim"})
	}
	if len(moves) == 0 {
		return nil
	}
	if _, err := m.deps.Vault.TransferOnce(ctx, m.effectKey(seq, "claim"), moves...); err != nil {
		return fmt.Errorf("transfer instruments: %w", err)
	}
	return nil
}

// payCash resgata cada binding com key própria; numa retomada os resgates já feitos
// devolvem o mesmo valor sem mover nada
func (m *Market) payCash(ctx context.Context, seq uint64, depositor common.Address, p *Payout) error {
	custody := m.state.Params.Address
	total := new(uint256.Int)
	groups := p.redeemable()
	for _, days := range sortedKeys(groups) {
		src, err := m.source(days)
		if err != nil {
			return err
		}
		amounts := groups[days]
		out, err := src.Redeem(ctx, m.effectKey(seq, fmt.Sprintf("redeem/%d", days)), custody, amounts[0], amounts[1])
		if err != nil {
			return fmt.Errorf("yield source redeem %d days: %w", days, err)
		}
		total.Add(total, out)
	}
	p.Cash = total
	if total.IsZero() {
		return nil
	}
	if _, err := m.deps.Vault.TransferOnce(ctx, m.effectKey(seq, "cash"), Movement{
		Token: m.state.Params.Asset, From: custody, To: depositor, Amount: total, Memo: "claim-cash",
	}); err != nil {
		return fmt.Errorf("transfer cash: %w", err)
	}
	return nil
}

func (m *Market) source(days uint32) (YieldSource, error) {
	b, ok := m.state.Registry.Get(days)
	if !ok {
		return nil, fmt.Errorf("%w: %d days", ErrUnknownDuration, days)
	}
	src, ok := m.deps.Sources.Lookup(b.Source)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownYieldSource, b.Source.Hex())
	}
	return src, nil
}

// effectKey identifica um efeito externo de um intent: market/seq/passo
func (m *Market) effectKey(seq uint64, step string) string {
	return fmt.Sprintf("%s/%d/%s", m.address.Hex(), seq, step)
}

func pending(kind string, seq uint64, cause error) error {
	return fmt.Errorf("%w: %s #%d: %w", ErrSettlementPending, kind, seq, cause)
}

// settle retoma um intent. Um depósito abortado conta como liquidado.
func (m *Market) settle(ctx context.Context, in *Intent) error {
	var err error
	if in.Deposit != nil {
		_, err = m.settleDeposit(ctx, in.Seq, *in.Deposit)
	} else {
		_, err = m.settleClaim(ctx, in.Seq, in.Claim.Depositor, in.Claim.Payout)
	}
	if err != nil && !errors.Is(err, ErrSettlementPending) {
		return nil
	}
	return err
}

// Recover retoma todos os intents pendentes, do mais antigo ao mais novo
func (m *Market) Recover(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, dep := range m.state.pendingOrder() {
		in, ok := m.state.Pending[dep]
		if !ok {
			continue
		}
		if err := m.settle(ctx, in.clone()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.log.Warn("intents still pending", zap.Int("count", len(errs)), zap.Error(err))
		return err
	}
	return nil
}

// Pending devolve o intent aberto do depositante, se houver
func (m *Market) Pending(depositor common.Address) (Intent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.state.Pending[depositor]
	if !ok {
		return Intent{}, false
	}
	return *in.clone(), true
}

// Params devolve o snapshot de MarketParams
func (m *Market) Params() Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Params
}

func (m *Market) Position(depositor common.Address) (*Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Ledger.Position(depositor)
}

func (m *Market) Positions() []*Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Ledger.Positions()
}

func (m *Market) Pool(side Side) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Ledger.Pool(side)
}

func (m *Market) Binding(days uint32) (Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Registry.Get(days)
}

func (m *Market) Bindings() []Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Registry.All()
}

func (m *Market) DefaultBinding() (Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Registry.Default()
}

// Snapshot devolve uma cópia profunda do estado e sua versão
func (m *Market) Snapshot() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}
