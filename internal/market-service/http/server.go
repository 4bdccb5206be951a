package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/radieske/hyper-market/internal/market"
	"github.com/radieske/hyper-market/internal/market-service/dto"
)

// CallerHeader carrega a identidade do chamador (autenticada no gateway)
const CallerHeader = "X-Caller"

var validate = validator.New()

// SnapshotCache é o cache de leitura de MarketView
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, mkt common.Address, dst any) (bool, error)
	SetSnapshot(ctx context.Context, mkt common.Address, v any, ttl time.Duration) error
	Invalidate(ctx context.Context, mkt common.Address) error
}

// Locker serializa mutações do mesmo market entre réplicas
type Locker interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (func(), error)
}

// API expõe o engine de markets via REST.
// Cache e Locker são opcionais (modo single-replica sem Redis).
type API struct {
	Log     *zap.Logger
	Factory *market.Factory
	Asset   common.Address // ativo usado quando o request não informa

	Cache       SnapshotCache
	SnapshotTTL time.Duration
	Locker      Locker
	LockTTL     time.Duration
	LockWait    time.Duration
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/markets", a.createMarket)
	r.Get("/markets", a.listMarkets)
	r.Route("/markets/{addr}", func(r chi.Router) {
		r.Get("/", a.getMarket)
		r.Post("/bindings", a.registerBinding)
		r.Get("/bindings/default", a.getDefaultBinding)
		r.Put("/bindings/default", a.setDefaultBinding)
		r.Get("/bindings/{days}", a.getBinding)
		r.Post("/deposits", a.deposit)
		r.Post("/resolve", a.resolve)
		r.Post("/claims", a.claim)
		r.Get("/positions", a.listPositions)
		r.Get("/positions/{depositor}", a.getPosition)
	})
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor traduz a classe do erro do engine para o status HTTP
func StatusFor(err error) int {
	switch market.Class(err) {
	case "validation":
		return http.StatusBadRequest
	case "authorization":
		return http.StatusForbidden
	case "temporal", "conflict":
		return http.StatusConflict
	case "invariant":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (a *API) writeErr(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		a.Log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error(), Class: market.Class(err)})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: msg, Class: "validation"})
}

// decode lê o JSON e roda as tags do validator; responde 400 em falha
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "bad json")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		badRequest(w, "invalid payload: "+err.Error())
		return false
	}
	return true
}

func caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	v := r.Header.Get(CallerHeader)
	if !common.IsHexAddress(v) {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: CallerHeader + " header required", Class: "authorization"})
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func addrParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := chi.URLParam(r, name)
	if !common.IsHexAddress(v) {
		badRequest(w, "invalid "+name)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// lookup acha o market local ou recarrega do journal (criado por outra réplica)
func (a *API) lookup(ctx context.Context, addr common.Address) (*market.Market, error) {
	m, err := a.Factory.Market(addr)
	if errors.Is(err, market.ErrMarketNotFound) {
		if rerr := a.Factory.Restore(ctx); rerr != nil {
			return nil, rerr
		}
		return a.Factory.Market(addr)
	}
	return m, err
}

// mutate roda fn sob o lock distribuído do market, com a réplica sincronizada
func (a *API) mutate(ctx context.Context, addr common.Address, fn func(*market.Market) error) error {
	m, err := a.lookup(ctx, addr)
	if err != nil {
		return err
	}
	if a.Locker != nil {
		unlock, err := a.Locker.Acquire(ctx, "market:"+addr.Hex(), a.LockTTL, a.LockWait)
		if err != nil {
			return fmt.Errorf("%w: %v", market.ErrConcurrentUpdate, err)
		}
		defer unlock()
	}
	if err := m.Sync(ctx); err != nil {
		return err
	}
	err = fn(m)
	if a.Cache != nil {
		if cerr := a.Cache.Invalidate(ctx, addr); cerr != nil {
			a.Log.Warn("snapshot invalidate failed", zap.String("market", addr.Hex()), zap.Error(cerr))
		}
	}
	return err
}

// view lê um market atualizado do journal
func (a *API) view(ctx context.Context, addr common.Address) (*market.Market, error) {
	m, err := a.lookup(ctx, addr)
	if err != nil {
		return nil, err
	}
	return m, m.Sync(ctx)
}

func (a *API) createMarket(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req dto.CreateMarketRequest
	if !decode(w, r, &req) {
		return
	}
	asset := a.Asset
	if req.Asset != "" {
		asset = common.HexToAddress(req.Asset)
	}
	spec := market.MarketSpec{
		Asset:          asset,
		Owner:          owner,
		Oracle:         common.HexToAddress(req.Oracle),
		MinLockDays:    req.MinLockDays,
		MaxLockDays:    req.MaxLockDays,
		ResolutionTime: req.ResolutionTime,
	}

	ctx := r.Context()
	if a.Locker != nil {
		// o nonce de derivação é global da factory
		unlock, err := a.Locker.Acquire(ctx, "factory:"+a.Factory.Address().Hex(), a.LockTTL, a.LockWait)
		if err != nil {
			a.writeErr(w, fmt.Errorf("%w: %v", market.ErrConcurrentUpdate, err))
			return
		}
		defer unlock()
	}
	if err := a.Factory.Restore(ctx); err != nil {
		a.writeErr(w, err)
		return
	}
	m, err := a.Factory.CreateMarket(ctx, spec)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.FromState(m.Snapshot()))
}

func (a *API) listMarkets(w http.ResponseWriter, r *http.Request) {
	if err := a.Factory.Restore(r.Context()); err != nil {
		a.writeErr(w, err)
		return
	}
	out := []dto.MarketView{}
	for _, addr := range a.Factory.Markets() {
		m, err := a.view(r.Context(), addr)
		if err != nil {
			a.writeErr(w, err)
			return
		}
		out = append(out, dto.FromState(m.Snapshot()))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getMarket(w http.ResponseWriter, r *http.Request) {
	addr, ok := addrParam(w, r, "addr")
	if !ok {
		return
	}
	var cached dto.MarketView
	if a.Cache != nil {
		if hit, _ := a.Cache.GetSnapshot(r.Context(), addr, &cached); hit {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}
	m, err := a.view(r.Context(), addr)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	v := dto.FromState(m.Snapshot())
	if a.Cache != nil {
		_ = a.Cache.SetSnapshot(r.Context(), addr, v, a.SnapshotTTL)
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) registerBinding(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := addrParam(w, r, "addr")
	if !ok {
		return
	}
	var req dto.RegisterBindingRequest
	if !decode(w, r, &req) {
		return
	}
	var b market.Binding
	err := a.mutate(r.Context(), addr, func(m *market.Market) error {
		var err error
		b, err = m.RegisterBinding(r.Context(), who, req.Days, common.HexToAddress(req.Source), req.Maturity)
		return err
	})
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.FromBinding(b))
}

func (a *API) getBinding(w http.ResponseWriter, r *http.Request) {
	addr, ok := addrParam(w, r, "addr")
	if !ok {
		return
	}
	days, err := strconv.ParseUint(chi.URLParam(r, "days"), 10, 32)
	if err != nil {
		badRequest(w, "invalid days")
		return
	}
	m, err := a.view(r.Context(), addr)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	b, ok := m.Binding(uint32(days))
	if !ok {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: market.ErrUnknownDuration.Error(), Class: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, dto.FromBinding(b))
}

func (a *API) getDefaultBinding(w http.ResponseWriter, r *http.Request) {
	addr, ok := addrParam(w, r, "addr")
	if !ok {
		return
	}
	m, err := a.view(r.Context(), addr)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	b, ok := m.DefaultBinding()
	if !ok {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "no default binding", Class: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, dto.FromBinding(b))
}

func (a *API) setDefaultBinding(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := addrParam(w, r, "addr")
	if !ok {
		return
	}
	var req dto.SetDefaultBindingRequest
	if !decode(w, r, &req) {
		return
	}
	var b market.Binding
	err := a.mutate(r.Context(), addr, func(m *market.Market) error {
		if err := m.SetDefaultBinding(r.Context(), who, req.Days); err != nil {
			return err
		}
		b, _ = m.DefaultBinding()
		return nil
	})
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromBinding(b))
}

func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := addrParam(w, r, "addr")
	if !ok {
		return
	}
	var req dto.DepositRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := market.ParseAmount(req.Amount)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	side, err := market.ParseSide(req.Side)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	var ev market.Deposited
	err = a.mutate(r.Context(), addr, func(m *market.Market) error {
		var err error
		ev, err = m.Deposit(r.Context(), who, amount, req.LockDays, side)
		return err
	})
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.FromDeposit(addr.Hex(), ev))
}

func (a *API) resolve(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := addrParam(w, r, "addr")
	if !ok {
		return
	}
	var req dto.ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	outcome, err := market.ParseSide(req.Outcome)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	var ev market.Resolved
	err = a.mutate(r.Context(), addr, func(m *market.Market) error {
		var err error
		ev, err = m.Resolve(r.Context(), who, outcome)
		return err
	})
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ResolveResponse{Market: addr.Hex(), Outcome: ev.Outcome.String()})
}

func (a *API) claim(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := addrParam(w, r, "addr")
	if !ok {
		return
	}
	var req dto.ClaimRequest
	if !decode(w, r, &req) {
		return
	}
	mode, err := market.ParseClaimMode(req.Mode)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	var payout *market.Payout
	err = a.mutate(r.Context(), addr, func(m *market.Market) error {
		var err error
		payout, err = m.Claim(r.Context(), who, mode)
		return err
	})
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromPayout(payout))
}

func (a *API) listPositions(w http.ResponseWriter, r *http.Request) {
	addr, ok := addrParam(w, r, "addr")
	if !ok {
		return
	}
	m, err := a.view(r.Context(), addr)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	out := []dto.PositionView{}
	for _, p := range m.Positions() {
		out = append(out, dto.FromPosition(addr.Hex(), p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getPosition(w http.ResponseWriter, r *http.Request) {
	addr, ok := addrParam(w, r, "addr")
	if !ok {
		return
	}
	depositor, ok := addrParam(w, r, "depositor")
	if !ok {
		return
	}
	m, err := a.view(r.Context(), addr)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	p, ok := m.Position(depositor)
	if !ok {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: market.ErrNoPosition.Error(), Class: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, dto.FromPosition(addr.Hex(), p))
}
