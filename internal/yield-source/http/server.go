package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/radieske/hyper-market/internal/market"
	"github.com/radieske/hyper-market/internal/yield-source/curve"
	"github.com/radieske/hyper-market/internal/yield-source/dto"
)

// API expõe as curvas simuladas: taxa, split e redeem
type API struct {
	Log      *zap.Logger
	Curves   []*curve.Curve
	validate *validator.Validate
}

func New(log *zap.Logger, curves ...*curve.Curve) *API {
	return &API{Log: log, Curves: curves, validate: validator.New()}
}

// Router retorna o roteador HTTP do simulador
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/sources", a.list)
	r.Get("/sources/{ref}", a.get)
	r.Get("/sources/{ref}/rate", a.rate) // ?days=
	r.Post("/sources/{ref}/split", a.split)
	r.Post("/sources/{ref}/redeem", a.redeem)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func toDTO(c *curve.Curve) dto.Source {
	return dto.Source{
		Ref:            c.Ref.Hex(),
		Underlying:     c.Underlying.Hex(),
		PrincipalToken: c.Principal.Hex(),
		YieldToken:     c.Yield.Hex(),
		RateBps:        c.RateBps,
		Maturity:       c.Maturity,
	}
}

// lookup encontra a curva pelo {ref}; responde 404 se não existir
func (a *API) lookup(w http.ResponseWriter, r *http.Request) (*curve.Curve, bool) {
	ref := chi.URLParam(r, "ref")
	if common.IsHexAddress(ref) {
		addr := common.HexToAddress(ref)
		for _, c := range a.Curves {
			if c.Ref == addr {
				return c, true
			}
		}
	}
	writeErr(w, http.StatusNotFound, "unknown source")
	return nil, false
}

func (a *API) list(w http.ResponseWriter, _ *http.Request) {
	out := make([]dto.Source, 0, len(a.Curves))
	for _, c := range a.Curves {
		out = append(out, toDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	c, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toDTO(c))
}

func (a *API) rate(w http.ResponseWriter, r *http.Request) {
	c, ok := a.lookup(w, r)
	if !ok {
		return
	}
	days, err := strconv.ParseUint(r.URL.Query().Get("days"), 10, 32)
	if err != nil || days == 0 {
		writeErr(w, http.StatusBadRequest, "days required")
		return
	}
	bps, err := c.QuoteRate(r.Context(), uint32(days))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.RateResponse{Days: uint32(days), RateBps: bps})
}

func (a *API) split(w http.ResponseWriter, r *http.Request) {
	c, ok := a.lookup(w, r)
	if !ok {
		return
	}
	var req dto.SplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := market.ParseAmount(req.Amount)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	pt, yt, err := c.Split(r.Context(), req.Key, common.HexToAddress(req.Custody), amount, req.Days)
	if err != nil {
		a.Log.Warn("split failed", zap.String("ref", c.Ref.Hex()), zap.String("key", req.Key), zap.Error(err))
		writeErr(w, failureStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.SplitResponse{Principal: pt.Dec(), Yield: yt.Dec()})
}

func (a *API) redeem(w http.ResponseWriter, r *http.Request) {
	c, ok := a.lookup(w, r)
	if !ok {
		return
	}
	var req dto.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	pt, err := market.ParseAmount(req.Principal)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	yt, err := market.ParseAmount(req.Yield)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := c.Redeem(r.Context(), req.Key, common.HexToAddress(req.Custody), pt, yt)
	if err != nil {
		a.Log.Warn("redeem failed", zap.String("ref", c.Ref.Hex()), zap.String("key", req.Key), zap.Error(err))
		writeErr(w, failureStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.RedeemResponse{Amount: out.Dec()})
}

// failureStatus: 422 só quando a curva recusou sem aplicar nada; o cliente trata como definitivo
func failureStatus(err error) int {
	if market.IsValidation(err) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
