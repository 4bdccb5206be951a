package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/radieske/hyper-market/internal/market-feed/dto"
)

const maxPage = 500

// Reader é a fonte das projeções (repo.ReadRepo em produção)
type Reader interface {
	ListMarkets(ctx context.Context) ([]dto.Market, error)
	ListEvents(ctx context.Context, market string, afterSeq uint64, limit int) ([]dto.Event, error)
	ListPositions(ctx context.Context, market string) ([]dto.Position, error)
}

// API expõe o histórico indexado e o WebSocket de eventos ao vivo
type API struct {
	Read Reader
	WS   http.HandlerFunc
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/markets", a.listMarkets)                    // Lista markets indexados
	r.Get("/v1/markets/{addr}/events", a.listEvents)       // Histórico (?after=&limit=)
	r.Get("/v1/markets/{addr}/positions", a.listPositions) // Posições indexadas
	if a.WS != nil {
		r.Get("/ws", a.WS)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func marketParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	v := chi.URLParam(r, "addr")
	if !common.IsHexAddress(v) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid market address"})
		return "", false
	}
	return common.HexToAddress(v).Hex(), true
}

func (a *API) listMarkets(w http.ResponseWriter, r *http.Request) {
	ms, err := a.Read.ListMarkets(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	mkt, ok := marketParam(w, r)
	if !ok {
		return
	}
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid after"})
			return
		}
		after = n
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = min(n, maxPage)
	}
	evs, err := a.Read.ListEvents(r.Context(), mkt, after, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (a *API) listPositions(w http.ResponseWriter, r *http.Request) {
	mkt, ok := marketParam(w, r)
	if !ok {
		return
	}
	ps, err := a.Read.ListPositions(r.Context(), mkt)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}
