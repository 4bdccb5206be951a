package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/radieske/hyper-market/internal/asset-vault/dto"
	"github.com/radieske/hyper-market/internal/market"
)

// Repo define as operações de vault usadas pelo handler HTTP
type Repo interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*uint256.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error)
	Mint(ctx context.Context, token, to common.Address, amount *uint256.Int) error
	Approve(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error
}

// Server expõe endpoints HTTP de saldo, faucet e allowance
type Server struct {
	log      *zap.Logger
	repo     Repo
	validate *validator.Validate
}

// NewServer instancia o servidor HTTP do vault
func NewServer(log *zap.Logger, repo Repo) *Server {
	return &Server{log: log, repo: repo, validate: validator.New()}
}

// Router retorna o mux HTTP com as rotas do vault
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wallet", s.getBalance)             // GET ?token=...&owner=...
	mux.HandleFunc("/wallet/allowance", s.getAllowance) // GET ?token=...&owner=...&spender=...
	mux.HandleFunc("/wallet/mint", s.mint)              // POST
	mux.HandleFunc("/wallet/approve", s.approve)        // POST
	return mux
}

// getBalance retorna o saldo de owner em token
func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	addrs, ok := addrParams(w, r, "token", "owner")
	if !ok {
		return
	}
	bal, err := s.repo.BalanceOf(r.Context(), addrs[0], addrs[1])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.BalanceResponse{Token: addrs[0].Hex(), Owner: addrs[1].Hex(), Balance: bal.Dec()})
}

// getAllowance retorna quanto spender pode movimentar de owner
func (s *Server) getAllowance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	addrs, ok := addrParams(w, r, "token", "owner", "spender")
	if !ok {
		return
	}
	amt, err := s.repo.Allowance(r.Context(), addrs[0], addrs[1], addrs[2])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.AllowanceResponse{Token: addrs[0].Hex(), Owner: addrs[1].Hex(), Spender: addrs[2].Hex(), Amount: amt.Dec()})
}

// mint credita saldo na carteira (faucet)
func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	amount, err := market.ParseAmount(req.Amount)
	if err != nil || amount.IsZero() {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	token, owner := common.HexToAddress(req.Token), common.HexToAddress(req.Owner)
	if err := s.repo.Mint(r.Context(), token, owner, amount); err != nil {
		s.log.Error("mint failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	bal, err := s.repo.BalanceOf(r.Context(), token, owner)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.BalanceResponse{Token: token.Hex(), Owner: owner.Hex(), Balance: bal.Dec()})
}

// approve define a allowance de um spender (ex: custódia do market)
func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	amount, err := market.ParseAmount(req.Amount)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	token, owner, spender := common.HexToAddress(req.Token), common.HexToAddress(req.Owner), common.HexToAddress(req.Spender)
	if err := s.repo.Approve(r.Context(), token, owner, spender, amount); err != nil {
		s.log.Error("approve failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.AllowanceResponse{Token: token.Hex(), Owner: owner.Hex(), Spender: spender.Hex(), Amount: amount.Dec()})
}

// addrParams lê e valida endereços da query string; responde 400 se faltar algum
func addrParams(w http.ResponseWriter, r *http.Request, names ...string) ([]common.Address, bool) {
	out := make([]common.Address, 0, len(names))
	for _, n := range names {
		v := r.URL.Query().Get(n)
		if !common.IsHexAddress(v) {
			http.Error(w, n+" required", http.StatusBadRequest)
			return nil, false
		}
		out = append(out, common.HexToAddress(v))
	}
	return out, true
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
