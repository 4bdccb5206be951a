package dto

// Valores em string decimal (ponto fixo de 18 casas)
type MintRequest struct {
	Token  string `json:"token" validate:"required,eth_addr"`
	Owner  string `json:"owner" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required,numeric"`
}

type ApproveRequest struct {
	Token   string `json:"token" validate:"required,eth_addr"`
	Owner   string `json:"owner" validate:"required,eth_addr"`
	Spender string `json:"spender" validate:"required,eth_addr"`
	Amount  string `json:"amount" validate:"required,numeric"`
}
