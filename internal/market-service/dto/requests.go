package dto

import "time"

// CreateMarketRequest cria um market; o owner é o X-Caller
type CreateMarketRequest struct {
	Asset          string    `json:"asset" validate:"omitempty,eth_addr"` // vazio = ativo padrão do serviço
	Oracle         string    `json:"oracle" validate:"required,eth_addr"`
	MinLockDays    uint32    `json:"min_lock_days" validate:"required,gt=0"`
	MaxLockDays    uint32    `json:"max_lock_days" validate:"required,gtefield=MinLockDays"`
	ResolutionTime time.Time `json:"resolution_time" validate:"required"`
}

type RegisterBindingRequest struct {
	Days     uint32    `json:"days" validate:"required,gt=0"`
	Source   string    `json:"source" validate:"required,eth_addr"`
	Maturity time.Time `json:"maturity"`
}

type SetDefaultBindingRequest struct {
	Days uint32 `json:"days" validate:"required,gt=0"`
}

type DepositRequest struct {
	Amount   string `json:"amount" validate:"required,numeric"`
	LockDays uint32 `json:"lock_days" validate:"required"`
	Side     string `json:"side" validate:"required"`
}

type ResolveRequest struct {
	Outcome string `json:"outcome" validate:"required"`
}

type ClaimRequest struct {
	Mode string `json:"mode" validate:"required,oneof=token cash"`
}
