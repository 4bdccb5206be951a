package dto

import "time"

// Source descreve uma curva exposta pelo simulador
type Source struct {
	Ref            string    `json:"ref"`
	Underlying     string    `json:"underlying"`
	PrincipalToken string    `json:"principal_token"`
	YieldToken     string    `json:"yield_token"`
	RateBps        uint32    `json:"rate_bps"`
	Maturity       time.Time `json:"maturity"`
}

type RateResponse struct {
	Days    uint32 `json:"days"`
	RateBps uint32 `json:"rate_bps"`
}

// Key identifica a operação; repetir a key devolve o resultado original
type SplitRequest struct {
	Key     string `json:"key" validate:"required,max=200"`
	Custody string `json:"custody" validate:"required,eth_addr"`
	Amount  string `json:"amount" validate:"required,numeric"`
	Days    uint32 `json:"days" validate:"required,gt=0"`
}

type SplitResponse struct {
	Principal string `json:"principal"`
	Yield     string `json:"yield"`
}

type RedeemRequest struct {
	Key       string `json:"key" validate:"required,max=200"`
	Custody   string `json:"custody" validate:"required,eth_addr"`
	Principal string `json:"principal" validate:"required,numeric"`
	Yield     string `json:"yield" validate:"required,numeric"`
}

type RedeemResponse struct {
	Amount string `json:"amount"`
}
