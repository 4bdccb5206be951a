package events

// Valores em string decimal (ponto fixo de 18 casas) para não perder precisão
type Deposited struct {
	Depositor      string `json:"depositor"`
	Amount         string `json:"amount"`
	LockDays       uint32 `json:"lock_days"`
	BindingDays    uint32 `json:"binding_days"`
	Side           string `json:"side"` // "A" | "B"
	RateBps        uint32 `json:"rate_bps"`
	Power          string `json:"power"`
	PrincipalClaim string `json:"principal_claim"`
	YieldClaim     string `json:"yield_claim"`
}
