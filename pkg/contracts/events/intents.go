package events

// Intents abrem uma operação antes de mover fundos.
// Deposited/DepositAborted e Claimed são os eventos que os encerram.
type DepositStarted struct {
	Depositor   string `json:"depositor"`
	Amount      string `json:"amount"`
	LockDays    uint32 `json:"lock_days"`
	BindingDays uint32 `json:"binding_days"`
	Side        string `json:"side"`
	RateBps     uint32 `json:"rate_bps"`
	Power       string `json:"power"`
}

type DepositAborted struct {
	Depositor string `json:"depositor"`
	Reason    string `json:"reason"`
}

// ClaimStarted tem o formato de Claimed; Cash só é conhecido no encerramento
type ClaimStarted Claimed
