package events

type InstrumentAmount struct {
	BindingDays uint32 `json:"binding_days"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
}

// Evento emitido quando um depositante liquida a posição
type Claimed struct {
	Depositor string             `json:"depositor"`
	Mode      string             `json:"mode"` // "token" | "cash"
	Won       bool               `json:"won"`
	Principal []InstrumentAmount `json:"principal"`
	Yield     []InstrumentAmount `json:"yield"`
	Cash      string             `json:"cash,omitempty"`
}
