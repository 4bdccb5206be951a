package events

import "time"

type BindingRegistered struct {
	Days           uint32    `json:"days"`
	PrincipalToken string    `json:"principal_token"`
	YieldToken     string    `json:"yield_token"`
	Source         string    `json:"source"`
	Maturity       time.Time `json:"maturity"`
}

type DefaultBindingSet struct {
	Days uint32 `json:"days"`
}
