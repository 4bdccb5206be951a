package events

type Resolved struct {
	Outcome string `json:"outcome"` // "A" | "B"
	Oracle  string `json:"oracle"`
}
