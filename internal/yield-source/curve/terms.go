package curve

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Term é uma entrada "dias:bps" da configuração do simulador
type Term struct {
	Days    uint32
	RateBps uint32
}

// ParseTerms lê "30:500,90:550"; dias repetidos ou zerados são erro
func ParseTerms(list string) ([]Term, error) {
	var out []Term
	seen := map[uint32]bool{}
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		days, bps, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("curve term %q: want days:bps", part)
		}
		d, err := strconv.ParseUint(strings.TrimSpace(days), 10, 32)
		if err != nil || d == 0 {
			return nil, fmt.Errorf("curve term %q: bad days", part)
		}
		r, err := strconv.ParseUint(strings.TrimSpace(bps), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("curve term %q: bad rate", part)
		}
		if seen[uint32(d)] {
			return nil, fmt.Errorf("curve term %q: duplicate days", part)
		}
		seen[uint32(d)] = true
		out = append(out, Term{Days: uint32(d), RateBps: uint32(r)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Days < out[j].Days })
	return out, nil
}

// Name é o identificador usado para derivar os endereços da curva, ex: "USDY-30D"
func (t Term) Name(symbol string) string {
	return fmt.Sprintf("%s-%dD", symbol, t.Days)
}
