package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Side representa um dos dois lados do resultado binário
type Side uint8

const (
	SideNone Side = iota
	SideA
	SideB
)

func (s Side) Valid() bool { return s == SideA || s == SideB }

// Opposite retorna o outro lado; SideNone não tem oposto
func (s Side) Opposite() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	}
	return SideNone
}

func (s Side) String() string {
	switch s {
	case SideA:
		return "A"
	case SideB:
		return "B"
	}
	return "NONE"
}

// ParseSide aceita "A"/"B" (e os apelidos "YES"/"NO" usados pelo front)
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "A", "YES", "1":
		return SideA, nil
	case "B", "NO", "2":
		return SideB, nil
	}
	return SideNone, fmt.Errorf("%w: %q", ErrInvalidSide, v)
}

// ClaimMode define como o payout é entregue
type ClaimMode uint8

const (
	TokenMode ClaimMode = iota // recebe os instrumentos PT/YT
	CashMode                   // instrumentos resgatados no ativo subjacente
)

func (m ClaimMode) Valid() bool { return m == TokenMode || m == CashMode }

func (m ClaimMode) String() string {
	switch m {
	case TokenMode:
		return "token"
	case CashMode:
		return "cash"
	}
	return "unknown"
}

// ParseClaimMode aceita exatamente os nomes do wire, como o validator da API.
// Modo ausente é erro: não existe default.
func ParseClaimMode(v string) (ClaimMode, error) {
	switch v {
	case "token":
		return TokenMode, nil
	case "cash":
		return CashMode, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, v)
}

// Params é o singleton de parâmetros de um Market.
// Só Resolved/Outcome mudam depois da criação.
type Params struct {
	Address        common.Address // identidade de custódia do market
	Asset          common.Address
	Owner          common.Address
	Oracle         common.Address
	MinLockDays    uint32
	MaxLockDays    uint32
	ResolutionTime time.Time
	CreatedAt      time.Time
	Resolved       bool
	Outcome        Side
}

// Binding liga uma duração (dias) a uma fonte de yield e seus instrumentos
type Binding struct {
	Days           uint32
	PrincipalToken common.Address // PT
	YieldToken     common.Address // YT
	Source         common.Address // referência do mercado externo
	Maturity       time.Time
}

// Lot agrega os depósitos de uma posição feitos contra o mesmo binding
type Lot struct {
	BindingDays    uint32
	Principal      *uint256.Int
	PrincipalClaim *uint256.Int
	YieldClaim     *uint256.Int
	Power          *uint256.Int
}

func (l *Lot) clone() *Lot {
	return &Lot{
		BindingDays:    l.BindingDays,
		Principal:      l.Principal.Clone(),
		PrincipalClaim: l.PrincipalClaim.Clone(),
		YieldClaim:     l.YieldClaim.Clone(),
		Power:          l.Power.Clone(),
	}
}

// Position é a exposição acumulada de um depositante
type Position struct {
	Depositor common.Address
	Side      Side
	Principal *uint256.Int
	Power     *uint256.Int
	Claimed   bool
	Lots      map[uint32]*Lot
	Payout    *Payout // preenchido no claim (trilha de auditoria)
}

func newPosition(depositor common.Address, side Side) *Position {
	return &Position{
		Depositor: depositor,
		Side:      side,
		Principal: new(uint256.Int),
		Power:     new(uint256.Int),
		Lots:      make(map[uint32]*Lot),
	}
}

func (p *Position) clone() *Position {
	out := &Position{
		Depositor: p.Depositor,
		Side:      p.Side,
		Principal: p.Principal.Clone(),
		Power:     p.Power.Clone(),
		Claimed:   p.Claimed,
		Lots:      make(map[uint32]*Lot, len(p.Lots)),
	}
	for k, l := range p.Lots {
		out.Lots[k] = l.clone()
	}
	if p.Payout != nil {
		out.Payout = p.Payout.clone()
	}
	return out
}

// SortedLots devolve os lotes em ordem crescente de dias
func (p *Position) SortedLots() []*Lot {
	out := make([]*Lot, 0, len(p.Lots))
	for _, days := range sortedKeys(p.Lots) {
		out = append(out, p.Lots[days])
	}
	return out
}

// Pool guarda os agregados de um lado
type Pool struct {
	Principal *uint256.Int
	Power     *uint256.Int
	Yield     map[uint32]*uint256.Int // YT total por binding
}

func newPool() *Pool {
	return &Pool{
		Principal: new(uint256.Int),
		Power:     new(uint256.Int),
		Yield:     make(map[uint32]*uint256.Int),
	}
}

func (p *Pool) clone() *Pool {
	out := &Pool{
		Principal: p.Principal.Clone(),
		Power:     p.Power.Clone(),
		Yield:     make(map[uint32]*uint256.Int, len(p.Yield)),
	}
	for k, v := range p.Yield {
		out.Yield[k] = v.Clone()
	}
	return out
}

// InstrumentAmount é uma quantidade de um token PT/YT
type InstrumentAmount struct {
	BindingDays uint32
	Token       common.Address
	Amount      *uint256.Int
}

// Payout é o resultado de um claim
type Payout struct {
	Mode      ClaimMode
	Won       bool
	Principal []InstrumentAmount
	Yield     []InstrumentAmount
	Cash      *uint256.Int // só em CashMode
}

func (p *Payout) clone() *Payout {
	out := &Payout{Mode: p.Mode, Won: p.Won}
	for _, a := range p.Principal {
		out.Principal = append(out.Principal, InstrumentAmount{a.BindingDays, a.Token, a.Amount.Clone()})
	}
	for _, a := range p.Yield {
		out.Yield = append(out.Yield, InstrumentAmount{a.BindingDays, a.Token, a.Amount.Clone()})
	}
	if p.Cash != nil {
		out.Cash = p.Cash.Clone()
	}
	return out
}

// TotalYield soma os YT recebidos, independente do instrumento
func (p *Payout) TotalYield() *uint256.Int {
	sum := new(uint256.Int)
	for _, a := range p.Yield {
		sum.Add(sum, a.Amount)
	}
	return sum
}

// TotalPrincipal soma os PT recebidos
func (p *Payout) TotalPrincipal() *uint256.Int {
	sum := new(uint256.Int)
	for _, a := range p.Principal {
		sum.Add(sum, a.Amount)
	}
	return sum
}
