package market

import "github.com/holiman/uint256"

const (
	BpsDenominator = 10_000
	DaysPerYear    = 365
)

// Decimals é a escala de ponto fixo usada para valores (18 casas)
const Decimals = 18

var (
	powerDenominator = uint256.NewInt(BpsDenominator * DaysPerYear)
	unit             = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))
)

// Units converte unidades inteiras para ponto fixo de 18 casas
func Units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), unit)
}

// BettingPower = amount * (rateBps/10000) * (days/365).
// Uma única divisão com intermediário de 512 bits: trunca em direção a zero uma vez só.
func BettingPower(amount *uint256.Int, rateBps, days uint32) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() || rateBps == 0 || days == 0 {
		return new(uint256.Int), nil
	}
	factor := uint256.NewInt(uint64(rateBps) * uint64(days))
	out, overflow := new(uint256.Int).MulDivOverflow(amount, factor, powerDenominator)
	if overflow {
		return nil, ErrPowerOverflow
	}
	return out, nil
}

// proRata = floor(total * part / whole); whole zero significa sem distribuição
func proRata(total, part, whole *uint256.Int) *uint256.Int {
	if whole.IsZero() || total.IsZero() || part.IsZero() {
		return new(uint256.Int)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(total, part, whole)
	if overflow {
		// part <= whole sempre, então o resultado cabe em 256 bits
		return total.Clone()
	}
	return out
}
