package market

import "errors"

// Validação: corrigíveis pelo chamador, sempre checadas antes de qualquer mutação
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidSide        = errors.New("invalid side")
	ErrInvalidMode        = errors.New("invalid claim mode")
	ErrInvalidTimeLock    = errors.New("invalid time lock")
	ErrInvalidParams      = errors.New("invalid market params")
	ErrNoBindingAvailable = errors.New("no binding available")
	ErrUnknownDuration    = errors.New("unknown duration")
	ErrDuplicateBinding   = errors.New("binding already registered")
	ErrUnknownYieldSource = errors.New("unknown yield source")
	ErrDustDeposit        = errors.New("deposit too small for non-zero betting power")
	ErrPowerOverflow      = errors.New("betting power overflow")
	ErrSourceRejected     = errors.New("yield source rejected the operation")
)

// Autorização
var (
	ErrNotOracle = errors.New("not oracle")
	ErrNotOwner  = errors.New("not owner")
)

// Temporais (guardas da máquina de estados)
var (
	ErrTooEarly        = errors.New("too early")
	ErrAlreadyResolved = errors.New("already resolved")
)

// Proteção de invariantes
var (
	ErrCannotHedge       = errors.New("cannot hedge")
	ErrMarketResolved    = errors.New("market resolved")
	ErrMarketNotResolved = errors.New("market not resolved")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrNoPosition        = errors.New("no position")
)

var (
	ErrMarketNotFound    = errors.New("market not found")
	ErrConcurrentUpdate  = errors.New("concurrent market update")
	ErrUnknownEvent      = errors.New("unknown event kind")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAllowance         = errors.New("insufficient allowance")
	ErrSettlementPending = errors.New("settlement pending")
)

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func IsValidation(err error) bool {
	return isAny(err, ErrInvalidAmount, ErrInvalidSide, ErrInvalidMode, ErrInvalidTimeLock, ErrInvalidParams,
		ErrNoBindingAvailable, ErrUnknownDuration, ErrDuplicateBinding, ErrUnknownYieldSource, ErrDustDeposit,
		ErrPowerOverflow, ErrSourceRejected, ErrInsufficientFunds, ErrAllowance)
}

func IsAuthorization(err error) bool { return isAny(err, ErrNotOracle, ErrNotOwner) }

func IsTemporal(err error) bool { return isAny(err, ErrTooEarly, ErrAlreadyResolved) }

func IsInvariant(err error) bool {
	return isAny(err, ErrCannotHedge, ErrMarketResolved, ErrMarketNotResolved, ErrAlreadyClaimed, ErrNoPosition)
}

// Class devolve o rótulo usado em métricas e logs
func Class(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrSettlementPending):
		return "conflict"
	case IsValidation(err):
		return "validation"
	case IsAuthorization(err):
		return "authorization"
	case IsTemporal(err):
		return "temporal"
	case IsInvariant(err):
		return "invariant"
	case errors.Is(err, ErrMarketNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrentUpdate):
		return "conflict"
	}
	return "internal"
}
