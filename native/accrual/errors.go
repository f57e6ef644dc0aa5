package accrual

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine wraps exactly one of these,
// so callers can branch with errors.Is without matching individual messages.
var (
	ErrValidation         = errors.New("accrual: validation failed")
	ErrNotFound           = errors.New("accrual: not found")
	ErrState              = errors.New("accrual: invalid state")
	ErrArithmetic         = errors.New("accrual: arithmetic error")
	ErrInvariantViolation = errors.New("accrual: invariant violation")
	ErrPermission         = errors.New("accrual: permission denied")
)

func kindError(kind error, msg string) error {
	return fmt.Errorf("%w: %s", kind, msg)
}

var (
	ErrZeroPrincipal     = kindError(ErrValidation, "principal must be positive")
	ErrZeroAmount        = kindError(ErrValidation, "amount must be positive")
	ErrSplitCount        = kindError(ErrValidation, "split count must be at least 2")
	ErrSplitTooLarge     = kindError(ErrValidation, "split count exceeds principal units")
	ErrSplitTooMany      = kindError(ErrValidation, "split count exceeds the per-split child limit")
	ErrFutureHour        = kindError(ErrValidation, "hour has not elapsed yet")
	ErrInvalidDecimal    = kindError(ErrValidation, "invalid decimal")
	ErrInvalidCurve      = kindError(ErrValidation, "invalid yield curve")
	ErrInvalidVesting    = kindError(ErrValidation, "invalid vesting plan")
	ErrInvalidStart      = kindError(ErrValidation, "invalid sale start")
	ErrClaimNotFound     = kindError(ErrNotFound, "claim not found")
	ErrHourNotFound      = kindError(ErrNotFound, "no mint entry at or before hour")
	ErrVestingNotFound   = kindError(ErrNotFound, "vesting schedule not configured")
	ErrClaimRedeemed     = kindError(ErrState, "claim already redeemed")
	ErrClaimSplit        = kindError(ErrState, "claim consumed by split")
	ErrSaleNotStarted    = kindError(ErrState, "sale not started")
	ErrSaleStarted       = kindError(ErrState, "sale already started")
	ErrVestingBuilt      = kindError(ErrState, "vesting schedule already built")
	ErrNothingVested     = kindError(ErrState, "no vesting epoch eligible for release")
	ErrHalted            = kindError(ErrState, "ledger halted after invariant violation")
	ErrOverflow          = kindError(ErrArithmetic, "numeric overflow")
	ErrUnderflow         = kindError(ErrArithmetic, "numeric underflow")
	ErrDivisionByZero    = kindError(ErrArithmetic, "division by zero")
	ErrNoPrincipal       = kindError(ErrArithmetic, "no principal minted yet")
	ErrNoActivePrincipal = kindError(ErrArithmetic, "active principal is zero")
)

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// Kind returns the short name of the error kind wrapped by err, or "internal"
// for storage and collaborator failures.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrArithmetic):
		return "arithmetic"
	default:
		return "internal"
	}
}
