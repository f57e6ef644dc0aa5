package accrual

import (
	"context"
	"time"
)

// AssetHandle is an opaque reference issued by the AssetTransfer
// collaborator. The engine stores and forwards handles but never interprets
// them.
type AssetHandle string

// AssetTransfer realises ledger quantities as transferable value.
type AssetTransfer interface {
	Mint(ctx context.Context, kind AssetKind, amount Decimal) (AssetHandle, error)
	Burn(ctx context.Context, handle AssetHandle) error
	Transfer(ctx context.Context, handle AssetHandle, amount Decimal) (AssetHandle, error)
}

// ShareToken is a position in the reserve pool backing trust shares.
type ShareToken struct {
	Shares Decimal `json:"shares"`
}

// ReservePool is the opaque pool backing the trust-share fraction of claims.
type ReservePool interface {
	Contribute(ctx context.Context, amount Decimal) (ShareToken, error)
	Redeem(ctx context.Context, token ShareToken) (Decimal, error)
}

// ReserveReverser is an optional ReservePool extension that undoes a
// Contribute or a Redeem exactly. When a later step of the same operation
// fails the engine reverts through it; pools without it are compensated with
// the inverse Redeem or Contribute call, which may round.
type ReserveReverser interface {
	RevertContribute(ctx context.Context, amount Decimal, token ShareToken) error
	RevertRedeem(ctx context.Context, token ShareToken, payout Decimal) error
}

// AccessControl gates every mutation before any ledger logic runs.
type AccessControl interface {
	Authorize(ctx context.Context, operation string) error
}

// Clock is the only time source consulted by the engine, read once per
// operation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// HoursSince returns the number of whole hours elapsed from ref to now.
func HoursSince(ref, now time.Time) (uint64, error) {
	if now.Before(ref) {
		return 0, ErrSaleNotStarted
	}
	return uint64(now.Sub(ref) / time.Hour), nil
}
