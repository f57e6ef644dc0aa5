package accrual

import (
	"context"
	"errors"
	"fmt"
)

// Collaborator calls made inside an operation register an undo step on the
// transaction. If anything later in the operation fails, run reverts the
// journal and then replays the undo steps newest first, so the pool and the
// asset service end where they started.

func (tx *txn) onRevert(fn func(context.Context) error) { tx.undo = append(tx.undo, fn) }

func (e *Engine) contribute(ctx context.Context, tx *txn, amount Decimal) (ShareToken, error) {
	token, err := e.reserve.Contribute(ctx, amount)
	if err != nil {
		return ShareToken{}, fmt.Errorf("accrual: reserve contribute: %w", err)
	}
	pool := e.reserve
	tx.onRevert(func(ctx context.Context) error {
		if rev, ok := pool.(ReserveReverser); ok {
			return rev.RevertContribute(ctx, amount, token)
		}
		_, err := pool.Redeem(ctx, token)
		return err
	})
	return token, nil
}

func (e *Engine) redeemShares(ctx context.Context, tx *txn, token ShareToken) (Decimal, error) {
	payout, err := e.reserve.Redeem(ctx, token)
	if err != nil {
		return Decimal{}, fmt.Errorf("accrual: reserve redeem: %w", err)
	}
	pool := e.reserve
	tx.onRevert(func(ctx context.Context) error {
		if rev, ok := pool.(ReserveReverser); ok {
			return rev.RevertRedeem(ctx, token, payout)
		}
		if payout.IsZero() {
			return nil
		}
		_, err := pool.Contribute(ctx, payout)
		return err
	})
	return payout, nil
}

func (e *Engine) mintAsset(ctx context.Context, tx *txn, kind AssetKind, amount Decimal) (AssetHandle, error) {
	handle, err := e.assets.Mint(ctx, kind, amount)
	if err != nil {
		return "", fmt.Errorf("accrual: mint %s: %w", kind, err)
	}
	assets := e.assets
	tx.onRevert(func(ctx context.Context) error {
		return assets.Burn(ctx, handle)
	})
	return handle, nil
}

// compensate replays the undo steps of a failed operation. It runs detached
// from the caller's cancellation.
func (e *Engine) compensate(ctx context.Context, tx *txn) error {
	if tx == nil || len(tx.undo) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := tx.undo[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	tx.undo = nil
	if err := errors.Join(errs...); err != nil {
		e.logger.Error("accrual collaborator compensation failed", "op", tx.op, "error", err)
		return fmt.Errorf("accrual: compensate %s: %w", tx.op, err)
	}
	return nil
}
