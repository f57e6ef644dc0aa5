package accrual

import (
	"context"
	"fmt"
	"time"

	"yieldledger/core/events"
)

// StartSale fixes the instant hour 0 begins and, when plan.Weeks is non-zero,
// lays out the vesting schedule for the principal reserve. It may run once.
func (e *Engine) StartSale(ctx context.Context, start time.Time, plan VestingPlan) error {
	return e.execute(ctx, OpStartSale, func(ctx context.Context, tx *txn) error {
		if start.IsZero() || start.Unix() < 0 {
			return ErrInvalidStart
		}
		if _, ok, err := e.saleStart(); err != nil {
			return err
		} else if ok {
			return ErrSaleStarted
		}
		start = start.UTC().Truncate(time.Second)
		if err := e.journal.Put(saleKey, encodeUint64(uint64(start.Unix()))); err != nil {
			return err
		}
		switch {
		case plan.Weeks > 0:
			if _, err := e.vesting.Build(start, plan); err != nil {
				return err
			}
		case plan.ReserveUnits > 0:
			return ErrInvalidVesting
		}
		tx.emit(events.SaleStarted{Start: start.Unix(), VestingWeeks: plan.Weeks, Reserve: plan.ReserveUnits})
		tx.log("start", start, "vestingWeeks", plan.Weeks)
		return nil
	})
}

// Deposit mints a claim for req.Principal units at the first open hour.
// Backing, when non-zero and a reserve pool is wired, is contributed to the
// pool and the returned shares become the claim's trust share.
func (e *Engine) Deposit(ctx context.Context, req DepositRequest) (*DepositReceipt, error) {
	var receipt *DepositReceipt
	err := e.execute(ctx, OpDeposit, func(ctx context.Context, tx *txn) error {
		if req.Principal == 0 {
			return ErrZeroPrincipal
		}
		if err := tx.requireOpen(); err != nil {
			return err
		}
		if err := e.catchUp(tx); err != nil {
			return err
		}
		watermark, err := e.watermark()
		if err != nil {
			return err
		}
		hour := tx.hour
		if watermark > hour {
			hour = watermark
		}
		if err := e.mint.Record(hour, req.Principal); err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		var overflow bool
		if totals.Minted, overflow = addUint64(totals.Minted, req.Principal); overflow {
			return ErrOverflow
		}
		if totals.LivePrincipal, overflow = addUint64(totals.LivePrincipal, req.Principal); overflow {
			return ErrOverflow
		}
		totals.LiveClaims++
		if err := e.checkTotals(totals); err != nil {
			return err
		}

		id, err := e.registry.Create(e.idPolicy.Hint(hour), hour, req.Principal, Zero())
		if err != nil {
			return err
		}
		if err := e.storeTotals(totals); err != nil {
			return err
		}

		trustShare := Zero()
		if e.reserve != nil && !req.Backing.IsZero() {
			token, err := e.contribute(ctx, tx, req.Backing)
			if err != nil {
				return err
			}
			trustShare = token.Shares
			claim, err := e.registry.Get(id)
			if err != nil {
				return err
			}
			claim.TrustShare = trustShare
			if err := e.registry.Update(claim); err != nil {
				return err
			}
		}
		var asset AssetHandle
		if e.assets != nil {
			if asset, err = e.mintAsset(ctx, tx, AssetPrincipal, NewDecimal(req.Principal)); err != nil {
				return err
			}
		}
		receipt = &DepositReceipt{
			ClaimID:    id,
			MintHour:   hour,
			Principal:  req.Principal,
			TrustShare: trustShare,
			Asset:      asset,
		}
		tx.emit(events.ClaimDeposited{ClaimID: id, MintHour: hour, Principal: req.Principal, TrustShare: trustShare.String()})
		tx.log("claim", id, "principal", req.Principal)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Split replaces claim id with n children holding the same mint hour. The
// first child takes any remainder left by dividing principal, trust share
// and accrued yield by principal weight.
func (e *Engine) Split(ctx context.Context, id uint64, n uint64) (*SplitResult, error) {
	var result *SplitResult
	err := e.execute(ctx, OpSplit, func(ctx context.Context, tx *txn) error {
		if n < 2 {
			return ErrSplitCount
		}
		if n > e.maxSplit {
			return fmt.Errorf("%w (%d > %d)", ErrSplitTooMany, n, e.maxSplit)
		}
		if err := tx.requireOpen(); err != nil {
			return err
		}
		if err := e.catchUp(tx); err != nil {
			return err
		}
		parent, err := e.registry.Get(id)
		if err != nil {
			return err
		}
		parentYield, err := e.yields.Get(id)
		if err != nil {
			return err
		}
		parts, err := planSplit(parent.Principal, n, parent.TrustShare, parentYield)
		if err != nil {
			return err
		}
		if _, _, err := e.registry.Remove(id, ClaimStatusSplit, tx.hour); err != nil {
			return err
		}

		ids := make([]uint64, 0, len(parts))
		hint := e.idPolicy.Hint(tx.hour)
		for _, part := range parts {
			childID, err := e.registry.Create(hint, parent.MintHour, part.Principal, part.TrustShare)
			if err != nil {
				return err
			}
			if err := e.yields.Set(childID, part.Yield); err != nil {
				return err
			}
			ids = append(ids, childID)
			if hint != 0 {
				hint = childID + 1
			}
		}

		children := make([]*Claim, len(ids))
		childYields := make([]Decimal, len(ids))
		for i, childID := range ids {
			if children[i], err = e.registry.Get(childID); err != nil {
				return err
			}
			if childYields[i], err = e.yields.Get(childID); err != nil {
				return err
			}
		}
		if err := verifySplit(parent, parentYield, children, childYields); err != nil {
			return err
		}

		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		totals.LiveClaims += n - 1
		if err := e.storeTotals(totals); err != nil {
			return err
		}
		result = &SplitResult{First: ids[0], Rest: ids[1:]}
		tx.emit(events.ClaimSplit{Parent: id, Children: ids})
		tx.log("claim", id, "children", len(ids))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Redeem retires a claim and pays out the yield it accrued through the
// watermark. Only completed hours are settled first, so a claim redeemed
// during hour H receives nothing for H; that share stays in the ledger's
// yield dust. The trust share is redeemed from the reserve pool, the yield
// is minted and the principal handle, when given, is burned last.
func (e *Engine) Redeem(ctx context.Context, req RedeemRequest) (*RedeemReceipt, error) {
	var receipt *RedeemReceipt
	err := e.execute(ctx, OpRedeem, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOpen(); err != nil {
			return err
		}
		if err := e.catchUp(tx); err != nil {
			return err
		}
		claim, yield, err := e.registry.Remove(req.ClaimID, ClaimStatusRedeemed, tx.hour)
		if err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		if totals.LivePrincipal < claim.Principal || totals.LiveClaims == 0 {
			return invariantf("redeeming claim %d exceeds live principal %d", claim.ID, totals.LivePrincipal)
		}
		totals.LivePrincipal -= claim.Principal
		totals.LiveClaims--
		var overflow bool
		if totals.Redeemed, overflow = addUint64(totals.Redeemed, claim.Principal); overflow {
			return ErrOverflow
		}
		if totals.YieldRedeemed, err = totals.YieldRedeemed.Add(yield); err != nil {
			return err
		}
		if err := e.storeTotals(totals); err != nil {
			return err
		}

		backing := Zero()
		if e.reserve != nil && !claim.TrustShare.IsZero() {
			if backing, err = e.redeemShares(ctx, tx, ShareToken{Shares: claim.TrustShare}); err != nil {
				return err
			}
		}
		var yieldAsset AssetHandle
		if e.assets != nil {
			if !yield.IsZero() {
				if yieldAsset, err = e.mintAsset(ctx, tx, AssetYield, yield); err != nil {
					return err
				}
			}
			// Burning cannot be undone, so it is the final step.
			if req.Principal != "" {
				if err := e.assets.Burn(ctx, req.Principal); err != nil {
					return fmt.Errorf("accrual: burn principal: %w", err)
				}
			}
		}
		receipt = &RedeemReceipt{Claim: *claim, Yield: yield, YieldAsset: yieldAsset, Backing: backing}
		tx.emit(events.ClaimRedeemed{
			ClaimID:   claim.ID,
			Principal: claim.Principal,
			Yield:     yield.String(),
			Backing:   backing.String(),
		})
		tx.log("claim", claim.ID, "yield", yield.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// WithdrawVesting releases the reserve slices of every elapsed epoch.
func (e *Engine) WithdrawVesting(ctx context.Context) (*VestingReceipt, error) {
	var receipt *VestingReceipt
	err := e.execute(ctx, OpWithdrawVesting, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOpen(); err != nil {
			return err
		}
		if err := e.catchUp(tx); err != nil {
			return err
		}
		release, err := e.vesting.Withdraw(tx.now)
		if err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		var overflow bool
		if totals.Minted, overflow = addUint64(totals.Minted, release.Amount); overflow {
			return ErrOverflow
		}
		totals.VestingReleased += release.Amount
		if err := e.storeTotals(totals); err != nil {
			return err
		}

		var asset AssetHandle
		if e.assets != nil && release.Amount > 0 {
			if asset, err = e.mintAsset(ctx, tx, AssetVested, NewDecimal(release.Amount)); err != nil {
				return err
			}
		}
		receipt = &VestingReceipt{Released: release.Amount, Epochs: release.Epochs, Dust: release.Dust, Asset: asset}
		tx.emit(events.VestingReleased{Amount: release.Amount, Epochs: release.Epochs, Dust: release.Dust})
		tx.log("released", release.Amount, "epochs", len(release.Epochs), "dust", release.Dust)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// AdvanceTo distributes yield through hour (inclusive). hour may be the hour
// in progress, which closes it: later deposits land in the next hour.
func (e *Engine) AdvanceTo(ctx context.Context, hour uint64) (*AdvanceSummary, error) {
	var summary *AdvanceSummary
	err := e.execute(ctx, OpAdvance, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOpen(); err != nil {
			return err
		}
		if hour > tx.hour {
			return fmt.Errorf("%w (hour %d, current %d)", ErrFutureHour, hour, tx.hour)
		}
		var err error
		summary, err = e.advance(tx, hour)
		if err != nil {
			return err
		}
		tx.log("through", hour, "hours", summary.Hours, "updates", summary.ClaimUpdates)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// Settle distributes every completed hour. It is a no-op before the first
// deposit and during hour 0.
func (e *Engine) Settle(ctx context.Context) (*AdvanceSummary, error) {
	var summary *AdvanceSummary
	err := e.execute(ctx, OpSettle, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOpen(); err != nil {
			return err
		}
		if err := e.catchUp(tx); err != nil {
			return err
		}
		if len(tx.advanced) > 0 {
			summary = tx.advanced[len(tx.advanced)-1]
			tx.log("hours", summary.Hours, "updates", summary.ClaimUpdates)
			return nil
		}
		watermark, err := e.watermark()
		if err != nil {
			return err
		}
		summary = &AdvanceSummary{FromHour: watermark, ThroughHour: watermark, Emitted: Zero(), Allocated: Zero(), Watermark: watermark}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
