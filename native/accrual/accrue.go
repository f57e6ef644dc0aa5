package accrual

import (
	"errors"
	"math"

	"yieldledger/core/events"
	"yieldledger/storage"
)

// advance distributes every hour from the watermark through `through`
// (inclusive) across the claims live at that hour, then moves the watermark
// to through+1.
//
// Each pass walks the whole live claim set once per elapsed hour, so the cost
// is O(hours × claims). Claims are loaded once and their credits written back
// once; callers that can batch should call Settle on an interval rather than
// advancing on every mutation.
func (e *Engine) advance(tx *txn, through uint64) (*AdvanceSummary, error) {
	firstHour, _, ok, err := e.mint.First()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoPrincipal
	}
	watermark, err := e.watermark()
	if err != nil {
		return nil, err
	}
	start := watermark
	if firstHour > start {
		start = firstHour
	}
	summary := &AdvanceSummary{
		FromHour:    start,
		ThroughHour: through,
		Emitted:     Zero(),
		Allocated:   Zero(),
		Watermark:   watermark,
	}
	if through < start {
		return summary, nil
	}
	if through == math.MaxUint64 {
		return nil, ErrOverflow
	}

	claims, err := e.registry.Live()
	if err != nil {
		return nil, err
	}
	credits := make([]Decimal, len(claims))
	for h := start; h <= through; h++ {
		total, err := e.curve.Evaluate(h)
		if err != nil {
			return nil, err
		}
		active, err := e.mint.Get(h)
		if err != nil {
			return nil, err
		}
		if active == 0 {
			return nil, ErrNoActivePrincipal
		}
		allocated := Zero()
		var units uint64
		for i, claim := range claims {
			if claim.MintHour > h {
				continue
			}
			share, err := total.MulDiv(claim.Principal, active)
			if err != nil {
				return nil, err
			}
			if credits[i], err = credits[i].Add(share); err != nil {
				return nil, err
			}
			if allocated, err = allocated.Add(share); err != nil {
				return nil, err
			}
			units += claim.Principal
			if units < claim.Principal || units > active {
				return nil, invariantf("live principal exceeds active principal %d at hour %d", active, h)
			}
			summary.ClaimUpdates++
		}
		if allocated.Cmp(total) > 0 {
			return nil, invariantf("hour %d allocated %s of %s", h, allocated, total)
		}
		if summary.Emitted, err = summary.Emitted.Add(total); err != nil {
			return nil, err
		}
		if summary.Allocated, err = summary.Allocated.Add(allocated); err != nil {
			return nil, err
		}
	}
	for i, claim := range claims {
		if credits[i].IsZero() {
			continue
		}
		if err := e.yields.Add(claim.ID, credits[i]); err != nil {
			return nil, err
		}
	}

	summary.Hours = through - start + 1
	summary.Watermark = through + 1
	if err := e.journal.Put(watermarkKey, encodeUint64(summary.Watermark)); err != nil {
		return nil, err
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	if totals.YieldEmitted, err = totals.YieldEmitted.Add(summary.Emitted); err != nil {
		return nil, err
	}
	if totals.YieldAllocated, err = totals.YieldAllocated.Add(summary.Allocated); err != nil {
		return nil, err
	}
	if err := e.storeTotals(totals); err != nil {
		return nil, err
	}

	tx.advanced = append(tx.advanced, summary)
	tx.emit(events.YieldAdvanced{
		FromHour:  summary.FromHour,
		Watermark: summary.Watermark,
		Emitted:   summary.Emitted.String(),
		Allocated: summary.Allocated.String(),
	})
	return summary, nil
}

// catchUp settles every completed hour. The hour in progress stays open so
// deposits made during it still count towards its active principal.
func (e *Engine) catchUp(tx *txn) error {
	if !tx.started || tx.hour == 0 {
		return nil
	}
	empty, err := e.mint.Empty()
	if err != nil || empty {
		return err
	}
	_, err = e.advance(tx, tx.hour-1)
	return err
}

func (e *Engine) watermark() (uint64, error) {
	raw, err := e.journal.Get(watermarkKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeUint64(raw)
}

func (e *Engine) loadTotals() (*Totals, error) {
	raw, err := e.journal.Get(totalsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return &Totals{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeTotals(raw)
}

// storeTotals checks the supply invariant against the counters and the mint
// index before persisting them.
func (e *Engine) storeTotals(t *Totals) error {
	if err := e.checkTotals(t); err != nil {
		return err
	}
	encoded, err := encodeTotals(t)
	if err != nil {
		return err
	}
	return e.journal.Put(totalsKey, encoded)
}

func (e *Engine) checkTotals(t *Totals) error {
	accounted, overflow := addUint64(t.LivePrincipal, t.Redeemed, t.VestingReleased)
	if overflow || accounted != t.Minted {
		return invariantf("principal supply: live %d + redeemed %d + vested %d != minted %d",
			t.LivePrincipal, t.Redeemed, t.VestingReleased, t.Minted)
	}
	if t.YieldAllocated.Cmp(t.YieldEmitted) > 0 {
		return invariantf("yield allocated %s exceeds emitted %s", t.YieldAllocated, t.YieldEmitted)
	}
	if t.YieldRedeemed.Cmp(t.YieldAllocated) > 0 {
		return invariantf("yield redeemed %s exceeds allocated %s", t.YieldRedeemed, t.YieldAllocated)
	}
	_, cumulative, ok, err := e.mint.Last()
	if err != nil {
		return err
	}
	if !ok {
		cumulative = 0
	}
	if cumulative != t.Minted-t.VestingReleased {
		return invariantf("mint index holds %d, claims account for %d", cumulative, t.Minted-t.VestingReleased)
	}
	return nil
}

func addUint64(values ...uint64) (uint64, bool) {
	var total uint64
	for _, v := range values {
		next := total + v
		if next < total {
			return 0, true
		}
		total = next
	}
	return total, false
}
