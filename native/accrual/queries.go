package accrual

import (
	"errors"
	"fmt"
	"time"
)

// Queries read committed state as of the watermark: yield for the hour in
// progress is not visible until that hour is settled.

// Claim returns a live claim and the yield it accrued.
func (e *Engine) Claim(id uint64) (*ClaimView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.claimView(id)
}

func (e *Engine) claimView(id uint64) (*ClaimView, error) {
	claim, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	yield, err := e.yields.Get(id)
	if err != nil {
		return nil, err
	}
	watermark, err := e.watermark()
	if err != nil {
		return nil, err
	}
	return &ClaimView{Claim: *claim, Yield: yield, Watermark: watermark}, nil
}

// Claims returns every live claim in id order.
func (e *Engine) Claims() ([]*ClaimView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.claimViews()
}

func (e *Engine) claimViews() ([]*ClaimView, error) {
	watermark, err := e.watermark()
	if err != nil {
		return nil, err
	}
	var views []*ClaimView
	err = e.registry.Each(func(c *Claim) error {
		yield, err := e.yields.Get(c.ID)
		if err != nil {
			return err
		}
		views = append(views, &ClaimView{Claim: *c, Yield: yield, Watermark: watermark})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// AccruedYield returns the yield credited to a live claim.
func (e *Engine) AccruedYield(id uint64) (Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.registry.Get(id); err != nil {
		return Decimal{}, err
	}
	return e.yields.Get(id)
}

// MintedAt returns the cumulative principal active during hour.
func (e *Engine) MintedAt(hour uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mint.Get(hour)
}

// MintEntries returns the dense mint index in hour order.
func (e *Engine) MintEntries() ([]MintEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mintEntries()
}

func (e *Engine) mintEntries() ([]MintEntry, error) {
	var entries []MintEntry
	err := e.mint.Each(func(entry MintEntry) bool {
		entries = append(entries, entry)
		return true
	})
	return entries, err
}

// Watermark returns the first hour not yet distributed.
func (e *Engine) Watermark() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watermark()
}

// VestingSchedule returns the reserve schedule and its epochs.
func (e *Engine) VestingSchedule() (*VestingSchedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vestingSchedule()
}

func (e *Engine) vestingSchedule() (*VestingSchedule, error) {
	state, ok, err := e.vesting.State()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVestingNotFound
	}
	entries, err := e.vesting.Entries()
	if err != nil {
		return nil, err
	}
	return &VestingSchedule{State: *state, Entries: entries}, nil
}

// Totals returns the ledger-wide counters.
func (e *Engine) Totals() (Totals, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	totals, err := e.loadTotals()
	if err != nil {
		return Totals{}, err
	}
	return *totals, nil
}

// SaleStart returns the instant hour 0 began.
func (e *Engine) SaleStart() (time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start, ok, err := e.saleStart()
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, ErrSaleNotStarted
	}
	return start, nil
}

// CurrentHour returns the sale hour observed by the clock right now.
func (e *Engine) CurrentHour() (uint64, error) {
	start, err := e.SaleStart()
	if err != nil {
		return 0, err
	}
	return HoursSince(start, e.clock.Now())
}

// CheckSupply recomputes the supply invariant from a full scan of the
// registry and the yield index. A violation halts the ledger; storage and
// decode failures are returned without halting.
func (e *Engine) CheckSupply() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkSupply(); err != nil {
		if e.halted == nil && errors.Is(err, ErrInvariantViolation) {
			e.halt("check_supply", err)
		}
		return err
	}
	return nil
}

func (e *Engine) checkSupply() error {
	totals, err := e.loadTotals()
	if err != nil {
		return err
	}
	if err := e.checkTotals(totals); err != nil {
		return err
	}
	var units, count uint64
	owed := Zero()
	err = e.registry.Each(func(c *Claim) error {
		var overflow bool
		if units, overflow = addUint64(units, c.Principal); overflow {
			return invariantf("live principal overflows")
		}
		count++
		yield, err := e.yields.Get(c.ID)
		if err != nil {
			return invariantf("claim %d has no yield entry", c.ID)
		}
		if owed, err = owed.Add(yield); err != nil {
			return invariantf("owed yield overflows")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if units != totals.LivePrincipal || count != totals.LiveClaims {
		return invariantf("registry holds %d claims with %d units, counters say %d claims with %d units",
			count, units, totals.LiveClaims, totals.LivePrincipal)
	}
	var entries uint64
	if err := e.yields.Each(func(uint64, Decimal) error {
		entries++
		return nil
	}); err != nil {
		return err
	}
	if entries != count {
		return invariantf("yield index holds %d entries for %d claims", entries, count)
	}
	accounted, err := owed.Add(totals.YieldRedeemed)
	if err != nil {
		return invariantf("yield accounting overflows")
	}
	if !accounted.Equal(totals.YieldAllocated) {
		return invariantf("owed %s + redeemed %s != allocated %s", owed, totals.YieldRedeemed, totals.YieldAllocated)
	}
	return nil
}

// Snapshot returns a consistent read of the whole ledger.
func (e *Engine) Snapshot() (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	watermark, err := e.watermark()
	if err != nil {
		return nil, err
	}
	claims, err := e.claimViews()
	if err != nil {
		return nil, err
	}
	mint, err := e.mintEntries()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		TakenAt:   e.clock.Now(),
		Watermark: watermark,
		Totals:    *totals,
		Claims:    claims,
		Mint:      mint,
	}
	schedule, err := e.vestingSchedule()
	switch {
	case err == nil:
		snap.Vesting = schedule
	case errors.Is(err, ErrNotFound):
	default:
		return nil, fmt.Errorf("accrual: snapshot vesting: %w", err)
	}
	return snap, nil
}
