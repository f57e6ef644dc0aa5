package accrual

import (
	"errors"
	"time"

	"github.com/syndtr/goleveldb/leveldb/util"

	"yieldledger/storage"
)

// Vesting releases a principal reserve in equal slices, one per elapsed
// epoch. Epochs are consumed in order and never released twice.
type Vesting struct {
	store storage.Store
}

// NewVesting binds the scheduler to a store.
func NewVesting(store storage.Store) *Vesting {
	return &Vesting{store: store}
}

// Build lays out plan.Weeks epochs starting at start. It may run once.
func (v *Vesting) Build(start time.Time, plan VestingPlan) (*VestingState, error) {
	if plan.Weeks == 0 || plan.Period <= 0 || plan.Period%time.Second != 0 {
		return nil, ErrInvalidVesting
	}
	if _, ok, err := v.State(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrVestingBuilt
	}
	start = start.UTC().Truncate(time.Second)
	if plan.Weeks > uint64(1<<62)/uint64(plan.Period) {
		return nil, ErrOverflow
	}
	state := &VestingState{
		Start:     start,
		Period:    plan.Period,
		Weeks:     plan.Weeks,
		Reserve:   plan.ReserveUnits,
		PerPeriod: plan.ReserveUnits / plan.Weeks,
	}
	for i := uint64(0); i < plan.Weeks; i++ {
		entry := VestingEntry{Index: i, Epoch: start.Add(time.Duration(i) * plan.Period)}
		if err := v.putEntry(entry); err != nil {
			return nil, err
		}
	}
	if err := v.putState(state); err != nil {
		return nil, err
	}
	return state, nil
}

// State returns the schedule summary, if one was built.
func (v *Vesting) State() (*VestingState, bool, error) {
	raw, err := v.store.Get(vestingStateKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	state, err := decodeVestingState(raw)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

// Entries returns every epoch in order.
func (v *Vesting) Entries() ([]VestingEntry, error) {
	iter := v.store.NewIterator(util.BytesPrefix(vestingPrefix))
	defer iter.Release()
	var entries []VestingEntry
	for iter.Next() {
		index, err := parseIndexKey(vestingPrefix, iter.Key())
		if err != nil {
			return nil, err
		}
		entry, err := decodeVestingEntry(index, iter.Value())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, iter.Error()
}

// VestingRelease is the outcome of one withdrawal.
type VestingRelease struct {
	Amount uint64
	Epochs []uint64
	Dust   bool
}

// Withdraw releases PerPeriod for every unused epoch that has elapsed by now
// and marks those epochs used. Once every epoch is used and the full
// duration has passed, whatever remains of the reserve is released in one
// final call.
func (v *Vesting) Withdraw(now time.Time) (*VestingRelease, error) {
	state, ok, err := v.State()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVestingNotFound
	}
	entries, err := v.Entries()
	if err != nil {
		return nil, err
	}

	release := &VestingRelease{}
	allUsed := true
	for _, entry := range entries {
		if entry.Used {
			continue
		}
		if entry.Epoch.After(now) {
			allUsed = false
			continue
		}
		entry.Used = true
		if err := v.putEntry(entry); err != nil {
			return nil, err
		}
		release.Epochs = append(release.Epochs, entry.Index)
	}

	switch {
	case len(release.Epochs) > 0:
		amount := uint64(len(release.Epochs)) * state.PerPeriod
		if amount > state.Remaining() {
			return nil, invariantf("vesting release %d exceeds remaining reserve %d", amount, state.Remaining())
		}
		release.Amount = amount
	case allUsed && !now.Before(state.End()) && state.Remaining() > 0:
		release.Amount = state.Remaining()
		release.Dust = true
	default:
		return nil, ErrNothingVested
	}

	state.Released += release.Amount
	if err := v.putState(state); err != nil {
		return nil, err
	}
	return release, nil
}

func (v *Vesting) putEntry(entry VestingEntry) error {
	encoded, err := encodeVestingEntry(entry)
	if err != nil {
		return err
	}
	return v.store.Put(indexKey(vestingPrefix, entry.Index), encoded)
}

func (v *Vesting) putState(state *VestingState) error {
	encoded, err := encodeVestingState(state)
	if err != nil {
		return err
	}
	return v.store.Put(vestingStateKey, encoded)
}
