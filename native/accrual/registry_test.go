package accrual

import (
	"errors"
	"testing"

	"yieldledger/storage"
)

func newTestRegistry() (*Registry, *YieldIndex) {
	db := storage.NewMemDB()
	yields := NewYieldIndex(db)
	return NewRegistry(db, yields), yields
}

func mustCreate(t *testing.T, r *Registry, hint, units uint64) uint64 {
	t.Helper()
	id, err := r.Create(hint, 0, units, Zero())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestRegistryLifecycle(t *testing.T) {
	reg, yields := newTestRegistry()

	first := mustCreate(t, reg, 0, 10)
	second := mustCreate(t, reg, 0, 20)
	if first != 1 || second != 2 {
		t.Fatalf("expected ordinal ids 1 and 2, got %d and %d", first, second)
	}
	yield, err := yields.Get(second)
	if err != nil || !yield.IsZero() {
		t.Fatalf("expected zero yield entry, got %s (%v)", yield, err)
	}

	claim, yield, err := reg.Remove(first, ClaimStatusRedeemed, 4)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if claim.Principal != 10 || !yield.IsZero() {
		t.Fatalf("unexpected removed claim %+v yield %s", claim, yield)
	}
	if _, err := reg.Get(first); !errors.Is(err, ErrClaimRedeemed) || !errors.Is(err, ErrState) {
		t.Fatalf("expected redeemed state error, got %v", err)
	}
	if _, _, err := reg.Remove(first, ClaimStatusRedeemed, 5); !errors.Is(err, ErrClaimRedeemed) {
		t.Fatalf("expected second removal to fail, got %v", err)
	}
	if _, err := yields.Get(first); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected yield entry removed, got %v", err)
	}
	if _, err := reg.Get(99); !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	tomb, ok, err := reg.Tombstone(first)
	if err != nil || !ok || tomb.Status != ClaimStatusRedeemed || tomb.Hour != 4 {
		t.Fatalf("unexpected tombstone %+v ok=%v err=%v", tomb, ok, err)
	}

	count, err := reg.Count()
	if err != nil || count != 1 {
		t.Fatalf("expected one live claim, got %d (%v)", count, err)
	}
	if _, err := reg.Create(0, 0, 0, Zero()); !errors.Is(err, ErrZeroPrincipal) {
		t.Fatalf("expected zero principal rejection, got %v", err)
	}
}

func TestRegistrySkipsPastTakenIDs(t *testing.T) {
	reg, _ := newTestRegistry()
	mustCreate(t, reg, 0, 1) // 1
	mustCreate(t, reg, 0, 1) // 2
	if _, _, err := reg.Remove(1, ClaimStatusSplit, 0); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if id := mustCreate(t, reg, 1, 1); id != 3 {
		t.Fatalf("expected skip past tombstone and live claim to 3, got %d", id)
	}
	if id := mustCreate(t, reg, 0, 1); id != 4 {
		t.Fatalf("expected counter to follow chosen id, got %d", id)
	}

	if id := mustCreate(t, reg, 1_000_001, 1); id != 1_000_001 {
		t.Fatalf("expected hinted id, got %d", id)
	}
	if id := mustCreate(t, reg, 1_000_001, 1); id != 1_000_002 {
		t.Fatalf("expected collision to move forward, got %d", id)
	}
	if id := mustCreate(t, reg, 0, 1); id != 1_000_003 {
		t.Fatalf("expected counter past hinted ids, got %d", id)
	}
	if id := mustCreate(t, reg, 10, 1); id != 10 {
		t.Fatalf("expected free low hint to be used, got %d", id)
	}

	live, err := reg.Live()
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	for i := 1; i < len(live); i++ {
		if live[i-1].ID >= live[i].ID {
			t.Fatalf("claims must iterate in id order: %d before %d", live[i-1].ID, live[i].ID)
		}
	}
}

func TestIDPolicyHint(t *testing.T) {
	if got := IDPolicySequential.Hint(5); got != 0 {
		t.Fatalf("sequential policy must not hint, got %d", got)
	}
	if got := IDPolicyHourly.Hint(0); got != 1 {
		t.Fatalf("expected hint 1 for hour 0, got %d", got)
	}
	if got := IDPolicyHourly.Hint(3); got != 3_000_001 {
		t.Fatalf("expected hint 3000001, got %d", got)
	}
	if got := IDPolicyHourly.Hint(^uint64(0)); got != 0 {
		t.Fatalf("overflowing hour must fall back to the counter, got %d", got)
	}
}
