package accrual

import (
	"errors"
	"testing"
)

func TestPlanSplitSevenIntoThree(t *testing.T) {
	parts, err := planSplit(7, 3, NewDecimal(1), NewDecimal(10))
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	want := []uint64{3, 2, 2}
	for i, part := range parts {
		if part.Principal != want[i] {
			t.Fatalf("part %d: expected %d units, got %d", i, want[i], part.Principal)
		}
	}
	if parts[1].TrustShare.String() != "0.285714285714285714" {
		t.Fatalf("unexpected rest trust share %s", parts[1].TrustShare)
	}
	if parts[0].TrustShare.String() != "0.428571428571428572" {
		t.Fatalf("unexpected first trust share %s", parts[0].TrustShare)
	}
	if parts[1].Yield.String() != "2.857142857142857142" {
		t.Fatalf("unexpected rest yield %s", parts[1].Yield)
	}
	if parts[0].Yield.String() != "4.285714285714285716" {
		t.Fatalf("unexpected first yield %s", parts[0].Yield)
	}
}

func TestPlanSplitRejectsBadCounts(t *testing.T) {
	if _, err := planSplit(7, 1, Zero(), Zero()); !errors.Is(err, ErrSplitCount) {
		t.Fatalf("expected split count error, got %v", err)
	}
	if _, err := planSplit(7, 8, Zero(), Zero()); !errors.Is(err, ErrSplitTooLarge) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected split too large, got %v", err)
	}
}

func TestPlanSplitPreservesSums(t *testing.T) {
	trust := MustDecimal("3.141592653589793238")
	yield := MustDecimal("1234.567890123456789")
	for units := uint64(2); units <= 40; units++ {
		for n := uint64(2); n <= units; n++ {
			parts, err := planSplit(units, n, trust, yield)
			if err != nil {
				t.Fatalf("plan %d/%d: %v", units, n, err)
			}
			var principal uint64
			trustSum, yieldSum := Zero(), Zero()
			for _, part := range parts {
				if part.Principal == 0 {
					t.Fatalf("plan %d/%d: zero principal child", units, n)
				}
				principal += part.Principal
				trustSum, _ = trustSum.Add(part.TrustShare)
				yieldSum, _ = yieldSum.Add(part.Yield)
			}
			if principal != units || !trustSum.Equal(trust) || !yieldSum.Equal(yield) {
				t.Fatalf("plan %d/%d does not reconstruct: %d %s %s", units, n, principal, trustSum, yieldSum)
			}
		}
	}
}

func TestVerifySplitDetectsMismatch(t *testing.T) {
	parent := &Claim{ID: 1, MintHour: 2, Principal: 5, TrustShare: NewDecimal(1)}
	children := []*Claim{
		{ID: 2, MintHour: 2, Principal: 3, TrustShare: NewDecimal(1)},
		{ID: 3, MintHour: 2, Principal: 2, TrustShare: Zero()},
	}
	if err := verifySplit(parent, NewDecimal(4), children, []Decimal{NewDecimal(4), Zero()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := verifySplit(parent, NewDecimal(4), children, []Decimal{NewDecimal(3), Zero()})
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	children[1].MintHour = 3
	err = verifySplit(parent, NewDecimal(4), children, []Decimal{NewDecimal(4), Zero()})
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected mint hour mismatch to be fatal, got %v", err)
	}
}
