package accrual

import (
	"bytes"
	"errors"
	"testing"
)

func TestDefaultCurveConstants(t *testing.T) {
	curve := DefaultCurve()
	if curve.Base.String() != "271.8281828459045235" {
		t.Fatalf("unexpected base %s", curve.Base)
	}
	if curve.Asymptote.String() != "314.1592653589793238" {
		t.Fatalf("unexpected asymptote %s", curve.Asymptote)
	}
	if curve.Knee.String() != "65.23876388301708564" {
		t.Fatalf("unexpected knee %s", curve.Knee)
	}
	y0, err := curve.Evaluate(0)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !y0.Equal(curve.Base) {
		t.Fatalf("hour 0 must yield the base, got %s", y0)
	}
}

func TestCurveTerms(t *testing.T) {
	linear := Curve{Base: Zero(), Slope: NewDecimal(1), Asymptote: Zero(), Knee: NewDecimal(1)}
	got, err := linear.Evaluate(42)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !got.Equal(NewDecimal(42)) {
		t.Fatalf("expected 42, got %s", got)
	}

	saturating := Curve{Base: Zero(), Slope: Zero(), Asymptote: NewDecimal(10), Knee: NewDecimal(10)}
	got, err = saturating.Evaluate(10)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !got.Equal(NewDecimal(5)) {
		t.Fatalf("expected half the asymptote at the knee, got %s", got)
	}
	far, err := saturating.Evaluate(1_000_000_000)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if far.Cmp(NewDecimal(10)) >= 0 || far.Cmp(MustDecimal("9.99")) <= 0 {
		t.Fatalf("expected value just below the asymptote, got %s", far)
	}
}

func TestCurveIsNonDecreasing(t *testing.T) {
	curve := DefaultCurve()
	prev := Zero()
	for h := uint64(0); h < 2000; h += 7 {
		got, err := curve.Evaluate(h)
		if err != nil {
			t.Fatalf("evaluate %d: %v", h, err)
		}
		if got.Cmp(prev) < 0 {
			t.Fatalf("curve decreased at hour %d: %s < %s", h, got, prev)
		}
		prev = got
	}
}

func TestCurveRejectsOverflowAndZeroKnee(t *testing.T) {
	if _, err := (Curve{Knee: Zero()}).Evaluate(1); !errors.Is(err, ErrInvalidCurve) {
		t.Fatalf("expected invalid curve, got %v", err)
	}
	huge, err := DecimalFromBytes(bytes.Repeat([]byte{0xff}, 32))
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	curve := Curve{Base: Zero(), Slope: huge, Asymptote: Zero(), Knee: NewDecimal(1)}
	if _, err := curve.Evaluate(2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}
