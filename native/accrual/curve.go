package accrual

// Truncations of the two irrational constants the default curve is built on.
var (
	E  = MustDecimal("2.718281828459045235")
	Pi = MustDecimal("3.141592653589793238")
)

// Curve maps an hour index to the total yield generated during that hour:
//
//	yield(h) = Base + Slope*h + Asymptote*h/(h+Knee)
//
// The last term rises towards Asymptote as h grows. The coefficients carry
// no derivation of their own and are supplied as configuration.
type Curve struct {
	Base      Decimal `json:"base"`
	Slope     Decimal `json:"slope"`
	Asymptote Decimal `json:"asymptote"`
	Knee      Decimal `json:"knee"`
}

// DefaultCurve returns the curve shipped with new ledgers: Base = 100e,
// Slope = 0.001, Asymptote = 100π, Knee = 24e.
func DefaultCurve() Curve {
	return Curve{
		Base:      mustMulUint(E, 100),
		Slope:     MustDecimal("0.001"),
		Asymptote: mustMulUint(Pi, 100),
		Knee:      mustMulUint(E, 24),
	}
}

func mustMulUint(d Decimal, n uint64) Decimal {
	out, err := d.MulUint(n)
	if err != nil {
		panic("accrual: curve constant overflow")
	}
	return out
}

// Validate reports whether the curve can be evaluated at every hour.
func (c Curve) Validate() error {
	if c.Knee.IsZero() {
		return ErrInvalidCurve
	}
	return nil
}

// Evaluate returns the total yield generated during hour. It has no side
// effects; overflow is reported rather than wrapped.
func (c Curve) Evaluate(hour uint64) (Decimal, error) {
	if err := c.Validate(); err != nil {
		return Decimal{}, err
	}
	linear, err := c.Slope.MulUint(hour)
	if err != nil {
		return Decimal{}, err
	}
	h := NewDecimal(hour)
	denominator, err := h.Add(c.Knee)
	if err != nil {
		return Decimal{}, err
	}
	saturating, err := c.Asymptote.MulDivDecimal(h, denominator)
	if err != nil {
		return Decimal{}, err
	}
	return SumDecimals(c.Base, linear, saturating)
}
