package accrual

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Precision is the number of fractional digits carried by Decimal.
const Precision = 18

var (
	scale    = uint256.NewInt(1_000_000_000_000_000_000)
	maxUnits = new(uint256.Int).SetUint64(^uint64(0))
)

// Decimal is an unsigned fixed-point quantity with 18 fractional digits. The
// zero value is 0. Every arithmetic method reports overflow instead of
// wrapping.
type Decimal struct {
	v uint256.Int
}

// Zero returns the zero decimal.
func Zero() Decimal { return Decimal{} }

// NewDecimal converts whole units into a decimal.
func NewDecimal(units uint64) Decimal {
	var d Decimal
	d.v.Mul(uint256.NewInt(units), scale)
	return d
}

// ParseDecimal parses a base-10 string with at most 18 fractional digits.
func ParseDecimal(s string) (Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Decimal{}, ErrInvalidDecimal
	}
	whole, frac, hasFrac := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if !digitsOnly(whole) || (hasFrac && (frac == "" || !digitsOnly(frac))) {
		return Decimal{}, ErrInvalidDecimal
	}
	if len(frac) > Precision {
		return Decimal{}, ErrInvalidDecimal
	}
	intPart, err := uint256.FromDecimal(whole)
	if err != nil {
		return Decimal{}, ErrOverflow
	}
	var d Decimal
	if _, overflow := d.v.MulOverflow(intPart, scale); overflow {
		return Decimal{}, ErrOverflow
	}
	if frac != "" {
		padded := frac + strings.Repeat("0", Precision-len(frac))
		fracPart, err := uint256.FromDecimal(padded)
		if err != nil {
			return Decimal{}, ErrInvalidDecimal
		}
		if _, overflow := d.v.AddOverflow(&d.v, fracPart); overflow {
			return Decimal{}, ErrOverflow
		}
	}
	return d, nil
}

// MustDecimal parses a constant and panics on malformed input.
func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic("accrual: invalid decimal constant " + s)
	}
	return d
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// String renders the decimal without trailing fractional zeros.
func (d Decimal) String() string {
	whole, frac := new(uint256.Int).DivMod(&d.v, scale, new(uint256.Int))
	if frac.IsZero() {
		return whole.Dec()
	}
	digits := frac.Dec()
	digits = strings.Repeat("0", Precision-len(digits)) + digits
	return whole.Dec() + "." + strings.TrimRight(digits, "0")
}

// MarshalText renders the decimal as its string form so JSON and YAML carry
// an exact value.
func (d Decimal) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses the string form produced by MarshalText.
func (d *Decimal) UnmarshalText(text []byte) error {
	parsed, err := ParseDecimal(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Bytes returns the 32-byte big-endian raw scaled value.
func (d Decimal) Bytes() []byte {
	raw := d.v.Bytes32()
	return raw[:]
}

// DecimalFromBytes restores a value produced by Bytes.
func DecimalFromBytes(b []byte) (Decimal, error) {
	if len(b) > 32 {
		return Decimal{}, ErrOverflow
	}
	var d Decimal
	d.v.SetBytes(b)
	return d, nil
}

// IsZero reports whether d == 0.
func (d Decimal) IsZero() bool { return d.v.IsZero() }

// Cmp compares d and o and returns -1, 0 or +1.
func (d Decimal) Cmp(o Decimal) int { return d.v.Cmp(&o.v) }

// Equal reports whether d == o.
func (d Decimal) Equal(o Decimal) bool { return d.v.Eq(&o.v) }

// Add returns d + o.
func (d Decimal) Add(o Decimal) (Decimal, error) {
	var out Decimal
	if _, overflow := out.v.AddOverflow(&d.v, &o.v); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Sub returns d - o.
func (d Decimal) Sub(o Decimal) (Decimal, error) {
	var out Decimal
	if _, underflow := out.v.SubOverflow(&d.v, &o.v); underflow {
		return Decimal{}, ErrUnderflow
	}
	return out, nil
}

// MulUint returns d * n.
func (d Decimal) MulUint(n uint64) (Decimal, error) {
	var out Decimal
	if _, overflow := out.v.MulOverflow(&d.v, uint256.NewInt(n)); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// MulDiv returns floor(d * num / den) with a single rounding step.
func (d Decimal) MulDiv(num, den uint64) (Decimal, error) {
	if den == 0 {
		return Decimal{}, ErrDivisionByZero
	}
	var out Decimal
	if _, overflow := out.v.MulDivOverflow(&d.v, uint256.NewInt(num), uint256.NewInt(den)); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// MulDivDecimal returns floor(d * num / den) where num and den are decimals.
func (d Decimal) MulDivDecimal(num, den Decimal) (Decimal, error) {
	if den.IsZero() {
		return Decimal{}, ErrDivisionByZero
	}
	var out Decimal
	if _, overflow := out.v.MulDivOverflow(&d.v, &num.v, &den.v); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Mul returns floor(d * o).
func (d Decimal) Mul(o Decimal) (Decimal, error) {
	var out Decimal
	if _, overflow := out.v.MulDivOverflow(&d.v, &o.v, scale); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Quo returns floor(d / o).
func (d Decimal) Quo(o Decimal) (Decimal, error) {
	if o.IsZero() {
		return Decimal{}, ErrDivisionByZero
	}
	var out Decimal
	if _, overflow := out.v.MulDivOverflow(&d.v, scale, &o.v); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Units returns the whole-unit part of d, failing when it does not fit in a
// uint64.
func (d Decimal) Units() (uint64, error) {
	whole := new(uint256.Int).Div(&d.v, scale)
	if whole.Gt(maxUnits) {
		return 0, ErrOverflow
	}
	return whole.Uint64(), nil
}

// Float64 approximates d for metrics and display. It must never feed back into
// ledger arithmetic.
func (d Decimal) Float64() float64 {
	f, err := strconv.ParseFloat(d.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

// SumDecimals adds every value, stopping at the first overflow.
func SumDecimals(values ...Decimal) (Decimal, error) {
	total := Zero()
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return Decimal{}, err
		}
	}
	return total, nil
}
