// Package curve implements the quadratic bonding curve used to price option
// shares.
//
//	price(s)        = s² / K
//	buyCost(s, q)   = ((s+q)³ − s³) / 3K
//	sellPayout(s, q) = (s³ − (s−q)³) / 3K,  q clamped to s
//
// Every call recomputes from the supply it is given, so the same inputs always
// produce the same result. Costs are exact cubic differences divided at a
// fixed precision; conversion to integer micro-units rounds buys up and sells
// down so the pool never under-collects, and fails with ErrOutOfRange instead
// of wrapping when the result does not fit in int64.
package curve

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// DefaultK is the reference curve constant. 3K = 48000.
const DefaultK int64 = 16000

// Precision is the number of decimal places kept after each division.
const Precision int32 = 18

// MicrosPerUnit is the number of micro-units in one unit of the settlement currency.
const MicrosPerUnit int64 = 1_000_000

var microsPerUnit = decimal.NewFromInt(MicrosPerUnit)

// ErrOutOfRange is returned when an amount does not fit in int64 micro-units.
var ErrOutOfRange = errors.New("curve: amount out of int64 micro-unit range")

var (
	maxMicros = decimal.NewFromInt(math.MaxInt64)
	minMicros = decimal.NewFromInt(math.MinInt64)
)

// Pricer prices shares against price(s) = s²/K.
type Pricer struct {
	k      decimal.Decimal
	threeK decimal.Decimal
}

// NewPricer returns a Pricer for curve constant k. Non-positive k falls back
// to DefaultK.
func NewPricer(k int64) *Pricer {
	if k <= 0 {
		k = DefaultK
	}
	kd := decimal.NewFromInt(k)
	return &Pricer{k: kd, threeK: kd.Mul(decimal.NewFromInt(3))}
}

// K returns the curve constant.
func (p *Pricer) K() decimal.Decimal { return p.k }

// Price returns the instantaneous price per share at the given supply.
func (p *Pricer) Price(supply decimal.Decimal) decimal.Decimal {
	s := nonNegative(supply)
	return s.Mul(s).DivRound(p.k, Precision)
}

// BuyCost returns the integral of price over [supply, supply+qty].
func (p *Pricer) BuyCost(supply, qty decimal.Decimal) decimal.Decimal {
	s := nonNegative(supply)
	q := nonNegative(qty)
	if q.IsZero() {
		return decimal.Zero
	}
	return cube(s.Add(q)).Sub(cube(s)).DivRound(p.threeK, Precision)
}

// SellPayout returns the integral of price over [supply−qty, supply].
//
// A qty larger than supply is clamped to supply instead of being rejected.
// Callers that track ownership must bound qty themselves.
func (p *Pricer) SellPayout(supply, qty decimal.Decimal) decimal.Decimal {
	s := nonNegative(supply)
	q := decimal.Min(nonNegative(qty), s)
	if q.IsZero() {
		return decimal.Zero
	}
	return cube(s).Sub(cube(s.Sub(q))).DivRound(p.threeK, Precision)
}

// BuyCostMicros is BuyCost in micro-units, rounded up.
func (p *Pricer) BuyCostMicros(supply, qty decimal.Decimal) (int64, error) {
	return CeilMicros(p.BuyCost(supply, qty))
}

// SellPayoutMicros is SellPayout in micro-units, rounded down.
func (p *Pricer) SellPayoutMicros(supply, qty decimal.Decimal) (int64, error) {
	return FloorMicros(p.SellPayout(supply, qty))
}

// BuybackMicros is the amount needed to buy back an entire supply, rounded up.
func (p *Pricer) BuybackMicros(supply decimal.Decimal) (int64, error) {
	s := nonNegative(supply)
	return CeilMicros(p.SellPayout(s, s))
}

// CeilMicros converts a currency amount to micro-units, rounding up.
func CeilMicros(amount decimal.Decimal) (int64, error) {
	return toMicros(amount.Mul(microsPerUnit).Ceil())
}

// FloorMicros converts a currency amount to micro-units, rounding down.
func FloorMicros(amount decimal.Decimal) (int64, error) {
	return toMicros(amount.Mul(microsPerUnit).Floor())
}

// toMicros narrows an integral decimal. IntPart alone wraps silently.
func toMicros(v decimal.Decimal) (int64, error) {
	if v.GreaterThan(maxMicros) || v.LessThan(minMicros) {
		return 0, ErrOutOfRange
	}
	return v.IntPart(), nil
}

func cube(d decimal.Decimal) decimal.Decimal {
	return d.Mul(d).Mul(d)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
