// Package numeric normalizes quantities and monetary values to the fixed
// scales the inventory and payment engines compare on.
package numeric

import "github.com/shopspring/decimal"

const (
	QuantityScale int32 = 3
	CostScale     int32 = 4
	// DivScale is the intermediate precision for divisions before the
	// result is brought back to CostScale.
	DivScale int32 = 8
)

// Quantity rounds half away from zero to three places. nil becomes zero.
func Quantity(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero.Round(QuantityScale)
	}
	return d.Round(QuantityScale)
}

func QuantityOf(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityScale)
}

// Cost rounds half away from zero to four places. nil becomes zero.
// Money amounts share this scale.
func Cost(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero.Round(CostScale)
	}
	return d.Round(CostScale)
}

func CostOf(d decimal.Decimal) decimal.Decimal {
	return d.Round(CostScale)
}

func AddQuantity(a, b decimal.Decimal) decimal.Decimal {
	return QuantityOf(QuantityOf(a).Add(QuantityOf(b)))
}

func SumQuantities(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(QuantityOf(v))
	}
	return QuantityOf(total)
}

func SumCosts(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(CostOf(v))
	}
	return CostOf(total)
}

// MinQuantity returns the smaller of two normalized quantities.
func MinQuantity(a, b decimal.Decimal) decimal.Decimal {
	a, b = QuantityOf(a), QuantityOf(b)
	if a.LessThan(b) {
		return a
	}
	return b
}

// FitsScale reports whether d carries no more than places fractional digits.
func FitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// Ptr is a convenience for optional decimal fields.
func Ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
