package shared

import "github.com/shopspring/decimal"

// FloorZero returns d, or zero when d is negative.
func FloorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Outstanding is the owed amount for a cost/paid pair: max(0, cost - paid).
func Outstanding(cost, paid decimal.Decimal) decimal.Decimal {
	return FloorZero(cost.Sub(paid))
}

// LineTotal multiplies a unit price by a quantity.
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

// MoneyScale is the number of decimal places stored for amounts.
const MoneyScale = 2

// HasCents reports whether d fits in whole cents.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

// CheckAmount rejects negative amounts and amounts finer than a cent.
func CheckAmount(op, field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return Invalid(op, "%s must be >= 0", field)
	}
	if !HasCents(d) {
		return Invalid(op, "%s must have at most %d decimal places", field, MoneyScale)
	}
	return nil
}
