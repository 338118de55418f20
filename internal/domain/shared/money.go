package shared

import "github.com/shopspring/decimal"

// Money columns are NUMERIC(20,8): eight fractional digits and at most twelve
// integer digits.
const MoneyScale = 8

// MaxMoney is the exclusive upper bound of a stored amount.
var MaxMoney = decimal.New(1, 12)

// ValidMoney reports whether d is positive and fits a money column without
// rounding or overflow.
func ValidMoney(d decimal.Decimal) bool {
	if !d.IsPositive() || d.GreaterThanOrEqual(MaxMoney) {
		return false
	}
	return d.Equal(d.Truncate(MoneyScale))
}
