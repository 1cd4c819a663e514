package utils

import "github.com/shopspring/decimal"

// CalculateTaxAmount computes the tax on amount for a percentage rate,
// e.g. amount 300 at rate 5 yields 15.
func CalculateTaxAmount(amount decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	return amount.DivRound(decimal.NewFromInt(100), 4).Mul(rate)
}
