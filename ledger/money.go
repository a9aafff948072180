// Package ledger holds the pure money logic of the club ledger: splitting an
// expense into participant shares and deriving net balances from the current
// expense set. Nothing in this package touches storage.
package ledger

import "github.com/shopspring/decimal"

// Cent is the smallest currency unit and the materiality threshold.
var Cent = decimal.New(1, -2)

// RoundToTwo rounds half away from zero to two decimal places.
func RoundToTwo(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// HasAtMostTwoDecimals reports whether d is representable in whole cents.
func HasAtMostTwoDecimals(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// WithinTolerance reports whether a and b differ by at most one cent.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Cent)
}

// IsMaterial reports whether a balance is large enough to report.
func IsMaterial(d decimal.Decimal) bool {
	return d.Abs().GreaterThanOrEqual(Cent)
}

// Sum adds up a list of amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
