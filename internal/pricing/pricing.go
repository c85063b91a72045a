// Package pricing computes reservation charges.
package pricing

import "github.com/shopspring/decimal"

var (
	longStayDiscount = decimal.RequireFromString("0.90")
	midStayDiscount  = decimal.RequireFromString("0.95")
)

const (
	longStayHours = 8
	midStayHours  = 4
)

// Price returns hours*rate with the volume discount applied, rounded half-up to cents.
func Price(hours int, hourlyRate decimal.Decimal) decimal.Decimal {
	amount := hourlyRate.Mul(decimal.NewFromInt(int64(hours)))
	switch {
	case hours >= longStayHours:
		amount = amount.Mul(longStayDiscount)
	case hours >= midStayHours:
		amount = amount.Mul(midStayDiscount)
	}
	return amount.Round(2)
}

// PriceFloat is Price for rates kept as float64 in the projection.
func PriceFloat(hours int, hourlyRate float64) decimal.Decimal {
	return Price(hours, decimal.NewFromFloat(hourlyRate))
}
