package domain

import (
	"math"
	"math/rand/v2"
	"strconv"
)

// orderIDPrefix is the fixed storefront prefix for customer-facing order numbers.
const orderIDPrefix = "3000"

// ComputeTotals derives the cart money amounts from the supplied lines.
// Pure and deterministic; intermediate amounts are never rounded so that
// repeated aggregation cannot compound rounding error.
func ComputeTotals(lines []CartLine) CartTotals {
	var totals CartTotals
	for _, line := range lines {
		totals.Subtotal += line.LineTotal()
		totals.TotalDiscount += line.LineDiscount()
	}
	totals.TotalPrice = totals.Subtotal - totals.TotalDiscount
	return totals
}

// Rounded returns a presentation copy with every amount rounded to two decimals.
func (t CartTotals) Rounded() CartTotals {
	return CartTotals{
		Subtotal:      RoundMoney(t.Subtotal),
		TotalDiscount: RoundMoney(t.TotalDiscount),
		TotalPrice:    RoundMoney(t.TotalPrice),
	}
}

// RoundMoney rounds an amount to two decimal places for display or serialization.
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// MinorUnits converts a peso amount to centavos for gateway intents.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// GenerateOrderID returns a new order number of the form "3000" followed by
// six random decimal digits. The result is format-valid but NOT globally
// unique; collisions are possible (~1e-6 per order) and callers must treat a
// duplicate order number as a rare failure mode rather than an impossibility.
func GenerateOrderID() string {
	return orderIDPrefix + strconv.Itoa(100000+rand.IntN(900000))
}
