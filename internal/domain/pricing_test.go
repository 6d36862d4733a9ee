package domain

import (
	"math"
	"regexp"
	"testing"
)

func TestComputeTotals(t *testing.T) {
	cases := []struct {
		name          string
		lines         []CartLine
		subtotal      float64
		totalDiscount float64
		totalPrice    float64
	}{
		{
			name:  "empty cart",
			lines: nil,
		},
		{
			name: "single line no discount",
			lines: []CartLine{
				{UnitPrice: 100, Quantity: 2},
			},
			subtotal:   200,
			totalPrice: 200,
		},
		{
			name: "discounted lines",
			lines: []CartLine{
				{UnitPrice: 100, Quantity: 2, DiscountPercent: 10},
				{UnitPrice: 45.50, Quantity: 1, DiscountPercent: 0},
			},
			subtotal:      245.50,
			totalDiscount: 20,
			totalPrice:    225.50,
		},
		{
			name: "full discount",
			lines: []CartLine{
				{UnitPrice: 80, Quantity: 3, DiscountPercent: 100},
			},
			subtotal:      240,
			totalDiscount: 240,
			totalPrice:    0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			totals := ComputeTotals(tc.lines)
			if !moneyEqual(totals.Subtotal, tc.subtotal) {
				t.Fatalf("subtotal = %v, want %v", totals.Subtotal, tc.subtotal)
			}
			if !moneyEqual(totals.TotalDiscount, tc.totalDiscount) {
				t.Fatalf("total discount = %v, want %v", totals.TotalDiscount, tc.totalDiscount)
			}
			if !moneyEqual(totals.TotalPrice, tc.totalPrice) {
				t.Fatalf("total price = %v, want %v", totals.TotalPrice, tc.totalPrice)
			}
		})
	}
}

func TestComputeTotalsAlgebra(t *testing.T) {
	lines := []CartLine{
		{UnitPrice: 19.99, Quantity: 3, DiscountPercent: 15},
		{UnitPrice: 120, Quantity: 1, DiscountPercent: 50},
		{UnitPrice: 7.25, Quantity: 12},
		{UnitPrice: 0, Quantity: 4, DiscountPercent: 30},
	}

	totals := ComputeTotals(lines)
	if !moneyEqual(totals.TotalPrice, totals.Subtotal-totals.TotalDiscount) {
		t.Fatalf("totalPrice %v != subtotal %v - discount %v", totals.TotalPrice, totals.Subtotal, totals.TotalDiscount)
	}
	if totals.TotalDiscount > totals.Subtotal+1e-9 {
		t.Fatalf("discount %v exceeds subtotal %v", totals.TotalDiscount, totals.Subtotal)
	}
}

func TestRoundedOnlyAffectsPresentation(t *testing.T) {
	lines := []CartLine{
		{UnitPrice: 33.335, Quantity: 3, DiscountPercent: 7},
	}
	totals := ComputeTotals(lines)
	rounded := totals.Rounded()

	if rounded.Subtotal != RoundMoney(totals.Subtotal) {
		t.Fatalf("rounded subtotal = %v", rounded.Subtotal)
	}
	// The source totals must remain unrounded.
	if totals.Subtotal == rounded.Subtotal && totals.Subtotal != math.Round(totals.Subtotal*100)/100 {
		t.Fatalf("ComputeTotals rounded internally: %v", totals.Subtotal)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := map[float64]int64{
		0:      0,
		200:    20000,
		45.50:  4550,
		19.995: 2000,
	}
	for amount, want := range cases {
		if got := MinorUnits(amount); got != want {
			t.Fatalf("MinorUnits(%v) = %d, want %d", amount, got, want)
		}
	}
}

func TestGenerateOrderIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^3000\d{6}$`)
	for i := 0; i < 1000; i++ {
		id := GenerateOrderID()
		if !pattern.MatchString(id) {
			t.Fatalf("order id %q does not match ^3000\\d{6}$", id)
		}
	}
}

func moneyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
