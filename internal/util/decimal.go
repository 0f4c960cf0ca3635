package util

import (
	"math"

	"github.com/shopspring/decimal"
)

// Sqrt is a Newton iteration seeded from the float64 root, rounded to
// places. Non-positive x returns zero.
func Sqrt(x decimal.Decimal, places int32) decimal.Decimal {
	if !x.IsPositive() {
		return decimal.Zero
	}
	two := decimal.NewFromInt(2)
	g := decimal.NewFromFloat(math.Sqrt(x.InexactFloat64()))
	if !g.IsPositive() {
		g = x
	}
	for i := 0; i < 8; i++ {
		next := g.Add(x.DivRound(g, 2*places)).DivRound(two, 2*places)
		if next.Equal(g) {
			break
		}
		g = next
	}
	return g.Round(places)
}
