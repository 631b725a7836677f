package pricing

import "github.com/shopspring/decimal"

// pctPlaces is the precision fractional percentages are rounded to.
const pctPlaces = 6

// ChangePct returns the signed fractional change from oldPrice to newPrice.
// A zero oldPrice yields zero.
func ChangePct(oldPrice, newPrice float64) float64 {
	o := decimal.NewFromFloat(oldPrice)
	if o.IsZero() {
		return 0
	}
	pct, _ := decimal.NewFromFloat(newPrice).Sub(o).Div(o).Round(pctPlaces).Float64()
	return pct
}

// ProfitMargin returns (price-cost)/price. ok is false when the margin cannot
// be computed because cost is unknown (<= 0) or price is not positive.
func ProfitMargin(price, cost float64) (margin float64, ok bool) {
	p := decimal.NewFromFloat(price)
	c := decimal.NewFromFloat(cost)
	if !c.IsPositive() || !p.IsPositive() {
		return 0, false
	}
	margin, _ = p.Sub(c).Div(p).Round(pctPlaces).Float64()
	return margin, true
}

// SamePrice reports whether two prices are exactly equal. Sub-cent
// differences count as a change.
func SamePrice(a, b float64) bool {
	return decimal.NewFromFloat(a).Equal(decimal.NewFromFloat(b))
}

// ExceedsFraction reports whether |pct| is strictly greater than limit,
// compared at the rounding precision used by ChangePct.
func ExceedsFraction(pct, limit float64) bool {
	return decimal.NewFromFloat(pct).Abs().Round(pctPlaces).
		GreaterThan(decimal.NewFromFloat(limit).Round(pctPlaces))
}
