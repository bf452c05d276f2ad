package book

import "github.com/shopspring/decimal"

// CumulativePrice walks levels best first and returns the price of the
// level at which the running size reaches quantity. The price is the
// marginal fill price of a marketable order, not an average.
func CumulativePrice(levels Snapshot, quantity decimal.Decimal) (decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return decimal.Decimal{}, ErrInvalidQuantity
	}
	cumulative := decimal.Zero
	for _, pl := range levels.Levels {
		cumulative = cumulative.Add(pl.Size)
		if cumulative.GreaterThanOrEqual(quantity) {
			return pl.Price, nil
		}
	}
	return decimal.Decimal{}, &InsufficientDepthError{
		Side:      levels.Side,
		Requested: quantity,
		Available: cumulative,
	}
}
