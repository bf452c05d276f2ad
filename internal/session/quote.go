package session

import (
	"sync/atomic"

	"github.com/shopspring/decimal"

	"serumdepth/internal/common/timestamp"
)

// SideQuote is the cumulative price of one side computed from one snapshot.
type SideQuote struct {
	Price      decimal.Decimal
	Slot       uint64
	ComputedAt timestamp.Timestamp
}

// Quote is the latest derived price pair. A nil side has never been
// computed. BidErr and AskErr hold the last failure on that side since its
// price was computed, so a non-nil error next to a price marks it stale.
type Quote struct {
	Bid, Ask       *SideQuote
	BidErr, AskErr error
	ComputedAt     timestamp.Timestamp
}

// Complete reports whether both sides have a price.
func (q Quote) Complete() bool {
	return q.Bid != nil && q.Ask != nil
}

// Mid returns the midpoint of both side prices.
func (q Quote) Mid() (decimal.Decimal, bool) {
	if !q.Complete() {
		return decimal.Decimal{}, false
	}
	return q.Bid.Price.Add(q.Ask.Price).Div(decimal.NewFromInt(2)), true
}

func (q Quote) Spread() (decimal.Decimal, bool) {
	if !q.Complete() {
		return decimal.Decimal{}, false
	}
	return q.Ask.Price.Sub(q.Bid.Price), true
}

type sideState struct {
	quote *SideQuote
	err   error
}

// quoteCell holds one side of the quote. It has a single writer, the side's
// pipeline, and any number of readers.
type quoteCell struct {
	v atomic.Value
}

func (c *quoteCell) load() sideState {
	st, _ := c.v.Load().(sideState)
	return st
}

func (c *quoteCell) set(q *SideQuote) {
	c.v.Store(sideState{quote: q})
}

// fail records err and keeps the last good price.
func (c *quoteCell) fail(err error) {
	c.v.Store(sideState{quote: c.load().quote, err: err})
}
