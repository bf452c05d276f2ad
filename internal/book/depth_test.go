package book_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serumdepth/internal/book"
	"serumdepth/internal/book/booktest"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func levels(side book.Side, pq ...string) book.Snapshot {
	snap := book.Snapshot{Side: side}
	for i := 0; i+1 < len(pq); i += 2 {
		snap.Levels = append(snap.Levels, book.PriceLevel{Price: dec(pq[i]), Size: dec(pq[i+1])})
	}
	return snap
}

func TestCumulativePriceCrossingLevel(t *testing.T) {
	bids := levels(book.Bid, "10", "3", "9", "5")

	price, err := book.CumulativePrice(bids, dec("4"))
	require.NoError(t, err)
	assert.Equal(t, "9", price.String())

	price, err = book.CumulativePrice(bids, dec("3"))
	require.NoError(t, err)
	assert.Equal(t, "10", price.String())

	price, err = book.CumulativePrice(bids, dec("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "10", price.String())

	price, err = book.CumulativePrice(bids, dec("8"))
	require.NoError(t, err)
	assert.Equal(t, "9", price.String())
}

func TestCumulativePriceDecoded(t *testing.T) {
	buf := booktest.Build(book.Bid,
		booktest.Order{PriceLots: 9, SizeLots: 5},
		booktest.Order{PriceLots: 10, SizeLots: 3},
	)
	snap, err := book.Decode(buf, book.Bid)
	require.NoError(t, err)

	first, err := book.CumulativePrice(snap, dec("4"))
	require.NoError(t, err)
	second, err := book.CumulativePrice(snap, dec("4"))
	require.NoError(t, err)
	assert.Equal(t, "9", first.String())
	assert.True(t, first.Equal(second))

	asks := booktest.Build(book.Ask,
		booktest.Order{PriceLots: 12, SizeLots: 1},
		booktest.Order{PriceLots: 11, SizeLots: 1},
		booktest.Order{PriceLots: 15, SizeLots: 10},
	)
	snap, err = book.Decode(asks, book.Ask)
	require.NoError(t, err)
	price, err := book.CumulativePrice(snap, dec("2"))
	require.NoError(t, err)
	assert.Equal(t, "12", price.String())
}

func TestCumulativePriceInsufficientDepth(t *testing.T) {
	asks := levels(book.Ask, "1.5", "2", "1.6", "0.25")

	_, err := book.CumulativePrice(asks, dec("3"))
	require.ErrorIs(t, err, book.ErrInsufficientDepth)

	var ide *book.InsufficientDepthError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, book.Ask, ide.Side)
	assert.Equal(t, "2.25", ide.Available.String())
	assert.Equal(t, "3", ide.Requested.String())

	_, err = book.CumulativePrice(book.Snapshot{Side: book.Bid}, dec("1"))
	assert.ErrorIs(t, err, book.ErrInsufficientDepth)
}

func TestCumulativePriceInvalidQuantity(t *testing.T) {
	bids := levels(book.Bid, "10", "3")
	for _, q := range []string{"0", "-1"} {
		_, err := book.CumulativePrice(bids, dec(q))
		assert.ErrorIs(t, err, book.ErrInvalidQuantity)
	}
}
