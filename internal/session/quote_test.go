package session

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteCell(t *testing.T) {
	var c quoteCell
	assert.Equal(t, sideState{}, c.load())

	stale := errors.New("stale")
	c.fail(stale)
	assert.Nil(t, c.load().quote)
	assert.Equal(t, stale, c.load().err)

	q := &SideQuote{Price: decimal.NewFromInt(7), Slot: 3}
	c.set(q)
	assert.Same(t, q, c.load().quote)
	assert.NoError(t, c.load().err)

	c.fail(stale)
	assert.Same(t, q, c.load().quote)
	assert.Equal(t, stale, c.load().err)
}

func TestQuoteIncomplete(t *testing.T) {
	q := Quote{Bid: &SideQuote{Price: decimal.NewFromInt(10)}}
	assert.False(t, q.Complete())
	_, ok := q.Mid()
	assert.False(t, ok)
	_, ok = q.Spread()
	assert.False(t, ok)

	q.Ask = &SideQuote{Price: decimal.NewFromInt(11)}
	mid, ok := q.Mid()
	require.True(t, ok)
	assert.Equal(t, "10.5", mid.String())
}
