package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serumdepth/internal/book"
	"serumdepth/internal/common/timestamp"
	"serumdepth/internal/session"
)

func TestObserver(t *testing.T) {
	o := NewObserver("test")

	o.OnUpdate(session.Update{
		Side:     book.Bid,
		Slot:     42,
		Received: timestamp.Now(),
		Book:     book.Snapshot{Side: book.Bid, Levels: make([]book.PriceLevel, 3)},
		Price:    decimal.RequireFromString("100.5"),
	})
	o.OnUpdate(session.Update{
		Side:     book.Bid,
		Slot:     43,
		Book:     book.Snapshot{Side: book.Bid},
		PriceErr: book.ErrInsufficientDepth,
	})
	o.OnDecodeError(book.Ask, &book.DecodeError{Reason: book.TruncatedBuffer})
	o.OnDecodeError(book.Ask, errors.New("other"))
	o.OnDepthError(book.Bid, book.ErrInsufficientDepth)
	o.OnDrop(book.Ask)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.Updates.WithLabelValues("bid")))
	assert.Equal(t, 100.5, testutil.ToFloat64(o.Price.WithLabelValues("bid")))
	assert.Equal(t, 0.0, testutil.ToFloat64(o.Orders.WithLabelValues("bid")))
	assert.Equal(t, 43.0, testutil.ToFloat64(o.Slot.WithLabelValues("bid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.DecodeErrors.WithLabelValues("ask", "truncated buffer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.DecodeErrors.WithLabelValues("ask", "other")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.DepthErrors.WithLabelValues("bid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.Dropped.WithLabelValues("ask")))
	assert.Equal(t, 1, testutil.CollectAndCount(o.ProcessLatency))
}

func TestHandler(t *testing.T) {
	o := NewObserver("test")
	o.OnDrop(book.Bid)
	reg := Registry(zerolog.Nop(), o.Collectors()...)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `serum_updates_dropped_total{market="test",side="bid"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
