package main

import (
	"fmt"
	"io"
	"strings"

	bar "github.com/schollz/progressbar/v3"

	"serumdepth/internal/common/timestamp"
	"serumdepth/internal/mainutil"
	"serumdepth/internal/session"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

type printer struct {
	w      io.StringWriter
	market string
	books  int
	count  int
	seen   int
	bar    *bar.ProgressBar
	b      strings.Builder
}

func newPrinter(w io.StringWriter, market string, books, count int) *printer {
	p := &printer{w: w, market: market, books: books, count: count}
	if count > 0 {
		p.bar = mainutil.NewProgressBar(count, "depth")
	}
	return p
}

// handler prints each update with the session quote it produced.
func (p *printer) handler(s *session.Session) func(session.Update) error {
	return func(u session.Update) error {
		p.print(u, s.Quote())
		p.seen++
		if p.bar != nil {
			_ = p.bar.Add(1)
		}
		if p.count > 0 && p.seen >= p.count {
			return errDone
		}
		return nil
	}
}

// print writes one Q line, then B lines for the top levels when asked:
//
//	Q ms,time,market,SIDE,slot,price,bid,ask
//	B ms,time,market,SIDE,price,size,orders
func (p *printer) print(u session.Update, q session.Quote) {
	p.b.Reset()
	ts := u.Received
	if ts.IsZero() {
		ts = timestamp.Now()
	}
	price := "-"
	if u.PriceErr == nil {
		price = u.Price.String()
	}
	fmt.Fprintf(&p.b, "Q %d,%s,%s,%s,%d,%s,%s,%s\n",
		ts.UnixMilli(),
		ts.Format(timeFormat),
		p.market,
		strings.ToUpper(u.Side.String()),
		u.Slot,
		price,
		quoteString(q.Bid, q.BidErr),
		quoteString(q.Ask, q.AskErr))
	if p.books > 0 {
		writeBook(&p.b, ts, p.market, u.Book, p.books)
	}
	p.w.WriteString(p.b.String())
}

// quoteString renders a side of the quote, with a trailing '?' when the
// price is stale.
func quoteString(sq *session.SideQuote, err error) string {
	if sq == nil {
		return "-"
	}
	if err != nil {
		return sq.Price.String() + "?"
	}
	return sq.Price.String()
}

func (p *printer) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
