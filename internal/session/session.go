// Package session follows both sides of one order book over a shared
// transport and keeps the cumulative price of each side up to date.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"serumdepth/internal/book"
	"serumdepth/internal/common"
	"serumdepth/internal/common/timestamp"
	"serumdepth/internal/feed"
)

type Config struct {
	Bids, Asks solana.PublicKey
	// BidQuantity and AskQuantity are the base quantities whose crossing
	// price is tracked on each side.
	BidQuantity, AskQuantity decimal.Decimal
	Codec                    book.Codec
}

func (c Config) validate() error {
	switch {
	case c.Bids.IsZero() || c.Asks.IsZero():
		return fmt.Errorf("%w: missing book address", ErrInvalidConfig)
	case c.Bids.Equals(c.Asks):
		return fmt.Errorf("%w: bids and asks share address %s", ErrInvalidConfig, c.Bids)
	case !c.BidQuantity.IsPositive() || !c.AskQuantity.IsPositive():
		return fmt.Errorf("%w: quantities must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) address(side book.Side) solana.PublicKey {
	if side == book.Bid {
		return c.Bids
	}
	return c.Asks
}

func (c Config) quantity(side book.Side) decimal.Decimal {
	if side == book.Bid {
		return c.BidQuantity
	}
	return c.AskQuantity
}

// Update is one decoded snapshot. PriceErr is set when the snapshot is too
// shallow for the configured quantity, in which case Price is zero.
type Update struct {
	Side     book.Side
	Slot     uint64
	Received timestamp.Timestamp
	Book     book.Snapshot
	Price    decimal.Decimal
	PriceErr error
}

var sides = [2]book.Side{book.Bid, book.Ask}

type Session struct {
	cfg  Config
	opts Options
	tr   feed.Transport

	subs   [2]*feed.Subscription
	quotes [2]quoteCell
	raw    [2]chan feed.RawAccountUpdate

	updates chan Update

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closing atomic.Bool

	closeOnce  sync.Once
	finishOnce sync.Once
	done       chan struct{}
	err        error
}

// Open subscribes to both sides over tr and returns once both
// subscriptions are active. The session owns tr from then on and closes it
// on Close or when the session is lost. ctx bounds the subscription
// handshake only.
func Open(ctx context.Context, tr feed.Transport, cfg Config, options ...common.Option) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, &SessionError{Op: "open", Err: err}
	}
	opts := defaultOptions()
	if err := common.Apply(&opts, options...); err != nil {
		return nil, &SessionError{Op: "open", Err: err}
	}

	s := &Session{
		cfg:     cfg,
		opts:    opts,
		tr:      tr,
		updates: make(chan Update, opts.Buffer),
		done:    make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for i, side := range sides {
		sub, err := feed.NewSubscription(side, cfg.address(side), tr,
			common.OptionLogger(opts.Logger),
			feed.OptionAckTimeout(opts.AckTimeout),
			feed.OptionEncoding(opts.Encoding),
		)
		if err != nil {
			s.cancel()
			return nil, &SessionError{Op: "open", Err: err}
		}
		s.subs[i] = sub
		s.raw[i] = make(chan feed.RawAccountUpdate, 1)
	}

	s.wg.Add(3)
	go s.readLoop()
	go s.pipeline(book.Bid)
	go s.pipeline(book.Ask)

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range s.subs {
		sub := sub
		g.Go(func() error {
			return sub.Subscribe(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		_ = s.Close()
		return nil, &SessionError{Op: "subscribe", Err: err}
	}

	opts.Logger.Info().
		Stringer("bids", cfg.Bids).
		Stringer("asks", cfg.Asks).
		Stringer("bid_qty", cfg.BidQuantity).
		Stringer("ask_qty", cfg.AskQuantity).
		Msg("session open")
	return s, nil
}

// State returns the subscription state of one side.
func (s *Session) State(side book.Side) feed.State {
	return s.subs[index(side)].State()
}

// Quote returns the latest derived prices without blocking.
func (s *Session) Quote() Quote {
	bid, ask := s.quotes[0].load(), s.quotes[1].load()
	q := Quote{Bid: bid.quote, Ask: ask.quote, BidErr: bid.err, AskErr: ask.err}
	for _, sq := range []*SideQuote{q.Bid, q.Ask} {
		if sq != nil && sq.ComputedAt > q.ComputedAt {
			q.ComputedAt = sq.ComputedAt
		}
	}
	return q
}

// NextUpdate returns the next decoded snapshot of either side. It fails
// with ErrTimeout when none arrives within timeout (zero waits for ctx),
// and with the session error once the session has ended.
func (s *Session) NextUpdate(ctx context.Context, timeout time.Duration) (Update, error) {
	select {
	case <-s.done:
		return Update{}, s.err
	default:
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case u := <-s.updates:
		return u, nil
	case <-s.done:
		return Update{}, s.err
	case <-expired:
		return Update{}, ErrTimeout
	case <-ctx.Done():
		return Update{}, ctx.Err()
	}
}

// Serve calls handler for every update until ctx is done, the session ends
// or handler fails. It returns nil when the session was closed. Serve and
// NextUpdate draw from the same queue.
func (s *Session) Serve(ctx context.Context, handler func(Update) error) error {
	for {
		u, err := s.NextUpdate(ctx, 0)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		if err := handler(u); err != nil {
			return err
		}
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err is nil while the session runs, ErrClosed after Close and a
// *LostError after a transport failure.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close unsubscribes both sides, closes the transport and waits for the
// session goroutines. Notifications still queued in the transport are not
// dispatched. It is safe to call more than once; unacknowledged
// unsubscribes are reported but do not keep anything open.
func (s *Session) Close() error {
	var result error
	s.closeOnce.Do(func() {
		s.closing.Store(true)

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.AckTimeout)
		var g errgroup.Group
		for _, sub := range s.subs {
			sub := sub
			g.Go(func() error {
				return sub.Unsubscribe(ctx)
			})
		}
		result = g.Wait()
		cancel()

		s.cancel()
		if err := s.tr.Close(); err != nil {
			s.opts.Logger.Debug().Err(err).Msg("transport close")
		}
		s.wg.Wait()
		s.finish(ErrClosed)
		s.opts.Logger.Info().Msg("session closed")
	})
	return result
}

func (s *Session) readLoop() {
	defer s.wg.Done()
	for {
		f, err := s.recv()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.lose(err)
			return
		}
		if f.Ack != nil {
			s.routeAck(*f.Ack)
		}
		if f.Notification != nil && !s.closing.Load() {
			if !s.routeNotification(f.Notification) {
				return
			}
		}
	}
}

func (s *Session) recv() (feed.Frame, error) {
	if s.opts.StallTimeout <= 0 {
		return s.tr.Recv(s.ctx)
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.StallTimeout)
	defer cancel()
	f, err := s.tr.Recv(ctx)
	if err != nil && s.ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("no frame within %s", s.opts.StallTimeout)
	}
	return f, err
}

func (s *Session) routeAck(ack feed.Ack) {
	for _, sub := range s.subs {
		if sub.HandleAck(ack) {
			return
		}
	}
	s.opts.Logger.Debug().Uint64("request", uint64(ack.RequestID)).Msg("unmatched acknowledgment dropped")
}

// routeNotification hands a notification to the pipeline of its side and
// reports false when the session is shutting down.
func (s *Session) routeNotification(n *feed.Notification) bool {
	for i, sub := range s.subs {
		if !sub.Owns(n.Subscription) {
			continue
		}
		u, ok := sub.Accept(n)
		if !ok {
			return true
		}
		select {
		case s.raw[i] <- u:
			return true
		case <-s.ctx.Done():
			return false
		}
	}
	s.opts.Logger.Warn().Uint64("subscription", uint64(n.Subscription)).Msg("notification for unknown subscription dropped")
	return true
}

// pipeline applies the updates of one side in arrival order.
func (s *Session) pipeline(side book.Side) {
	defer s.wg.Done()
	in := s.raw[index(side)]
	for {
		select {
		case u := <-in:
			s.apply(u)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) apply(raw feed.RawAccountUpdate) {
	side := raw.Side
	cell := &s.quotes[index(side)]
	log := s.opts.Logger.With().Stringer("side", side).Uint64("slot", raw.Slot).Logger()

	snap, err := s.cfg.Codec.Decode(raw.Data, side)
	if err == nil {
		err = snap.CheckOrder()
	}
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(raw.Data)).Msg("book not decoded, keeping last quote")
		cell.fail(err)
		s.opts.Observer.OnDecodeError(side, err)
		return
	}

	u := Update{Side: side, Slot: raw.Slot, Received: raw.Received, Book: snap}
	price, err := book.CumulativePrice(snap, s.cfg.quantity(side))
	if err != nil {
		log.Warn().Err(err).Msg("cumulative price not computed, keeping last quote")
		u.PriceErr = err
		cell.fail(err)
		s.opts.Observer.OnDepthError(side, err)
	} else {
		u.Price = price
		cell.set(&SideQuote{Price: price, Slot: raw.Slot, ComputedAt: timestamp.Now()})
		log.Debug().Stringer("price", price).Int("orders", snap.Len()).Msg("quote updated")
	}
	s.opts.Observer.OnUpdate(u)
	s.publish(u)
}

// publish queues u, dropping the oldest queued update when full.
func (s *Session) publish(u Update) {
	for {
		select {
		case s.updates <- u:
			return
		default:
		}
		select {
		case old := <-s.updates:
			s.opts.Observer.OnDrop(old.Side)
			s.opts.Logger.Debug().Stringer("side", old.Side).Uint64("slot", old.Slot).Msg("update dropped")
		default:
		}
	}
}

func (s *Session) lose(cause error) {
	for _, sub := range s.subs {
		sub.Fail(feed.TransportError, cause)
	}
	s.opts.Logger.Error().Err(cause).Msg("session lost")
	s.finish(&LostError{Err: cause})
	s.cancel()
	if err := s.tr.Close(); err != nil {
		s.opts.Logger.Debug().Err(err).Msg("transport close")
	}
}

func (s *Session) finish(err error) {
	s.finishOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

func index(side book.Side) int {
	if side == book.Bid {
		return 0
	}
	return 1
}
