package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"serumdepth/internal/book"
	"serumdepth/internal/common"
)

type State int

const (
	Idle State = iota
	Subscribing
	Active
	Unsubscribing
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Subscribing:
		return "subscribing"
	case Active:
		return "active"
	case Unsubscribing:
		return "unsubscribing"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) terminal() bool {
	return s == Closed || s == Failed
}

// Subscription follows one side of the book over a shared Transport:
//
//	Idle -> Subscribing -> Active -> Unsubscribing -> Closed
//
// with Failed reachable from every state but Closed. The owner of the
// transport reads frames and routes them with HandleAck and Accept.
type Subscription struct {
	side    book.Side
	address solana.PublicKey
	tr      Transport
	opts    Options

	mu      sync.Mutex
	state   State
	pending RequestID
	id      SubscriptionID
	err     error

	ready chan struct{}
	acks  chan Ack
	done  chan struct{}
}

func NewSubscription(side book.Side, address solana.PublicKey, tr Transport, options ...common.Option) (*Subscription, error) {
	opts := defaultOptions()
	if err := common.Apply(&opts, options...); err != nil {
		return nil, err
	}
	return &Subscription{
		side:    side,
		address: address,
		tr:      tr,
		opts:    opts,
		ready:   make(chan struct{}),
		acks:    make(chan Ack, 1),
		done:    make(chan struct{}),
	}, nil
}

func (s *Subscription) Side() book.Side {
	return s.side
}

func (s *Subscription) Address() solana.PublicKey {
	return s.address
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the subscription id once the subscribe request has been acknowledged.
func (s *Subscription) ID() (SubscriptionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active && s.state != Unsubscribing {
		return 0, false
	}
	return s.id, true
}

// Err returns the failure that moved the subscription to Failed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the subscription reaches Closed or Failed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Subscribe sends the subscribe request and waits for its acknowledgment.
func (s *Subscription) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = Subscribing
	reqID := s.tr.NewRequestID()
	s.pending = reqID
	s.mu.Unlock()

	if err := s.tr.Subscribe(ctx, reqID, s.address, s.opts.Encoding); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.failLocked(TransportError, err)
		return s.terminalErrLocked()
	}
	s.opts.Logger.Debug().
		Stringer("side", s.side).
		Stringer("address", s.address).
		Uint64("request", uint64(reqID)).
		Msg("subscribe sent")

	timer := time.NewTimer(s.opts.AckTimeout)
	defer timer.Stop()

	select {
	case <-s.ready:
	case <-s.done:
	case <-timer.C:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == Subscribing {
			s.failLocked(Timeout, fmt.Errorf("no acknowledgment within %s", s.opts.AckTimeout))
		}
		return s.subscribeErrLocked()
	case <-ctx.Done():
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == Subscribing {
			s.closeLocked()
			return ctx.Err()
		}
		return s.subscribeErrLocked()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribeErrLocked()
}

// HandleAck applies an acknowledgment and reports whether it answers this
// subscription's outstanding request. A subscribe ack takes effect before
// HandleAck returns, so the next notification on the stream is already owned.
func (s *Subscription) HandleAck(ack Ack) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == 0 || ack.RequestID != s.pending {
		return false
	}
	switch s.state {
	case Subscribing:
		s.pending = 0
		if ack.Err != nil {
			s.failLocked(Rejected, ack.Err)
			return true
		}
		s.id = ack.Subscription
		s.state = Active
		close(s.ready)
		s.opts.Logger.Info().
			Stringer("side", s.side).
			Uint64("subscription", uint64(s.id)).
			Msg("feed subscribed")
	case Unsubscribing:
		s.pending = 0
		select {
		case s.acks <- ack:
		default:
		}
	default:
		return false
	}
	return true
}

// Owns reports whether notifications for id belong to this subscription.
func (s *Subscription) Owns(id SubscriptionID) bool {
	sid, ok := s.ID()
	return ok && sid == id
}

// Accept attributes a notification to this side. It reports false without
// side effects unless the subscription is Active and the id matches.
func (s *Subscription) Accept(n *Notification) (RawAccountUpdate, bool) {
	s.mu.Lock()
	active, id := s.state == Active, s.id
	s.mu.Unlock()
	if !active {
		return RawAccountUpdate{}, false
	}
	if n.Subscription != id {
		s.opts.Logger.Warn().
			Stringer("side", s.side).
			Uint64("subscription", uint64(id)).
			Uint64("got", uint64(n.Subscription)).
			Msg("notification for another subscription dropped")
		return RawAccountUpdate{}, false
	}
	return RawAccountUpdate{
		Side:     s.side,
		Slot:     n.Slot,
		Data:     n.Data,
		Received: n.Received,
	}, true
}

// Unsubscribe tears the subscription down. Local state is released whether
// or not the acknowledgment arrives; a missing one is reported as
// ErrUnsubscribeUnacked. Unsubscribe is a no-op once Closed or Failed.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Closed, Failed:
		s.mu.Unlock()
		return nil
	case Idle, Subscribing, Unsubscribing:
		s.closeLocked()
		s.mu.Unlock()
		return nil
	}
	s.state = Unsubscribing
	reqID, id := s.tr.NewRequestID(), s.id
	s.pending = reqID
	s.mu.Unlock()

	if err := s.tr.Unsubscribe(ctx, reqID, id); err != nil {
		s.close()
		return fmt.Errorf("%w: %s", ErrUnsubscribeUnacked, err)
	}

	timer := time.NewTimer(s.opts.AckTimeout)
	defer timer.Stop()

	var result error
	select {
	case ack := <-s.acks:
		switch {
		case ack.Err != nil:
			result = fmt.Errorf("%w: %s", ErrUnsubscribeUnacked, ack.Err)
		case !ack.OK:
			result = fmt.Errorf("%w: server returned false", ErrUnsubscribeUnacked)
		}
	case <-timer.C:
		result = fmt.Errorf("%w: no acknowledgment within %s", ErrUnsubscribeUnacked, s.opts.AckTimeout)
	case <-ctx.Done():
		result = fmt.Errorf("%w: %s", ErrUnsubscribeUnacked, ctx.Err())
	case <-s.done:
	}
	s.close()
	if result != nil {
		s.opts.Logger.Warn().Err(result).Stringer("side", s.side).Msg("unsubscribe")
	} else {
		s.opts.Logger.Info().Stringer("side", s.side).Msg("feed unsubscribed")
	}
	return result
}

// Fail moves the subscription to Failed unless it already reached a terminal state.
func (s *Subscription) Fail(reason Reason, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(reason, err)
}

func (s *Subscription) failLocked(reason Reason, err error) {
	if s.state.terminal() {
		return
	}
	s.state = Failed
	s.pending = 0
	s.err = &SubscriptionError{Side: s.side, Reason: reason, Err: err}
	close(s.done)
	s.opts.Logger.Error().Err(s.err).Msg("feed failed")
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	if s.state.terminal() {
		return
	}
	s.state = Closed
	s.pending = 0
	close(s.done)
}

// subscribeErrLocked is the outcome of Subscribe once it stops waiting.
func (s *Subscription) subscribeErrLocked() error {
	if s.state == Active || s.state == Unsubscribing {
		return nil
	}
	return s.terminalErrLocked()
}

func (s *Subscription) terminalErrLocked() error {
	if s.state == Failed {
		return s.err
	}
	return ErrClosed
}
