package feed

import (
	"errors"
	"fmt"

	"serumdepth/internal/book"
)

type Reason int

const (
	Timeout Reason = iota + 1
	TransportError
	Rejected
)

func (r Reason) String() string {
	switch r {
	case Timeout:
		return "timeout"
	case TransportError:
		return "transport error"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

var (
	ErrNotSubscribed      = errors.New("feed: not subscribed")
	ErrAlreadyStarted     = errors.New("feed: subscription already started")
	ErrClosed             = errors.New("feed: subscription closed")
	ErrUnsubscribeUnacked = errors.New("feed: unsubscribe not acknowledged")
)

// SubscriptionError is fatal to the subscription that reports it.
type SubscriptionError struct {
	Side   book.Side
	Reason Reason
	Err    error
}

func (e *SubscriptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("feed: %s subscription: %s", e.Side, e.Reason)
	}
	return fmt.Sprintf("feed: %s subscription: %s: %s", e.Side, e.Reason, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
