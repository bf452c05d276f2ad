// Package feedtest provides a scripted in-memory feed.Transport.
package feedtest

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"

	"serumdepth/internal/common/timestamp"
	"serumdepth/internal/feed"
)

var ErrClosed = errors.New("feedtest: transport closed")

type Request struct {
	ID           feed.RequestID
	Method       string
	Address      solana.PublicKey
	Encoding     feed.Encoding
	Subscription feed.SubscriptionID
}

// Transport queues frames pushed by the test and records requests. With
// AutoAck set, subscribe requests are acknowledged with subscription ids
// 100+request id and unsubscribe requests with true.
type Transport struct {
	AutoAck bool
	// SubscribeErr, when set, is returned by Subscribe for that address.
	SubscribeErr map[solana.PublicKey]error
	// Initial, with AutoAck, is pushed as a slot 1 notification right
	// behind the acknowledgment of a subscribe for that address.
	Initial map[solana.PublicKey][]byte
	// Hold, when set, keeps Subscribe from returning until it is closed.
	// The auto acknowledgment is queued before Subscribe blocks.
	Hold chan struct{}

	mu       sync.Mutex
	nextID   feed.RequestID
	requests []Request
	subs     map[solana.PublicKey]feed.SubscriptionID

	frames    chan feed.Frame
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func New(autoAck bool) *Transport {
	return &Transport{
		AutoAck: autoAck,
		subs:    make(map[solana.PublicKey]feed.SubscriptionID),
		frames:  make(chan feed.Frame, 256),
		errs:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (t *Transport) record(r Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, r)
}

func (t *Transport) NewRequestID() feed.RequestID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	return t.nextID
}

func (t *Transport) Subscribe(ctx context.Context, id feed.RequestID, address solana.PublicKey, encoding feed.Encoding) error {
	if t.IsClosed() {
		return ErrClosed
	}
	t.mu.Lock()
	err := t.SubscribeErr[address]
	data, initial := t.Initial[address]
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.record(Request{ID: id, Method: "accountSubscribe", Address: address, Encoding: encoding})
	if t.AutoAck {
		sub := feed.SubscriptionID(100 + id)
		t.mu.Lock()
		t.subs[address] = sub
		t.mu.Unlock()
		t.Ack(id, sub)
		if initial {
			t.Notify(sub, 1, data)
		}
	}
	if t.Hold != nil {
		select {
		case <-t.Hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (t *Transport) Unsubscribe(ctx context.Context, id feed.RequestID, sub feed.SubscriptionID) error {
	if t.IsClosed() {
		return ErrClosed
	}
	t.record(Request{ID: id, Method: "accountUnsubscribe", Subscription: sub})
	if t.AutoAck {
		t.Push(feed.Frame{Ack: &feed.Ack{RequestID: id, OK: true}})
	}
	return nil
}

func (t *Transport) Recv(ctx context.Context) (feed.Frame, error) {
	select {
	case <-t.closed:
		return feed.Frame{}, ErrClosed
	default:
	}
	select {
	case f := <-t.frames:
		return f, nil
	case err := <-t.errs:
		return feed.Frame{}, err
	case <-t.closed:
		return feed.Frame{}, ErrClosed
	case <-ctx.Done():
		return feed.Frame{}, ctx.Err()
	}
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *Transport) IsClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *Transport) Push(f feed.Frame) {
	t.frames <- f
}

// Ack acknowledges request id with a subscription id.
func (t *Transport) Ack(id feed.RequestID, sub feed.SubscriptionID) {
	t.Push(feed.Frame{Ack: &feed.Ack{RequestID: id, Subscription: sub, OK: true}})
}

func (t *Transport) Notify(sub feed.SubscriptionID, slot uint64, data []byte) {
	t.Push(feed.Frame{Notification: &feed.Notification{
		Subscription: sub,
		Slot:         slot,
		Data:         data,
		Received:     timestamp.Now(),
	}})
}

// Fail makes the next Recv return err.
func (t *Transport) Fail(err error) {
	t.errs <- err
}

func (t *Transport) Requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Request(nil), t.requests...)
}

// SubscriptionFor returns the id auto-acknowledged for address.
func (t *Transport) SubscriptionFor(address solana.PublicKey) (feed.SubscriptionID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.subs[address]
	return sub, ok
}
