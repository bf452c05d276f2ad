package feed_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serumdepth/internal/book"
	"serumdepth/internal/feed"
	"serumdepth/internal/feed/feedtest"
)

var bidsAddress = solana.PublicKeyFromBytes(bytes.Repeat([]byte{0xb1}, solana.PublicKeyLength))

func newSub(t *testing.T, tr feed.Transport, timeout time.Duration) *feed.Subscription {
	t.Helper()
	sub, err := feed.NewSubscription(book.Bid, bidsAddress, tr,
		feed.OptionAckTimeout(timeout),
		feed.OptionEncoding(feed.EncodingBase64Zstd))
	require.NoError(t, err)
	return sub
}

func waitRequest(t *testing.T, tr *feedtest.Transport, n int) feedtest.Request {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(tr.Requests()) >= n
	}, time.Second, time.Millisecond)
	return tr.Requests()[n-1]
}

func subscribe(t *testing.T, tr *feedtest.Transport, sub *feed.Subscription, id feed.SubscriptionID) {
	t.Helper()
	n := len(tr.Requests()) + 1
	errc := make(chan error, 1)
	go func() { errc <- sub.Subscribe(context.Background()) }()
	req := waitRequest(t, tr, n)
	require.True(t, sub.HandleAck(feed.Ack{RequestID: req.ID, Subscription: id, OK: true}))
	require.NoError(t, <-errc)
}

func TestSubscribeRequiresMatchingAck(t *testing.T) {
	tr := feedtest.New(false)
	sub := newSub(t, tr, time.Second)
	assert.Equal(t, feed.Idle, sub.State())

	errc := make(chan error, 1)
	go func() { errc <- sub.Subscribe(context.Background()) }()

	req := waitRequest(t, tr, 1)
	assert.Equal(t, "accountSubscribe", req.Method)
	assert.Equal(t, bidsAddress, req.Address)
	assert.Equal(t, feed.EncodingBase64Zstd, req.Encoding)

	assert.False(t, sub.HandleAck(feed.Ack{RequestID: req.ID + 1, Subscription: 9}))
	assert.Equal(t, feed.Subscribing, sub.State())
	_, ok := sub.ID()
	assert.False(t, ok)
	_, ok = sub.Accept(&feed.Notification{Subscription: 9})
	assert.False(t, ok)

	assert.True(t, sub.HandleAck(feed.Ack{RequestID: req.ID, Subscription: 42, OK: true}))
	require.NoError(t, <-errc)
	assert.Equal(t, feed.Active, sub.State())
	id, ok := sub.ID()
	require.True(t, ok)
	assert.Equal(t, feed.SubscriptionID(42), id)
	assert.True(t, sub.Owns(42))
	assert.False(t, sub.Owns(9))

	assert.ErrorIs(t, sub.Subscribe(context.Background()), feed.ErrAlreadyStarted)
}

func TestAckTakesEffectBeforeSubscribeReturns(t *testing.T) {
	for i := 0; i < 50; i++ {
		tr := feedtest.New(false)
		sub := newSub(t, tr, time.Second)

		errc := make(chan error, 1)
		go func() { errc <- sub.Subscribe(context.Background()) }()
		req := waitRequest(t, tr, 1)

		// The reader moves straight on to the next frame after the ack.
		require.True(t, sub.HandleAck(feed.Ack{RequestID: req.ID, Subscription: 42, OK: true}))
		require.True(t, sub.Owns(42))
		u, ok := sub.Accept(&feed.Notification{Subscription: 42, Slot: 3, Data: []byte{1}})
		require.True(t, ok)
		assert.Equal(t, uint64(3), u.Slot)
		require.NoError(t, <-errc)
	}
}

func TestAckDuringSubscribeWrite(t *testing.T) {
	tr := feedtest.New(false)
	tr.Hold = make(chan struct{})
	sub := newSub(t, tr, time.Second)

	errc := make(chan error, 1)
	go func() { errc <- sub.Subscribe(context.Background()) }()
	req := waitRequest(t, tr, 1)

	handled := make(chan bool, 1)
	go func() { handled <- sub.HandleAck(feed.Ack{RequestID: req.ID, Subscription: 42, OK: true}) }()
	select {
	case ok := <-handled:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("HandleAck blocked behind the subscribe write")
	}
	assert.Equal(t, feed.Active, sub.State())
	assert.True(t, sub.Owns(42))

	select {
	case err := <-errc:
		t.Fatalf("Subscribe returned %v before the write completed", err)
	default:
	}
	close(tr.Hold)
	require.NoError(t, <-errc)
}

func TestRejectedDuringSubscribeWrite(t *testing.T) {
	tr := feedtest.New(false)
	tr.Hold = make(chan struct{})
	sub := newSub(t, tr, time.Second)

	errc := make(chan error, 1)
	go func() { errc <- sub.Subscribe(context.Background()) }()
	req := waitRequest(t, tr, 1)

	require.True(t, sub.HandleAck(feed.Ack{RequestID: req.ID, Err: errors.New("Invalid param")}))
	assert.Equal(t, feed.Failed, sub.State())
	close(tr.Hold)

	var se *feed.SubscriptionError
	require.True(t, errors.As(<-errc, &se))
	assert.Equal(t, feed.Rejected, se.Reason)
}

func TestAccept(t *testing.T) {
	tr := feedtest.New(false)
	sub := newSub(t, tr, time.Second)
	subscribe(t, tr, sub, 7)

	u, ok := sub.Accept(&feed.Notification{Subscription: 7, Slot: 11, Data: []byte{1, 2}})
	require.True(t, ok)
	assert.Equal(t, book.Bid, u.Side)
	assert.Equal(t, uint64(11), u.Slot)
	assert.Equal(t, []byte{1, 2}, u.Data)

	_, ok = sub.Accept(&feed.Notification{Subscription: 8})
	assert.False(t, ok)
	assert.Equal(t, feed.Active, sub.State())
}

func TestSubscribeTimeout(t *testing.T) {
	tr := feedtest.New(false)
	sub := newSub(t, tr, 20*time.Millisecond)

	err := sub.Subscribe(context.Background())
	var se *feed.SubscriptionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, feed.Timeout, se.Reason)
	assert.Equal(t, book.Bid, se.Side)
	assert.Equal(t, feed.Failed, sub.State())
	assert.Equal(t, err, sub.Err())

	select {
	case <-sub.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestSubscribeRejected(t *testing.T) {
	tr := feedtest.New(false)
	sub := newSub(t, tr, time.Second)

	errc := make(chan error, 1)
	go func() { errc <- sub.Subscribe(context.Background()) }()
	req := waitRequest(t, tr, 1)
	sub.HandleAck(feed.Ack{RequestID: req.ID, Err: errors.New("Invalid param")})

	var se *feed.SubscriptionError
	require.True(t, errors.As(<-errc, &se))
	assert.Equal(t, feed.Rejected, se.Reason)
	assert.Equal(t, feed.Failed, sub.State())
}

func TestSubscribeTransportError(t *testing.T) {
	tr := feedtest.New(false)
	broken := errors.New("broken pipe")
	tr.SubscribeErr = map[solana.PublicKey]error{bidsAddress: broken}
	sub := newSub(t, tr, time.Second)

	err := sub.Subscribe(context.Background())
	require.ErrorIs(t, err, broken)
	var se *feed.SubscriptionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, feed.TransportError, se.Reason)
}

func TestSubscribeCancelled(t *testing.T) {
	tr := feedtest.New(false)
	sub := newSub(t, tr, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- sub.Subscribe(ctx) }()
	waitRequest(t, tr, 1)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, feed.Closed, sub.State())
}

func TestUnsubscribeWhileSubscribing(t *testing.T) {
	tr := feedtest.New(false)
	sub := newSub(t, tr, time.Minute)

	errc := make(chan error, 1)
	go func() { errc <- sub.Subscribe(context.Background()) }()
	req := waitRequest(t, tr, 1)

	require.NoError(t, sub.Unsubscribe(context.Background()))
	assert.ErrorIs(t, <-errc, feed.ErrClosed)
	assert.Equal(t, feed.Closed, sub.State())
	assert.False(t, sub.HandleAck(feed.Ack{RequestID: req.ID, Subscription: 1}))
	assert.Len(t, tr.Requests(), 1)
}

func TestUnsubscribe(t *testing.T) {
	tr := feedtest.New(false)
	sub := newSub(t, tr, time.Second)
	subscribe(t, tr, sub, 5)

	errc := make(chan error, 1)
	go func() { errc <- sub.Unsubscribe(context.Background()) }()
	req := waitRequest(t, tr, 2)
	assert.Equal(t, "accountUnsubscribe", req.Method)
	assert.Equal(t, feed.SubscriptionID(5), req.Subscription)
	assert.True(t, sub.HandleAck(feed.Ack{RequestID: req.ID, OK: true}))

	require.NoError(t, <-errc)
	assert.Equal(t, feed.Closed, sub.State())
	_, ok := sub.Accept(&feed.Notification{Subscription: 5})
	assert.False(t, ok)

	require.NoError(t, sub.Unsubscribe(context.Background()))
	assert.Len(t, tr.Requests(), 2)
}

func TestUnsubscribeUnacknowledged(t *testing.T) {
	tr := feedtest.New(false)
	sub := newSub(t, tr, 20*time.Millisecond)
	subscribe(t, tr, sub, 5)

	err := sub.Unsubscribe(context.Background())
	assert.ErrorIs(t, err, feed.ErrUnsubscribeUnacked)
	assert.Equal(t, feed.Closed, sub.State())
	assert.NoError(t, sub.Err())
}

func TestUnsubscribeIdle(t *testing.T) {
	tr := feedtest.New(false)
	sub := newSub(t, tr, time.Second)
	require.NoError(t, sub.Unsubscribe(context.Background()))
	assert.Equal(t, feed.Closed, sub.State())
	assert.Empty(t, tr.Requests())
	assert.ErrorIs(t, sub.Subscribe(context.Background()), feed.ErrAlreadyStarted)
}

func TestFailActive(t *testing.T) {
	tr := feedtest.New(false)
	sub := newSub(t, tr, time.Second)
	subscribe(t, tr, sub, 5)

	sub.Fail(feed.TransportError, errors.New("connection reset"))
	assert.Equal(t, feed.Failed, sub.State())
	_, ok := sub.Accept(&feed.Notification{Subscription: 5})
	assert.False(t, ok)

	require.NoError(t, sub.Unsubscribe(context.Background()))
	assert.Equal(t, feed.Failed, sub.State())

	sub.Fail(feed.Timeout, nil)
	var se *feed.SubscriptionError
	require.True(t, errors.As(sub.Err(), &se))
	assert.Equal(t, feed.TransportError, se.Reason)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unsubscribing", feed.Unsubscribing.String())
	assert.Equal(t, "state(9)", feed.State(9).String())
	assert.Equal(t, "timeout", feed.Timeout.String())
}
