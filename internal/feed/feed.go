// Package feed turns account subscriptions over a shared stream connection
// into per-side sequences of raw order book account updates.
package feed

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"serumdepth/internal/book"
	"serumdepth/internal/common/timestamp"
)

type Encoding string

const (
	EncodingBase64     Encoding = "base64"
	EncodingBase64Zstd Encoding = "base64+zstd"
	EncodingBase58     Encoding = "base58"
	EncodingJSONParsed Encoding = "jsonParsed"
)

var Encodings = []string{
	string(EncodingBase64),
	string(EncodingBase64Zstd),
	string(EncodingBase58),
	string(EncodingJSONParsed),
}

type (
	RequestID      uint64
	SubscriptionID uint64
)

// Transport is a persistent ordered bidirectional stream of requests and frames.
// Recv is called from a single goroutine; the other methods may be called
// concurrently with it.
//
// Request ids are reserved with NewRequestID before the request is written,
// so an acknowledgment read while the write is still in flight can be matched.
type Transport interface {
	NewRequestID() RequestID
	Subscribe(ctx context.Context, id RequestID, address solana.PublicKey, encoding Encoding) error
	Unsubscribe(ctx context.Context, id RequestID, sub SubscriptionID) error
	Recv(ctx context.Context) (Frame, error)
	Close() error
}

// Frame is one inbound message: exactly one of Ack and Notification is set.
type Frame struct {
	Ack          *Ack
	Notification *Notification
}

// Ack answers a request. Subscribe acks carry the subscription id; unsubscribe
// acks carry OK.
type Ack struct {
	RequestID    RequestID
	Subscription SubscriptionID
	OK           bool
	Err          error
}

type Notification struct {
	Subscription SubscriptionID
	Slot         uint64
	Data         []byte
	Received     timestamp.Timestamp
}

// RawAccountUpdate is account data attributed to one side of the book.
type RawAccountUpdate struct {
	Side     book.Side
	Slot     uint64
	Data     []byte
	Received timestamp.Timestamp
}
