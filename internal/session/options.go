package session

import (
	"time"

	"github.com/rs/zerolog"

	"serumdepth/internal/book"
	"serumdepth/internal/common"
	"serumdepth/internal/feed"
)

// Observer is told about every outcome of the per-side pipelines. Methods
// are called from the pipeline goroutines and must not block.
type Observer interface {
	OnUpdate(u Update)
	OnDecodeError(side book.Side, err error)
	OnDepthError(side book.Side, err error)
	OnDrop(side book.Side)
}

type nopObserver struct{}

func (nopObserver) OnUpdate(Update) {}
func (nopObserver) OnDecodeError(book.Side, error) {}
func (nopObserver) OnDepthError(book.Side, error) {}
func (nopObserver) OnDrop(book.Side) {}

type Options struct {
	Logger     zerolog.Logger
	Encoding   feed.Encoding
	AckTimeout time.Duration
	// StallTimeout fails the session when no frame arrives for that long.
	// Zero disables it.
	StallTimeout time.Duration
	// Buffer is the number of updates kept for NextUpdate; the oldest is
	// dropped when it is full.
	Buffer   int
	Observer Observer
}

const (
	DefaultStallTimeout = 60 * time.Second
	DefaultBuffer       = 64
)

func defaultOptions() Options {
	return Options{
		Logger:       zerolog.Nop(),
		Encoding:     feed.EncodingBase64,
		AckTimeout:   feed.DefaultAckTimeout,
		StallTimeout: DefaultStallTimeout,
		Buffer:       DefaultBuffer,
		Observer:     nopObserver{},
	}
}

func OptionEncoding(enc feed.Encoding) common.Option {
	return func(options interface{}) error {
		return common.SetField(options, "Encoding", enc)
	}
}

func OptionAckTimeout(d time.Duration) common.Option {
	return func(options interface{}) error {
		return common.SetField(options, "AckTimeout", d)
	}
}

func OptionStallTimeout(d time.Duration) common.Option {
	return func(options interface{}) error {
		return common.SetField(options, "StallTimeout", d)
	}
}

func OptionBuffer(n int) common.Option {
	return func(options interface{}) error {
		if n < 1 {
			return common.ErrBadOption
		}
		return common.SetField(options, "Buffer", n)
	}
}

// OptionObserver is set directly: interface fields cannot go through SetField.
func OptionObserver(o Observer) common.Option {
	return func(options interface{}) error {
		opts, ok := options.(*Options)
		if !ok || o == nil {
			return common.ErrBadOption
		}
		opts.Observer = o
		return nil
	}
}
