package feed

import (
	"time"

	"github.com/rs/zerolog"

	"serumdepth/internal/common"
)

type Options struct {
	Logger     zerolog.Logger
	AckTimeout time.Duration
	Encoding   Encoding
}

const DefaultAckTimeout = 10 * time.Second

func defaultOptions() Options {
	return Options{
		Logger:     zerolog.Nop(),
		AckTimeout: DefaultAckTimeout,
		Encoding:   EncodingBase64,
	}
}

// OptionAckTimeout bounds the wait for subscribe and unsubscribe acknowledgments.
func OptionAckTimeout(d time.Duration) common.Option {
	return func(options interface{}) error {
		return common.SetField(options, "AckTimeout", d)
	}
}

func OptionEncoding(enc Encoding) common.Option {
	return func(options interface{}) error {
		return common.SetField(options, "Encoding", enc)
	}
}
