package book

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type DecodeReason int

const (
	TruncatedBuffer DecodeReason = iota + 1
	BadMagicOrVersion
	CorruptTreeStructure
)

var (
	ErrTruncatedBuffer      = errors.New("book: truncated buffer")
	ErrBadMagicOrVersion    = errors.New("book: bad magic or version")
	ErrCorruptTreeStructure = errors.New("book: corrupt tree structure")

	ErrInvalidQuantity   = errors.New("book: quantity must be positive")
	ErrInsufficientDepth = errors.New("book: insufficient depth")
)

func (r DecodeReason) String() string {
	switch r {
	case TruncatedBuffer:
		return "truncated buffer"
	case BadMagicOrVersion:
		return "bad magic or version"
	case CorruptTreeStructure:
		return "corrupt tree structure"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// DecodeError reports a buffer that is not a well-formed order book side.
type DecodeError struct {
	Reason DecodeReason
	Detail string
}

func decodeErr(reason DecodeReason, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return e.Unwrap().Error()
	}
	return e.Unwrap().Error() + ": " + e.Detail
}

func (e *DecodeError) Unwrap() error {
	switch e.Reason {
	case TruncatedBuffer:
		return ErrTruncatedBuffer
	case BadMagicOrVersion:
		return ErrBadMagicOrVersion
	}
	return ErrCorruptTreeStructure
}

// InsufficientDepthError means the visible book cannot fill the requested quantity.
type InsufficientDepthError struct {
	Side      Side
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientDepthError) Error() string {
	return fmt.Sprintf("book: insufficient %s depth: requested %s, available %s",
		e.Side, e.Requested, e.Available)
}

func (e *InsufficientDepthError) Unwrap() error {
	return ErrInsufficientDepth
}
