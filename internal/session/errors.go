package session

import (
	"errors"
	"fmt"
)

var (
	ErrClosed        = errors.New("session: closed")
	ErrTimeout       = errors.New("session: no update within timeout")
	ErrSessionLost   = errors.New("session: lost")
	ErrInvalidConfig = errors.New("session: invalid config")
)

// SessionError reports a session that could not be opened.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session: %s: %s", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// LostError ends a session whose transport failed. It matches ErrSessionLost
// and unwraps to the transport failure.
type LostError struct {
	Err error
}

func (e *LostError) Error() string {
	return fmt.Sprintf("session: lost: %s", e.Err)
}

func (e *LostError) Is(target error) bool {
	return target == ErrSessionLost
}

func (e *LostError) Unwrap() error {
	return e.Err
}
