package connection

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Inner when no resource is held.
var ErrNotConnected = errors.New("connection: not connected")

// ConnectionError reports a failed acquisition or teardown.
// The connection remains usable: a later Connect retries.
type ConnectionError struct {
	ShareID string
	Op      string // "connect" or "disconnect"
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ShareID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
