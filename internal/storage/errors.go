package storage

import (
	"errors"
	"fmt"
)

// ErrSignedURLUnsupported is returned by backends that cannot issue signed links.
var ErrSignedURLUnsupported = errors.New("signed urls are not supported by this backend")

// TransportError reports a failed exchange with the object store: network,
// authentication or a missing bucket.
type TransportError struct {
	Op  string
	Key string
	Err error
}

func (e *TransportError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("object store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("object store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func transportErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Key: key, Err: err}
}
