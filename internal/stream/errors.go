package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBody is reported when a successful response carries no body.
	ErrNoBody = errors.New("no response body")

	// ErrClosed is returned by Next after the consumer closed the decoder
	// before the stream ended.
	ErrClosed = errors.New("stream decoder closed")
)

// TransportError fails a whole streaming call before any delta is produced:
// a non-success status, a missing body or a failed request.
type TransportError struct {
	StatusCode int
	Status     string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("transport error: HTTP status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("transport error: %v", e.Err)
	default:
		return "transport error"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError describes a single malformed record. It is logged and the
// record skipped; it never ends a stream.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
