package downloader

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the workers matches exactly one of
// the segment kinds with errors.Is; retry failures additionally match ErrRetryAttempt.
var (
	// ErrSegmentNotFound is a 404 on a segment; the segment is deferred.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrSegmentTransport is a connection error or timeout; the segment is deferred.
	ErrSegmentTransport = errors.New("segment transport error")

	// ErrSegmentHTTP is any other non-2xx status; the segment is dropped.
	ErrSegmentHTTP = errors.New("segment http error")

	// ErrSegmentStorage is a local write failure; the segment is dropped.
	ErrSegmentStorage = errors.New("segment storage error")

	// ErrRetryAttempt marks the failure of the single retry attempt.
	ErrRetryAttempt = errors.New("segment retry failed")
)

// SegmentError describes a failed segment download.
type SegmentError struct {
	Kind       error
	URL        string
	StatusCode int
	Err        error
}

func (e *SegmentError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *SegmentError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Deferrable reports whether err should be handed to the retry worker.
func Deferrable(err error) bool {
	return errors.Is(err, ErrSegmentNotFound) || errors.Is(err, ErrSegmentTransport)
}
