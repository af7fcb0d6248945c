package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResponse means the provider returned no rows for the window.
	ErrEmptyResponse = errors.New("empty response")
	// ErrMalformedResponse means the response had a shape the decoder does not support.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrNoData means every response shape came back empty.
	ErrNoData = errors.New("no data returned")
)

// InsufficientRowsError reports a response thinner than the configured minimum.
type InsufficientRowsError struct {
	Rows int
	Min  int
}

func (e *InsufficientRowsError) Error() string {
	return fmt.Sprintf("only %d rows (minimum %d required)", e.Rows, e.Min)
}

// TransportError wraps network and provider status failures.
type TransportError struct {
	Source string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Source, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// fallbackEligible reports whether the next response shape should be tried.
func fallbackEligible(err error) bool {
	return errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrMalformedResponse)
}
