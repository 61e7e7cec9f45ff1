package tokensync

import (
	"errors"
	"fmt"

	"token-dashboard-sync/internal/domain"
)

// Error classes. Every typed error below matches exactly one of them with errors.Is.
var (
	// ErrTransport marks a push channel failure. Recovered locally by falling back to a pull.
	ErrTransport = errors.New("transport error")

	// ErrFetch marks a failed HTTP pull. Terminal for the request.
	ErrFetch = errors.New("fetch error")

	// ErrNotFound is returned when a pull succeeds but carries no record.
	ErrNotFound = errors.New("no data")

	// ErrInvalidInput is returned before any request is made.
	ErrInvalidInput = domain.ErrInvalidInput

	// ErrClosed is returned by requests on a closed synchronizer.
	ErrClosed = errors.New("subscription closed")
)

// TransportError is a channel-level failure: a failed emit or an error event.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// FetchError is a failed HTTP pull.
type FetchError struct {
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// NotFoundError reports that the service has no record for Address.
type NotFoundError struct {
	Address string
	Err     error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no data for %s", e.Address)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidInputError is a missing or malformed identifier or parameter.
type InvalidInputError struct {
	Err error
}

func (e *InvalidInputError) Error() string { return e.Err.Error() }

func (e *InvalidInputError) Unwrap() error { return e.Err }

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// errorClass returns the metrics label for err.
func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
