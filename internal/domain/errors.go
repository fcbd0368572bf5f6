package domain

import (
	"errors"
	"fmt"
)

// ErrMalformedPayload marks a catalog response that could not be decoded.
var ErrMalformedPayload = errors.New("malformed catalog payload")

// StorageFault wraps an I/O or schema failure of the favorites store.
// It is returned to the caller as is and never retried.
type StorageFault struct {
	Op  string
	Err error
}

func (e *StorageFault) Error() string {
	return fmt.Sprintf("storage fault: %s: %v", e.Op, e.Err)
}

func (e *StorageFault) Unwrap() error { return e.Err }

// UpstreamFault wraps a failed request to the remote catalog: transport
// errors, non-2xx responses and undecodable payloads.
type UpstreamFault struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamFault) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream fault: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream fault: %s: %v", e.Op, e.Err)
}

func (e *UpstreamFault) Unwrap() error { return e.Err }

// Message returns a short text suitable for showing to an end user.
func (e *UpstreamFault) Message() string {
	switch {
	case errors.Is(e.Err, ErrMalformedPayload):
		return "The movie catalog sent a response we could not read."
	case e.StatusCode == 401 || e.StatusCode == 403:
		return "The movie catalog rejected our credentials."
	case e.StatusCode == 404:
		return "The requested catalog page does not exist."
	case e.StatusCode >= 500:
		return "The movie catalog is temporarily unavailable."
	case e.StatusCode != 0:
		return fmt.Sprintf("The movie catalog returned an unexpected status (%d).", e.StatusCode)
	default:
		return "Could not reach the movie catalog."
	}
}
