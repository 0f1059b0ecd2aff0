package order

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInHostEnvironment means no host bridge was found, even after waiting.
	ErrNotInHostEnvironment = errors.New("order: not running inside the host app")
	// ErrSessionContextTimeout means the bridge never produced init data.
	ErrSessionContextTimeout = errors.New("order: host session data did not arrive in time")
	// ErrInFlight rejects a submit while another one is running.
	ErrInFlight = errors.New("order: submission already in progress")
)

// Field names the contact or cart input that failed validation.
type Field string

const (
	FieldName      Field = "name"
	FieldPhone     Field = "phone"
	FieldEmptyCart Field = "emptyCart"
)

// ValidationError reports the first input that blocks submission.
type ValidationError struct {
	Field Field
}

func (e *ValidationError) Error() string {
	switch e.Field {
	case FieldName:
		return "order: name must be at least 2 characters"
	case FieldPhone:
		return "order: phone must contain at least 10 digits"
	case FieldEmptyCart:
		return "order: cart is empty"
	default:
		return "order: invalid " + string(e.Field)
	}
}

// PayloadTooLargeError is returned when the serialized order exceeds the
// transport ceiling.
type PayloadTooLargeError struct {
	Size  int
	Limit int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("order: payload is %d characters, limit is %d", e.Size, e.Limit)
}

// Leg identifies which transport failed.
type Leg string

const (
	LegBridge Leg = "bridge"
	LegRelay  Leg = "relay"
)

// TransportError wraps a failure of the bridge send or the relay POST.
type TransportError struct {
	Leg Leg
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("order: %s transport failed: %v", e.Leg, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether the user can retry the submission as is.
func IsRetryable(err error) bool {
	var tooLarge *PayloadTooLargeError
	var invalid *ValidationError
	switch {
	case err == nil:
		return false
	case errors.As(err, &tooLarge), errors.As(err, &invalid):
		return false
	default:
		return true
	}
}
