package errors

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnauthorized = errors.New("user is not authorized")
var ErrForbidden = errors.New("operation is forbidden for user")

var (
	ErrBookingNotFound     = errors.New("booking not found")
	ErrFailedEventNotFound = errors.New("failed event not found")
	ErrNoValidSeats        = errors.New("no valid seats found")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// SeatLockConflictError is returned when a seat is already held by another booking.
type SeatLockConflictError struct {
	ShowID int64
	SeatID int64
}

func (e *SeatLockConflictError) Error() string {
	return fmt.Sprintf("seats no longer available: seat %d in show %d is already locked", e.SeatID, e.ShowID)
}

// PaymentFailureError carries the terminal payment status reported by the payment service.
type PaymentFailureError struct {
	Message       string
	Status        string
	TransactionID string
}

func (e *PaymentFailureError) Error() string {
	if e.Message == "" {
		return "payment failed"
	}
	return e.Message
}

// UpstreamServiceError wraps any failure of a remote dependency.
type UpstreamServiceError struct {
	Service    string
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamServiceError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Service, e.Op)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: http status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *UpstreamServiceError) Unwrap() error { return e.Err }

type PollingTimeoutError struct {
	SessionID string
	Attempts  int
	Elapsed   time.Duration
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("payment verification timeout for session %s after %d attempts (%s)",
		e.SessionID, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

// SystemError hides the cause behind a generic message; the cause is kept for logging.
type SystemError struct {
	Message string
	Err     error
}

func (e *SystemError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

func NewUpstream(service, op string, statusCode int, err error) error {
	return &UpstreamServiceError{Service: service, Op: op, StatusCode: statusCode, Err: err}
}

func NewSystem(message string, err error) error {
	return &SystemError{Message: message, Err: err}
}
