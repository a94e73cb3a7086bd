package submission

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

var (
	ErrInvalidOrder       = errors.New("invalid order")
	ErrRemoteRejected     = errors.New("order rejected by ledger")
	ErrTransportExhausted = errors.New("all submission strategies failed")
	ErrTimeout            = errors.New("submission timed out")
	// ErrUnconfirmed means the ledger answered without a readable
	// confirmation. The order may or may not have been stored.
	ErrUnconfirmed = errors.New("submission not confirmed by ledger")
)

// Attempt outcomes
const (
	OutcomeAcked       = "acked"
	OutcomeRejected    = "rejected"
	OutcomeUnconfirmed = "unconfirmed"
	OutcomeTransport   = "transport_error"
	OutcomeTimeout     = "timeout"
	OutcomeBreakerOpen = "breaker_open"
)

// Attempt records one strategy try
type Attempt struct {
	Strategy string        `json:"strategy"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Error is returned by Pipeline.Submit. Kind is one of the Err* sentinels and
// is matched by errors.Is.
type Error struct {
	Kind     error
	Reason   string
	Attempts []Attempt
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Rejected is returned by a strategy when the ledger was reached and refused
// the order. It stops the fallback chain.
func Rejected(reason string) error {
	return &Error{Kind: ErrRemoteRejected, Reason: reason}
}

// Unconfirmed is returned by a strategy when the ledger answered but the
// answer cannot be read as a confirmation. It stops the fallback chain.
func Unconfirmed(reason string) error {
	return &Error{Kind: ErrUnconfirmed, Reason: reason}
}

// terminal reports whether err ends the chain instead of falling back
func terminal(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidOrder, Reason: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

// KindOf names the failure kind of err for logs, metrics and events
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, ErrRemoteRejected):
		return "remote_rejected"
	case errors.Is(err, ErrUnconfirmed):
		return "unconfirmed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTransportExhausted):
		return "transport_exhausted"
	default:
		return "unknown"
	}
}

// ReasonOf returns the reason carried by a submission error
func ReasonOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
