package domain

import "errors"

// Error taxonomy (sentinels)
var (
	// User errors (4xx)
	ErrBadDescriptor = errors.New("bad inspect descriptor")
	ErrQueueFull     = errors.New("inspect queue full")

	// Transient inspect errors; retried by the manager, surfaced as 504
	// if retries exhaust.
	ErrNoBotsReady    = errors.New("no bots ready")
	ErrInspectTimeout = errors.New("inspect timeout")
	ErrTransportDrop  = errors.New("transport dropped")

	// Infrastructure
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence unavailable")

	// ErrShuttingDown is delivered to pending completions on shutdown.
	ErrShuttingDown = errors.New("shutting down")
)

// TransportErrorKind classifies errors reported by the game transport.
// The permanent kinds are terminal for the owning bot; everything else is
// recoverable through the reconnect state machine.
type TransportErrorKind string

const (
	TransportAccountDisabled    TransportErrorKind = "ACCOUNT_DISABLED"
	TransportInvalidPassword    TransportErrorKind = "INVALID_PASSWORD"
	TransportRateLimitPermanent TransportErrorKind = "RATE_LIMIT_EXCEEDED_PERMANENT"
	TransportLoginThrottled     TransportErrorKind = "LOGIN_THROTTLED"
	TransportDisconnected       TransportErrorKind = "DISCONNECTED"
	TransportTimeout            TransportErrorKind = "TIMEOUT"
	TransportTransient          TransportErrorKind = "TRANSIENT"
)

// TransportError is an error surfaced by a GameClient with a reason code.
type TransportError struct {
	Kind TransportErrorKind
	Msg  string
}

func (e *TransportError) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

// Permanent reports whether the error terminates the owning bot.
// The list is fixed: ACCOUNT_DISABLED, INVALID_PASSWORD,
// RATE_LIMIT_EXCEEDED_PERMANENT.
func (e *TransportError) Permanent() bool {
	switch e.Kind {
	case TransportAccountDisabled, TransportInvalidPassword, TransportRateLimitPermanent:
		return true
	}
	return false
}

// TransportKindOf extracts the transport reason code from err, or
// TransportTransient when err carries none.
func TransportKindOf(err error) TransportErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return TransportTransient
}

// Retryable reports whether err is worth re-queueing at the manager
// level. A bot-level inspect timeout is transient: another bot may
// answer while the caller's deadline budget lasts.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNoBotsReady), errors.Is(err, ErrTransportDrop), errors.Is(err, ErrInspectTimeout):
		return true
	}
	var te *TransportError
	if errors.As(err, &te) {
		return !te.Permanent()
	}
	return false
}
