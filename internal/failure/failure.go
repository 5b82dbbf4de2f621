// Package failure classifies the errors a game screen can surface.
package failure

import "errors"

type Kind string

const (
	// AuthFailure: missing or rejected credential. Fatal to the screen.
	AuthFailure Kind = "auth_failure"
	// TransportFailure: connect or disconnect. Recoverable by explicit refresh.
	TransportFailure Kind = "transport_failure"
	// SessionUnavailable: neither an active session nor a created one.
	SessionUnavailable Kind = "session_unavailable"
	// RejectedMove: the service answered a request with an error event.
	RejectedMove Kind = "rejected_move"
	// LocalValidationFailure: a move failed the local pre-check and never
	// reached the network.
	LocalValidationFailure Kind = "local_validation"
)

// Error is a classified failure with an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Fatal reports whether the screen cannot continue without user action
// upstream (re-authentication or a manual retry).
func (e *Error) Fatal() bool {
	return e.Kind == AuthFailure || e.Kind == SessionUnavailable
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels for errors.Is checks by kind.
var (
	ErrAuth               = New(AuthFailure, "authentication failed")
	ErrTransport          = New(TransportFailure, "transport failure")
	ErrSessionUnavailable = New(SessionUnavailable, "session unavailable")
	ErrRejectedMove       = New(RejectedMove, "move rejected")
	ErrLocalValidation    = New(LocalValidationFailure, "move rejected locally")
)

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

func IsFatal(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Fatal()
}
