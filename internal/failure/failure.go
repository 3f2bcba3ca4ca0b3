// Package failure defines the error taxonomy shared by the cart, the mutation
// applier and the backend client.
//
// Every failure that reaches a user is a *Error carrying a Kind. Local kinds
// (Validation, Conflict, StaleEntity) block an action before any remote call.
// Remote kinds (RemoteRejection, TransportFailure, Authentication) are produced
// at the backend boundary and leave local state untouched.
package failure

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind categorizes a failure.
type Kind string

const (
	// KindValidation marks an invalid cart, line or form. No network call is made.
	KindValidation Kind = "VALIDATION"

	// KindConflict marks a local stock conflict at add time. Non-fatal.
	KindConflict Kind = "CONFLICT"

	// KindRemoteRejection marks a structured or textual error answered by the backend.
	KindRemoteRejection Kind = "REMOTE_REJECTION"

	// KindTransport marks a request that got no response at all.
	KindTransport Kind = "TRANSPORT_FAILURE"

	// KindStaleEntity marks an edit or delete of a sentinel or already-removed entity.
	KindStaleEntity Kind = "STALE_ENTITY"

	// KindAuthentication marks rejected credentials.
	KindAuthentication Kind = "AUTHENTICATION"
)

// Error is a categorized failure.
type Error struct {
	Kind Kind

	// Message is the human-readable description.
	Message string

	// Status is the HTTP status of a remote rejection, zero otherwise.
	Status int

	// Payload is the raw error body returned by the backend, if any.
	Payload string

	// Err is the underlying cause (transport errors, decode errors).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Stale creates a KindStaleEntity error with a guidance message.
func Stale(format string, args ...any) *Error {
	return &Error{Kind: KindStaleEntity, Message: fmt.Sprintf(format, args...)}
}

// Authentication creates a KindAuthentication error.
func Authentication(message string, status int) *Error {
	return &Error{Kind: KindAuthentication, Message: message, Status: status}
}

// Transport wraps an error raised before any response was received.
func Transport(op string, err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Message: op + ": server did not respond",
		Err:     err,
	}
}

// Rejected builds a KindRemoteRejection from an HTTP status and response body.
//
// The message prefers, in order: a textual body, a structured (JSON) body
// re-serialized compactly, and finally the status line.
func Rejected(status int, body []byte) *Error {
	payload := strings.TrimSpace(string(body))
	return &Error{
		Kind:    KindRemoteRejection,
		Message: describePayload(status, payload),
		Status:  status,
		Payload: payload,
	}
}

// Malformed builds a KindRemoteRejection for a success response whose body
// could not be decoded into the expected shape.
func Malformed(op string, status int, body []byte, err error) *Error {
	return &Error{
		Kind:    KindRemoteRejection,
		Message: op + ": unreadable response",
		Status:  status,
		Payload: strings.TrimSpace(string(body)),
		Err:     err,
	}
}

func describePayload(status int, payload string) string {
	if payload == "" {
		return fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
	}

	var structured any
	if err := json.Unmarshal([]byte(payload), &structured); err == nil {
		switch v := structured.(type) {
		case string:
			return v
		case map[string]any, []any:
			compact, err := json.Marshal(v)
			if err == nil {
				return string(compact)
			}
		}
	}
	return payload
}

// KindOf returns the Kind of err, or "" if err is not a *Error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRemote reports whether err came from the backend boundary.
func IsRemote(err error) bool {
	switch KindOf(err) {
	case KindRemoteRejection, KindTransport, KindAuthentication:
		return true
	}
	return false
}

// Describe returns the user-visible description of err.
// Transport failures get a distinct "check your connection" hint.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if !errors.As(err, &fe) {
		return err.Error()
	}
	switch fe.Kind {
	case KindTransport:
		return "Server did not respond. Please check your connection."
	default:
		return fe.Message
	}
}
