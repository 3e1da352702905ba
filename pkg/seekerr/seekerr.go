// Package seekerr provides the shared error taxonomy for the daemon.
// This is a leaf package with no internal dependencies, designed to be
// imported by every subsystem without causing circular imports.
//
// Errors cross subsystem boundaries as *Error values carrying a Kind;
// callers branch on KindOf(err) rather than on error strings.
package seekerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for cross-subsystem handling.
type Kind int

const (
	// KindNotFound indicates the requested resource does not exist.
	KindNotFound Kind = iota + 1

	// KindAlreadyExists indicates the resource already exists.
	KindAlreadyExists

	// KindInvalidArgument indicates an invalid argument was provided.
	KindInvalidArgument

	// KindPreconditionFailed indicates the operation requires state the
	// system is not in, for example an overlay login.
	KindPreconditionFailed

	// KindUnauthorized indicates missing or failed authentication.
	KindUnauthorized

	// KindTimeout indicates a deadline elapsed before completion.
	KindTimeout

	// KindCancelled indicates the caller abandoned the operation.
	KindCancelled

	// KindPeerRejected indicates the remote peer refused the request.
	KindPeerRejected

	// KindRemoteProtocol indicates the remote side misbehaved at the
	// protocol level.
	KindRemoteProtocol

	// KindLocalIO indicates a local filesystem or disk error.
	KindLocalIO

	// KindAgentDisconnected indicates the agent connection dropped while
	// an operation was outstanding.
	KindAgentDisconnected

	// KindBlacklisted indicates the counterparty is blacklisted.
	KindBlacklisted

	// KindConfiguration indicates invalid or inconsistent configuration.
	KindConfiguration

	// KindInternal indicates an unexpected internal fault.
	KindInternal
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindPreconditionFailed:
		return "PreconditionFailed"
	case KindUnauthorized:
		return "Unauthorized"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	case KindPeerRejected:
		return "PeerRejected"
	case KindRemoteProtocol:
		return "RemoteProtocol"
	case KindLocalIO:
		return "LocalIO"
	case KindAgentDisconnected:
		return "AgentDisconnected"
	case KindBlacklisted:
		return "Blacklisted"
	case KindConfiguration:
		return "Configuration"
	case KindInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Error is a classified error. The wrapped cause, when present, is
// preserved verbatim and reachable through errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	default:
		return e.Kind.String()
	}
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil cause yields nil.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the kind from an error chain. Unclassified errors
// report KindInternal; nil reports 0.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return Is(err, KindNotFound)
}

// IsUnauthorized reports whether err is an Unauthorized error.
func IsUnauthorized(err error) bool {
	return Is(err, KindUnauthorized)
}

// IsTimeout reports whether err is a Timeout error.
func IsTimeout(err error) bool {
	return Is(err, KindTimeout)
}

// IsCancelled reports whether err is a Cancelled error.
func IsCancelled(err error) bool {
	return Is(err, KindCancelled)
}
