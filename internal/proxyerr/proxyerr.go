// Package proxyerr defines the boundary error vocabulary shared by every
// connector, handler, and listener in the proxy engine.
package proxyerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way a connector or handler reports failure
// across a component boundary, independent of the underlying transport.
type Kind int

const (
	// Unknown is the zero value; never returned deliberately.
	Unknown Kind = iota
	// BadAddress means an endpoint failed to parse or resolve.
	BadAddress
	// NetworkUnreachable means the destination network could not be reached.
	NetworkUnreachable
	// ConnectionAborted means a connection was reset or closed mid-flight.
	ConnectionAborted
	// InvalidArgument means a caller supplied a malformed request.
	InvalidArgument
	// ProtocolError means a peer violated the wire protocol.
	ProtocolError
	// ProtocolNotSupported means a requested sub-protocol/method is unknown.
	ProtocolNotSupported
	// AddressFamilyNotSupported means an endpoint's family (v4/v6/domain) is
	// not supported by the component asked to act on it.
	AddressFamilyNotSupported
	// TimedOut means an operation exceeded its deadline.
	TimedOut
	// PermissionDenied means the OS refused the requested operation.
	PermissionDenied
	// NotSupported means the component does not implement the operation at
	// all (for example, UDP bind on a connector that is TCP-only).
	NotSupported
	// ResultOutOfRange means AEAD verification failed or a decoded length
	// field exceeded its bound.
	ResultOutOfRange
)

func (k Kind) String() string {
	switch k {
	case BadAddress:
		return "bad_address"
	case NetworkUnreachable:
		return "network_unreachable"
	case ConnectionAborted:
		return "connection_aborted"
	case InvalidArgument:
		return "invalid_argument"
	case ProtocolError:
		return "protocol_error"
	case ProtocolNotSupported:
		return "protocol_not_supported"
	case AddressFamilyNotSupported:
		return "address_family_not_supported"
	case TimedOut:
		return "timed_out"
	case PermissionDenied:
		return "permission_denied"
	case NotSupported:
		return "not_supported"
	case ResultOutOfRange:
		return "result_out_of_range"
	default:
		return "unknown"
	}
}

// Error is a typed, wrapped error carrying a Kind so callers across package
// boundaries can branch on failure category without string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with no wrapped cause.
func New(op string, kind Kind) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap constructs an *Error wrapping err under the given op/kind.
func Wrap(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, otherwise
// returns Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
