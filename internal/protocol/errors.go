package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorToken opens an error reply line: ErrorToken /; kind /; message.
const ErrorToken = "EX"

// Error kinds serialized to clients. Everything except transport and
// port-binding failures is recoverable: the connection stays open.
const (
	KindProtocol   = "ProtocolError"
	KindReference  = "ReferenceError"
	KindDispatch   = "DispatchError"
	KindInvocation = "InvocationFailure"
)

// ProtocolError reports a malformed or unknown request token.
type ProtocolError struct {
	Token  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s: %q", e.Reason, e.Token)
}

// ReferenceError reports a reference whose bucket is absent from the
// registry. Dereferencing a flushed object is a client bug, not a crash.
type ReferenceError struct {
	Ref string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("protocol: unknown reference %q", e.Ref)
}

// DispatchError reports a resolution failure: no matching constructor,
// method or field, a broadcast length mismatch, or a static/instance
// mismatch.
type DispatchError struct {
	Reason string
}

func (e *DispatchError) Error() string {
	return "dispatch: " + e.Reason
}

// InvocationFailure carries the unwrapped cause of a reflective call that
// itself failed. The cause is reported to the caller, not the wrapper.
type InvocationFailure struct {
	Cause error
}

func (e *InvocationFailure) Error() string {
	return "invocation: " + e.Cause.Error()
}

func (e *InvocationFailure) Unwrap() error { return e.Cause }

// TransportFailure reports a socket-level error. The connection is torn
// down and the session discarded; nothing is written back to the client.
type TransportFailure struct {
	Op  string
	Err error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// PortBindingFailure is fatal at startup and names the occupied port.
type PortBindingFailure struct {
	Port int
	Err  error
}

func (e *PortBindingFailure) Error() string {
	return fmt.Sprintf("port %d could not be bound: %v", e.Port, e.Err)
}

func (e *PortBindingFailure) Unwrap() error { return e.Err }

// EncodeError serializes a recoverable error as a reply value.
func EncodeError(err error) string {
	kind := KindInvocation
	var (
		pe *ProtocolError
		re *ReferenceError
		de *DispatchError
		ie *InvocationFailure
	)
	msg := err.Error()
	switch {
	case errors.As(err, &pe):
		kind = KindProtocol
	case errors.As(err, &re):
		kind = KindReference
	case errors.As(err, &de):
		kind = KindDispatch
	case errors.As(err, &ie):
		kind = KindInvocation
		msg = ie.Cause.Error()
	}
	// The message must stay a single line for the line-oriented transport.
	msg = strings.ReplaceAll(msg, "\n", " ")
	return ErrorToken + MainSplitter + kind + MainSplitter + msg
}
