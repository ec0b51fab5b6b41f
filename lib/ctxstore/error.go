package ctxstore

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/pkg/errors"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code, a message and the underlying cause (if any).
// Use errors.Is with the Err* sentinels to check the kind of an error.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The cause, may be nil.
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ContextStoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("ContextStoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the cause of the error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code. A serialization error also matches ErrStore and an
// error caused by an expired deadline also matches ErrTimeout.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	switch {
	case e.Code == t.Code:
		return true
	case t.Code == RetCStoreError:
		return e.Code == RetCSerializationError
	case t.Code == RetCTimeout:
		return isTimeout(e.Err)
	default:
		return false
	}
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new Error with the given code and message around cause.
// Expired deadlines (context or socket) are reported with RetCTimeout, except for
// connection errors, which keep their code and match ErrTimeout through Is.
func WrapError(code RetCode, cause error, msg string) *Error {
	if code != RetCConnectionError && isTimeout(cause) {
		code = RetCTimeout
	}
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  errors.WithStack(cause),
	}
}

// isTimeout reports whether err was caused by an expired deadline.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Sentinels for errors.Is
var (
	ErrConnection      = NewError(RetCConnectionError, "connection error")
	ErrDisconnection   = NewError(RetCDisconnectionError, "disconnection error")
	ErrStore           = NewError(RetCStoreError, "store error")
	ErrSerialization   = NewError(RetCSerializationError, "serialization error")
	ErrInvalidArgument = NewError(RetCInvalidArgument, "invalid argument")
	ErrTimeout         = NewError(RetCTimeout, "timeout")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess            RetCode = iota // 0: Operation executed successfully.
	RetCConnectionError                   // 1: The connection could not be established.
	RetCDisconnectionError                // 2: The connection could not be torn down gracefully.
	RetCStoreError                        // 3: A remote operation failed (closed connection, transport error, ...).
	RetCSerializationError                // 4: A value could not be encoded or a stored value could not be decoded.
	RetCInvalidArgument                   // 5: Invalid arguments or invalid lifecycle transition.
	RetCTimeout                           // 6: The operation deadline was exceeded.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCConnectionError:
		return "ConnectionError"
	case RetCDisconnectionError:
		return "DisconnectionError"
	case RetCStoreError:
		return "StoreError"
	case RetCSerializationError:
		return "SerializationError"
	case RetCInvalidArgument:
		return "InvalidArgument"
	case RetCTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}
