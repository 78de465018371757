// Package errs classifies every failure the client can surface to an operator.
package errs

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// ErrOperationInFlight is returned when a mutating call is attempted while another one has not settled.
var ErrOperationInFlight = &ValidationError{Field: "operation", Reason: "another operation is still in flight"}

// ConnectionError means the session cannot talk to the chain or has no signer at all.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection: " + e.Reason
	}
	return fmt.Sprintf("connection: %s: %v", e.Reason, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// UserRejectedError means the operator declined to sign.
type UserRejectedError struct {
	Method string
}

func (e *UserRejectedError) Error() string {
	return fmt.Sprintf("%s: signature rejected by user", e.Method)
}

// ContractRevertError is a remote business-rule violation. Reason is empty when the node did not report one.
type ContractRevertError struct {
	Method string
	Reason string
	TxHash string
}

func (e *ContractRevertError) Error() string {
	var b strings.Builder
	b.WriteString(e.Method)
	b.WriteString(": execution reverted")
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.TxHash != "" {
		b.WriteString(" (tx ")
		b.WriteString(e.TxHash)
		b.WriteString(")")
	}
	return b.String()
}

// RemoteReadError wraps an RPC or decoding failure of a read call.
type RemoteReadError struct {
	Method string
	Err    error
}

func (e *RemoteReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Method, e.Err)
}

func (e *RemoteReadError) Unwrap() error { return e.Err }

// ValidationError is raised locally, before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func Read(method string, err error) error {
	var re *RemoteReadError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteReadError{Method: method, Err: err}
}

// Kind names the class of err for logs and metrics labels.
func Kind(err error) string {
	var (
		conn     *ConnectionError
		rejected *UserRejectedError
		revert   *ContractRevertError
		read     *RemoteReadError
		invalid  *ValidationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &invalid):
		return "validation"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.As(err, &revert):
		return "revert"
	case errors.As(err, &read):
		return "read"
	case errors.As(err, &conn):
		return "connection"
	default:
		return "unknown"
	}
}

// IsFatal reports whether the session cannot continue after err.
func IsFatal(err error) bool {
	var conn *ConnectionError
	return errors.As(err, &conn)
}
