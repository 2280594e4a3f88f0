package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for the client.
var (
	// ErrNotReady is returned by Invoke when the active substrate is not open.
	ErrNotReady = fmt.Errorf("transport not ready")
	// ErrSendQueueFull is returned when the outbound queue cannot take another frame.
	ErrSendQueueFull = fmt.Errorf("%w: send queue full", ErrNotReady)
	// ErrMalformedFrame marks an inbound frame that could not be decoded.
	ErrMalformedFrame = fmt.Errorf("malformed frame")
	// ErrConnectionLost rejects calls that were in flight when the connection dropped.
	ErrConnectionLost = fmt.Errorf("connection lost")
	// ErrSessionInvalid is reported when the server closed with the session-invalid code.
	ErrSessionInvalid = fmt.Errorf("session no longer valid")
	// ErrHandshakeTimeout is reported when no welcome arrived in time.
	ErrHandshakeTimeout = fmt.Errorf("handshake timed out")
	// ErrRPCFailed is matched by every *RPCError.
	ErrRPCFailed = fmt.Errorf("rpc failed")
	// ErrBridgeUnavailable is returned when the host bridge is not compiled in.
	ErrBridgeUnavailable = fmt.Errorf("host bridge unavailable")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrDecryption        = fmt.Errorf("decryption failed")
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	// ErrMethodNotFound is matched by an *RPCError carrying RPCCodeMethodNotFound.
	ErrMethodNotFound = fmt.Errorf("rpc method not found")
)

// RPCCodeMethodNotFound is the RPC error code for an unknown method.
const RPCCodeMethodNotFound = -32601

// RPCError is a structured failure returned by the server for one call.
// It is the only error type that describes a rejected operation end to end.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrRPCFailed) true for any RPCError, and
// errors.Is(err, ErrMethodNotFound) true for the unknown-method code.
func (e *RPCError) Is(target error) bool {
	switch target {
	case ErrRPCFailed:
		return true
	case ErrMethodNotFound:
		return e.Code == RPCCodeMethodNotFound
	}
	return false
}

// UnmarshalData decodes the auxiliary payload into v.
func (e *RPCError) UnmarshalData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("rpc error %d carries no data", e.Code)
	}
	return json.Unmarshal(e.Data, v)
}

// AsRPCError extracts an *RPCError from err's chain.
func AsRPCError(err error) (*RPCError, bool) {
	var re *RPCError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Controller.dial")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category used by the CLI exit path.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotReady          ErrorCode = "NOT_READY"
	CodeSendQueueFull     ErrorCode = "SEND_QUEUE_FULL"
	CodeMalformedFrame    ErrorCode = "MALFORMED_FRAME"
	CodeConnectionLost    ErrorCode = "CONNECTION_LOST"
	CodeSessionInvalid    ErrorCode = "SESSION_INVALID"
	CodeHandshakeTimeout  ErrorCode = "HANDSHAKE_TIMEOUT"
	CodeRPCFailed         ErrorCode = "RPC_FAILED"
	CodeBridgeUnavailable ErrorCode = "BRIDGE_UNAVAILABLE"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeDecryption        ErrorCode = "DECRYPTION"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeMethodNotFound    ErrorCode = "METHOD_NOT_FOUND"
)

// errorCodeOrder is checked in order so the more specific sentinel wins
// (ErrSendQueueFull wraps ErrNotReady, a session-invalid disconnect also
// matches ErrConnectionLost, every RPCError matches ErrRPCFailed).
var errorCodeOrder = []struct {
	err  error
	code ErrorCode
}{
	{ErrSendQueueFull, CodeSendQueueFull},
	{ErrNotReady, CodeNotReady},
	{ErrMalformedFrame, CodeMalformedFrame},
	{ErrSessionInvalid, CodeSessionInvalid},
	{ErrConnectionLost, CodeConnectionLost},
	{ErrHandshakeTimeout, CodeHandshakeTimeout},
	{ErrMethodNotFound, CodeMethodNotFound},
	{ErrRPCFailed, CodeRPCFailed},
	{ErrBridgeUnavailable, CodeBridgeUnavailable},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrDecryption, CodeDecryption},
	{ErrAuthInvalid, CodeAuthInvalid},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, e := range errorCodeOrder {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeUnknown
}
