package protocol

import (
	"errors"
	"fmt"
	"time"
)

// Core protocol errors
var (
	// Connection errors

	ErrConnectionClosed = errors.New("connection is closed")
	ErrDialFailed       = errors.New("dial failed")

	// Client errors

	ErrClientClosed         = errors.New("client is closed")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Message errors

	ErrMalformedPayload   = errors.New("malformed payload")
	ErrFrameTooLarge      = errors.New("frame too large")
	ErrUnknownMessageType = errors.New("unknown message type")

	// Transport errors

	ErrTransportFailed = errors.New("transport failed")
	ErrChannelClosed   = errors.New("channel closed")

	// Server errors

	ErrServerError = errors.New("server error")

	// Timeout errors

	ErrTimeout = errors.New("operation timed out")

	// Generic errors

	ErrOther        = errors.New("protocol error")
	ErrUnknownError = errors.New("unknown error")
)

// ErrorCode represents a numeric error code for efficient error handling
type ErrorCode int

const (
	// Success

	ErrorCodeSuccess ErrorCode = 0

	// Connection error codes (1000-1999)

	ErrorCodeConnectionClosed ErrorCode = 1001
	ErrorCodeDialFailed       ErrorCode = 1002

	// Client error codes (2000-2999)

	ErrorCodeClientClosed         ErrorCode = 2001
	ErrorCodeAuthenticationFailed ErrorCode = 2002

	// Message error codes (3000-3999)

	ErrorCodeMalformedPayload   ErrorCode = 3001
	ErrorCodeFrameTooLarge      ErrorCode = 3002
	ErrorCodeUnknownMessageType ErrorCode = 3003

	// Transport error codes (4000-4999)

	ErrorCodeTransportFailed ErrorCode = 4001
	ErrorCodeChannelClosed   ErrorCode = 4002

	// Server error codes (5000-5999)

	ErrorCodeServerError ErrorCode = 5001

	// Timeout error codes (6000-6999)

	ErrorCodeTimeout ErrorCode = 6001

	// Generic error codes (9000-9999)

	ErrorCodeOther        ErrorCode = 9001
	ErrorCodeUnknownError ErrorCode = 9999
)

// Error represents a protocol-specific error with additional context
type Error struct {
	Code      ErrorCode
	Message   string
	Cause     error
	Context   map[string]interface{}
	Timestamp int64
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel matching this error's code, so
// errors.Is works against the sentinels above regardless of the cause chain
func (e *Error) Is(target error) bool {
	code, ok := errorCodeMap[target]
	return ok && code == e.Code
}

// NewProtocolError creates a new protocol error
func NewProtocolError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Context:   make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

// Otherf creates a generic protocol error from a format string
func Otherf(format string, args ...interface{}) *Error {
	return NewProtocolError(ErrorCodeOther, fmt.Sprintf(format, args...), ErrOther)
}

// NewServerError creates an error carrying the code and message a server
// reported in an error payload
func NewServerError(code uint32, message string) *Error {
	return NewProtocolError(ErrorCodeServerError, message, ErrServerError).
		WithContext("server_code", code)
}

// ServerCode extracts the server-reported error code, if err carries one
func ServerCode(err error) (uint32, bool) {
	var protocolErr *Error
	if !errors.As(err, &protocolErr) {
		return 0, false
	}
	code, ok := protocolErr.Context["server_code"].(uint32)
	return code, ok
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	e.Context[key] = value
	return e
}

// IsTemporary checks if the error is temporary and the operation can be retried
func (e *Error) IsTemporary() bool {
	switch e.Code {
	case ErrorCodeTimeout,
		ErrorCodeDialFailed:
		return true
	default:
		return false
	}
}

// IsRetryable checks if the operation should be retried
func (e *Error) IsRetryable() bool {
	return e.IsTemporary()
}

// IsFatal checks if the error is fatal and the connection should be closed
func (e *Error) IsFatal() bool {
	switch e.Code {
	case ErrorCodeConnectionClosed,
		ErrorCodeClientClosed,
		ErrorCodeChannelClosed,
		ErrorCodeMalformedPayload,
		ErrorCodeFrameTooLarge,
		ErrorCodeAuthenticationFailed:
		return true
	default:
		return false
	}
}

// Error mapping from standard errors to error codes
var errorCodeMap = map[error]ErrorCode{
	ErrConnectionClosed: ErrorCodeConnectionClosed,
	ErrDialFailed:       ErrorCodeDialFailed,

	ErrClientClosed:         ErrorCodeClientClosed,
	ErrAuthenticationFailed: ErrorCodeAuthenticationFailed,

	ErrMalformedPayload:   ErrorCodeMalformedPayload,
	ErrFrameTooLarge:      ErrorCodeFrameTooLarge,
	ErrUnknownMessageType: ErrorCodeUnknownMessageType,

	ErrTransportFailed: ErrorCodeTransportFailed,
	ErrChannelClosed:   ErrorCodeChannelClosed,

	ErrServerError: ErrorCodeServerError,

	ErrTimeout: ErrorCodeTimeout,

	ErrOther:        ErrorCodeOther,
	ErrUnknownError: ErrorCodeUnknownError,
}

// GetErrorCode returns the error code for a given error
func GetErrorCode(err error) ErrorCode {
	if code, exists := errorCodeMap[err]; exists {
		return code
	}

	// Check if it's already a ProtocolError
	var protocolErr *Error
	if errors.As(err, &protocolErr) {
		return protocolErr.Code
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return ErrorCodeUnknownError
}

// WrapError wraps a standard error into a ProtocolError
func WrapError(err error, message string) *Error {
	code := GetErrorCode(err)
	return NewProtocolError(code, message, err)
}
