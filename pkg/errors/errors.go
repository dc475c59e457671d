package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Exchange-specific errors

var (
	// ErrExchangeUnavailable indicates exchange API is unavailable
	ErrExchangeUnavailable = errors.New("exchange unavailable")

	// ErrRateLimited indicates API rate limit exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidSymbol indicates an unrecognized or untradable symbol
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrSymbolNotTradable indicates the symbol is not listed on the exchange
	ErrSymbolNotTradable = errors.New("symbol not tradable on exchange")
)

// Streaming-specific errors

var (
	// ErrInvalidSubscription indicates an empty, oversized or unsanitizable
	// symbol set passed to the streaming ingestor
	ErrInvalidSubscription = errors.New("invalid stream subscription")

	// ErrWSNotConnected indicates WebSocket is not connected
	ErrWSNotConnected = errors.New("websocket not connected")

	// ErrConnectionLost indicates the streaming connection dropped abnormally
	ErrConnectionLost = errors.New("streaming connection lost")

	// ErrMalformedMessage indicates an inbound stream message failed validation
	ErrMalformedMessage = errors.New("malformed stream message")

	// ErrWSMaxReconnectAttempts indicates max reconnection attempts reached
	ErrWSMaxReconnectAttempts = errors.New("max websocket reconnection attempts reached")
)

// Delivery-specific errors

var (
	// ErrDeliveryFailed indicates an outbound alert could not be delivered
	ErrDeliveryFailed = errors.New("alert delivery failed")

	// ErrQueueFull indicates the outbound message queue is saturated
	ErrQueueFull = errors.New("message queue full")

	// ErrQueueStopped indicates the outbound message queue has been stopped
	ErrQueueStopped = errors.New("message queue stopped")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// Helper functions

// New creates a new error from a message
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error
func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
