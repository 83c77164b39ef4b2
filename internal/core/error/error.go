package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "Internal Server Error."
	// CapabilityErrorMessage is shown when an upstream model, index or database fails.
	CapabilityErrorMessage = "Sorry, I could not complete that request right now. Please try again."
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// SQLErrorMessage describes database failures.
	SQLErrorMessage = "database operation failed"
)

// Kind classifies an error for the purpose of deciding what the caller sees.
type Kind string

const (
	// KindInternal covers bookkeeping failures and anything unclassified.
	KindInternal Kind = "internal"
	// KindProtocol covers malformed or out-of-order client requests.
	KindProtocol Kind = "protocol"
	// KindCapability covers failures of classification, generation, retrieval or lookup.
	KindCapability Kind = "capability"
	// KindInvariant covers requests that contradict engine state.
	KindInvariant Kind = "invariant"
)

// AppError wraps an underlying error with an HTTP status, a kind and a safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
	Kind    Kind
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new internal AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
		Kind:    KindInternal,
	}
}

// Protocol marks err as a client protocol error. message is returned to the client verbatim.
func Protocol(err error, message string) *AppError {
	return &AppError{Err: err, Status: http.StatusBadRequest, Message: message, Kind: KindProtocol}
}

// Capability marks err as an external capability failure.
func Capability(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Err: err, Status: http.StatusBadGateway, Message: CapabilityErrorMessage, Kind: KindCapability}
}

// Invariant marks err as a request that contradicts the current engine state.
func Invariant(err error, message string) *AppError {
	return &AppError{Err: err, Status: http.StatusConflict, Message: message, Kind: KindInvariant}
}

// WrapSQL wraps a database error with a consistent status and message.
func WrapSQL(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Err: err, Status: http.StatusBadGateway, Message: SQLErrorMessage, Kind: KindCapability}
}

// KindOf returns the kind of the outermost AppError in err's chain.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// SafeMessage returns the text that may be shown to a client for err.
// Capability and internal errors never leak their cause.
func SafeMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return SystemErrorMessage
	}
	switch appErr.Kind {
	case KindProtocol, KindInvariant:
		return appErr.Message
	case KindCapability:
		return CapabilityErrorMessage
	default:
		return SystemErrorMessage
	}
}
