package errors

import (
	"net/http"

	"github.com/redditcraft/commission-pipeline/core/entities"
)

// Error is the base interface for all custom errors in the system.
type Error interface {
	error
	Code() int
	Message() string
	StackTrace() string
	Context() map[string]interface{}
	Unwrap() error
	ToLogFields() map[string]interface{}
	ToHTTPError() *HTTPError
}

// AppError is the system's standardized application error.
type AppError struct {
	Type    entities.AppErrorType
	Message string
	Fields  map[string]interface{}
	Cause   error
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code for the AppError.
func (e *AppError) HTTPStatus() int {
	if status, ok := entities.AppErrorTypeToHTTP[e.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewAppError creates a new standardized error.
func NewAppError(errType entities.AppErrorType, msg string, fields map[string]interface{}, cause error) *AppError {
	if msg == "" {
		msg = entities.AppErrorTypeToString[errType]
	}
	return &AppError{
		Type:    errType,
		Message: msg,
		Fields:  fields,
		Cause:   cause,
	}
}

// ToLogFields returns a map with all error details for structured logging.
func (e *AppError) ToLogFields() map[string]interface{} {
	fields := map[string]interface{}{
		"error_code":    e.Type,
		"error_message": e.Message,
	}
	for k, v := range e.Fields {
		fields[k] = v
	}
	if e.Cause != nil {
		fields["cause"] = e.Cause.Error()
	}
	return fields
}

// ToHTTPError converts an AppError to an HTTP error.
func (e *AppError) ToHTTPError() *HTTPError {
	return NewHTTPError(e.HTTPStatus(), e.Message)
}

// Retryable reports whether the pipeline/queue should retry on this error
// category (spec §7 propagation policy).
func (e *AppError) Retryable() bool {
	switch e.Type {
	case entities.ErrUpstreamUnavailable, entities.ErrRateLimited, entities.ErrInternal, entities.ErrDatabase:
		return true
	default:
		return false
	}
}

func firstCtx(ctx []map[string]interface{}) map[string]interface{} {
	if len(ctx) == 0 {
		return nil
	}
	return ctx[0]
}

// EntityError creates a new entity error.
func EntityError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrEntity, message, firstCtx(ctx), nil)
}

// EnvironmentError creates a new environment error.
func EnvironmentError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrEnvironment, message, firstCtx(ctx), nil)
}

// MiddlewareError creates a new middleware error.
func MiddlewareError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrMiddleware, message, firstCtx(ctx), nil)
}

// ModelError creates a new model error.
func ModelError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrModel, message, firstCtx(ctx), nil)
}

// RepositoryError creates a new repository error.
func RepositoryError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrRepository, message, firstCtx(ctx), nil)
}

// RootError creates a new root error.
func RootError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrRoot, message, firstCtx(ctx), nil)
}

// ServiceError creates a new service error.
func ServiceError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrService, message, firstCtx(ctx), nil)
}

// UsecaseError creates a new use case error.
func UsecaseError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrUsecase, message, firstCtx(ctx), nil)
}

// ValidationError creates a new caller-input validation error (4xx, never retried).
func ValidationError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrValidation, message, firstCtx(ctx), nil)
}

// NotFoundError creates a new not-found error.
func NotFoundError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrNotFound, message, firstCtx(ctx), nil)
}

// ConflictError creates a new idempotency/duplicate conflict error.
func ConflictError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrConflict, message, firstCtx(ctx), nil)
}

// UnauthorizedError creates a new webhook-signature/authorization error.
func UnauthorizedError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrUnauthorized, message, firstCtx(ctx), nil)
}

// UpstreamUnavailableError creates a retryable upstream-unavailable error.
func UpstreamUnavailableError(message string, cause error, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrUpstreamUnavailable, message, firstCtx(ctx), cause)
}

// UpstreamRejectedError creates a non-retryable content-policy/business rejection error.
func UpstreamRejectedError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrUpstreamRejected, message, firstCtx(ctx), nil)
}

// RateLimitedError creates a retryable rate-limit error.
func RateLimitedError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrRateLimited, message, firstCtx(ctx), nil)
}

// LeaseLostError creates a lease-ownership-conflict error.
func LeaseLostError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrLeaseLost, message, firstCtx(ctx), nil)
}

// CancelledError creates an error representing a cooperative task cancellation.
func CancelledError(message string, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrCancelled, message, firstCtx(ctx), nil)
}

// InternalError creates a retryable unexpected-failure error.
func InternalError(message string, cause error, ctx ...map[string]interface{}) *AppError {
	return NewAppError(entities.ErrInternal, message, firstCtx(ctx), cause)
}
