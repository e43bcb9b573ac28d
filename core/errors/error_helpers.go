package errors

import (
	"net/http"

	"github.com/redditcraft/commission-pipeline/core/entities"
)

// BadRequestError creates a 400 Bad Request error.
func BadRequestError(message string) *AppError {
	return NewAppError(entities.ErrValidation, message, nil, nil)
}

// ForbiddenError creates an ErrUnauthorized error, which maps to 401
// Unauthorized; the error taxonomy has no separate 403 kind.
func ForbiddenError(message string) *AppError {
	return NewAppError(entities.ErrUnauthorized, message, nil, nil)
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *AppError {
	return NewAppError(entities.ErrNotFound, message, nil, nil)
}

// InternalServerError creates a 500 Internal Server Error.
func InternalServerError(message string) *AppError {
	return NewAppError(entities.ErrInternal, message, nil, nil)
}

// ExternalServiceError creates a 502 Bad Gateway error for upstream failures.
func ExternalServiceError(message string) *AppError {
	return NewAppError(entities.ErrUpstreamUnavailable, message, nil, nil)
}

// IsNotFoundError reports whether err is a not-found AppError.
func IsNotFoundError(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type == entities.ErrNotFound || appErr.HTTPStatus() == http.StatusNotFound
	}
	return false
}

// IsRetryable reports whether err should be retried by the task queue.
func IsRetryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Retryable()
	}
	return false
}
