package entities

import "net/http"

// AppErrorType enumerates the taxonomy of application errors (spec §7).
type AppErrorType int

// ErrDatabase represents a database error.
const (
	ErrDatabase AppErrorType = iota + 1001
	ErrRepository
	ErrUsecase
	ErrEntity
	ErrModel
	ErrService
	ErrMiddleware
	ErrRoot
	ErrEnvironment
	ErrNotFound
	ErrUnauthorized
	ErrConflict
	ErrValidation
	ErrUpstreamUnavailable
	ErrUpstreamRejected
	ErrRateLimited
	ErrLeaseLost
	ErrCancelled
	ErrInternal
)

// AppErrorTypeToString maps AppErrorType to a human-readable default message.
var AppErrorTypeToString = map[AppErrorType]string{
	ErrDatabase:            "database error",
	ErrRepository:          "repository error",
	ErrUsecase:             "use case error",
	ErrEntity:              "entity error",
	ErrModel:               "model error",
	ErrService:             "service error",
	ErrMiddleware:          "middleware error",
	ErrRoot:                "internal error",
	ErrEnvironment:         "environment error",
	ErrNotFound:            "resource not found",
	ErrUnauthorized:        "unauthorized",
	ErrConflict:            "conflict",
	ErrValidation:          "validation error",
	ErrUpstreamUnavailable: "upstream unavailable",
	ErrUpstreamRejected:    "upstream rejected",
	ErrRateLimited:         "rate limited",
	ErrLeaseLost:           "lease lost",
	ErrCancelled:           "cancelled",
	ErrInternal:            "internal error",
}

// AppErrorTypeToHTTP maps AppErrorType to the HTTP status code it surfaces as.
var AppErrorTypeToHTTP = map[AppErrorType]int{
	ErrDatabase:            http.StatusInternalServerError,
	ErrRepository:          http.StatusInternalServerError,
	ErrUsecase:             http.StatusInternalServerError,
	ErrEntity:              http.StatusBadRequest,
	ErrModel:               http.StatusBadRequest,
	ErrService:             http.StatusInternalServerError,
	ErrMiddleware:          http.StatusInternalServerError,
	ErrRoot:                http.StatusInternalServerError,
	ErrEnvironment:         http.StatusInternalServerError,
	ErrNotFound:            http.StatusNotFound,
	ErrUnauthorized:        http.StatusUnauthorized,
	ErrConflict:            http.StatusConflict,
	ErrValidation:          http.StatusBadRequest,
	ErrUpstreamUnavailable: http.StatusBadGateway,
	ErrUpstreamRejected:    http.StatusUnprocessableEntity,
	ErrRateLimited:         http.StatusTooManyRequests,
	ErrLeaseLost:           http.StatusConflict,
	ErrCancelled:           http.StatusGone,
	ErrInternal:            http.StatusInternalServerError,
}
