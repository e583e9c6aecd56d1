// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Service errors are translated in one place
// (serviceError) so every endpoint reports the same status for the same
// condition.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_state",
//	  "message": "gift not available"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-giftchain-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidState = "invalid_state"
)

// serviceError maps a service error to status, code and a client-safe
// message. Unknown errors become a generic 500 so internals do not leak.
func serviceError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, services.ErrGiftNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "gift not found"
	case errors.Is(err, services.ErrGiftNotAvailable):
		return http.StatusConflict, ErrCodeInvalidState, "gift not available"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeBadRequest, "invalid input"
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
	}
}
