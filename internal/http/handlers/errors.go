// Package handlers implements the HTTP endpoints of the guard API.
//
// Every error response is an ErrorResponse carrying one of the codes below.
// Clients branch on the code, never on the message. Limiter rejections are
// not errors: they are 200 responses with a Decision whose code is one of
// the rejection codes of the services package.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-sales-guard/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeInvalidUserID = "invalid_user_id"
	ErrCodeInvalidWait   = "invalid_wait"
	ErrCodeReservedKey   = "reserved_key"
	ErrCodeStorage       = "storage_error"
	ErrCodeUnavailable   = "unavailable"
)

// failService maps a service error onto the envelope.
func failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidUserID):
		fail(c, http.StatusBadRequest, ErrCodeInvalidUserID, "user id is required")
	case errors.Is(err, services.ErrInvalidWait):
		fail(c, http.StatusBadRequest, ErrCodeInvalidWait, "wait_seconds must be >= 0")
	case errors.Is(err, services.ErrReservedExtension):
		fail(c, http.StatusBadRequest, ErrCodeReservedKey, err.Error())
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "not found")
	case errors.Is(err, services.ErrContextConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, "conversation was modified concurrently, retry")
	case errors.Is(err, services.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "service not configured")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "request cancelled")
	case errors.Is(err, services.ErrStorage):
		fail(c, http.StatusInternalServerError, ErrCodeStorage, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
