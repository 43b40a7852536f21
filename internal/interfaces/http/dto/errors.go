package dto

import (
	"errors"
	"net/http"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeInternal        = "ERR_INTERNAL"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	ErrCodeRateLimited     = "ERR_RATE_LIMITED"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound = "ERR_NOT_FOUND"
	ErrCodeConflict = "ERR_CONFLICT"
)

// Ingestion error codes, one per integration.ErrorKind an API call can surface
const (
	ErrCodeConfiguration       = "ERR_CONFIGURATION"
	ErrCodeAuthExpired         = "ERR_AUTH_EXPIRED"
	ErrCodeMarketplaceDown     = "ERR_MARKETPLACE_UNAVAILABLE"
	ErrCodeIngestionInProgress = "ERR_INGESTION_IN_PROGRESS"
	ErrCodeSchedulerStopped    = "ERR_SCHEDULER_STOPPED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	ErrCodeConfiguration:       http.StatusUnprocessableEntity,
	ErrCodeAuthExpired:         http.StatusConflict,
	ErrCodeMarketplaceDown:     http.StatusBadGateway,
	ErrCodeIngestionInProgress: http.StatusConflict,
	ErrCodeSchedulerStopped:    http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeForError maps an ingestion error to its API error code
func CodeForError(err error) string {
	if errors.Is(err, integration.ErrRunNotFound) || errors.Is(err, integration.ErrCredentialMissing) {
		return ErrCodeNotFound
	}
	switch integration.KindOf(err) {
	case integration.ErrorKindConfiguration:
		return ErrCodeConfiguration
	case integration.ErrorKindAuthExpired:
		return ErrCodeAuthExpired
	case integration.ErrorKindTransientHTTP:
		return ErrCodeMarketplaceDown
	}
	return ErrCodeInternal
}
