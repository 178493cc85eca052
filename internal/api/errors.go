package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/mediaq/internal/api/shared"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/queue"
	"github.com/phrazzld/mediaq/internal/service/auth"
	"github.com/phrazzld/mediaq/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking their types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, queue.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidAssetType),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"
	case errors.Is(err, store.ErrJobNotFound), errors.Is(err, store.ErrNotFound):
		return "Media job not found"
	case errors.Is(err, domain.ErrInvalidAssetType):
		return assetTypeMessage
	case errors.Is(err, queue.ErrInvalidRequest):
		return "Invalid request"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and safe message for err and logs
// the redacted details.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		msg = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}
