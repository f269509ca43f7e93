package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"identity-server/internal/service"
	"identity-server/pkg/response"
)

// writeError maps a service error onto its HTTP status. Anything unrecognised
// becomes a 500 whose body only carries err's text when devMode is set.
func writeError(w http.ResponseWriter, err error, devMode bool) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Validation(w, verr.Fields)
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(w, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(w, "Invalid username or password")
	case errors.Is(err, service.ErrInvalidToken):
		response.Unauthorized(w, "Invalid or expired token")
	case errors.Is(err, service.ErrUnauthorized):
		response.Unauthorized(w, "Authentication required")
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(w, "Access denied")
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, "Resource not found")
	case errors.Is(err, service.ErrConflict):
		response.Error(w, http.StatusConflict, "Resource already exists")
	default:
		slog.Error("unhandled error", "error", err)
		if devMode {
			response.InternalError(w, err.Error())
			return
		}
		response.InternalError(w, "Internal server error")
	}
}
