package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/meridian-erp/meridian/internal/shared"
)

// RespondError maps the shared error taxonomy to HTTP responses. Unclassified
// errors are logged and reported as opaque 500s.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrPrecondition):
		Problem(w, http.StatusConflict, "Precondition Failed", err.Error())
	case errors.Is(err, shared.ErrResourceUnavailable):
		Problem(w, http.StatusUnprocessableEntity, "Resource Unavailable", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		if logger != nil {
			logger.Error("internal error", "err", err)
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
