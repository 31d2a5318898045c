package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/pkg/logger"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// NewKind returns an error of kind tagged with op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind tags err with op and kind; both stay matchable with errors.Is.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Wrap tags err with op.
func Wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps a domain error to a status and code. Unknown errors are
// internal and keep their text out of the response.
func classify(err error) (int, string, bool) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "validation_error", true
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized", true
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "forbidden", true
	case errors.Is(err, model.ErrGameNotFound):
		return http.StatusNotFound, "game_not_found", true
	case errors.Is(err, model.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", true
	case errors.Is(err, model.ErrTableNotFound):
		return http.StatusNotFound, "leaderboard_not_found", true
	case errors.Is(err, model.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", true
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found", true
	case errors.Is(err, model.ErrConflict):
		return http.StatusServiceUnavailable, "conflict", true
	case errors.Is(err, model.ErrCollaborator):
		return http.StatusBadGateway, "collaborator_error", false
	default:
		return http.StatusInternalServerError, "internal_error", false
	}
}

// writeDomainError renders err with the status its kind maps to.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, expose := classify(err)
	if !expose {
		logger.Get().Named("api").Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}
