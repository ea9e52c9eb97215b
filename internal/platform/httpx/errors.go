// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopledger/shopledger/internal/shared"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindInsufficientStock, shared.KindInsufficientBalance:
		return http.StatusConflict
	case shared.KindInvalidState:
		return http.StatusUnprocessableEntity
	case shared.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Unclassified errors are logged and reported without detail.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Problem(w, status, "Internal Error", "")
		return
	}
	var kerr *shared.Error
	problemType := ""
	if errors.As(err, &kerr) {
		problemType = string(kerr.Kind)
	}
	ProblemOf(w, status, problemType, http.StatusText(status), err.Error())
}
