package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/target/mmk-dataport/internal/errors"
)

const errMsgInternal = "An error occurred. Please try again."

// statusForCode maps application error codes to HTTP statuses. Invalid state is a client error:
// the request named a job whose status does not allow the operation.
//
//nolint:gochecknoglobals // static read-only lookup
var statusForCode = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeValidation:   http.StatusBadRequest,
	apperrors.ErrCodeInvalidState: http.StatusBadRequest,
	apperrors.ErrCodeNotFound:     http.StatusNotFound,
	apperrors.ErrCodeConflict:     http.StatusConflict,
	apperrors.ErrCodeTimeout:      http.StatusGatewayTimeout,
	apperrors.ErrCodeCanceled:     http.StatusServiceUnavailable,
}

// DetermineErrorStatus returns the HTTP status for err after database errors are mapped onto the
// application error taxonomy. Unclassified errors yield 500.
func DetermineErrorStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if status, ok := statusForCode[apperrors.GetCode(apperrors.MapDBError(err))]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RenderError writes err as a JSON error response. Application errors keep their code, message
// and field; anything else is logged and reported as an internal error without details.
func RenderError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	mapped := apperrors.MapDBError(err)
	status := DetermineErrorStatus(mapped)

	var appErr *apperrors.AppError
	if status == http.StatusInternalServerError || !errors.As(mapped, &appErr) {
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
		}
		writeInternalError(w)
		return
	}

	WriteError(w, status, ErrorBody{Error: string(appErr.Code), Message: appErr.Message, Field: appErr.Field})
}

func writeInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, ErrorBody{Error: string(apperrors.ErrCodeInternal), Message: errMsgInternal})
}
