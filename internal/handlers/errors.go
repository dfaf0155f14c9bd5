package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"places-cache/internal/common/errors"
	"places-cache/internal/common/logging"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps an application error type to an HTTP status
func statusFor(errType errors.ErrorType) int {
	switch errType {
	case errors.ErrTypeValidation:
		return http.StatusBadRequest
	case errors.ErrTypeNotFound:
		return http.StatusNotFound
	case errors.ErrTypeRateLimit:
		return http.StatusTooManyRequests
	case errors.ErrTypeUpstream, errors.ErrTypeTimeout, errors.ErrTypeConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: "internal server error"}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		status = statusFor(appErr.Type)
		if status != http.StatusInternalServerError {
			resp = errorResponse{Error: appErr.Message, Code: appErr.Code}
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).Error("Request failed", err,
			logging.Field{Key: "path", Value: r.URL.Path},
			logging.Field{Key: "status", Value: status},
		)
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
