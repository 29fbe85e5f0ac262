package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yourtongji/creditd/internal/domain"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the stable error envelope: {"error": {"code", "message"}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps a domain error to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrUnverifiable):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrDuplicateReport),
		errors.Is(err, domain.ErrAlreadyRedeemed):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, domain.ErrExhausted):
		return http.StatusUnprocessableEntity, "exhausted"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps err through the taxonomy and writes the envelope.
// Unexpected errors are not echoed to the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("internal error", "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}
