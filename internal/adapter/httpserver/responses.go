// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the public inspect API, the fleet stats endpoint, and the
// admin reconnect surface, keeping HTTP concerns separate from the
// coordination logic in usecase and fleet.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrBadDescriptor):
		code = http.StatusBadRequest
		codeStr = "BAD_DESCRIPTOR"
	case errors.Is(err, domain.ErrQueueFull):
		code = http.StatusTooManyRequests
		codeStr = "QUEUE_FULL"
	case errors.Is(err, domain.ErrInspectTimeout):
		code = http.StatusGatewayTimeout
		codeStr = "INSPECT_TIMEOUT"
	case errors.Is(err, domain.ErrNoBotsReady):
		code = http.StatusGatewayTimeout
		codeStr = "NO_BOTS_READY"
	case errors.Is(err, domain.ErrShuttingDown):
		code = http.StatusServiceUnavailable
		codeStr = "SHUTTING_DOWN"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrPersistence):
		code = http.StatusInternalServerError
		codeStr = "PERSISTENCE"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
