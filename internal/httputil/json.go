// Package httputil holds JSON response and request helpers shared by the
// HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-classroom/pkg/domain"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message, Code: codeFor(status)})
}

// StatusFor maps a domain error kind to an HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFrom writes the response for err. Domain errors keep their message
// and kind; anything else is logged and reported as an internal error.
func ErrorFrom(w http.ResponseWriter, logger *slog.Logger, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		JSON(w, StatusFor(de.Kind), ErrorResponse{Error: de.Msg, Code: string(de.Kind)})
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("request failed", "error", err)
	JSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: string(domain.KindInternal)})
}

func codeFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return string(domain.KindNotFound)
	case http.StatusForbidden:
		return string(domain.KindForbidden)
	case http.StatusConflict:
		return string(domain.KindConflict)
	case http.StatusBadRequest:
		return string(domain.KindBadRequest)
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	}
	if status >= http.StatusInternalServerError {
		return string(domain.KindInternal)
	}
	return ""
}
