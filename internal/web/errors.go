package web

// errors.go turns handler errors into responses.
//
// The technical error is logged with the request ID; the client receives
// the core.MapError message and code, as JSON for API callers and as an
// HTML alert for browser pages.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/marketboard/internal/core"
	"github.com/JonMunkholm/marketboard/internal/logging"
	"github.com/JonMunkholm/marketboard/internal/web/templates"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

var rateLimitMessage = core.MapError(errors.New("rate limit exceeded"))

// respondError logs err and writes the mapped user message with status.
// A zero status is derived from the error.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusFor(err)
	}
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
			logger.Warn("render error alert", "error", err)
		}
		return
	}
	respondErrorJSON(w, msg, status)
}

func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor picks an HTTP status for errors returned by core and the
// repository. Untyped errors fall back to their user message code.
func statusFor(err error) int {
	var pe *core.ParseError
	var se *core.StoreError
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.As(err, &pe):
		return http.StatusBadRequest
	case errors.As(err, &se) && se.Kind == core.StoreCorrupt:
		return http.StatusUnprocessableEntity
	case errors.As(err, &se) && se.Kind == core.StoreNetwork:
		return http.StatusBadGateway
	}

	switch core.MapError(err).Code {
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "FILE003", "FILE004", "REQ001":
		return http.StatusBadRequest
	case "RATE001":
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// wantsHTML reports whether the client is a browser asking for a page
// rather than an API caller.
func wantsHTML(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, storePrefix) {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// wantsJSON reports whether the Accept header prefers JSON.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeJSON encodes v with status. Encoding errors are logged; headers are
// already sent by then.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Warn("json encode error", "error", err)
	}
}
