package web

// errors.go turns errors into responses.
//
// Every error is logged with its technical text and the request ID, then
// mapped through core.MapError so the client sees a message, a suggested
// action and a support code. The HTTP status comes from the error's type.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/a7mdelbanna/classboom/internal/core"
	"github.com/a7mdelbanna/classboom/internal/logging"
	"github.com/a7mdelbanna/classboom/internal/web/templates"
)

var (
	errNoFile             = errors.New("no file provided")
	errMissingInstitution = errors.New("missing or invalid institution id")
	errRateLimited        = errors.New("rate limit exceeded")
	errBadRequestBody     = errors.New("invalid request body")
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var limitErr *core.LimitError
	if errors.As(err, &limitErr) {
		if limitErr.Kind == core.LimitFileSize {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusUnprocessableEntity
	}
	var parseErr *core.ParseError
	if errors.As(err, &parseErr) {
		return http.StatusBadRequest
	}

	switch {
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidTransition), errors.Is(err, core.ErrNotImporting):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotReady), errors.Is(err, core.ErrNoValidRows):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUnknownColumn), errors.Is(err, core.ErrUnknownField),
		errors.Is(err, errNoFile), errors.Is(err, errMissingInstitution), errors.Is(err, errBadRequestBody):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped user message in the format the
// client asked for: an HTML fragment for HTMX, JSON for the API, text otherwise.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)
	requestID := middleware.GetReqID(r.Context())

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = templates.ErrorAlert(userMsg.Message, userMsg.Action, userMsg.Code).Render(r.Context(), w)
	case wantsJSON(r):
		writeJSONStatus(w, status, ErrorResponse{
			Error:     userMsg.Message,
			Message:   userMsg.Message,
			Action:    userMsg.Action,
			Code:      userMsg.Code,
			RequestID: requestID,
		})
	default:
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", status)
	}
}

// writeJSON writes v with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are logged since the
// header is already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(context.Background()).Error("json encode error", "error", err)
	}
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the client expects JSON. API routes always do.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json") ||
		strings.HasPrefix(r.URL.Path, "/api/")
}
