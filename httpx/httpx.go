// Package httpx holds the JSON response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"orderdesk/model"
)

const maxMessageLength = 512

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteMessage writes {"message": msg}.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"message": sanitize(msg)})
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch {
	case model.IsValidation(err):
		return http.StatusBadRequest
	case model.IsNotFound(err):
		return http.StatusNotFound
	case model.IsStoreUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError reports err to the client. Validation and not-found messages are
// shown as is; store errors are logged in full and answered with a generic
// message.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := StatusOf(err)
	payload := map[string]any{"status": status}
	if id := middleware.GetReqID(r.Context()); id != "" {
		payload["request_id"] = id
	}

	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		payload["error"] = errorCode(status)
		payload["message"] = sanitize(err.Error())
	case http.StatusServiceUnavailable:
		payload["error"] = "store_unavailable"
		payload["message"] = "the store is busy, please retry"
		logger.Warn("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	default:
		payload["error"] = "store_error"
		payload["message"] = "internal error"
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	WriteJSON(w, status, payload)
}

func errorCode(status int) string {
	if status == http.StatusNotFound {
		return "not_found"
	}
	return "invalid_request"
}

// DecodeJSON reads the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.Validationf("malformed request body: %v", err)
	}
	return nil
}

// IDParam parses a positive integer URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.Validationf("invalid %s %q", name, raw)
	}
	return id, nil
}

// IntQuery parses an optional integer query parameter.
func IntQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.Validationf("invalid %s %q", name, raw)
	}
	return n, nil
}

func sanitize(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	if len(msg) > maxMessageLength {
		msg = msg[:maxMessageLength]
	}
	return msg
}
