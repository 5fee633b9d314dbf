package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// errorResponse is the standard error response format.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to the response.
// It buffers the encoding to detect errors before writing headers.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logging.Error().Err(err).Msg("json encode failed")
		writeErrorFallback(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logging.Warn().Err(err).Msg("write response failed")
	}
}

// statusFor maps an error category to an HTTP status. validationStatus is
// 400 for malformed queries and 422 for semantically invalid event bodies.
func statusFor(err error, validationStatus int) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return validationStatus
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error with the status its category maps
// to. 4xx messages are shown to the client; 5xx causes are logged and the
// client sees a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorStatus(w, r, statusFor(err, http.StatusBadRequest), err)
}

// writeBodyError is writeError for event create/update bodies.
func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorStatus(w, r, statusFor(err, http.StatusUnprocessableEntity), err)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	public := err.Error()
	if status >= 500 {
		logging.Ctx(r.Context()).Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Msg("request failed")
		public = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: public})
}

// decodeJSON decodes a size-limited JSON body into dst. Malformed bodies are
// validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return model.Validationf("request body is empty")
		}
		return model.Validationf("invalid JSON body: %v", err)
	}
	if dec.More() {
		return model.Validationf("request body must contain one JSON object")
	}
	return nil
}

// writeErrorFallback writes a plain text error when JSON encoding fails.
// This is a last-resort fallback to avoid infinite recursion.
func writeErrorFallback(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message))
}
