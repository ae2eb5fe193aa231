// Package net serves SignFlow sessions over HTTP and websockets and
// announces the service on the local network.
package net

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"SignFlow/internal/export"
	"SignFlow/internal/preview"
	"SignFlow/internal/service"
	"SignFlow/internal/state"
	"SignFlow/internal/storage"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes data in the envelope with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := APIResponse{Success: status >= 200 && status < 300, Data: data}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[http] Failed to encode response: %v", err)
	}
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := APIResponse{Error: &APIError{Code: code, Message: message}}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[http] Failed to encode error: %v", err)
	}
}

// ReadJSON decodes the request body into target. Unknown fields are
// rejected.
func ReadJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// writeErr maps a domain error onto a status and code.
func writeErr(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := err.Error()
	var re *preview.RenderError
	if errors.As(err, &re) {
		msg = re.Msg
	}
	if status >= 500 {
		log.Printf("[http] %s: %v", code, err)
	}
	WriteError(w, status, code, msg)
}

func classify(err error) (int, string) {
	var re *preview.RenderError
	var ee *export.ExportError
	switch {
	case errors.Is(err, state.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, state.ErrBoxNotFound):
		return http.StatusNotFound, "box_not_found"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, state.ErrBoxTooSmall):
		return http.StatusUnprocessableEntity, "box_too_small"
	case errors.Is(err, state.ErrInvalidBox):
		return http.StatusBadRequest, "invalid_box"
	case errors.Is(err, state.ErrNotPDF):
		return http.StatusUnsupportedMediaType, "not_pdf"
	case errors.Is(err, service.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, state.ErrNoDocument):
		return http.StatusConflict, "no_document"
	case errors.Is(err, state.ErrDrawModeActive):
		return http.StatusConflict, "draw_mode_active"
	case errors.Is(err, state.ErrNotSigning):
		return http.StatusConflict, "not_signing"
	case errors.Is(err, preview.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, preview.ErrToolNotFound):
		return http.StatusServiceUnavailable, "renderer_missing"
	case errors.As(err, &re):
		return http.StatusBadGateway, "render_failed"
	case errors.As(err, &ee):
		return http.StatusInternalServerError, "export_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
