// Package httpx holds the HTTP plumbing shared by the customers and cart
// services: JSON and error writers, streamed list responses, request body
// decoding with field-level validation messages, and chi middleware.
//
// Every error response has the same shape:
//
//	{"error": {"code": "forbidden", "message": "Invalid JWT token"}}
//	{"error": {"code": "unprocessable_entity",
//	           "message": "Request validation has failed",
//	           "fields": {"quantity": ["Must be greater than or equal to 1 and less than or equal to 5."]}}}
//
// The code is the snake_case form of the HTTP status text.
package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// ErrorBody is the payload under the "error" key.
type ErrorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// ErrorResponse is the envelope of every error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// DataResponse is the envelope of every success response with a body.
type DataResponse struct {
	Data any `json:"data"`
}

// StatusCode returns the snake_case code for an HTTP status, e.g.
// "unprocessable_entity" for 422.
func StatusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpx: failed to encode response", "error", err)
	}
}

// WriteData writes {"data": v}.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, DataResponse{Data: v})
}

// NoContent writes an empty 204 response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError renders err in the error envelope. Errors outside the sserr
// taxonomy become 500s. Server errors are logged with their full cause
// chain and reach the client only as the generic category message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := sserr.FromError(err)
	status := e.HTTPStatus()

	body := ErrorBody{
		Code:    StatusCode(status),
		Message: e.Message,
		Fields:  e.Fields,
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", e.Code.String(),
			"error", err,
		)
		body.Message = publicMessage(e)
		body.Fields = nil
	}

	WriteJSON(w, status, ErrorResponse{Error: body})
}

// publicMessage hides internal detail. Unavailable and timeout messages
// are written for clients and pass through.
func publicMessage(e *sserr.Error) string {
	switch e.Code.Category() {
	case sserr.CategoryUnavailable, sserr.CategoryTimeout:
		return e.Message
	default:
		return sserr.MessageInternal
	}
}

// NotFoundHandler answers unknown routes with the JSON 404 body.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, sserr.NotFound())
}

// MethodNotAllowedHandler answers known routes hit with the wrong method.
func MethodNotAllowedHandler(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusMethodNotAllowed
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{
		Code:    StatusCode(status),
		Message: http.StatusText(status),
	}})
}
