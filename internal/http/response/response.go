package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	write(w, r, status, Envelope{Success: true, Message: message, Data: data})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	write(w, r, status, Envelope{Success: false, Message: message, Code: code})
}

func write(w http.ResponseWriter, r *http.Request, status int, body Envelope) {
	if r != nil {
		body.RequestID = middleware.GetReqID(r.Context())
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && r != nil {
		slog.WarnContext(r.Context(), "response encode failed", "error", err)
	}
}

// ErrorWithData is Error with a diagnostic payload, used by the readiness probe.
func ErrorWithData(w http.ResponseWriter, r *http.Request, status int, code, message string, data any) {
	write(w, r, status, Envelope{Success: false, Message: message, Code: code, Data: data})
}
