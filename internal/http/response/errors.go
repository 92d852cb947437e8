package response

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mediagallery/gallery-api/internal/service"
)

const genericErrorMessage = "Something went wrong. Please try again later."

var kindStatus = map[service.ErrorKind]int{
	service.KindValidation:      http.StatusBadRequest,
	service.KindConflict:        http.StatusBadRequest,
	service.KindNotFound:        http.StatusNotFound,
	service.KindInvalidToken:    http.StatusBadRequest,
	service.KindExpired:         http.StatusBadRequest,
	service.KindInvalidOTP:      http.StatusBadRequest,
	service.KindUnauthenticated: http.StatusUnauthorized,
	service.KindForbidden:       http.StatusForbidden,
	service.KindDeliveryFailed:  http.StatusInternalServerError,
	service.KindRateLimited:     http.StatusTooManyRequests,
	service.KindUnexpected:      http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(kind service.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ServiceError writes the envelope for an error returned by the service layer.
// Unclassified errors are logged and replaced by a generic message.
func ServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	status := StatusFor(kind)

	var throttled *service.ThrottledError
	if errors.As(err, &throttled) {
		w.Header().Set("Retry-After", RetryAfterSeconds(throttled.RetryAfter))
		Error(w, r, status, string(kind), err.Error())
		return
	}
	if kind == service.KindUnexpected {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		Error(w, r, status, string(kind), genericErrorMessage)
		return
	}
	Error(w, r, status, string(kind), err.Error())
}

// RetryAfterSeconds renders d as a Retry-After value, never less than one second.
func RetryAfterSeconds(d time.Duration) string {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
