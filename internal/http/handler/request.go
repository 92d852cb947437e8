package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/http/middleware"
	"github.com/mediagallery/gallery-api/internal/http/response"
	"github.com/mediagallery/gallery-api/internal/service"
)

var errInvalidBody = service.NewValidationError("Invalid request body.")

// decodeJSON reads one JSON object into dst. An empty body decodes to the zero value.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		return errInvalidBody
	}
	return nil
}

// writeError maps decode and service failures onto the envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		response.Error(w, r, http.StatusRequestEntityTooLarge, string(service.KindValidation), "Request body too large.")
		return
	}
	response.ServiceError(w, r, err)
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return 0
	}
	return v
}

func queryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// queryBool returns nil when the parameter is absent or not a boolean.
func queryBool(r *http.Request, key string) *bool {
	raw := queryString(r, key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func currentUser(r *http.Request) *domain.User {
	user, _ := middleware.UserFromContext(r.Context())
	return user
}

func actorID(r *http.Request) string {
	if user := currentUser(r); user != nil {
		return idString(user.ID)
	}
	return ""
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// clientIP is the peer host. Forwarded headers count only when the router
// mounted RealIP for a trusted proxy, which rewrites RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
