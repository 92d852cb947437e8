package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mediagallery/gallery-api/internal/http/response"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/security"
)

// RequestID assigns chi's request id and echoes it back so clients can quote
// it in support tickets.
func RequestID(next http.Handler) http.Handler {
	return chimiddleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(chimiddleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	}))
}

// The API only returns JSON; media bytes are served from presigned storage URLs.
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "same-site"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

var (
	corsAllowHeaders  = strings.Join([]string{"Content-Type", "Authorization", security.CSRFHeaderName, chimiddleware.RequestIDHeader}, ", ")
	corsAllowMethods  = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}, ", ")
	corsExposeHeaders = strings.Join([]string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", chimiddleware.RequestIDHeader}, ", ")
	corsMaxAge        = strconv.Itoa(int((10 * time.Minute).Seconds()))
)

// CORS admits the configured frontend origins with credentials. Preflights from
// any other origin are refused outright.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			if _, ok := allowed[origin]; !ok {
				observability.RecordMiddlewareValidationEvent(r.Context(), "cors", "rejected_origin")
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			if preflight {
				observability.RecordMiddlewareValidationEvent(r.Context(), "cors", "preflight")
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			observability.RecordMiddlewareValidationEvent(r.Context(), "cors", "allow_origin")
			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimit caps request bodies. Handlers see *http.MaxBytesError once the cap
// is exceeded and map it to their own message.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = &limitedBody{rc: http.MaxBytesReader(w, r.Body, maxBytes), ctx: r.Context()}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type limitedBody struct {
	rc       io.ReadCloser
	ctx      context.Context
	reported bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err == nil || errors.Is(err, io.EOF) || b.reported {
		return n, err
	}
	b.reported = true
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		observability.RecordMiddlewareValidationEvent(b.ctx, "body_limit", "rejected_too_large")
	} else {
		observability.RecordMiddlewareValidationEvent(b.ctx, "body_limit", "read_error")
	}
	return n, err
}

func (b *limitedBody) Close() error { return b.rc.Close() }

// CSRF runs the double-submit check on unsafe requests whose credential is the
// session cookie. A bearer header wins over the cookie in SessionCredential, so
// such requests and cookieless ones carry no ambient authority and pass.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		group := csrfPathGroup(r.URL.Path)
		if bearerToken(r) != "" || security.GetCookie(r, security.SessionCookieName) == "" {
			observability.RecordCSRFValidation(r.Context(), "not_cookie_session", group)
			next.ServeHTTP(w, r)
			return
		}
		expected := security.GetCookie(r, security.CSRFCookieName)
		if expected == "" {
			observability.RecordCSRFValidation(r.Context(), "missing_cookie", group)
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "Invalid CSRF token.")
			return
		}
		if subtle.ConstantTimeCompare([]byte(r.Header.Get(security.CSRFHeaderName)), []byte(expected)) != 1 {
			observability.RecordCSRFValidation(r.Context(), "mismatch", group)
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "Invalid CSRF token.")
			return
		}
		observability.RecordCSRFValidation(r.Context(), "valid", group)
		next.ServeHTTP(w, r)
	})
}

func csrfPathGroup(rawPath string) string {
	p := strings.Trim(path.Clean(rawPath), "/")
	if p == "." || p == "" {
		return "root"
	}
	parts := strings.Split(p, "/")
	if len(parts) >= 3 && parts[0] == "api" {
		return parts[2]
	}
	return parts[0]
}
