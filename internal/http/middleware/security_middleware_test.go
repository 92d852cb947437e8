package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mediagallery/gallery-api/internal/security"
)

func corsHandler(t *testing.T, reachable bool) http.Handler {
	return CORS([]string{"https://gallery.example.com/"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !reachable {
			t.Fatal("handler must not run")
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllowed bool
		reachable   bool
	}{
		{name: "trusted simple request", method: http.MethodGet, origin: "https://gallery.example.com", wantStatus: http.StatusOK, wantAllowed: true, reachable: true},
		{name: "untrusted simple request passes without headers", method: http.MethodGet, origin: "https://evil.example.com", wantStatus: http.StatusOK, reachable: true},
		{name: "no origin", method: http.MethodGet, wantStatus: http.StatusOK, reachable: true},
		{name: "trusted preflight", method: http.MethodOptions, origin: "https://gallery.example.com", preflight: true, wantStatus: http.StatusNoContent, wantAllowed: true},
		{name: "untrusted preflight refused", method: http.MethodOptions, origin: "https://evil.example.com", preflight: true, wantStatus: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/media", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
			}
			rr := httptest.NewRecorder()
			corsHandler(t, tc.reachable).ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			allowOrigin := rr.Header().Get("Access-Control-Allow-Origin")
			if tc.wantAllowed != (allowOrigin == tc.origin && allowOrigin != "") {
				t.Fatalf("unexpected allow-origin %q", allowOrigin)
			}
			if !tc.wantAllowed && rr.Header().Get("Access-Control-Allow-Credentials") != "" {
				t.Fatal("credentials must not be granted to untrusted origins")
			}
		})
	}
}

func TestCORSPreflightAdvertisesMethodsAndExposedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/media/1", nil)
	req.Header.Set("Origin", "https://gallery.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rr := httptest.NewRecorder()
	corsHandler(t, false).ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodDelete) || !strings.Contains(got, http.MethodPatch) {
		t.Fatalf("unexpected allow-methods %q", got)
	}
	if got := rr.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "Retry-After") {
		t.Fatalf("expected Retry-After exposed, got %q", got)
	}
	if rr.Header().Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("unexpected max-age %q", rr.Header().Get("Access-Control-Max-Age"))
	}
}

func TestBodyLimit(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "small payload", body: `{"a":1}`},
		{name: "oversized payload", body: "123456789012345678", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := BodyLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, err := io.ReadAll(r.Body)
				var tooLarge *http.MaxBytesError
				if tc.wantErr != errors.As(err, &tooLarge) {
					t.Fatalf("unexpected read error: %v", err)
				}
				w.WriteHeader(http.StatusNoContent)
			}))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/contact", strings.NewReader(tc.body)))
			if rr.Code != http.StatusNoContent {
				t.Fatalf("expected 204, got %d", rr.Code)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	for _, kv := range securityHeaders {
		if rr.Header().Get(kv[0]) != kv[1] {
			t.Fatalf("missing %s: %v", kv[0], rr.Header())
		}
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must only be sent over TLS")
	}
}

func TestRequestIDEchoedInResponse(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/media", nil)
	req.Header.Set("X-Request-Id", "ticket-42")
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-Id"); got != "ticket-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestCSRF(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		bearer     string
		session    string
		csrfCookie string
		csrfHeader string
		wantStatus int
	}{
		{name: "safe method with cookie", method: http.MethodGet, session: "s", wantStatus: http.StatusOK},
		{name: "anonymous post", method: http.MethodPost, wantStatus: http.StatusOK},
		{name: "bearer wins over cookie", method: http.MethodPost, bearer: "tok", session: "s", wantStatus: http.StatusOK},
		{name: "cookie session without csrf cookie", method: http.MethodPost, session: "s", wantStatus: http.StatusForbidden},
		{name: "cookie session without header", method: http.MethodDelete, session: "s", csrfCookie: "abc", wantStatus: http.StatusForbidden},
		{name: "cookie session with wrong header", method: http.MethodPut, session: "s", csrfCookie: "abc", csrfHeader: "abd", wantStatus: http.StatusForbidden},
		{name: "empty bearer falls back to cookie", method: http.MethodPost, bearer: " ", session: "s", wantStatus: http.StatusForbidden},
		{name: "cookie session with matching header", method: http.MethodPatch, session: "s", csrfCookie: "abc", csrfHeader: "abc", wantStatus: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reached := false
			h := CSRF(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(tc.method, "/api/v1/contact", strings.NewReader("{}"))
			if tc.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tc.bearer)
			}
			if tc.session != "" {
				req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: tc.session})
			}
			if tc.csrfCookie != "" {
				req.AddCookie(&http.Cookie{Name: security.CSRFCookieName, Value: tc.csrfCookie})
			}
			if tc.csrfHeader != "" {
				req.Header.Set(security.CSRFHeaderName, tc.csrfHeader)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if reached != (tc.wantStatus == http.StatusOK) {
				t.Fatalf("handler reached=%v for status %d", reached, rr.Code)
			}
		})
	}
}

func TestCSRFPathGroup(t *testing.T) {
	cases := map[string]string{
		"/api/v1/contact/":         "contact",
		"/api/v1/media/3/like":     "media",
		"/health/ready":            "health",
		"/":                        "root",
		"/api/v1/../v1/users/x/..": "users",
	}
	for in, want := range cases {
		if got := csrfPathGroup(in); got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}
}
