package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/http/response"
	"github.com/mediagallery/gallery-api/internal/security"
	"github.com/mediagallery/gallery-api/internal/service"
	servicegomock "github.com/mediagallery/gallery-api/internal/service/gomock"
)

func uintPtr(v uint) *uint { return &v }

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rr.Body.String())
	}
	return env
}

func mustNotRun(t *testing.T) http.Handler {
	return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("expected guard to block request")
	})
}

func TestRequireSessionReadsBearerThenCookie(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := servicegomock.NewMockSessionAuthenticator(ctrl)
	alice := &domain.User{ID: 7, Role: domain.RoleUser, IsActive: true}
	auth.EXPECT().Authenticate(gomock.Any(), "header-token").Return(alice, nil)
	auth.EXPECT().Authenticate(gomock.Any(), "cookie-token").Return(alice, nil)

	var seen []uint
	h := RequireSession(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			t.Fatal("expected user in context")
		}
		seen = append(seen, user.ID)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: "cookie-token"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: "cookie-token"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(seen) != 2 || seen[0] != 7 || seen[1] != 7 {
		t.Fatalf("unexpected handler calls: %v", seen)
	}
}

func TestRequireSessionRejects(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"missing", service.ErrMissingSession, http.StatusUnauthorized, "Access denied. No token provided."},
		{"invalid", service.ErrInvalidSession, http.StatusUnauthorized, service.ErrInvalidSession.Error()},
		{"store failure", errors.New("db down"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			auth := servicegomock.NewMockSessionAuthenticator(ctrl)
			auth.EXPECT().Authenticate(gomock.Any(), "").Return(nil, tc.err)

			rr := httptest.NewRecorder()
			RequireSession(auth)(mustNotRun(t)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			env := decodeEnvelope(t, rr)
			if env.Success {
				t.Fatal("expected failure envelope")
			}
			if tc.message != "" && env.Message != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, env.Message)
			}
		})
	}
}

func TestOptionalSessionContinuesAnonymously(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := servicegomock.NewMockSessionAuthenticator(ctrl)
	auth.EXPECT().AuthenticateOptional(gomock.Any(), "stale").Return(nil)

	called := false
	h := OptionalSession(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := UserFromContext(r.Context()); ok {
			t.Fatal("expected anonymous request")
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if !called || rr.Code != http.StatusOK {
		t.Fatalf("expected pass-through, called=%v code=%d", called, rr.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	t.Run("no user", func(t *testing.T) {
		rr := httptest.NewRecorder()
		RequireAdmin(mustNotRun(t)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})
	t.Run("non admin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUser(req.Context(), &domain.User{ID: 1, Role: domain.RoleUser}))
		rr := httptest.NewRecorder()
		RequireAdmin(mustNotRun(t)).ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
		if env := decodeEnvelope(t, rr); env.Code != "FORBIDDEN" {
			t.Fatalf("expected FORBIDDEN, got %q", env.Code)
		}
	})
	t.Run("admin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUser(req.Context(), &domain.User{ID: 1, Role: domain.RoleAdmin}))
		rr := httptest.NewRecorder()
		called := false
		RequireAdmin(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })).ServeHTTP(rr, req)
		if !called {
			t.Fatal("expected admin to pass")
		}
	})
}

func TestRequireVerified(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &domain.User{ID: 2, EmailVerified: false}))
	rr := httptest.NewRecorder()
	RequireVerified(mustNotRun(t)).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if env := decodeEnvelope(t, rr); env.Message != service.ErrVerifiedRequired.Error() {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func ownershipRouter(guard func(string, ResourceLookup) func(http.Handler) http.Handler, user *domain.User, lookup ResourceLookup, final http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user != nil {
				req = req.WithContext(WithUser(req.Context(), user))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.With(guard("id", lookup)).Get("/items/{id}", final)
	return r
}

func TestRequireOwnerOrAdmin(t *testing.T) {
	owned := &domain.Media{ID: 5, UserID: 10}
	lookup := func(_ context.Context, id uint) (service.Owned, error) {
		if id != 5 {
			return nil, service.ErrMediaNotFound
		}
		return owned, nil
	}
	var reached *domain.Media
	final := func(w http.ResponseWriter, r *http.Request) {
		item, ok := ResourceFromContext[*domain.Media](r.Context())
		if !ok {
			t.Fatal("expected resource in context")
		}
		reached = item
		w.WriteHeader(http.StatusNoContent)
	}

	cases := []struct {
		name   string
		user   *domain.User
		path   string
		status int
	}{
		{"owner", &domain.User{ID: 10, Role: domain.RoleUser}, "/items/5", http.StatusNoContent},
		{"admin", &domain.User{ID: 99, Role: domain.RoleAdmin}, "/items/5", http.StatusNoContent},
		{"stranger", &domain.User{ID: 11, Role: domain.RoleUser}, "/items/5", http.StatusForbidden},
		{"missing", &domain.User{ID: 10, Role: domain.RoleUser}, "/items/6", http.StatusNotFound},
		{"malformed id", &domain.User{ID: 10, Role: domain.RoleUser}, "/items/abc", http.StatusBadRequest},
		{"anonymous", nil, "/items/5", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reached = nil
			rr := httptest.NewRecorder()
			ownershipRouter(RequireOwnerOrAdmin, tc.user, lookup, final).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rr.Code, rr.Body.String())
			}
			if tc.status == http.StatusNoContent && reached != owned {
				t.Fatal("expected guarded resource to reach handler")
			}
		})
	}
}

func TestRequireCorrespondenceOwnerOrAdminAnonymousTicket(t *testing.T) {
	anonymous := &domain.ContactMessage{ID: 3}
	mine := &domain.ContactMessage{ID: 4, UserID: uintPtr(10)}
	lookup := func(_ context.Context, id uint) (service.Owned, error) {
		if id == 3 {
			return anonymous, nil
		}
		return mine, nil
	}
	final := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	user := &domain.User{ID: 10, Role: domain.RoleUser}

	rr := httptest.NewRecorder()
	ownershipRouter(RequireCorrespondenceOwnerOrAdmin, user, lookup, final).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/items/3", nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for ownerless ticket, got %d", rr.Code)
	}
	if env := decodeEnvelope(t, rr); env.Message != service.ErrNotMessageOwner.Error() {
		t.Fatalf("unexpected message %q", env.Message)
	}

	rr = httptest.NewRecorder()
	ownershipRouter(RequireCorrespondenceOwnerOrAdmin, user, lookup, final).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/items/4", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected owner to pass, got %d", rr.Code)
	}

	admin := &domain.User{ID: 1, Role: domain.RoleAdmin}
	rr = httptest.NewRecorder()
	ownershipRouter(RequireCorrespondenceOwnerOrAdmin, admin, lookup, final).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/items/3", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected admin to pass, got %d", rr.Code)
	}
}

func TestParseID(t *testing.T) {
	for _, raw := range []string{"", "0", "-1", "1.5", "abc"} {
		if _, err := ParseID(raw); service.KindOf(err) != service.KindValidation {
			t.Fatalf("expected validation error for %q, got %v", raw, err)
		}
	}
	if id, err := ParseID("42"); err != nil || id != 42 {
		t.Fatalf("expected 42, got %d %v", id, err)
	}
}
