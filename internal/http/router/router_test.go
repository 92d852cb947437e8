package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mediagallery/gallery-api/internal/config"
	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/health"
	"github.com/mediagallery/gallery-api/internal/http/handler"
	"github.com/mediagallery/gallery-api/internal/http/response"
	"github.com/mediagallery/gallery-api/internal/repository"
	"github.com/mediagallery/gallery-api/internal/security"
	"github.com/mediagallery/gallery-api/internal/service"
)

func TestMain(m *testing.M) {
	security.SetArgon2Params(security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	os.Exit(m.Run())
}

type capturingMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *capturingMailer) SendVerificationEmail(_ context.Context, to, _, code, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes["verify:"+to] = code
	return nil
}

func (m *capturingMailer) SendPasswordResetEmail(_ context.Context, to, _, code, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes["reset:"+to] = code
	return nil
}

func (m *capturingMailer) SendWelcomeEmail(context.Context, string, string) error { return nil }

func (m *capturingMailer) code(kind, email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[kind+":"+email]
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int
}

func (s *memoryStore) UploadMedia(_ context.Context, userID uint, file io.Reader, _ int64) (service.StoredObject, error) {
	body, err := io.ReadAll(file)
	if err != nil {
		return service.StoredObject{}, err
	}
	contentType := http.DetectContentType(body)
	if contentType != "image/png" {
		return service.StoredObject{}, service.ErrInvalidFileType
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	key := fmt.Sprintf("media/%d/%d.png", userID, s.seq)
	s.objects[key] = body
	return service.StoredObject{Key: key, ContentType: contentType, Size: int64(len(body))}, nil
}

func (s *memoryStore) DeleteMedia(_ context.Context, _ uint, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memoryStore) MediaURL(_ context.Context, key string) (string, error) {
	return "http://objects.local/" + key, nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

type testServer struct {
	t      *testing.T
	h      http.Handler
	mailer *capturingMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:router_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.ContactMessage{}, &domain.Media{}, &domain.MediaLike{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	cfg := &config.Config{
		FrontendURL:                "http://localhost:5173",
		AuthExposeTokensInResponse: true,
		BootstrapAdminEmail:        "admin@example.com",
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repository.NewUserRepository(db)
	jwtMgr := security.NewJWTManager("gallery-api", "gallery-web", strings.Repeat("s", 32), time.Hour)
	sessions := service.NewSessionIssuer(jwtMgr, users)
	mailer := &capturingMailer{codes: map[string]string{}}
	codec := security.NewTokenCodec(6, 10*time.Minute, time.Now)
	authSvc := service.NewAuthService(cfg, users, codec, sessions, mailer, nil, nil, service.NewNoopAuthAbuseGuard(), log)
	userSvc := service.NewUserService(users, service.NewNoopAdminListCacheStore(), time.Minute, log)
	contactSvc := service.NewContactService(repository.NewContactRepository(db), service.NewNoopAdminListCacheStore(), time.Minute, log)
	mediaSvc := service.NewMediaService(repository.NewMediaRepository(db), users, &memoryStore{objects: map[string][]byte{}}, 5, log)

	h := NewRouter(Dependencies{
		AuthHandler:                handler.NewAuthHandler(authSvc, security.NewCookieManager("", false, "lax"), strings.Repeat("k", 16), time.Hour, true),
		UserHandler:                handler.NewUserHandler(userSvc),
		AdminHandler:               handler.NewAdminHandler(userSvc),
		ContactHandler:             handler.NewContactHandler(contactSvc),
		MediaHandler:               handler.NewMediaHandler(mediaSvc, 5<<20),
		Sessions:                   sessions,
		Media:                      mediaSvc,
		Contacts:                   contactSvc,
		AuthRateLimitRPM:           1000,
		PasswordForgotRateLimitRPM: 1000,
		APIRateLimitRPM:            1000,
		Readiness:                  health.NewProbeRunner(time.Second, 0, health.Database(db)),
	})
	return &testServer{t: t, h: h, mailer: mailer}
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, response.Envelope, json.RawMessage) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.serve(req)
}

func (s *testServer) serve(req *http.Request) (*httptest.ResponseRecorder, response.Envelope, json.RawMessage) {
	s.t.Helper()
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)
	var raw struct {
		response.Envelope
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		s.t.Fatalf("decode %s %s: %v (%s)", req.Method, req.URL.Path, err, rr.Body.String())
	}
	return rr, raw.Envelope, raw.Data
}

// signUp registers and verifies an account and returns its session token.
func (s *testServer) signUp(name, email string) (string, uint) {
	s.t.Helper()
	rr, _, data := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "Password123",
	})
	if rr.Code != http.StatusCreated {
		s.t.Fatalf("register %s: %d %s", email, rr.Code, rr.Body.String())
	}
	var reg service.RegistrationResult
	mustUnmarshal(s.t, data, &reg)

	rr, _, data = s.do(http.MethodPost, "/api/v1/auth/verify-email", "", map[string]string{
		"email": email, "otp": s.mailer.code("verify", email), "verificationToken": reg.VerificationToken,
	})
	if rr.Code != http.StatusOK {
		s.t.Fatalf("verify %s: %d %s", email, rr.Code, rr.Body.String())
	}
	var login service.LoginResult
	mustUnmarshal(s.t, data, &login)
	return login.Token, login.User.ID
}

// wrongOTP returns a well-formed code that differs from otp in its last digit.
func wrongOTP(otp string) string {
	last := otp[len(otp)-1]
	return otp[:len(otp)-1] + string(rune('0'+(last-'0'+1)%10))
}

func mustUnmarshal(t *testing.T, raw json.RawMessage, dst any) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode data: %v (%s)", err, raw)
	}
}

func TestRouterAuthLifecycle(t *testing.T) {
	s := newTestServer(t)

	rr, env, data := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "Password123",
	})
	if rr.Code != http.StatusCreated || !env.Success {
		t.Fatalf("register: %d %s", rr.Code, rr.Body.String())
	}
	var reg service.RegistrationResult
	mustUnmarshal(t, data, &reg)

	rr, env, _ = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "Password123",
	})
	if rr.Code != http.StatusBadRequest || env.Code != string(service.KindConflict) {
		t.Fatalf("duplicate register: %d %+v", rr.Code, env)
	}

	rr, env, _ = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "Password123"})
	if rr.Code != http.StatusUnauthorized || env.Message != "Please verify your email address first." {
		t.Fatalf("unverified login: %d %+v", rr.Code, env)
	}

	rr, env, _ = s.do(http.MethodPost, "/api/v1/auth/verify-email", "", map[string]string{
		"email": "alice@example.com", "otp": wrongOTP(s.mailer.code("verify", "alice@example.com")), "verificationToken": reg.VerificationToken,
	})
	if rr.Code != http.StatusBadRequest || env.Code != string(service.KindInvalidOTP) {
		t.Fatalf("wrong otp: %d %+v", rr.Code, env)
	}

	rr, _, data = s.do(http.MethodPost, "/api/v1/auth/verify-email", "", map[string]string{
		"email": "alice@example.com", "otp": s.mailer.code("verify", "alice@example.com"), "verificationToken": reg.VerificationToken,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", rr.Code, rr.Body.String())
	}
	var session service.LoginResult
	mustUnmarshal(t, data, &session)

	rr, _, data = s.do(http.MethodGet, "/api/v1/auth/me", session.Token, nil)
	if rr.Code != http.StatusOK || !strings.Contains(string(data), "alice@example.com") {
		t.Fatalf("me: %d %s", rr.Code, rr.Body.String())
	}
	if rr, _, _ := s.do(http.MethodGet, "/api/v1/auth/me", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("me without session: %d", rr.Code)
	}

	rr, _, data = s.do(http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "alice@example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("forgot: %d %s", rr.Code, rr.Body.String())
	}
	var reset service.PasswordResetRequest
	mustUnmarshal(t, data, &reset)
	rr, _, _ = s.do(http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
		"email": "alice@example.com", "otp": s.mailer.code("reset", "alice@example.com"),
		"resetToken": reset.ResetToken, "newPassword": "NewPassword456",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: %d %s", rr.Code, rr.Body.String())
	}

	if rr, _, _ := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "Password123"}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("old password still accepted: %d", rr.Code)
	}
	rr, _, _ = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "NewPassword456"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login with new password: %d %s", rr.Code, rr.Body.String())
	}

	if rr, env, _ := s.do(http.MethodPost, "/api/v1/auth/google", "", map[string]string{"idToken": "x"}); rr.Code != http.StatusForbidden {
		t.Fatalf("google disabled: %d %+v", rr.Code, env)
	}
}

func TestRouterAdminAndOwnershipGuards(t *testing.T) {
	s := newTestServer(t)
	adminToken, adminID := s.signUp("Admin", "admin@example.com")
	aliceToken, aliceID := s.signUp("Alice", "alice@example.com")
	bobToken, _ := s.signUp("Bob", "bob@example.com")

	if rr, _, _ := s.do(http.MethodGet, "/api/v1/users/admin", aliceToken, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin list users: %d", rr.Code)
	}
	rr, _, data := s.do(http.MethodGet, "/api/v1/users/admin?limit=10", adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin list users: %d %s", rr.Code, rr.Body.String())
	}
	var page service.UserPage
	mustUnmarshal(t, data, &page)
	if len(page.Users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(page.Users))
	}
	if rr, _, _ := s.do(http.MethodDelete, fmt.Sprintf("/api/v1/users/admin/%d", adminID), adminToken, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("admin self delete: %d", rr.Code)
	}

	rr, _, data = s.do(http.MethodPost, "/api/v1/contact", aliceToken, map[string]string{
		"name": "Alice", "email": "alice@example.com", "subject": "Billing", "message": "Please help with my invoice.",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("contact submit: %d %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Contact domain.ContactMessage `json:"contact"`
	}
	mustUnmarshal(t, data, &created)
	ticket := fmt.Sprintf("/api/v1/contact/my-messages/%d", created.Contact.ID)

	if rr, _, _ := s.do(http.MethodGet, ticket, aliceToken, nil); rr.Code != http.StatusOK {
		t.Fatalf("owner reads ticket: %d", rr.Code)
	}
	if rr, _, _ := s.do(http.MethodGet, ticket, bobToken, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("stranger reads ticket: %d", rr.Code)
	}
	if rr, _, _ := s.do(http.MethodGet, ticket, adminToken, nil); rr.Code != http.StatusOK {
		t.Fatalf("admin reads ticket: %d", rr.Code)
	}
	if rr, _, _ := s.do(http.MethodPatch, fmt.Sprintf("/api/v1/contact/admin/%d/read", created.Contact.ID), adminToken, nil); rr.Code != http.StatusOK {
		t.Fatalf("admin marks read: %d", rr.Code)
	}
	if rr, _, _ := s.do(http.MethodPut, ticket, aliceToken, map[string]string{"message": "Edited after read"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("edit after read: %d", rr.Code)
	}

	rr, _, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/users/admin/%d", aliceID), adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("deactivate alice: %d %s", rr.Code, rr.Body.String())
	}
	if rr, _, _ := s.do(http.MethodGet, "/api/v1/users/profile", aliceToken, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("deactivated session should be rejected, got %d", rr.Code)
	}
}

func TestRouterMediaVisibility(t *testing.T) {
	s := newTestServer(t)
	aliceToken, _ := s.signUp("Alice", "alice@example.com")
	bobToken, _ := s.signUp("Bob", "bob@example.com")

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "Private sunset")
	_ = mw.WriteField("isPublic", "false")
	fw, err := mw.CreateFormFile("images", "sunset.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write(png)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	rr, _, data := s.serve(req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}
	var uploaded service.UploadResult
	mustUnmarshal(t, data, &uploaded)
	if len(uploaded.Media) != 1 {
		t.Fatalf("expected one media item, got %+v", uploaded)
	}
	item := fmt.Sprintf("/api/v1/media/%d", uploaded.Media[0].ID)

	if rr, _, _ := s.do(http.MethodGet, item, "", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("guest reads private media: %d", rr.Code)
	}
	if rr, _, _ := s.do(http.MethodGet, item, aliceToken, nil); rr.Code != http.StatusOK {
		t.Fatalf("owner reads private media: %d", rr.Code)
	}
	if rr, _, _ := s.do(http.MethodDelete, item, bobToken, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("stranger deletes media: %d", rr.Code)
	}
	rr, _, data = s.do(http.MethodGet, "/api/v1/media", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("guest list: %d", rr.Code)
	}
	var page service.MediaPage
	mustUnmarshal(t, data, &page)
	if len(page.Media) != 0 {
		t.Fatalf("guest should not see private media, got %d items", len(page.Media))
	}
	if rr, _, _ := s.do(http.MethodPost, item+"/like", bobToken, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("like private media as stranger: %d", rr.Code)
	}
	if rr, _, _ := s.do(http.MethodDelete, item, aliceToken, nil); rr.Code != http.StatusOK {
		t.Fatalf("owner deletes media: %d", rr.Code)
	}
}

func TestRouterHealthAndNotFound(t *testing.T) {
	s := newTestServer(t)
	if rr, _, _ := s.do(http.MethodGet, "/health/live", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("live: %d", rr.Code)
	}
	rr, _, data := s.do(http.MethodGet, "/health/ready", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(string(data), `"db"`) {
		t.Fatalf("ready: %d %s", rr.Code, rr.Body.String())
	}
	if rr, _, _ := s.do(http.MethodGet, "/api/v1/media/abc", "", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed media id: %d", rr.Code)
	}
}

func TestRouterCookieSessionRequiresCSRFToken(t *testing.T) {
	s := newTestServer(t)
	s.signUp("Carol", "carol@example.com")

	rr, _, data := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "carol@example.com", "password": "Password123"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rr.Code, rr.Body.String())
	}
	var login service.LoginResult
	mustUnmarshal(t, data, &login)
	cookies := map[string]*http.Cookie{}
	for _, c := range rr.Result().Cookies() {
		cookies[c.Name] = c
	}
	sessionCookie, csrfCookie := cookies[security.SessionCookieName], cookies[security.CSRFCookieName]
	if sessionCookie == nil || csrfCookie == nil || csrfCookie.HttpOnly || login.CSRFToken != csrfCookie.Value {
		t.Fatalf("expected session and readable csrf cookies, got %+v (body token %q)", cookies, login.CSRFToken)
	}

	ticket := `{"name":"Carol","email":"carol@example.com","subject":"Hi","message":"Hello there"}`
	submit := func(withCSRFCookie bool, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/contact/", strings.NewReader(ticket))
		req.Header.Set("Origin", "https://evil.example")
		req.Header.Set("Content-Type", "text/plain")
		req.AddCookie(sessionCookie)
		if withCSRFCookie {
			req.AddCookie(csrfCookie)
		}
		if header != "" {
			req.Header.Set(security.CSRFHeaderName, header)
		}
		rr, _, _ := s.serve(req)
		return rr
	}

	if rr := submit(false, ""); rr.Code != http.StatusForbidden {
		t.Fatalf("cross-site cookie post: %d %s", rr.Code, rr.Body.String())
	}
	if rr := submit(true, "guess"); rr.Code != http.StatusForbidden {
		t.Fatalf("mismatched csrf header: %d", rr.Code)
	}
	rr, _, data = s.do(http.MethodGet, "/api/v1/contact/my-messages", login.Token, nil)
	if rr.Code != http.StatusOK || strings.Contains(string(data), "Hello there") {
		t.Fatalf("forged ticket stored: %d %s", rr.Code, data)
	}

	rr = submit(true, csrfCookie.Value)
	if rr.Code != http.StatusCreated || !strings.Contains(rr.Body.String(), fmt.Sprintf(`"userId":%d`, login.User.ID)) {
		t.Fatalf("cookie post with csrf token: %d %s", rr.Code, rr.Body.String())
	}

	rr, _, _ = s.do(http.MethodPost, "/api/v1/contact/", login.Token, map[string]string{
		"name": "Carol", "email": "carol@example.com", "message": "Bearer clients skip the check",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("bearer post: %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterUserStatsAndPublicGallery(t *testing.T) {
	s := newTestServer(t)
	aliceToken, aliceID := s.signUp("Alice", "alice@example.com")
	bobToken, _ := s.signUp("Bob", "bob@example.com")

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	for _, public := range []string{"true", "false"} {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("isPublic", public)
		fw, err := mw.CreateFormFile("images", "shot-"+public+".png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = fw.Write(png)
		_ = mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/media", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		if rr, _, _ := s.serve(req); rr.Code != http.StatusCreated {
			t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
		}
	}

	rr, _, data := s.do(http.MethodGet, "/api/v1/users/stats", aliceToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("own stats: %d %s", rr.Code, rr.Body.String())
	}
	var report service.UserStatsReport
	mustUnmarshal(t, data, &report)
	if report.User.ID != aliceID || report.Stats.TotalMedia != 2 || report.Stats.PrivateMedia != 1 || len(report.RecentMedia) != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if rr, _, _ := s.do(http.MethodGet, fmt.Sprintf("/api/v1/users/stats/%d", aliceID), bobToken, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("stranger reads stats: %d", rr.Code)
	}
	if rr, _, _ := s.do(http.MethodGet, "/api/v1/users/stats", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous stats: %d", rr.Code)
	}

	gallery := fmt.Sprintf("/api/v1/media/user/%d", aliceID)
	rr, _, data = s.do(http.MethodGet, gallery, bobToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("public gallery: %d %s", rr.Code, rr.Body.String())
	}
	var page service.MediaPage
	mustUnmarshal(t, data, &page)
	if len(page.Media) != 1 || !page.Media[0].IsPublic {
		t.Fatalf("expected only the public item, got %+v", page.Media)
	}
	if rr, _, _ := s.do(http.MethodGet, gallery, "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous gallery: %d", rr.Code)
	}

	rr, _, data = s.do(http.MethodGet, "/api/v1/media/user/me", aliceToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("own gallery: %d", rr.Code)
	}
	mustUnmarshal(t, data, &page)
	if len(page.Media) != 2 {
		t.Fatalf("owner should see both items on /user/me, got %d", len(page.Media))
	}
}
