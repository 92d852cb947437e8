package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mediagallery/gallery-api/internal/http/response"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/security"
	"github.com/mediagallery/gallery-api/internal/service"
)

const oauthStateTTL = 5 * time.Minute

type AuthHandler struct {
	authSvc       service.AuthServiceInterface
	cookieMgr     *security.CookieManager
	stateKey      string
	sessionTTL    time.Duration
	cookieEnabled bool
}

func NewAuthHandler(authSvc service.AuthServiceInterface, cookieMgr *security.CookieManager, stateKey string, sessionTTL time.Duration, cookieEnabled bool) *AuthHandler {
	return &AuthHandler{
		authSvc:       authSvc,
		cookieMgr:     cookieMgr,
		stateKey:      stateKey,
		sessionTTL:    sessionTTL,
		cookieEnabled: cookieEnabled,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "register", status, time.Since(start))
	}()

	var body service.RegisterInput
	if err := decodeJSON(r, &body); err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	result, err := h.authSvc.Register(r.Context(), body)
	if err != nil {
		status = "failure"
		h.audit(r, "auth.register", "", "failure", string(service.KindOf(err)))
		writeError(w, r, err)
		return
	}
	h.audit(r, "auth.register", idString(result.UserID), "success", "account_created")
	response.JSON(w, r, http.StatusCreated, "Registration successful. Please check your email for verification.", result)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "verify_email", status, time.Since(start))
	}()

	var body service.VerifyEmailInput
	if err := decodeJSON(r, &body); err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	result, err := h.authSvc.VerifyEmail(r.Context(), body)
	if err != nil {
		status = "failure"
		h.audit(r, "auth.verify_email", "", "failure", string(service.KindOf(err)))
		writeError(w, r, err)
		return
	}
	if err := h.startSession(w, result); err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	h.audit(r, "auth.verify_email", idString(result.User.ID), "success", "email_verified")
	response.JSON(w, r, http.StatusOK, "Email verified successfully!", result)
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "resend_verification", status, time.Since(start))
	}()

	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	result, err := h.authSvc.ResendVerification(r.Context(), body.Email)
	if err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, "Verification email sent. Please check your email.", result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	var body service.LoginInput
	if err := decodeJSON(r, &body); err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	body.IP = clientIP(r)
	result, err := h.authSvc.Login(r.Context(), body)
	if err != nil {
		status = "failure"
		h.audit(r, "auth.login", "", "failure", string(service.KindOf(err)))
		writeError(w, r, err)
		return
	}
	if err := h.startSession(w, result); err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	h.audit(r, "auth.login", idString(result.User.ID), "success", "password")
	response.JSON(w, r, http.StatusOK, "Login successful!", result)
}

func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "google", status, time.Since(start))
	}()

	var body struct {
		IDToken string `json:"idToken"`
	}
	if err := decodeJSON(r, &body); err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	result, err := h.authSvc.LoginWithGoogle(r.Context(), body.IDToken)
	if err != nil {
		status = "failure"
		h.audit(r, "auth.login.google", "", "failure", string(service.KindOf(err)))
		writeError(w, r, err)
		return
	}
	if err := h.startSession(w, result); err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	h.audit(r, "auth.login.google", idString(result.User.ID), "success", "id_token")
	response.JSON(w, r, http.StatusOK, "Google login successful!", result)
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "google_login", status, time.Since(start))
	}()

	state, err := security.NewRandomString(24)
	if err != nil {
		status = "failure"
		h.audit(r, "auth.login.google.redirect", "", "failure", "state_generation")
		writeError(w, r, err)
		return
	}
	url := h.authSvc.GoogleLoginURL(state)
	if url == "" {
		status = "failure"
		writeError(w, r, service.ErrGoogleAuthDisabled)
		return
	}
	h.cookieMgr.SetStateCookie(w, security.SignState(state, h.stateKey), oauthStateTTL)
	h.audit(r, "auth.login.google.redirect", "", "success", "redirect")
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "google_callback", status, time.Since(start))
	}()

	queryState := queryString(r, "state")
	code := queryString(r, "code")
	if queryState == "" || code == "" {
		status = "failure"
		h.audit(r, "auth.login.google.callback", "", "failure", "missing_code_or_state")
		writeError(w, r, service.NewValidationError("Missing state or code."))
		return
	}
	state, ok := security.VerifySignedState(security.GetCookie(r, security.StateCookieName), h.stateKey)
	if !ok || state != queryState {
		status = "failure"
		h.audit(r, "auth.login.google.callback", "", "failure", "invalid_state")
		writeError(w, r, service.ErrInvalidOAuthState)
		return
	}
	// State is single use.
	h.cookieMgr.ClearStateCookie(w)

	result, err := h.authSvc.LoginWithGoogleCode(r.Context(), code)
	if err != nil {
		status = "failure"
		h.audit(r, "auth.login.google.callback", "", "failure", string(service.KindOf(err)))
		writeError(w, r, err)
		return
	}
	if err := h.startSession(w, result); err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	h.audit(r, "auth.login.google.callback", idString(result.User.ID), "success", "code")
	response.JSON(w, r, http.StatusOK, "Google login successful!", result)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "forgot_password", status, time.Since(start))
	}()

	var body service.ForgotPasswordInput
	if err := decodeJSON(r, &body); err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	body.IP = clientIP(r)
	result, err := h.authSvc.ForgotPassword(r.Context(), body)
	if err != nil {
		status = "failure"
		h.audit(r, "auth.password.forgot", "", "failure", string(service.KindOf(err)))
		writeError(w, r, err)
		return
	}
	h.audit(r, "auth.password.forgot", "", "success", "reset_issued")
	response.JSON(w, r, http.StatusOK, "Password reset email sent. Please check your email.", result)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "reset_password", status, time.Since(start))
	}()

	var body service.ResetPasswordInput
	if err := decodeJSON(r, &body); err != nil {
		status = "failure"
		writeError(w, r, err)
		return
	}
	if err := h.authSvc.ResetPassword(r.Context(), body); err != nil {
		status = "failure"
		h.audit(r, "auth.password.reset", "", "failure", string(service.KindOf(err)))
		writeError(w, r, err)
		return
	}
	h.audit(r, "auth.password.reset", "", "success", "password_replaced")
	response.JSON(w, r, http.StatusOK, "Password reset successful! You can now login with your new password.", struct{}{})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		writeError(w, r, service.ErrMissingSession)
		return
	}
	response.JSON(w, r, http.StatusOK, "User information retrieved.", map[string]any{"user": user.View()})
}

// Logout only drops the cookie; issued tokens stay valid until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "logout", "success", time.Since(start))
	}()

	h.cookieMgr.ClearSessionCookie(w)
	h.cookieMgr.ClearCSRFCookie(w)
	observability.RecordAuthLogout(r.Context(), "success")
	h.audit(r, "auth.logout", actorID(r), "success", "cookie_cleared")
	response.JSON(w, r, http.StatusOK, "Logout successful!", nil)
}

// startSession sets the session cookie together with its CSRF pair. Bearer
// clients never need the CSRF token.
func (h *AuthHandler) startSession(w http.ResponseWriter, result *service.LoginResult) error {
	if !h.cookieEnabled {
		return nil
	}
	csrf, err := security.NewRandomHex(32)
	if err != nil {
		return fmt.Errorf("generate csrf token: %w", err)
	}
	h.cookieMgr.SetSessionCookie(w, result.Token, h.sessionTTL)
	h.cookieMgr.SetCSRFCookie(w, csrf, h.sessionTTL)
	result.CSRFToken = csrf
	return nil
}

func (h *AuthHandler) audit(r *http.Request, event, targetID, outcome, reason string) {
	actor := actorID(r)
	if actor == "" && outcome == "success" {
		actor = targetID
	}
	observability.Audit(r, observability.AuditInput{
		EventName:   event,
		ActorUserID: actor,
		TargetType:  "user",
		TargetID:    targetID,
		Action:      event,
		Outcome:     outcome,
		Reason:      reason,
	})
}
