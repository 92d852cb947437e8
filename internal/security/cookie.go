package security

import (
	"net/http"
	"time"
)

const (
	SessionCookieName = "session_token"
	CSRFCookieName    = "csrf_token"
	CSRFHeaderName    = "X-CSRF-Token"
	StateCookieName   = "oauth_state"
	StateCookiePath   = "/api/v1/auth/google"
)

type CookieManager struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func NewCookieManager(domain string, secure bool, sameSite string) *CookieManager {
	mode := http.SameSiteLaxMode
	switch sameSite {
	case "strict":
		mode = http.SameSiteStrictMode
	case "none":
		mode = http.SameSiteNoneMode
	}
	return &CookieManager{Domain: domain, Secure: secure, SameSite: mode}
}

func (m *CookieManager) SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   m.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: m.SameSite,
	})
}

// SetCSRFCookie is readable by scripts on purpose: the frontend echoes it back
// in CSRFHeaderName.
func (m *CookieManager) SetCSRFCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Domain:   m.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: false,
		Secure:   m.Secure,
		SameSite: m.SameSite,
	})
}

func (m *CookieManager) SetStateCookie(w http.ResponseWriter, signed string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    signed,
		Path:     StateCookiePath,
		Domain:   m.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: m.SameSite,
	})
}

func (m *CookieManager) ClearSessionCookie(w http.ResponseWriter) {
	m.clear(w, SessionCookieName, "/")
}

func (m *CookieManager) ClearCSRFCookie(w http.ResponseWriter) {
	m.clear(w, CSRFCookieName, "/")
}

func (m *CookieManager) ClearStateCookie(w http.ResponseWriter) {
	m.clear(w, StateCookieName, StateCookiePath)
}

func (m *CookieManager) clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   m.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: m.SameSite,
	})
}

func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
