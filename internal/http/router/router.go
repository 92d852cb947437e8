package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mediagallery/gallery-api/internal/health"
	"github.com/mediagallery/gallery-api/internal/http/handler"
	"github.com/mediagallery/gallery-api/internal/http/middleware"
	"github.com/mediagallery/gallery-api/internal/http/response"
	"github.com/mediagallery/gallery-api/internal/service"
)

const (
	defaultBodyLimit  = 1 << 20
	defaultUploadBody = 6 * (5 << 20)
)

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	AdminHandler   *handler.AdminHandler
	ContactHandler *handler.ContactHandler
	MediaHandler   *handler.MediaHandler

	Sessions service.SessionAuthenticator
	Media    service.MediaServiceInterface
	Contacts service.ContactServiceInterface

	CORSOrigins                []string
	AuthRateLimitRPM           int
	PasswordForgotRateLimitRPM int
	APIRateLimitRPM            int
	GlobalRateLimiter          Middleware
	AuthRateLimiter            Middleware
	ForgotRateLimiter          Middleware
	UploadBodyLimit            int64
	Readiness                  *health.ProbeRunner
	EnableOTelHTTP             bool
	// TrustProxyHeaders lets X-Forwarded-For and X-Real-IP rewrite the client
	// address. Only enable it behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

type Middleware func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	if dep.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))

	apiLimiter := orLocal(dep.GlobalRateLimiter, dep.APIRateLimitRPM, "api")
	authLimiter := orLocal(dep.AuthRateLimiter, dep.AuthRateLimitRPM, "auth")
	forgotLimiter := orLocal(dep.ForgotRateLimiter, dep.PasswordForgotRateLimitRPM, "auth_forgot")
	uploadLimit := dep.UploadBodyLimit
	if uploadLimit <= 0 {
		uploadLimit = defaultUploadBody
	}

	session := middleware.RequireSession(dep.Sessions)
	optional := middleware.OptionalSession(dep.Sessions)
	mediaOwner := middleware.RequireOwnerOrAdmin("id", func(ctx context.Context, id uint) (service.Owned, error) {
		return dep.Media.Find(ctx, id)
	})
	ticketOwner := middleware.RequireCorrespondenceOwnerOrAdmin("id", func(ctx context.Context, id uint) (service.Owned, error) {
		return dep.Contacts.Get(ctx, id)
	})

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, "ok", map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		status, results := dep.Readiness.Status(r.Context())
		if results == nil {
			results = []health.CheckResult{}
		}
		body := map[string]any{"status": status, "checks": results}
		if status == health.StatusUnready {
			response.ErrorWithData(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", body)
			return
		}
		response.JSON(w, r, http.StatusOK, status, body)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiLimiter, middleware.CSRF)
		// Nested MaxBytesReaders only tighten, so body caps are set per group
		// and the upload routes keep their own.
		bodyLimit := middleware.BodyLimit(defaultBodyLimit)

		r.Route("/auth", func(r chi.Router) {
			r.Use(bodyLimit)
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/verify-email", dep.AuthHandler.VerifyEmail)
			r.With(forgotLimiter).Post("/resend-verification", dep.AuthHandler.ResendVerification)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Post("/google", dep.AuthHandler.Google)
			r.With(authLimiter).Get("/google/login", dep.AuthHandler.GoogleLogin)
			r.With(authLimiter).Get("/google/callback", dep.AuthHandler.GoogleCallback)
			r.With(forgotLimiter).Post("/forgot-password", dep.AuthHandler.ForgotPassword)
			r.With(authLimiter).Post("/reset-password", dep.AuthHandler.ResetPassword)
			r.With(session).Get("/me", dep.AuthHandler.Me)
			r.With(session).Post("/logout", dep.AuthHandler.Logout)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(bodyLimit, session)
			r.Get("/profile", dep.UserHandler.Profile)
			r.Put("/profile", dep.UserHandler.UpdateProfile)
			r.Get("/stats", dep.MediaHandler.UserStats)
			r.Get("/stats/{userId}", dep.MediaHandler.UserStats)
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/", dep.AdminHandler.ListUsers)
				r.Get("/stats", dep.AdminHandler.SystemStats)
				r.Get("/{id}", dep.AdminHandler.GetUser)
				r.Put("/{id}", dep.AdminHandler.UpdateUser)
				r.Delete("/{id}", dep.AdminHandler.DeleteUser)
				r.Patch("/{id}/restore", dep.AdminHandler.RestoreUser)
				r.Put("/{id}/restore", dep.AdminHandler.RestoreUser)
			})
		})

		r.Route("/contact", func(r chi.Router) {
			r.Use(bodyLimit)
			r.With(optional).Post("/", dep.ContactHandler.Submit)
			r.Group(func(r chi.Router) {
				r.Use(session)
				r.Get("/my-messages", dep.ContactHandler.ListMine)
				r.With(ticketOwner).Get("/my-messages/{id}", dep.ContactHandler.GetMine)
				r.With(ticketOwner).Put("/my-messages/{id}", dep.ContactHandler.UpdateMine)
				r.With(ticketOwner).Delete("/my-messages/{id}", dep.ContactHandler.DeleteMine)
			})
			r.Route("/admin", func(r chi.Router) {
				r.Use(session, middleware.RequireAdmin)
				r.Get("/", dep.ContactHandler.ListAll)
				r.Get("/stats", dep.ContactHandler.Stats)
				r.Get("/{id}", dep.ContactHandler.Get)
				r.Delete("/{id}", dep.ContactHandler.Delete)
				for _, m := range []string{http.MethodPatch, http.MethodPut} {
					r.Method(m, "/{id}/read", http.HandlerFunc(dep.ContactHandler.MarkRead))
					r.Method(m, "/{id}/replied", http.HandlerFunc(dep.ContactHandler.MarkReplied))
					r.Method(m, "/{id}/resolved", http.HandlerFunc(dep.ContactHandler.MarkResolved))
					r.Method(m, "/{id}/priority", http.HandlerFunc(dep.ContactHandler.SetPriority))
					r.Method(m, "/{id}/notes", http.HandlerFunc(dep.ContactHandler.AddNotes))
				}
			})
		})

		r.Route("/media", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(optional)
				r.Get("/", dep.MediaHandler.List)
				r.Get("/search", dep.MediaHandler.Search)
				r.Get("/{id}", dep.MediaHandler.Get)
			})
			r.Group(func(r chi.Router) {
				r.Use(middleware.BodyLimit(uploadLimit), session, middleware.RequireVerified)
				r.Post("/", dep.MediaHandler.Upload)
				r.Post("/upload", dep.MediaHandler.Upload)
			})
			r.Group(func(r chi.Router) {
				r.Use(bodyLimit, session, middleware.RequireVerified)
				r.Get("/user/me", dep.MediaHandler.ListMine)
				r.Get("/user/{userId}", dep.MediaHandler.ListByOwner)
				r.Get("/stats/me", dep.MediaHandler.StatsMine)
				r.With(mediaOwner).Put("/{id}", dep.MediaHandler.Update)
				r.With(mediaOwner).Delete("/{id}", dep.MediaHandler.Delete)
				r.Post("/{id}/like", dep.MediaHandler.ToggleLike)
			})
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

func orLocal(mw Middleware, rpm int, scope string) Middleware {
	if mw != nil {
		return mw
	}
	return middleware.NewRateLimiter(scope, rpm, time.Minute).Handler
}
