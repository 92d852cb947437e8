package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mediagallery/gallery-api/internal/app"
	"github.com/mediagallery/gallery-api/internal/config"
	"github.com/mediagallery/gallery-api/internal/database"
	"github.com/mediagallery/gallery-api/internal/health"
	"github.com/mediagallery/gallery-api/internal/http/handler"
	"github.com/mediagallery/gallery-api/internal/http/middleware"
	"github.com/mediagallery/gallery-api/internal/http/router"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/repository"
	"github.com/mediagallery/gallery-api/internal/security"
	"github.com/mediagallery/gallery-api/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideMediaStore,
	wire.Bind(new(service.MediaStore), new(*service.MinIOMediaStore)),
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewContactRepository,
	repository.NewMediaRepository,
)

var SecuritySet = wire.NewSet(
	provideJWTManager,
	provideCookieManager,
	provideTokenCodec,
)

var ServiceSet = wire.NewSet(
	service.NewSessionIssuer,
	provideMailer,
	provideFederatedVerifier,
	service.NewGoogleOAuthProvider,
	wire.Bind(new(service.OAuthProvider), new(*service.GoogleOAuthProvider)),
	service.NewAuthAbuseGuard,
	service.NewAdminListCacheStore,
	service.NewAuthService,
	provideUserService,
	provideContactService,
	provideMediaService,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	wire.Bind(new(service.SessionAuthenticator), new(*service.SessionIssuer)),
	wire.Bind(new(service.UserServiceInterface), new(*service.UserService)),
	wire.Bind(new(service.ContactServiceInterface), new(*service.ContactService)),
	wire.Bind(new(service.MediaServiceInterface), new(*service.MediaService)),
)

var HTTPSet = wire.NewSet(
	provideAuthHandler,
	handler.NewUserHandler,
	handler.NewAdminHandler,
	handler.NewContactHandler,
	provideMediaHandler,
	provideGlobalRateLimiter,
	provideAuthRateLimiter,
	provideForgotRateLimiter,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

// Distinct types so wire can tell the three limiter middlewares apart.
type (
	globalRateLimiter router.Middleware
	authRateLimiter   router.Middleware
	forgotRateLimiter router.Middleware
)

type MigrationRunner struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewMigrationRunner(cfg *config.Config, db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{cfg: cfg, db: db}
}

// Run applies the schema and promotes the bootstrap admin, if configured.
func (m *MigrationRunner) Run() (*database.SeedReport, error) {
	if err := database.Migrate(m.db); err != nil {
		return nil, err
	}
	return database.SeedSync(m.db, m.cfg.BootstrapAdminEmail)
}

// Pending lists model tables that do not exist yet.
func (m *MigrationRunner) Pending() []string {
	return database.PendingTables(m.db)
}

// Close releases the runner's connection pool.
func (m *MigrationRunner) Close() {
	if sqlDB, err := m.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

func provideRuntimeDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	report, err := database.SeedSync(db, cfg.BootstrapAdminEmail)
	if err != nil {
		return nil, err
	}
	if report.UserMissing {
		logger.Warn("bootstrap admin account not registered yet", "email", report.BootstrapEmail)
	}
	return db, nil
}

// provideRedisClient returns nil when Redis-backed rate limiting is disabled;
// the cache and abuse guard then fall back to process-local stores.
func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !cfg.RateLimitRedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, logger)
	return client
}

func provideMediaStore(cfg *config.Config) (*service.MinIOMediaStore, error) {
	return service.NewMinIOMediaStore(cfg)
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient, store *service.MinIOMediaStore) *health.ProbeRunner {
	var storage health.Pinger
	if store != nil {
		storage = store
	}
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, cfg.ServerStartGracePeriod,
		health.Database(db),
		health.Redis(redisClient, cfg.RateLimitFailClosed),
		health.MediaStorage(storage),
	)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret, cfg.JWTTTL)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)
}

func provideTokenCodec(cfg *config.Config) *security.TokenCodec {
	return security.NewTokenCodec(cfg.AuthOTPLength, cfg.AuthTokenTTL, time.Now)
}

func provideMailer(cfg *config.Config, logger *slog.Logger) (service.Mailer, error) {
	switch cfg.MailDriver {
	case "smtp":
		return service.NewSMTPMailer(service.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			Timeout:  10 * time.Second,
		}, cfg.FrontendURL, cfg.AuthTokenTTL, logger)
	case "log", "":
		return service.NewLogMailer(logger, cfg.FrontendURL, cfg.AuthTokenTTL)
	default:
		return nil, fmt.Errorf("unsupported mail driver %q", cfg.MailDriver)
	}
}

func provideFederatedVerifier() service.FederatedVerifier {
	return service.NewGoogleIDTokenVerifier(service.NewInstrumentedHTTPClient(10*time.Second), "")
}

func provideUserService(cfg *config.Config, users repository.UserRepository, cache service.AdminListCacheStore, logger *slog.Logger) *service.UserService {
	return service.NewUserService(users, cache, cfg.AdminListCacheTTL, logger)
}

func provideContactService(cfg *config.Config, contacts repository.ContactRepository, cache service.AdminListCacheStore, logger *slog.Logger) *service.ContactService {
	return service.NewContactService(contacts, cache, cfg.AdminListCacheTTL, logger)
}

func provideMediaService(cfg *config.Config, media repository.MediaRepository, users repository.UserRepository, store service.MediaStore, logger *slog.Logger) *service.MediaService {
	return service.NewMediaService(media, users, store, cfg.MediaMaxFiles, logger)
}

func provideAuthHandler(authSvc service.AuthServiceInterface, cookieMgr *security.CookieManager, cfg *config.Config) *handler.AuthHandler {
	return handler.NewAuthHandler(authSvc, cookieMgr, cfg.StateSigningSecret, cfg.JWTTTL, cfg.AuthSessionCookieEnabled)
}

func provideMediaHandler(mediaSvc service.MediaServiceInterface, cfg *config.Config) *handler.MediaHandler {
	return handler.NewMediaHandler(mediaSvc, cfg.MediaMaxUploadBytes)
}

func provideGlobalRateLimiter(cfg *config.Config, redisClient redis.UniversalClient, jwt *security.JWTManager) globalRateLimiter {
	return globalRateLimiter(buildLimiter(cfg, redisClient, "api", cfg.APIRateLimitPerMin, middleware.SubjectOrIPKeyFunc(jwt)))
}

func provideAuthRateLimiter(cfg *config.Config, redisClient redis.UniversalClient) authRateLimiter {
	return authRateLimiter(buildLimiter(cfg, redisClient, "auth", cfg.AuthRateLimitPerMin, nil))
}

func provideForgotRateLimiter(cfg *config.Config, redisClient redis.UniversalClient) forgotRateLimiter {
	return forgotRateLimiter(buildLimiter(cfg, redisClient, "auth_forgot", cfg.AuthForgotRateLimitPerMin, nil))
}

func buildLimiter(cfg *config.Config, redisClient redis.UniversalClient, scope string, rpm int, keyFunc middleware.KeyFunc) router.Middleware {
	opts := []middleware.RateLimitOption{middleware.WithKeyFunc(keyFunc)}
	if cfg.RateLimitRedisEnabled && redisClient != nil {
		mode := middleware.FailOpen
		if cfg.RateLimitFailClosed {
			mode = middleware.FailClosed
		}
		opts = append(opts, middleware.WithBackend(middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RedisPrefix+":rl"), mode))
	}
	return middleware.NewRateLimiter(scope, rpm, time.Minute, opts...).Handler
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	adminHandler *handler.AdminHandler,
	contactHandler *handler.ContactHandler,
	mediaHandler *handler.MediaHandler,
	sessions service.SessionAuthenticator,
	media service.MediaServiceInterface,
	contacts service.ContactServiceInterface,
	global globalRateLimiter,
	auth authRateLimiter,
	forgot forgotRateLimiter,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:                authHandler,
		UserHandler:                userHandler,
		AdminHandler:               adminHandler,
		ContactHandler:             contactHandler,
		MediaHandler:               mediaHandler,
		Sessions:                   sessions,
		Media:                      media,
		Contacts:                   contacts,
		CORSOrigins:                cfg.CORSAllowedOrigins,
		AuthRateLimitRPM:           cfg.AuthRateLimitPerMin,
		PasswordForgotRateLimitRPM: cfg.AuthForgotRateLimitPerMin,
		APIRateLimitRPM:            cfg.APIRateLimitPerMin,
		GlobalRateLimiter:          router.Middleware(global),
		AuthRateLimiter:            router.Middleware(auth),
		ForgotRateLimiter:          router.Middleware(forgot),
		UploadBodyLimit:            uploadBodyLimit(cfg),
		Readiness:                  readiness,
		EnableOTelHTTP:             cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
		TrustProxyHeaders:          cfg.TrustProxyHeaders,
	}
}

// uploadBodyLimit leaves one extra file's worth of room for multipart framing
// and text fields.
func uploadBodyLimit(cfg *config.Config) int64 {
	if cfg.MediaMaxUploadBytes <= 0 || cfg.MediaMaxFiles <= 0 {
		return 0
	}
	return cfg.MediaMaxUploadBytes * int64(cfg.MediaMaxFiles+1)
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	readiness *health.ProbeRunner,
) *app.App {
	return app.New(cfg, logger, server, runtime, db, redisClient, readiness)
}
