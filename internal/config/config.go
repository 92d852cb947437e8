package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string

	JWTIssuer          string
	JWTAudience        string
	JWTSecret          string
	JWTTTL             time.Duration
	StateSigningSecret string
	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     string
	CORSAllowedOrigins []string
	TrustProxyHeaders  bool
	FrontendURL        string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	AuthGoogleEnabled  bool

	AuthTokenTTL               time.Duration
	AuthOTPLength              int
	AuthExposeTokensInResponse bool
	AuthSessionCookieEnabled   bool
	BootstrapAdminEmail        string
	AuthAbuseProtectionEnabled bool
	AuthAbuseFreeAttempts      int
	AuthAbuseBaseDelay         time.Duration
	AuthAbuseMultiplier        float64
	AuthAbuseMaxDelay          time.Duration
	AuthAbuseResetWindow       time.Duration
	AuthRateLimitPerMin        int
	AuthForgotRateLimitPerMin  int
	APIRateLimitPerMin         int
	RateLimitRedisEnabled      bool
	RateLimitFailClosed        bool
	AdminListCacheEnabled      bool
	AdminListCacheTTL          time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	MailDriver   string
	MailFrom     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	StorageEndpoint     string
	StorageAccessKey    string
	StorageSecretKey    string
	StorageBucket       string
	StorageUseSSL       bool
	StoragePresignTTL   time.Duration
	MediaMaxUploadBytes int64
	MediaMaxFiles       int

	ReadinessProbeTimeout        time.Duration
	ServerStartGracePeriod       time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	googleClientID := os.Getenv("GOOGLE_OAUTH_CLIENT_ID")
	googleClientSecret := os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET")
	googleEnabled := getEnvBool("AUTH_GOOGLE_ENABLED", true)
	if _, explicitlySet := os.LookupEnv("AUTH_GOOGLE_ENABLED"); !explicitlySet &&
		googleClientID == "" && isLocalLikeEnv(env) {
		googleEnabled = false
	}

	cfg := &Config{
		Env:                        env,
		HTTPPort:                   getEnv("HTTP_PORT", "8080"),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		JWTIssuer:                  getEnv("JWT_ISSUER", "gallery-api"),
		JWTAudience:                getEnv("JWT_AUDIENCE", "gallery-web"),
		JWTSecret:                  os.Getenv("JWT_SECRET"),
		StateSigningSecret:         os.Getenv("OAUTH_STATE_SECRET"),
		CookieDomain:               os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:               getEnvBool("COOKIE_SECURE", true),
		CookieSameSite:             strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
		CORSAllowedOrigins:         splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		TrustProxyHeaders:          getEnvBool("TRUST_PROXY_HEADERS", false),
		FrontendURL:                strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		GoogleClientID:             googleClientID,
		GoogleClientSecret:         googleClientSecret,
		GoogleRedirectURL:          getEnv("GOOGLE_OAUTH_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback"),
		AuthGoogleEnabled:          googleEnabled,
		AuthOTPLength:              getEnvInt("AUTH_OTP_LENGTH", 6),
		AuthExposeTokensInResponse: getEnvBool("AUTH_EXPOSE_TOKENS_IN_RESPONSE", false),
		AuthSessionCookieEnabled:   getEnvBool("AUTH_SESSION_COOKIE_ENABLED", true),
		BootstrapAdminEmail:        strings.TrimSpace(strings.ToLower(os.Getenv("BOOTSTRAP_ADMIN_EMAIL"))),
		AuthAbuseProtectionEnabled: getEnvBool("AUTH_ABUSE_PROTECTION_ENABLED", true),
		AuthAbuseFreeAttempts:      getEnvInt("AUTH_ABUSE_FREE_ATTEMPTS", 3),
		AuthAbuseMultiplier:        getEnvFloat("AUTH_ABUSE_MULTIPLIER", 2.0),
		AuthRateLimitPerMin:        getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		AuthForgotRateLimitPerMin:  getEnvInt("AUTH_FORGOT_RATE_LIMIT_PER_MIN", 5),
		APIRateLimitPerMin:         getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		RateLimitRedisEnabled:      getEnvBool("RATE_LIMIT_REDIS_ENABLED", true),
		RateLimitFailClosed:        getEnvBool("RATE_LIMIT_FAIL_CLOSED", false),
		AdminListCacheEnabled:      getEnvBool("ADMIN_LIST_CACHE_ENABLED", true),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "gallery"),

		MailDriver:   strings.ToLower(getEnv("MAIL_DRIVER", "log")),
		MailFrom:     getEnv("MAIL_FROM", "Media Gallery <no-reply@localhost>"),
		SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),

		StorageEndpoint:     getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey:    getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
		StorageSecretKey:    getEnv("STORAGE_SECRET_KEY", "minioadmin"),
		StorageBucket:       getEnv("STORAGE_BUCKET", "gallery-media"),
		StorageUseSSL:       getEnvBool("STORAGE_USE_SSL", false),
		MediaMaxUploadBytes: int64(getEnvInt("MEDIA_MAX_UPLOAD_BYTES", 5*1024*1024)),
		MediaMaxFiles:       getEnvInt("MEDIA_MAX_FILES", 10),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "gallery-api"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", true),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", true),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", true),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"JWT_TTL", "168h", &cfg.JWTTTL},
		{"AUTH_TOKEN_TTL", "10m", &cfg.AuthTokenTTL},
		{"AUTH_ABUSE_BASE_DELAY", "2s", &cfg.AuthAbuseBaseDelay},
		{"AUTH_ABUSE_MAX_DELAY", "5m", &cfg.AuthAbuseMaxDelay},
		{"AUTH_ABUSE_RESET_WINDOW", "30m", &cfg.AuthAbuseResetWindow},
		{"ADMIN_LIST_CACHE_TTL", "30s", &cfg.AdminListCacheTTL},
		{"STORAGE_PRESIGN_TTL", "1h", &cfg.StoragePresignTTL},
		{"READINESS_PROBE_TIMEOUT", "1s", &cfg.ReadinessProbeTimeout},
		{"SERVER_START_GRACE_PERIOD", "2s", &cfg.ServerStartGracePeriod},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", "10s", &cfg.ShutdownHTTPDrainTimeout},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", "8s", &cfg.ShutdownObservabilityTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", "10s", &cfg.OTELMetricsExportInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 chars")
	}
	if len(c.StateSigningSecret) < 16 {
		errs = append(errs, "OAUTH_STATE_SECRET must be at least 16 chars")
	}
	if c.AuthGoogleEnabled && c.GoogleClientID == "" {
		errs = append(errs, "GOOGLE_OAUTH_CLIENT_ID is required when AUTH_GOOGLE_ENABLED=true")
	}
	if c.JWTTTL < time.Minute || c.JWTTTL > (30*24*time.Hour) {
		errs = append(errs, "JWT_TTL must be between 1m and 30d")
	}
	if c.AuthTokenTTL <= 0 || c.AuthTokenTTL > 24*time.Hour {
		errs = append(errs, "AUTH_TOKEN_TTL must be between 1s and 24h")
	}
	if c.AuthOTPLength < 4 || c.AuthOTPLength > 10 {
		errs = append(errs, "AUTH_OTP_LENGTH must be between 4 and 10")
	}
	if c.AuthAbuseProtectionEnabled {
		if c.AuthAbuseFreeAttempts < 0 {
			errs = append(errs, "AUTH_ABUSE_FREE_ATTEMPTS must be >= 0")
		}
		if c.AuthAbuseBaseDelay <= 0 || c.AuthAbuseMaxDelay < c.AuthAbuseBaseDelay {
			errs = append(errs, "AUTH_ABUSE_BASE_DELAY must be > 0 and <= AUTH_ABUSE_MAX_DELAY")
		}
		if c.AuthAbuseMultiplier < 1 {
			errs = append(errs, "AUTH_ABUSE_MULTIPLIER must be >= 1")
		}
		if c.AuthAbuseResetWindow <= 0 {
			errs = append(errs, "AUTH_ABUSE_RESET_WINDOW must be > 0")
		}
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.AuthForgotRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_FORGOT_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.RateLimitRedisEnabled && c.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required when RATE_LIMIT_REDIS_ENABLED=true")
	}
	switch c.MailDriver {
	case "log":
	case "smtp":
		if c.SMTPHost == "" || c.SMTPPort <= 0 {
			errs = append(errs, "SMTP_HOST and SMTP_PORT are required when MAIL_DRIVER=smtp")
		}
		if c.MailFrom == "" {
			errs = append(errs, "MAIL_FROM is required when MAIL_DRIVER=smtp")
		}
	default:
		errs = append(errs, "MAIL_DRIVER must be one of log, smtp")
	}
	if c.StorageBucket == "" {
		errs = append(errs, "STORAGE_BUCKET is required")
	}
	if c.MediaMaxUploadBytes <= 0 {
		errs = append(errs, "MEDIA_MAX_UPLOAD_BYTES must be > 0")
	}
	if c.MediaMaxFiles <= 0 {
		errs = append(errs, "MEDIA_MAX_FILES must be > 0")
	}
	if !isValidSameSite(c.CookieSameSite) {
		errs = append(errs, "COOKIE_SAMESITE must be one of lax, strict, none")
	}
	if c.CookieSameSite == "none" && !c.CookieSecure && !isLocalLikeEnv(c.Env) {
		errs = append(errs, "COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
	}
	if !isLocalLikeEnv(c.Env) {
		if !c.CookieSecure {
			errs = append(errs, "COOKIE_SECURE must be true outside local environments")
		}
		if c.AuthExposeTokensInResponse {
			errs = append(errs, "AUTH_EXPOSE_TOKENS_IN_RESPONSE must be false outside local environments")
		}
		if c.MailDriver == "log" {
			errs = append(errs, "MAIL_DRIVER=log is only allowed in local environments")
		}
	}
	if c.ReadinessProbeTimeout <= 0 {
		errs = append(errs, "READINESS_PROBE_TIMEOUT must be > 0")
	}
	if c.ShutdownHTTPDrainTimeout <= 0 || c.ShutdownObservabilityTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_HTTP_DRAIN_TIMEOUT and SHUTDOWN_OBSERVABILITY_TIMEOUT must be > 0")
	}
	if c.ShutdownTimeout < c.ShutdownHTTPDrainTimeout {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be >= SHUTDOWN_HTTP_DRAIN_TIMEOUT")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// IsLocal reports whether the config targets a developer or test environment.
func (c *Config) IsLocal() bool {
	return isLocalLikeEnv(c.Env)
}

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isValidSameSite(v string) bool {
	switch v {
	case "lax", "strict", "none":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
