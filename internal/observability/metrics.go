package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mediagallery/gallery-api/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

const meterName = "gallery-api"

type AppMetrics struct {
	authReqDuration          metric.Float64Histogram
	authFlowCounter          metric.Int64Counter
	authLoginCounter         metric.Int64Counter
	authLogoutCounter        metric.Int64Counter
	sessionValidationCounter metric.Int64Counter
	guardDecisionCounter     metric.Int64Counter
	rateLimitDecisionCounter metric.Int64Counter
	rateLimitRetryAfter      metric.Float64Histogram
	abuseGuardCounter        metric.Int64Counter
	abuseGuardCooldown       metric.Float64Histogram
	mailDeliveryCounter      metric.Int64Counter
	oauthGoogleReqDuration   metric.Float64Histogram
	oauthGoogleErrorsCounter metric.Int64Counter
	userProfileCounter       metric.Int64Counter
	adminListCacheCounter    metric.Int64Counter
	adminListReqDuration     metric.Float64Histogram
	adminListPageSize        metric.Float64Histogram
	contactCounter           metric.Int64Counter
	mediaOpDuration          metric.Float64Histogram
	storageCounter           metric.Int64Counter
	repositoryOpsCounter     metric.Int64Counter
	healthCheckResultCounter metric.Int64Counter
	healthCheckDuration      metric.Float64Histogram
	dbStartupCounter         metric.Int64Counter
	dbStartupDuration        metric.Float64Histogram
	toolCommandRuns          metric.Int64Counter
	toolCommandDuration      metric.Float64Histogram
	loadgenRequestsCounter   metric.Int64Counter
	middlewareValidation     metric.Int64Counter
	csrfValidation           metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(latencyView("auth.request.duration"), latencyView("media.operation.duration")),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func latencyView(name string) sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: name},
		sdkmetric.Stream{
			Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		},
	)
}

// instruments keeps the first creation error so newAppMetrics stays a flat list.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create counter %s: %w", name, err)
	}
	return c
}

func (b *instruments) histogram(name, unit, desc string) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
	if unit != "" {
		opts = append(opts, metric.WithUnit(unit))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create histogram %s: %w", name, err)
	}
	return h
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	b := &instruments{meter: meter}
	m := &AppMetrics{
		authReqDuration:          b.histogram("auth.request.duration", "s", "Duration of auth endpoint requests in seconds"),
		authFlowCounter:          b.counter("auth.flow.events", "Outcomes of registration, verification and recovery flows"),
		authLoginCounter:         b.counter("auth.login.attempts", "Login attempts by provider and status"),
		authLogoutCounter:        b.counter("auth.logout.attempts", "Logout requests"),
		sessionValidationCounter: b.counter("auth.session.validation.events", "Session credential validation outcomes"),
		guardDecisionCounter:     b.counter("auth.guard.decisions", "Access guard decisions"),
		rateLimitDecisionCounter: b.counter("http.rate_limit.decisions", "Rate limiter decisions"),
		rateLimitRetryAfter:      b.histogram("http.rate_limit.retry_after", "s", "Retry-after duration for throttled requests"),
		abuseGuardCounter:        b.counter("auth.abuse_guard.events", "Auth abuse guard events"),
		abuseGuardCooldown:       b.histogram("auth.abuse_guard.cooldown", "s", "Cooldown returned by the auth abuse guard"),
		mailDeliveryCounter:      b.counter("mail.delivery.events", "Outbound mail delivery outcomes"),
		oauthGoogleReqDuration:   b.histogram("auth.oauth.google.request.duration", "s", "Duration of Google identity calls in seconds"),
		oauthGoogleErrorsCounter: b.counter("auth.oauth.google.errors", "Google identity call failures by stage"),
		userProfileCounter:       b.counter("user.profile.events", "Profile and admin user mutations"),
		adminListCacheCounter:    b.counter("admin.list.cache.events", "Admin list cache lookups"),
		adminListReqDuration:     b.histogram("admin.list.request.duration", "s", "Duration of admin list requests in seconds"),
		adminListPageSize:        b.histogram("admin.list.page_size", "", "Requested page size for admin list endpoints"),
		contactCounter:           b.counter("contact.message.events", "Contact ticket operations"),
		mediaOpDuration:          b.histogram("media.operation.duration", "s", "Duration of media operations in seconds"),
		storageCounter:           b.counter("storage.object.events", "Object storage operations"),
		repositoryOpsCounter:     b.counter("repository.operations", "Repository operations by entity and outcome"),
		healthCheckResultCounter: b.counter("health.check.results", "Dependency health check outcomes"),
		healthCheckDuration:      b.histogram("health.check.duration", "s", "Duration of dependency health checks"),
		dbStartupCounter:         b.counter("database.startup.events", "Database startup stage outcomes"),
		dbStartupDuration:        b.histogram("database.startup.duration", "s", "Duration of database startup stages"),
		toolCommandRuns:          b.counter("tool.command.runs", "Operator tool command runs"),
		toolCommandDuration:      b.histogram("tool.command.duration", "s", "Duration of operator tool commands"),
		loadgenRequestsCounter:   b.counter("loadgen.requests", "Requests issued by the load generator"),
		middlewareValidation:     b.counter("http.middleware.validation.events", "Request validation events raised by middleware"),
		csrfValidation:           b.counter("security.csrf.validation.events", "Double-submit CSRF checks by outcome"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.authReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

// RecordAuthFlowEvent covers register, verify_email, resend_verification,
// forgot_password and reset_password.
func RecordAuthFlowEvent(ctx context.Context, flow, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.authFlowCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthLogin(ctx context.Context, provider, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

func RecordAuthLogout(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLogoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordSessionValidation(ctx context.Context, outcome, source string) {
	m := current()
	if m == nil {
		return
	}
	m.sessionValidationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}

func RecordGuardDecision(ctx context.Context, guard, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.guardDecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("guard", guard),
		attribute.String("outcome", outcome),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode, keyType string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitDecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
		attribute.String("key_type", keyType),
	))
}

func RecordRateLimitRetryAfter(ctx context.Context, scope, reason string, retryAfter time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitRetryAfter.Record(ctx, retryAfter.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("reason", reason),
	))
}

func RecordAuthAbuseGuardEvent(ctx context.Context, scope, action, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.abuseGuardCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthAbuseCooldown(ctx context.Context, scope, action string, cooldown time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.abuseGuardCooldown.Record(ctx, cooldown.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("action", action),
	))
}

func RecordMailDelivery(ctx context.Context, template, driver, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.mailDeliveryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("template", template),
		attribute.String("driver", driver),
		attribute.String("outcome", outcome),
	))
}

func RecordGoogleOAuthRequestDuration(ctx context.Context, stage, status string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.oauthGoogleReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

func RecordGoogleOAuthError(ctx context.Context, stage string) {
	m := current()
	if m == nil {
		return
	}
	m.oauthGoogleErrorsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func RecordUserProfileEvent(ctx context.Context, action, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.userProfileCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordAdminListCacheEvent(ctx context.Context, endpoint, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.adminListCacheCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	))
}

func RecordAdminListRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.adminListReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

func RecordAdminListPageSize(ctx context.Context, endpoint string, pageSize int) {
	m := current()
	if m == nil {
		return
	}
	m.adminListPageSize.Record(ctx, float64(pageSize), metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func RecordContactEvent(ctx context.Context, action, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.contactCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordMediaOperation(ctx context.Context, operation, outcome string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.mediaOpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordStorageOperation(ctx context.Context, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.storageCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryOpsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.healthCheckResultCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("check", check)))
}

func RecordDatabaseStartupEvent(ctx context.Context, stage, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.dbStartupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

func RecordDatabaseStartupDuration(ctx context.Context, stage string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.dbStartupDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

func RecordToolCommandRun(ctx context.Context, tool, command, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.toolCommandRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}

func RecordToolCommandDuration(ctx context.Context, tool, command, outcome string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.toolCommandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}

func RecordLoadgenRequest(ctx context.Context, statusClass, profile string) {
	m := current()
	if m == nil {
		return
	}
	m.loadgenRequestsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status_class", statusClass),
		attribute.String("profile", profile),
	))
}

func RecordMiddlewareValidationEvent(ctx context.Context, check, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.middlewareValidation.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordCSRFValidation(ctx context.Context, outcome, pathGroup string) {
	m := current()
	if m == nil {
		return
	}
	m.csrfValidation.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("path_group", pathGroup),
	))
}
