package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mediagallery/gallery-api/internal/config"
)

const serviceNamespace = "media-gallery"

// Runtime owns the three OTel providers for the process lifetime.
type Runtime struct {
	LoggerProvider *sdklog.LoggerProvider
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

// InitRuntime brings up logs, metrics and traces in that order. A failure
// shuts down whatever already started.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	var err error
	if rt.LoggerProvider, err = InitLogs(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if rt.MeterProvider, err = InitMetrics(ctx, cfg, logger); err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	if rt.TracerProvider, err = InitTracing(ctx, cfg, logger); err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	return rt, nil
}

// Shutdown flushes traces first so spans ending during drain are exported
// before the log pipeline closes.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	type stage struct {
		name string
		fn   func(context.Context) error
	}
	var stages []stage
	if r.TracerProvider != nil {
		stages = append(stages, stage{"tracer", r.TracerProvider.Shutdown})
	}
	if r.MeterProvider != nil {
		stages = append(stages, stage{"meter", r.MeterProvider.Shutdown})
	}
	if r.LoggerProvider != nil {
		stages = append(stages, stage{"logger", r.LoggerProvider.Shutdown})
	}
	var errs []error
	for _, s := range stages {
		if err := s.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s provider: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// serviceResource is shared by all three signals so they correlate on the
// same service identity.
func serviceResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("service.namespace", serviceNamespace),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}
