package observability

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var redisInstrumentationOnce sync.Once

// InstrumentRedisClient installs command and pool metrics on the shared
// client. Only the first call per process has an effect.
func InstrumentRedisClient(client redis.UniversalClient, logger *slog.Logger) {
	if client == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	redisInstrumentationOnce.Do(func() {
		hook, err := newRedisMetricsHook(otel.Meter(meterName), client.PoolStats)
		if err != nil {
			logger.Warn("redis observability instrumentation disabled", "error", err)
			return
		}
		client.AddHook(hook)
		logger.Info("redis observability instrumentation enabled")
	})
}

// Keyspaces the API writes under REDIS_PREFIX. Anything else reports "other".
var redisKeyspaces = []string{"rl", "auth_abuse", "admin_list_cache"}

type redisMetricsHook struct {
	commands metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	lookups  metric.Int64Counter

	hits   atomic.Int64
	misses atomic.Int64
}

func newRedisMetricsHook(meter metric.Meter, poolStats func() *redis.PoolStats) (*redisMetricsHook, error) {
	h := &redisMetricsHook{}
	var err error
	if h.commands, err = meter.Int64Counter("redis.command.total",
		metric.WithDescription("Redis commands by keyspace and outcome")); err != nil {
		return nil, err
	}
	if h.failures, err = meter.Int64Counter("redis.command.errors",
		metric.WithDescription("Redis command errors by keyspace and error class")); err != nil {
		return nil, err
	}
	if h.latency, err = meter.Float64Histogram("redis.command.duration",
		metric.WithUnit("s"), metric.WithDescription("Redis command latency in seconds")); err != nil {
		return nil, err
	}
	if h.lookups, err = meter.Int64Counter("redis.keyspace.lookups",
		metric.WithDescription("Cache-style reads split into hit and miss")); err != nil {
		return nil, err
	}
	saturation, err := meter.Float64ObservableGauge("redis.pool.saturation",
		metric.WithUnit("1"), metric.WithDescription("In-use connections over total connections"))
	if err != nil {
		return nil, err
	}
	hitRatio, err := meter.Float64ObservableGauge("redis.keyspace.hit_ratio",
		metric.WithUnit("1"), metric.WithDescription("Hits over hits plus misses since start"))
	if err != nil {
		return nil, err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if poolStats != nil {
			if s := poolStats(); s != nil && s.TotalConns > 0 {
				o.ObserveFloat64(saturation, ratio(int64(s.TotalConns-s.IdleConns), int64(s.TotalConns)))
			}
		}
		hits, misses := h.hits.Load(), h.misses.Load()
		if hits+misses > 0 {
			o.ObserveFloat64(hitRatio, ratio(hits, hits+misses))
		}
		return nil
	}, saturation, hitRatio)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		// The client stores the result on cmd only after the hook chain returns.
		h.observe(ctx, cmd, err, time.Since(start))
		return err
	}
}

func (h *redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		// Per-command latency is not visible inside a pipeline; split evenly.
		var each time.Duration
		if len(cmds) > 0 {
			each = time.Since(start) / time.Duration(len(cmds))
		}
		// Pipelined replies are set per command before next returns.
		for _, cmd := range cmds {
			h.observe(ctx, cmd, cmd.Err(), each)
		}
		return err
	}
}

func (h *redisMetricsHook) observe(ctx context.Context, cmd redis.Cmder, err error, d time.Duration) {
	name := strings.ToLower(cmd.Name())
	keyspace := redisKeyspace(cmd)
	attrs := metric.WithAttributes(
		attribute.String("command", name),
		attribute.String("keyspace", keyspace),
		attribute.String("status", redisStatus(err)),
	)
	h.commands.Add(ctx, 1, attrs)
	h.latency.Record(ctx, d.Seconds(), attrs)
	if err != nil && !errors.Is(err, redis.Nil) {
		h.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("command", name),
			attribute.String("keyspace", keyspace),
			attribute.String("error_type", redisErrorClass(err)),
		))
	}
	if hit, ok := redisLookupOutcome(cmd, err); ok {
		outcome := "miss"
		if hit {
			outcome = "hit"
			h.hits.Add(1)
		} else {
			h.misses.Add(1)
		}
		h.lookups.Add(ctx, 1, metric.WithAttributes(
			attribute.String("keyspace", keyspace),
			attribute.String("outcome", outcome),
		))
	}
}

// redisKeyspace finds the first key argument and maps its namespace segment.
// EVAL and EVALSHA carry keys after the script and key count.
func redisKeyspace(cmd redis.Cmder) string {
	args := cmd.Args()
	first := 1
	switch strings.ToLower(cmd.Name()) {
	case "eval", "evalsha":
		first = 3
	}
	if len(args) <= first {
		return "none"
	}
	key, ok := args[first].(string)
	if !ok {
		return "other"
	}
	for _, ks := range redisKeyspaces {
		if strings.Contains(key, ":"+ks+":") || strings.HasPrefix(key, ks+":") {
			return ks
		}
	}
	return "other"
}

func redisStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, redis.Nil):
		return "miss"
	default:
		return "error"
	}
}

func redisErrorClass(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "refused"):
		return "connection"
	case strings.HasPrefix(msg, "noscript"):
		return "noscript"
	default:
		return "other"
	}
}

// redisLookupOutcome reports hit or miss for single-key reads. Only GET and
// EXISTS are used by the API's caches and guards.
func redisLookupOutcome(cmd redis.Cmder, err error) (hit bool, ok bool) {
	switch strings.ToLower(cmd.Name()) {
	case "get":
		switch {
		case errors.Is(err, redis.Nil):
			return false, true
		case err != nil:
			return false, false
		}
		return true, true
	case "exists":
		c, isInt := cmd.(*redis.IntCmd)
		if !isInt || err != nil {
			return false, false
		}
		return c.Val() > 0, true
	}
	return false, false
}

func ratio(num, den int64) float64 {
	if den <= 0 {
		return 0
	}
	r := float64(num) / float64(den)
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}
