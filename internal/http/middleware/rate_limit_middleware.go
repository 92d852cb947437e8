package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mediagallery/gallery-api/internal/http/response"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/security"
)

const rateLimitedMessage = "Too many requests, please try again later."

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
	ResetAt    time.Time
}

// Limiter counts hits per key in fixed windows aligned to the wall clock, so
// the local and Redis backends agree on where a window starts.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// FailureMode decides what happens to a request when the backend errors.
type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// KeyFunc derives the limiter key for a request and names its kind for metrics.
type KeyFunc func(r *http.Request) (key, keyType string)

type RateLimiter struct {
	scope   string
	limit   int
	window  time.Duration
	backend Limiter
	kind    string
	mode    FailureMode
	keyFunc KeyFunc
}

type RateLimitOption func(*RateLimiter)

// WithBackend swaps the in-process counter for a shared one.
func WithBackend(l Limiter, mode FailureMode) RateLimitOption {
	return func(rl *RateLimiter) {
		rl.backend, rl.mode, rl.kind = l, mode, "distributed"
	}
}

func WithKeyFunc(fn KeyFunc) RateLimitOption {
	return func(rl *RateLimiter) {
		if fn != nil {
			rl.keyFunc = fn
		}
	}
}

// NewRateLimiter limits each client to limit requests per window within scope.
// Without options it counts in process and keys by client IP.
func NewRateLimiter(scope string, limit int, window time.Duration, opts ...RateLimitOption) *RateLimiter {
	if scope == "" {
		scope = "api"
	}
	rl := &RateLimiter{
		scope:   scope,
		limit:   limit,
		window:  window,
		backend: NewLocalFixedWindowLimiter(),
		kind:    "local",
		mode:    FailClosed,
		keyFunc: IPKeyFunc,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, keyType := rl.keyFunc(r)
		d, err := rl.backend.Allow(ctx, rl.scope+":"+key, rl.limit, rl.window)

		outcome := "allow"
		switch {
		case err != nil && rl.mode == FailOpen:
			outcome = "backend_error_allow"
			slog.WarnContext(ctx, "rate limiter backend unavailable, allowing request", "scope", rl.scope, "error", err)
		case err != nil:
			outcome = "backend_error_deny"
			observability.RecordRateLimitRetryAfter(ctx, rl.scope, "backend_error", rl.window)
			d = Decision{RetryAfter: rl.window}
		case !d.Allowed:
			outcome = "deny"
			observability.RecordRateLimitRetryAfter(ctx, rl.scope, "window", d.RetryAfter)
		}
		observability.RecordRateLimitDecision(ctx, rl.scope, outcome, rl.kind, keyType)

		if err == nil {
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
			if !d.ResetAt.IsZero() {
				h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			}
		}
		if outcome == "deny" || outcome == "backend_error_deny" {
			w.Header().Set("Retry-After", response.RetryAfterSeconds(d.RetryAfter))
			response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", rateLimitedMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type localWindow struct {
	start time.Time
	count int
}

type localFixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]localWindow
	swept   time.Time
	now     func() time.Time
}

func NewLocalFixedWindowLimiter() Limiter {
	return &localFixedWindowLimiter{windows: make(map[string]localWindow), now: time.Now}
}

func (l *localFixedWindowLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := l.now()
	start := now.Truncate(window)
	resetAt := start.Add(window)

	l.mu.Lock()
	defer l.mu.Unlock()
	if start.After(l.swept) {
		for k, w := range l.windows {
			if w.start.Before(start) {
				delete(l.windows, k)
			}
		}
		l.swept = start
	}

	w := l.windows[key]
	if !w.start.Equal(start) {
		w = localWindow{start: start}
	}
	if w.count >= limit {
		return Decision{RetryAfter: resetAt.Sub(now), ResetAt: resetAt}, nil
	}
	w.count++
	l.windows[key] = w
	return Decision{Allowed: true, Remaining: limit - w.count, ResetAt: resetAt}, nil
}

// IPKeyFunc keys requests by the remote address host.
func IPKeyFunc(r *http.Request) (string, string) {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host, "ip"
	}
	return addr, "ip"
}

// SubjectOrIPKeyFunc keys signed-in callers by user id so accounts behind one
// NAT address do not share a budget.
func SubjectOrIPKeyFunc(jwtMgr *security.JWTManager) KeyFunc {
	return func(r *http.Request) (string, string) {
		if raw := SessionCredential(r); raw != "" && jwtMgr != nil {
			if claims, err := jwtMgr.ParseSessionToken(raw); err == nil {
				if id, err := claims.UserID(); err == nil {
					return "sub:" + strconv.FormatUint(uint64(id), 10), "subject"
				}
			}
		}
		return IPKeyFunc(r)
	}
}
