package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/mediagallery/gallery-api/internal/config"
	"github.com/mediagallery/gallery-api/internal/observability"
)

type AuthAbuseScope string

const (
	AuthAbuseScopeLogin  AuthAbuseScope = "login"
	AuthAbuseScopeForgot AuthAbuseScope = "forgot"
)

// AuthAbusePolicy is an exponential cooldown: after FreeAttempts failures the
// next failure costs BaseDelay, each later one Multiplier times more, capped at MaxDelay.
type AuthAbusePolicy struct {
	FreeAttempts int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ResetWindow  time.Duration
}

func AuthAbusePolicyFromConfig(cfg *config.Config) AuthAbusePolicy {
	return AuthAbusePolicy{
		FreeAttempts: cfg.AuthAbuseFreeAttempts,
		BaseDelay:    cfg.AuthAbuseBaseDelay,
		Multiplier:   cfg.AuthAbuseMultiplier,
		MaxDelay:     cfg.AuthAbuseMaxDelay,
		ResetWindow:  cfg.AuthAbuseResetWindow,
	}
}

// AuthAbuseGuard tracks failures per (scope, identity) and (scope, ip). Check
// returns the remaining cooldown, zero when the caller may proceed.
type AuthAbuseGuard interface {
	Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error)
	RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error)
	Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error
}

type NoopAuthAbuseGuard struct{}

func NewNoopAuthAbuseGuard() *NoopAuthAbuseGuard {
	return &NoopAuthAbuseGuard{}
}

func (g *NoopAuthAbuseGuard) Check(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (g *NoopAuthAbuseGuard) RegisterFailure(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (g *NoopAuthAbuseGuard) Reset(context.Context, AuthAbuseScope, string, string) error {
	return nil
}

// ObservedAuthAbuseGuard records every decision of the wrapped guard.
type ObservedAuthAbuseGuard struct {
	inner AuthAbuseGuard
}

func NewObservedAuthAbuseGuard(inner AuthAbuseGuard) *ObservedAuthAbuseGuard {
	return &ObservedAuthAbuseGuard{inner: inner}
}

func (g *ObservedAuthAbuseGuard) Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	delay, err := g.inner.Check(ctx, scope, identity, ip)
	g.record(ctx, scope, "check", delay, err)
	return delay, err
}

func (g *ObservedAuthAbuseGuard) RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	delay, err := g.inner.RegisterFailure(ctx, scope, identity, ip)
	g.record(ctx, scope, "register_failure", delay, err)
	return delay, err
}

func (g *ObservedAuthAbuseGuard) Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error {
	err := g.inner.Reset(ctx, scope, identity, ip)
	g.record(ctx, scope, "reset", 0, err)
	return err
}

func (g *ObservedAuthAbuseGuard) record(ctx context.Context, scope AuthAbuseScope, action string, delay time.Duration, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case delay > 0:
		outcome = "cooldown"
		observability.RecordAuthAbuseCooldown(ctx, string(scope), action, delay)
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), action, outcome)
}

// abuseState is one failure counter. Both guards store only the count and the
// time of the last failure and derive the cooldown from policy on read.
type abuseState struct {
	fails int
	last  time.Time
}

// cooldown is what remains of the delay earned by the last failure, or zero once
// it has elapsed or the reset window has passed.
func (p AuthAbusePolicy) cooldown(st abuseState, now time.Time) time.Duration {
	if st.fails == 0 || now.Sub(st.last) > p.ResetWindow {
		return 0
	}
	return max(st.last.Add(p.delayFor(st.fails)).Sub(now), 0)
}

func (p AuthAbusePolicy) delayFor(fails int) time.Duration {
	if fails <= p.FreeAttempts {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(fails-p.FreeAttempts-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// InMemoryAuthAbuseGuard serves single-replica deployments.
type InMemoryAuthAbuseGuard struct {
	mu     sync.Mutex
	policy AuthAbusePolicy
	states map[string]abuseState
	now    func() time.Time
}

func NewInMemoryAuthAbuseGuard(policy AuthAbusePolicy) *InMemoryAuthAbuseGuard {
	return &InMemoryAuthAbuseGuard{
		policy: normalizeAuthAbusePolicy(policy),
		states: make(map[string]abuseState),
		now:    time.Now,
	}
}

// WithClock replaces the time source. Tests use it to step past cooldowns.
func (g *InMemoryAuthAbuseGuard) WithClock(now func() time.Time) *InMemoryAuthAbuseGuard {
	g.now = now
	return g
}

func (g *InMemoryAuthAbuseGuard) Check(_ context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	var longest time.Duration
	for _, key := range abuseKeys(scope, identity, ip) {
		st, ok := g.states[key]
		if ok && now.Sub(st.last) > g.policy.ResetWindow {
			delete(g.states, key)
			continue
		}
		longest = max(longest, g.policy.cooldown(st, now))
	}
	return longest, nil
}

func (g *InMemoryAuthAbuseGuard) RegisterFailure(_ context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	var longest time.Duration
	for _, key := range abuseKeys(scope, identity, ip) {
		st := g.states[key]
		if now.Sub(st.last) > g.policy.ResetWindow {
			st.fails = 0
		}
		st.fails++
		st.last = now
		g.states[key] = st
		longest = max(longest, g.policy.delayFor(st.fails))
	}
	return longest, nil
}

func (g *InMemoryAuthAbuseGuard) Reset(_ context.Context, scope AuthAbuseScope, identity, ip string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range abuseKeys(scope, identity, ip) {
		delete(g.states, key)
	}
	return nil
}

// abuseKeys names the identity and ip counters for one scope.
func abuseKeys(scope AuthAbuseScope, identity, ip string) [2]string {
	return [2]string{
		string(scope) + ":id:" + normalizeAuthIdentity(identity),
		string(scope) + ":ip:" + normalizeAuthIP(ip),
	}
}

func normalizeAuthIdentity(identity string) string {
	v := strings.TrimSpace(strings.ToLower(identity))
	if v == "" {
		return "anonymous"
	}
	return v
}

func normalizeAuthIP(ip string) string {
	v := strings.TrimSpace(strings.ToLower(ip))
	if v == "" {
		return "unknown"
	}
	return v
}

func normalizeAuthAbusePolicy(policy AuthAbusePolicy) AuthAbusePolicy {
	if policy.FreeAttempts < 0 {
		policy.FreeAttempts = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 2 * time.Second
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 2
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = 5 * time.Minute
	}
	if policy.ResetWindow <= 0 {
		policy.ResetWindow = 30 * time.Minute
	}
	return policy
}
