package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mediagallery/gallery-api/internal/config"
)

func TestInMemoryAuthAbuseGuardExponentialCooldown(t *testing.T) {
	guard := NewInMemoryAuthAbuseGuard(AuthAbusePolicy{
		FreeAttempts: 0,
		BaseDelay:    10 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     100 * time.Millisecond,
		ResetWindow:  time.Second,
	})
	ctx := context.Background()

	if retry, err := guard.Check(ctx, AuthAbuseScopeLogin, "a@example.com", "10.0.0.1"); err != nil || retry != 0 {
		t.Fatalf("expected no cooldown initially, got retry=%v err=%v", retry, err)
	}
	r1, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "a@example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("register failure #1: %v", err)
	}
	r2, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "a@example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("register failure #2: %v", err)
	}
	if r2 <= r1 {
		t.Fatalf("expected increasing cooldown, got r1=%v r2=%v", r1, r2)
	}
}

func TestInMemoryAuthAbuseGuardResetClearsCooldown(t *testing.T) {
	guard := NewInMemoryAuthAbuseGuard(AuthAbusePolicy{
		FreeAttempts: 0,
		BaseDelay:    time.Second,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		ResetWindow:  time.Minute,
	})
	ctx := context.Background()
	_, _ = guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "b@example.com", "10.0.0.2")
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "b@example.com", "10.0.0.2"); retry <= 0 {
		t.Fatal("expected active cooldown before reset")
	}
	if err := guard.Reset(ctx, AuthAbuseScopeLogin, "b@example.com", "10.0.0.2"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "b@example.com", "10.0.0.2"); retry != 0 {
		t.Fatalf("expected cooldown to be cleared, got %v", retry)
	}
}

func TestInMemoryAuthAbuseGuardDimensionIsolation(t *testing.T) {
	guard := NewInMemoryAuthAbuseGuard(AuthAbusePolicy{
		FreeAttempts: 0,
		BaseDelay:    time.Second,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		ResetWindow:  time.Minute,
	})
	ctx := context.Background()
	_, _ = guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "c@example.com", "10.0.0.3")

	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "c@example.com", "10.0.0.9"); retry <= 0 {
		t.Fatal("expected identity dimension to trigger cooldown")
	}
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "z@example.com", "10.0.0.3"); retry <= 0 {
		t.Fatal("expected ip dimension to trigger cooldown")
	}
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "z@example.com", "10.0.0.9"); retry != 0 {
		t.Fatalf("expected unrelated identity+ip to be unaffected, got %v", retry)
	}
}

func TestInMemoryAuthAbuseGuardFreeAttemptsAndWindowExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guard := NewInMemoryAuthAbuseGuard(AuthAbusePolicy{
		FreeAttempts: 2,
		BaseDelay:    time.Second,
		Multiplier:   3,
		MaxDelay:     5 * time.Second,
		ResetWindow:  time.Minute,
	}).WithClock(func() time.Time { return now })
	ctx := context.Background()

	wants := []time.Duration{0, 0, time.Second, 3 * time.Second, 5 * time.Second}
	for i, want := range wants {
		got, err := guard.RegisterFailure(ctx, AuthAbuseScopeForgot, "d@example.com", "10.0.0.4")
		if err != nil {
			t.Fatalf("register failure #%d: %v", i+1, err)
		}
		if got != want {
			t.Fatalf("failure #%d: expected delay %v, got %v", i+1, want, got)
		}
	}

	now = now.Add(2 * time.Minute)
	if retry, _ := guard.Check(ctx, AuthAbuseScopeForgot, "d@example.com", "10.0.0.4"); retry != 0 {
		t.Fatalf("expected reset window to clear state, got %v", retry)
	}
	if got, _ := guard.RegisterFailure(ctx, AuthAbuseScopeForgot, "d@example.com", "10.0.0.4"); got != 0 {
		t.Fatalf("expected counter restart after window, got %v", got)
	}
}

func TestInMemoryAuthAbuseGuardScopesAreIndependent(t *testing.T) {
	guard := NewInMemoryAuthAbuseGuard(AuthAbusePolicy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute, ResetWindow: time.Minute})
	ctx := context.Background()
	_, _ = guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "e@example.com", "10.0.0.5")

	if retry, _ := guard.Check(ctx, AuthAbuseScopeForgot, "e@example.com", "10.0.0.5"); retry != 0 {
		t.Fatalf("expected forgot scope unaffected by login failures, got %v", retry)
	}
}

func TestRedisAuthAbuseGuardCooldownAndReset(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	guard := NewRedisAuthAbuseGuard(client, "test:abuse", AuthAbusePolicy{
		FreeAttempts: 1,
		BaseDelay:    time.Second,
		Multiplier:   2,
		MaxDelay:     time.Minute,
		ResetWindow:  10 * time.Minute,
	})
	ctx := context.Background()

	first, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "f@example.com", "10.0.0.6")
	if err != nil {
		t.Fatalf("register failure #1: %v", err)
	}
	if first != 0 {
		t.Fatalf("expected free attempt, got %v", first)
	}
	second, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "f@example.com", "10.0.0.6")
	if err != nil {
		t.Fatalf("register failure #2: %v", err)
	}
	if second != time.Second {
		t.Fatalf("expected base delay, got %v", second)
	}
	retry, err := guard.Check(ctx, AuthAbuseScopeLogin, "F@Example.com", "10.0.0.6")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if retry <= 0 || retry > time.Second {
		t.Fatalf("expected active cooldown up to 1s, got %v", retry)
	}

	if err := guard.Reset(ctx, AuthAbuseScopeLogin, "f@example.com", "10.0.0.6"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if retry, err := guard.Check(ctx, AuthAbuseScopeLogin, "f@example.com", "10.0.0.6"); err != nil || retry != 0 {
		t.Fatalf("expected cleared cooldown, got retry=%v err=%v", retry, err)
	}
}

func TestRedisAuthAbuseGuardSurfacesStoreErrors(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	guard := NewRedisAuthAbuseGuard(client, "", AuthAbusePolicy{})
	m.Close()

	if _, err := guard.Check(context.Background(), AuthAbuseScopeLogin, "g@example.com", "10.0.0.7"); err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
}

func TestNewAuthAbuseGuardSelection(t *testing.T) {
	disabled := NewAuthAbuseGuard(&config.Config{AuthAbuseProtectionEnabled: false}, nil)
	if _, ok := disabled.(*NoopAuthAbuseGuard); !ok {
		t.Fatalf("expected noop guard when disabled, got %T", disabled)
	}

	enabled := NewAuthAbuseGuard(&config.Config{AuthAbuseProtectionEnabled: true, AuthAbuseBaseDelay: time.Second}, nil)
	observed, ok := enabled.(*ObservedAuthAbuseGuard)
	if !ok {
		t.Fatalf("expected observed guard, got %T", enabled)
	}
	if _, ok := observed.inner.(*InMemoryAuthAbuseGuard); !ok {
		t.Fatalf("expected in-memory guard without redis, got %T", observed.inner)
	}
}

func TestRedisAuthAbuseGuardCountsExpireAfterResetWindow(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guard := NewRedisAuthAbuseGuard(client, "test:abuse", AuthAbusePolicy{
		BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute, ResetWindow: time.Minute,
	})
	guard.now = func() time.Time { return now }
	ctx := context.Background()

	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		got, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "h@example.com", "10.0.0.8")
		if err != nil || got != want {
			t.Fatalf("failure #%d: got %v err=%v, want %v", i+1, got, err, want)
		}
	}
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "h@example.com", "10.0.0.8"); retry != 4*time.Second {
		t.Fatalf("expected 4s cooldown, got %v", retry)
	}

	now = now.Add(2 * time.Minute)
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "h@example.com", "10.0.0.8"); retry != 0 {
		t.Fatalf("expected cooldown to lapse, got %v", retry)
	}
	if got, _ := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "h@example.com", "10.0.0.8"); got != time.Second {
		t.Fatalf("expected counter reset to base delay, got %v", got)
	}
}

func TestParseAbuseState(t *testing.T) {
	if st, err := parseAbuseState([]any{nil, nil}); err != nil || st.fails != 0 {
		t.Fatalf("missing state should be zero, got %+v %v", st, err)
	}
	if _, err := parseAbuseState([]any{"x", "1"}); err == nil {
		t.Fatal("expected parse error")
	}
	st, err := parseAbuseState([]any{"3", "1700000000000"})
	if err != nil || st.fails != 3 || !st.last.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("unexpected parse: %+v %v", st, err)
	}
}

func TestAuthAbusePolicyCooldown(t *testing.T) {
	p := normalizeAuthAbusePolicy(AuthAbusePolicy{FreeAttempts: 2, BaseDelay: time.Second, Multiplier: 3, MaxDelay: 5 * time.Second, ResetWindow: time.Minute})
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		fails int
		after time.Duration
		want  time.Duration
	}{
		{2, 0, 0},
		{3, 0, time.Second},
		{4, time.Second, 2 * time.Second},
		{9, 0, 5 * time.Second},
		{9, 2 * time.Minute, 0},
	}
	for _, tc := range cases {
		if got := p.cooldown(abuseState{fails: tc.fails, last: last}, last.Add(tc.after)); got != tc.want {
			t.Fatalf("fails=%d after=%v: got %v, want %v", tc.fails, tc.after, got, tc.want)
		}
	}
}
