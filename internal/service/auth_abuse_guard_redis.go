package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mediagallery/gallery-api/internal/config"
)

// The script only counts. Cooldowns are derived in Go from the stored count and
// last failure time so both guard implementations share AuthAbusePolicy.delayFor.
//
// KEYS: identity state, ip state. ARGV: now_ms, reset_ms, ttl_ms.
var redisAuthAbuseFailScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local reset_ms = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])
local counts = {}
for i, key in ipairs(KEYS) do
  local last = tonumber(redis.call("HGET", key, "last_ms") or "0")
  if last == 0 or (now_ms - last) > reset_ms then
    redis.call("HSET", key, "fails", "0")
  end
  counts[i] = redis.call("HINCRBY", key, "fails", 1)
  redis.call("HSET", key, "last_ms", tostring(now_ms))
  redis.call("PEXPIRE", key, ttl_ms)
end
return counts
`)

// RedisAuthAbuseGuard keeps failure counters in Redis hashes so every API
// replica sees the same cooldowns.
type RedisAuthAbuseGuard struct {
	client redis.UniversalClient
	prefix string
	policy AuthAbusePolicy
	now    func() time.Time
}

func NewRedisAuthAbuseGuard(client redis.UniversalClient, prefix string, policy AuthAbusePolicy) *RedisAuthAbuseGuard {
	if prefix == "" {
		prefix = "gallery:auth_abuse"
	}
	return &RedisAuthAbuseGuard{
		client: client,
		prefix: prefix,
		policy: normalizeAuthAbusePolicy(policy),
		now:    time.Now,
	}
}

// NewAuthAbuseGuard returns the Redis guard when a client is configured and the
// in-memory one otherwise. Both are wrapped with metrics.
func NewAuthAbuseGuard(cfg *config.Config, client redis.UniversalClient) AuthAbuseGuard {
	if !cfg.AuthAbuseProtectionEnabled {
		return NewNoopAuthAbuseGuard()
	}
	policy := AuthAbusePolicyFromConfig(cfg)
	if client != nil {
		return NewObservedAuthAbuseGuard(NewRedisAuthAbuseGuard(client, cfg.RedisPrefix+":auth_abuse", policy))
	}
	return NewObservedAuthAbuseGuard(NewInMemoryAuthAbuseGuard(policy))
}

func (g *RedisAuthAbuseGuard) Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	keys := g.keys(scope, identity, ip)
	cmds := make([]*redis.SliceCmd, len(keys))
	if _, err := g.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.HMGet(ctx, key, "fails", "last_ms")
		}
		return nil
	}); err != nil {
		return 0, err
	}

	now := g.now()
	var longest time.Duration
	for _, cmd := range cmds {
		st, err := parseAbuseState(cmd.Val())
		if err != nil {
			return 0, err
		}
		longest = max(longest, g.policy.cooldown(st, now))
	}
	return longest, nil
}

func (g *RedisAuthAbuseGuard) RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	ttl := g.policy.ResetWindow + g.policy.MaxDelay + time.Minute
	res, err := redisAuthAbuseFailScript.Run(ctx, g.client, g.keys(scope, identity, ip),
		g.now().UnixMilli(), g.policy.ResetWindow.Milliseconds(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return 0, err
	}
	var longest time.Duration
	for _, fails := range res {
		longest = max(longest, g.policy.delayFor(int(fails)))
	}
	return longest, nil
}

func (g *RedisAuthAbuseGuard) Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error {
	return g.client.Del(ctx, g.keys(scope, identity, ip)...).Err()
}

// keys hashes the counter names so raw emails never land in Redis.
func (g *RedisAuthAbuseGuard) keys(scope AuthAbuseScope, identity, ip string) []string {
	names := abuseKeys(scope, identity, ip)
	return []string{g.prefix + ":" + hashToken(names[0]), g.prefix + ":" + hashToken(names[1])}
}

func parseAbuseState(vals []any) (abuseState, error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return abuseState{}, nil
	}
	fs, ok1 := vals[0].(string)
	ls, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return abuseState{}, errors.New("auth abuse state: unexpected field types")
	}
	fails, err := strconv.Atoi(fs)
	if err != nil {
		return abuseState{}, fmt.Errorf("auth abuse state fails: %w", err)
	}
	lastMS, err := strconv.ParseInt(ls, 10, 64)
	if err != nil {
		return abuseState{}, fmt.Errorf("auth abuse state last_ms: %w", err)
	}
	return abuseState{fails: fails, last: time.UnixMilli(lastMS)}, nil
}
