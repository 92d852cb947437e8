package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mediagallery/gallery-api/internal/config"
)

// RedisAdminListCacheStore versions each namespace with a counter. Data keys
// embed the counter, so invalidation is one INCR and stale pages age out on
// their own TTL.
type RedisAdminListCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisAdminListCacheStore(client redis.UniversalClient, prefix string) *RedisAdminListCacheStore {
	if prefix == "" {
		prefix = "gallery:admin_list_cache"
	}
	return &RedisAdminListCacheStore{client: client, prefix: prefix}
}

// NewAdminListCacheStore prefers Redis so replicas share invalidations.
func NewAdminListCacheStore(cfg *config.Config, client redis.UniversalClient) AdminListCacheStore {
	switch {
	case !cfg.AdminListCacheEnabled:
		return NewNoopAdminListCacheStore()
	case client != nil:
		return NewRedisAdminListCacheStore(client, cfg.RedisPrefix+":admin_list_cache")
	default:
		return NewInMemoryAdminListCacheStore()
	}
}

func (s *RedisAdminListCacheStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	dataKey, err := s.dataKey(ctx, namespace, key)
	if err != nil {
		return nil, false, err
	}
	value, err := s.client.Get(ctx, dataKey).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisAdminListCacheStore) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	dataKey, err := s.dataKey(ctx, namespace, key)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, dataKey, value, ttl).Err()
}

func (s *RedisAdminListCacheStore) InvalidateNamespace(ctx context.Context, namespace string) error {
	return s.client.Incr(ctx, s.generationKey(namespace)).Err()
}

func (s *RedisAdminListCacheStore) dataKey(ctx context.Context, namespace, key string) (string, error) {
	gen, err := s.client.Get(ctx, s.generationKey(namespace)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return s.prefix + ":" + namespace + ":" + strconv.FormatInt(gen, 10) + ":" + hashToken(key), nil
}

func (s *RedisAdminListCacheStore) generationKey(namespace string) string {
	return s.prefix + ":" + namespace + ":gen"
}

func hashToken(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
