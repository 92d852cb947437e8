package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mediagallery/gallery-api/internal/observability"
)

const (
	adminUsersNamespace   = "admin.users"
	adminContactNamespace = "admin.contact"
)

// AdminListCacheStore holds serialized admin list pages grouped by namespace so
// a write can drop every cached page of one list at once.
type AdminListCacheStore interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	InvalidateNamespace(ctx context.Context, namespace string) error
}

type NoopAdminListCacheStore struct{}

func NewNoopAdminListCacheStore() *NoopAdminListCacheStore {
	return &NoopAdminListCacheStore{}
}

func (s *NoopAdminListCacheStore) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *NoopAdminListCacheStore) Set(context.Context, string, string, []byte, time.Duration) error {
	return nil
}

func (s *NoopAdminListCacheStore) InvalidateNamespace(context.Context, string) error {
	return nil
}

type memoryCacheEntry struct {
	generation uint64
	payload    []byte
	expiresAt  time.Time
}

// InMemoryAdminListCacheStore mirrors the Redis layout: invalidation bumps a
// namespace generation and entries from older generations read as misses.
type InMemoryAdminListCacheStore struct {
	mu          sync.Mutex
	generations map[string]uint64
	entries     map[[2]string]memoryCacheEntry
	now         func() time.Time
}

func NewInMemoryAdminListCacheStore() *InMemoryAdminListCacheStore {
	return &InMemoryAdminListCacheStore{
		generations: make(map[string]uint64),
		entries:     make(map[[2]string]memoryCacheEntry),
		now:         time.Now,
	}
}

func (s *InMemoryAdminListCacheStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := [2]string{namespace, key}
	e, ok := s.entries[id]
	if !ok {
		return nil, false, nil
	}
	if e.generation != s.generations[namespace] || !s.now().Before(e.expiresAt) {
		delete(s.entries, id)
		return nil, false, nil
	}
	return bytes.Clone(e.payload), true, nil
}

func (s *InMemoryAdminListCacheStore) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[[2]string{namespace, key}] = memoryCacheEntry{
		generation: s.generations[namespace],
		payload:    bytes.Clone(value),
		expiresAt:  s.now().Add(ttl),
	}
	return nil
}

func (s *InMemoryAdminListCacheStore) InvalidateNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[namespace]++
	return nil
}

// adminListCache is the read-through layer the admin services share. Store
// failures degrade to a direct read and are never returned to the caller.
type adminListCache struct {
	store  AdminListCacheStore
	ttl    time.Duration
	logger *slog.Logger
}

func newAdminListCache(store AdminListCacheStore, ttl time.Duration, logger *slog.Logger) *adminListCache {
	if store == nil {
		store = NewNoopAdminListCacheStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &adminListCache{store: store, ttl: ttl, logger: logger}
}

func (c *adminListCache) invalidate(ctx context.Context, namespace string) {
	if err := c.store.InvalidateNamespace(ctx, namespace); err != nil {
		observability.RecordAdminListCacheEvent(ctx, namespace, "invalidate_error")
		c.logger.WarnContext(ctx, "admin list cache invalidation failed", "namespace", namespace, "error", err)
		return
	}
	observability.RecordAdminListCacheEvent(ctx, namespace, "invalidate")
}

func cachedAdminList[T any](ctx context.Context, c *adminListCache, namespace, key string, load func() (T, error)) (T, error) {
	if c.ttl > 0 {
		raw, ok, err := c.store.Get(ctx, namespace, key)
		switch {
		case err != nil:
			observability.RecordAdminListCacheEvent(ctx, namespace, "error")
			c.logger.WarnContext(ctx, "admin list cache read failed", "namespace", namespace, "error", err)
		case ok:
			var cached T
			if err := json.Unmarshal(raw, &cached); err == nil {
				observability.RecordAdminListCacheEvent(ctx, namespace, "hit")
				return cached, nil
			}
			observability.RecordAdminListCacheEvent(ctx, namespace, "decode_error")
		default:
			observability.RecordAdminListCacheEvent(ctx, namespace, "miss")
		}
	}

	value, err := load()
	if err != nil || c.ttl <= 0 {
		return value, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	if err := c.store.Set(ctx, namespace, key, raw, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "admin list cache write failed", "namespace", namespace, "error", err)
	}
	return value, nil
}
