package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// DefaultCacheTTL applies when NewCachedStorage is given a zero ttl.
const DefaultCacheTTL = 24 * time.Hour

// CachedStorage is a Decorator that adds Read-Aside caching to any DocumentStorage.
type CachedStorage struct {
	realStore dispatch.DocumentStorage
	cache     CacheClient
	key       string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewCachedStorage creates the decorator.
func NewCachedStorage(realStore dispatch.DocumentStorage, cache CacheClient, key string, ttl time.Duration, logger *slog.Logger) *CachedStorage {
	if key == "" {
		key = DefaultKey + ":cache"
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStorage{
		realStore: realStore,
		cache:     cache,
		key:       key,
		ttl:       ttl,
		logger:    logger.With("component", "CachedStorage", "key", key),
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedStorage) Read(ctx context.Context) (dispatch.Document, error) {
	// 1. Try Cache
	if raw, err := s.cache.Get(ctx, s.key); err == nil {
		if doc, err := dispatch.DecodeDocument(raw); err == nil {
			return doc, nil
		}
	}

	// 2. Fallback to Real Store
	doc, err := s.realStore.Read(ctx)
	if err != nil {
		return nil, err
	}

	// 3. Populate Cache. A failed Set only costs the next read a trip to the real store.
	if raw, err := dispatch.EncodeDocument(doc); err == nil {
		_ = s.cache.Set(ctx, s.key, raw, s.ttl)
	}
	return doc, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedStorage) Write(ctx context.Context, doc dispatch.Document) error {
	if err := s.realStore.Write(ctx, doc); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStorage) Empty(ctx context.Context) error {
	if err := s.realStore.Empty(ctx); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// invalidate drops the cached copy after a successful write. The write already
// happened, so a failed Del is logged and the entry ages out with its TTL.
func (s *CachedStorage) invalidate(ctx context.Context) {
	if err := s.cache.Del(ctx, s.key); err != nil {
		s.logger.Warn("Failed to invalidate cached subscriptions", "err", err, "ttl", s.ttl)
	}
}
