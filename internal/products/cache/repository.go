package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"product-catalog/internal/products"
	"product-catalog/internal/products/service"

	"golang.org/x/sync/singleflight"
)

const loadTimeout = 5 * time.Second

type Store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// Repository serves GetByID from the cache and drops the cached entry on
// every write. Cache failures are logged and fall through to the store.
type Repository struct {
	service.Repository

	cache  Store
	logger *slog.Logger
	group  singleflight.Group

	mu       sync.Mutex
	versions map[string]uint64
}

func NewRepository(next service.Repository, cache Store, logger *slog.Logger) *Repository {
	return &Repository{
		Repository: next,
		cache:      cache,
		logger:     logger,
		versions:   make(map[string]uint64),
	}
}

func productKey(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (products.Product, error) {
	key := productKey(id)

	var cached products.Product
	hit, err := r.cache.Get(ctx, key, &cached)
	if err != nil {
		r.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if hit {
		return cached, nil
	}

	// Waiters share one load, detached from the first caller's cancellation.
	ch := r.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return r.load(loadCtx, key, id)
	})

	select {
	case <-ctx.Done():
		return products.Product{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return products.Product{}, res.Err
		}
		return res.Val.(products.Product), nil
	}
}

// load reads the row and caches it. A write that lands while the row is
// being read may already have invalidated the key, so the entry is dropped
// again when the key's version moved.
func (r *Repository) load(ctx context.Context, key string, id int64) (products.Product, error) {
	version := r.version(key)

	p, err := r.Repository.GetByID(ctx, id)
	if err != nil {
		return products.Product{}, err
	}

	if err := r.cache.Set(ctx, key, p); err != nil {
		r.logger.Warn("cache write failed", "key", key, "error", err)
		return p, nil
	}
	if r.version(key) != version {
		r.drop(ctx, key)
	}
	return p, nil
}

func (r *Repository) Update(ctx context.Context, id int64, attrs products.Attributes) (products.Product, error) {
	p, err := r.Repository.Update(ctx, id, attrs)
	r.invalidate(ctx, id)
	return p, err
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	err := r.Repository.Delete(ctx, id)
	r.invalidate(ctx, id)
	return err
}

// invalidate bumps the key's version before deleting, so a concurrent load
// either sees the new version or has its entry deleted here.
func (r *Repository) invalidate(ctx context.Context, id int64) {
	key := productKey(id)

	r.mu.Lock()
	r.versions[key]++
	r.mu.Unlock()

	r.group.Forget(key)
	r.drop(ctx, key)
}

func (r *Repository) drop(ctx context.Context, key string) {
	if err := r.cache.Delete(ctx, key); err != nil {
		r.logger.Warn("cache invalidation failed", "key", key, "error", err)
	}
}

func (r *Repository) version(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.versions[key]
}
