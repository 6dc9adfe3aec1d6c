package consensus

import (
	"context"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/kvstore"
	"listing-workers/internal/common/logger"
)

// Cache persists winning raw replies per (namespace, key). Entries are
// re-validated on read so a tightened validator invalidates stale answers.
type Cache struct {
	store  kvstore.Store
	logger logger.Logger
}

func NewCache(store kvstore.Store, log logger.Logger) *Cache {
	return &Cache{store: store, logger: log}
}

// Lookup returns the cached value when an entry exists and still validates.
// Store errors count as a miss.
func (c *Cache) Lookup(ctx context.Context, namespace, key string, validate Validator) (value, raw string, ok bool) {
	raw, found, err := c.store.Get(ctx, namespace, key)
	if err != nil {
		c.logger.Warn("cache read failed", map[string]interface{}{
			"namespace": namespace,
			"key":       key,
			"error":     err.Error(),
		})
		return "", "", false
	}
	if !found {
		return "", "", false
	}
	value, err = validate(raw)
	if err != nil {
		c.logger.Debug("cached reply no longer valid", map[string]interface{}{
			"namespace": namespace,
			"key":       key,
			"reason":    err.Error(),
		})
		return "", "", false
	}
	return value, raw, true
}

func (c *Cache) Save(ctx context.Context, namespace, key, raw string) error {
	if err := c.store.Set(ctx, namespace, key, raw); err != nil {
		return apperrors.NewStoreError("cache write", err)
	}
	return nil
}
