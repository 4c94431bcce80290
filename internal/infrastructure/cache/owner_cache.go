// Package cache keeps document ownership in Redis in front of the
// document registry.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

const keyPrefix = "docapproval:owner:"

// Config holds Redis configuration
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Documents is the registry the cache wraps
type Documents interface {
	port.OwnerLookup
	port.DocumentRegistry
}

// OwnerCache implements port.OwnerLookup and port.DocumentRegistry.
// Only known owners are cached; Redis failures fall through to the registry.
type OwnerCache struct {
	rdb    *redis.Client
	inner  Documents
	ttl    time.Duration
	logger *zap.Logger
}

// NewClient creates a Redis client from cfg
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewOwnerCache wraps inner with a Redis read-through cache
func NewOwnerCache(rdb *redis.Client, inner Documents, ttl time.Duration, logger *zap.Logger) *OwnerCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OwnerCache{
		rdb:    rdb,
		inner:  inner,
		ttl:    ttl,
		logger: logger,
	}
}

// Ping checks the Redis connection
func (c *OwnerCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetOwner returns the cached owner or loads it from the registry
func (c *OwnerCache) GetOwner(ctx context.Context, documentID string) (string, error) {
	key := keyPrefix + documentID

	owner, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return owner, nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("Owner cache read failed", zap.String("document_id", documentID), zap.Error(err))
	}

	owner, err = c.inner.GetOwner(ctx, documentID)
	if err != nil || owner == "" {
		return owner, err
	}

	if err := c.rdb.Set(ctx, key, owner, c.ttl).Err(); err != nil {
		c.logger.Warn("Owner cache write failed", zap.String("document_id", documentID), zap.Error(err))
	}
	return owner, nil
}

// Save writes through to the registry and drops the cached owner
func (c *OwnerCache) Save(ctx context.Context, doc *entity.Document) error {
	if err := c.inner.Save(ctx, doc); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, keyPrefix+doc.ID).Err(); err != nil {
		c.logger.Warn("Owner cache invalidation failed", zap.String("document_id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to invalidate owner cache: %w", err)
	}
	return nil
}

// GetByID reads the registry directly
func (c *OwnerCache) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	return c.inner.GetByID(ctx, id)
}

// Close closes the Redis client
func (c *OwnerCache) Close() error {
	return c.rdb.Close()
}

var (
	_ port.OwnerLookup      = (*OwnerCache)(nil)
	_ port.DocumentRegistry = (*OwnerCache)(nil)
)
