// Package cache provides Redis caching operations for properties.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/property-map/backend/internal/config"
	"github.com/property-map/backend/internal/geo"
	"github.com/property-map/backend/internal/metrics"
	"github.com/property-map/backend/internal/models"
)

const (
	// Cache key prefixes
	propertyKeyPrefix = "property:"
	nearbyKeyPrefix   = "properties:nearby:"

	// nearbyKeysSet tracks every live nearby key so writes can drop them together
	nearbyKeysSet = "properties:nearby:keys"

	// nearbyGenKey is bumped on every invalidation. Nearby keys embed it, so a
	// listing read before a write lands under a key nobody reads anymore.
	nearbyGenKey = "properties:nearby:gen"

	// Default TTL for cached items
	defaultTTL = 5 * time.Minute
)

// Cache defines the interface for caching operations.
type Cache interface {
	// Get retrieves a property from cache by ID.
	Get(ctx context.Context, id string) (*models.Property, error)

	// Set stores a property in cache.
	Set(ctx context.Context, property *models.Property) error

	// Delete removes a property from cache.
	Delete(ctx context.Context, id string) error

	// NearbyGeneration returns the current generation of proximity listings.
	NearbyGeneration(ctx context.Context) (int64, error)

	// GetNearby retrieves a proximity listing cached under generation gen.
	GetNearby(ctx context.Context, gen int64, center geo.Point, radiusKm float64) ([]models.Property, bool, error)

	// SetNearby stores a proximity listing under generation gen.
	SetNearby(ctx context.Context, gen int64, center geo.Point, radiusKm float64, properties []models.Property) error

	// InvalidateNearby starts a new generation and removes all cached proximity listings.
	InvalidateNearby(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}

// NearbyKey returns the cache key for a proximity listing of generation gen.
// Coordinates are rounded to five decimals (about one metre) before hashing.
func NearbyKey(gen int64, center geo.Point, radiusKm float64) string {
	raw := fmt.Sprintf("g=%d:lat=%.5f:lng=%.5f:r=%.3f", gen, center.Latitude, center.Longitude, radiusKm)
	hash := md5.Sum([]byte(raw))
	return nearbyKeyPrefix + hex.EncodeToString(hash[:])
}

// New returns a Redis cache when REDIS_URL is set and a no-op cache otherwise.
func New(cfg *config.Config, logger *zap.Logger) (Cache, error) {
	if !cfg.CacheEnabled() {
		logger.Info("Cache disabled, REDIS_URL is empty")
		return NopCache{}, nil
	}
	return NewRedisCache(cfg, logger)
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(cfg *config.Config, logger *zap.Logger) (Cache, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis cache")

	return NewRedisCacheWithClient(client, logger), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, logger *zap.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		logger: logger,
		ttl:    defaultTTL,
	}
}

// Get retrieves a property from cache by ID.
func (c *RedisCache) Get(ctx context.Context, id string) (*models.Property, error) {
	key := propertyKeyPrefix + id

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("get").Inc()
		return nil, nil // Cache miss
	}
	if err != nil {
		c.logger.Warn("Failed to get from cache", zap.String("key", key), zap.Error(err))
		return nil, nil // Treat errors as cache miss
	}

	var property models.Property
	if err := json.Unmarshal(data, &property); err != nil {
		c.logger.Warn("Failed to unmarshal cached property", zap.Error(err))
		return nil, nil
	}

	metrics.CacheHits.WithLabelValues("get").Inc()
	c.logger.Debug("Cache hit", zap.String("key", key))
	return &property, nil
}

// Set stores a property in cache.
func (c *RedisCache) Set(ctx context.Context, property *models.Property) error {
	key := propertyKeyPrefix + property.ID

	data, err := json.Marshal(property)
	if err != nil {
		c.logger.Warn("Failed to marshal property for cache", zap.Error(err))
		return err
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to set cache", zap.String("key", key), zap.Error(err))
		return err
	}

	c.logger.Debug("Cached property", zap.String("key", key))
	return nil
}

// Delete removes a property from cache.
func (c *RedisCache) Delete(ctx context.Context, id string) error {
	key := propertyKeyPrefix + id

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("Failed to delete from cache", zap.String("key", key), zap.Error(err))
		return err
	}

	c.logger.Debug("Deleted from cache", zap.String("key", key))
	return nil
}

// NearbyGeneration returns the current generation, zero before the first invalidation.
func (c *RedisCache) NearbyGeneration(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, nearbyGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		c.logger.Warn("Failed to read nearby generation", zap.Error(err))
		return 0, err
	}
	return gen, nil
}

// GetNearby retrieves a cached proximity listing.
func (c *RedisCache) GetNearby(ctx context.Context, gen int64, center geo.Point, radiusKm float64) ([]models.Property, bool, error) {
	key := NearbyKey(gen, center, radiusKm)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("nearby").Inc()
		return nil, false, nil
	}
	if err != nil {
		c.logger.Warn("Failed to get nearby from cache", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}

	var properties []models.Property
	if err := json.Unmarshal(data, &properties); err != nil {
		c.logger.Warn("Failed to unmarshal cached nearby properties", zap.Error(err))
		return nil, false, nil
	}

	metrics.CacheHits.WithLabelValues("nearby").Inc()
	c.logger.Debug("Cache hit for nearby properties", zap.String("key", key))
	return properties, true, nil
}

// SetNearby stores a proximity listing.
func (c *RedisCache) SetNearby(ctx context.Context, gen int64, center geo.Point, radiusKm float64, properties []models.Property) error {
	key := NearbyKey(gen, center, radiusKm)

	data, err := json.Marshal(properties)
	if err != nil {
		c.logger.Warn("Failed to marshal nearby properties for cache", zap.Error(err))
		return err
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, nearbyKeysSet, key)
	pipe.Expire(ctx, nearbyKeysSet, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Failed to set nearby cache", zap.String("key", key), zap.Error(err))
		return err
	}

	c.logger.Debug("Cached nearby properties", zap.String("key", key), zap.Int("count", len(properties)))
	return nil
}

// InvalidateNearby bumps the generation, then removes all cached proximity listings.
func (c *RedisCache) InvalidateNearby(ctx context.Context) error {
	if err := c.client.Incr(ctx, nearbyGenKey).Err(); err != nil {
		c.logger.Warn("Failed to bump nearby generation", zap.Error(err))
		return err
	}

	keys, err := c.client.SMembers(ctx, nearbyKeysSet).Result()
	if err != nil {
		c.logger.Warn("Failed to list nearby cache keys", zap.Error(err))
		return err
	}

	keys = append(keys, nearbyKeysSet)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Failed to invalidate nearby cache", zap.Error(err))
		return err
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.client.Close()
}

// NopCache is used when caching is disabled. Every read misses.
type NopCache struct{}

// Get always misses.
func (NopCache) Get(context.Context, string) (*models.Property, error) {
	return nil, nil
}

// Set does nothing.
func (NopCache) Set(context.Context, *models.Property) error {
	return nil
}

// Delete does nothing.
func (NopCache) Delete(context.Context, string) error {
	return nil
}

// NearbyGeneration is always zero.
func (NopCache) NearbyGeneration(context.Context) (int64, error) {
	return 0, nil
}

// GetNearby always misses.
func (NopCache) GetNearby(context.Context, int64, geo.Point, float64) ([]models.Property, bool, error) {
	return nil, false, nil
}

// SetNearby does nothing.
func (NopCache) SetNearby(context.Context, int64, geo.Point, float64, []models.Property) error {
	return nil
}

// InvalidateNearby does nothing.
func (NopCache) InvalidateNearby(context.Context) error {
	return nil
}

// Close does nothing.
func (NopCache) Close() error {
	return nil
}
