package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStoreConfig holds the configuration for the Redis-backed tier.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces entries so the tier can share a Redis instance.
	KeyPrefix string
	// DefaultTTL stamps the freshness horizon on entries saved without one.
	DefaultTTL time.Duration
	// Retention is the hard key expiry. It should comfortably exceed
	// DefaultTTL so stale entries remain servable to readers that tolerate
	// staleness; zero keeps entries until Redis evicts them.
	Retention time.Duration
}

// NewRedisStoreConfigDefaults provides a config pointing at a local Redis.
func NewRedisStoreConfigDefaults() *RedisStoreConfig {
	return &RedisStoreConfig{
		Addr:       "localhost:6379",
		KeyPrefix:  "imgcache:",
		DefaultTTL: time.Hour,
		Retention:  24 * time.Hour,
	}
}

// RedisStore is a shared Store backed by Redis. Entries are stored as JSON
// under a prefixed key with the configured retention as the key TTL.
type RedisStore struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	keyPrefix   string
	defaultTTL  time.Duration
	retention   time.Duration
}

// NewRedisStore creates and connects a new RedisStore. It pings the Redis
// server to ensure connectivity before returning.
func NewRedisStore(ctx context.Context, cfg *RedisStoreConfig, logger zerolog.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, errors.New("redis store config cannot be nil")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisStore{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
		keyPrefix:   cfg.KeyPrefix,
		defaultTTL:  cfg.DefaultTTL,
		retention:   cfg.Retention,
	}, nil
}

// Lookup retrieves an entry directly from Redis. A missing key and a corrupt
// payload both surface as ErrMiss; a corrupt payload is also deleted so the
// next fetch repopulates it.
func (s *RedisStore) Lookup(ctx context.Context, key string) (*Entry, error) {
	redisKey := s.keyPrefix + key
	cachedData, err := s.redisClient.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(cachedData, &entry); err != nil {
		s.logger.Warn().Err(err).Str("key", redisKey).Msg("Failed to unmarshal cached entry; treating as miss.")
		_ = s.redisClient.Del(ctx, redisKey).Err()
		return nil, ErrMiss
	}

	s.logger.Debug().Str("key", redisKey).Msg("Redis cache hit.")
	return &entry, nil
}

// Save stores the entry as JSON with the configured retention as key TTL.
func (s *RedisStore) Save(ctx context.Context, key string, entry *Entry) error {
	stampExpiry(entry, s.defaultTTL)

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	redisKey := s.keyPrefix + key
	if err := s.redisClient.Set(ctx, redisKey, jsonData, s.retention).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	s.logger.Debug().Str("key", redisKey).Msg("Successfully stored entry in Redis.")
	return nil
}

// Remove deletes the entry. Removing an absent key is not an error.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.redisClient.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}
