package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// Service is the namespaced, TTL'd cache used throughout the ingestion
// core: one namespace per annotation source (e.g. "annotation:gnomad"),
// keyed on Normalize(key), with a side stats hash tracking hits/misses
// per namespace for the admin status surface.
type Service struct {
	redis      *redis.Client
	defaultTTL time.Duration
	log        *logrus.Logger
}

// NewService connects to Redis per the cache configuration.
func NewService(cfg domain.CacheConfig, log *logrus.Logger) (*Service, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.PoolTimeout = cfg.PoolTimeout
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Service{redis: client, defaultTTL: cfg.DefaultTTL, log: log}, nil
}

// NewServiceWithClient builds a Service around an already-constructed
// redis.Client, bypassing URL parsing and the connect-time ping. Tests
// use this to point a Service at a miniredis instance; production code
// should use NewService instead.
func NewServiceWithClient(client *redis.Client, defaultTTL time.Duration, log *logrus.Logger) *Service {
	return &Service{redis: client, defaultTTL: defaultTTL, log: log}
}

// Get retrieves and unmarshals a cached value, reporting a cache miss as
// (false, nil) rather than an error.
func (s *Service) Get(ctx context.Context, namespace string, key any, out any) (bool, error) {
	redisKey := NamespacedKey(namespace, Normalize(key))

	val, err := s.redis.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		s.bumpStat(ctx, namespace, "misses")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", redisKey, err)
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		// corrupted entry: treat as a miss, don't fail the caller
		s.redis.Del(ctx, redisKey)
		s.bumpStat(ctx, namespace, "misses")
		return false, nil
	}
	s.bumpStat(ctx, namespace, "hits")
	return true, nil
}

// Set stores value under namespace/key with ttl, or the service default
// if ttl is zero.
func (s *Service) Set(ctx context.Context, namespace string, key any, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	redisKey := NamespacedKey(namespace, Normalize(key))

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", redisKey, err)
	}
	if err := s.redis.Set(ctx, redisKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", redisKey, err)
	}
	s.bumpStat(ctx, namespace, "writes")
	return nil
}

// SetIfValid stores value only when isValid reports it cacheable,
// matching the annotation sources' IsValid predicates (spec.md §4.2): an
// all-null result for a gene with no upstream data is still valid and
// must be cached, but a transport failure must not be.
func (s *Service) SetIfValid(ctx context.Context, namespace string, key any, value any, ttl time.Duration, isValid func() bool) error {
	if !isValid() {
		return nil
	}
	return s.Set(ctx, namespace, key, value, ttl)
}

// Delete removes one entry.
func (s *Service) Delete(ctx context.Context, namespace string, key any) error {
	redisKey := NamespacedKey(namespace, Normalize(key))
	return s.redis.Del(ctx, redisKey).Err()
}

// Clear removes every entry under a namespace.
func (s *Service) Clear(ctx context.Context, namespace string) error {
	pattern := namespace + ":*"
	keys, err := s.redis.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("list keys for %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	return s.redis.Del(ctx, statsKey(namespace)).Err()
}

// Stats returns the hits/misses/writes counters for a namespace.
func (s *Service) Stats(ctx context.Context, namespace string) (map[string]int64, error) {
	raw, err := s.redis.HGetAll(ctx, statsKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("get stats for %s: %w", namespace, err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		var n int64
		fmt.Sscanf(v, "%d", &n)
		out[k] = n
	}
	return out, nil
}

func (s *Service) bumpStat(ctx context.Context, namespace, field string) {
	if err := s.redis.HIncrBy(ctx, statsKey(namespace), field, 1).Err(); err != nil && s.log != nil {
		s.log.WithError(err).WithField("namespace", namespace).Warn("cache stats update failed")
	}
}

func statsKey(namespace string) string {
	return "ns:" + namespace + ":stats"
}

// Close releases the underlying Redis connection pool.
func (s *Service) Close() error {
	return s.redis.Close()
}
