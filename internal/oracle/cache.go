package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/sku"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// KV is the key-value store the cache writes through
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisKV stores cache entries in redis
type RedisKV struct {
	client redis.UniversalClient
}

// NewRedisKV wraps a redis client
func NewRedisKV(client redis.UniversalClient) *RedisKV {
	return &RedisKV{client: client}
}

// DialRedis connects to the address in config and checks it with a ping
func DialRedis(ctx context.Context, config *Config) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr: config.RedisAddr,
		DB:   config.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisKV(client), nil
}

// Get returns the value stored at key; a missing key is not an error
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set stores value at key for ttl
func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the connection pool
func (r *RedisKV) Close() error {
	return r.client.Close()
}

var cacheNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("auditflow.sku-oracle"))

// CachedOracle answers repeated questions from a cache. Cache failures are
// logged and bypassed; they never fail a resolution.
type CachedOracle struct {
	next   sku.Oracle
	kv     KV
	ttl    time.Duration
	prefix string
	logger logger.Logger
}

// NewCachedOracle wraps next with a cache
func NewCachedOracle(next sku.Oracle, kv KV, config *Config, log logger.Logger) *CachedOracle {
	if config == nil {
		config = DefaultConfig()
	}
	return &CachedOracle{
		next:   next,
		kv:     kv,
		ttl:    config.CacheTTL,
		prefix: config.CachePrefix,
		logger: logger.OrGlobal(log, "sku-oracle-cache"),
	}
}

// Suggest implements sku.Oracle
func (c *CachedOracle) Suggest(ctx context.Context, req sku.OracleRequest) ([]sku.Suggestion, error) {
	key := c.prefix + CacheKey(req)

	if raw, ok, err := c.kv.Get(ctx, key); err != nil {
		c.logger.WithError(err).Warn("Oracle cache read failed")
	} else if ok {
		var cached []sku.Suggestion
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.logger.WithField("key", key).Warn("Discarding unreadable oracle cache entry")
	}

	suggestions, err := c.next.Suggest(ctx, req)
	if err != nil {
		return nil, err
	}
	if suggestions == nil {
		suggestions = []sku.Suggestion{}
	}

	raw, err := json.Marshal(suggestions)
	if err == nil {
		err = c.kv.Set(ctx, key, raw, c.ttl)
	}
	if err != nil {
		c.logger.WithError(err).Warn("Oracle cache write failed")
	}
	return suggestions, nil
}

// CacheKey identifies a question by its description, HSN code and the
// catalog entries it was asked against
func CacheKey(req sku.OracleRequest) string {
	ids := make([]string, 0, len(req.Catalog))
	for _, e := range req.Catalog {
		ids = append(ids, e.ID+"="+models.AliasKey(e.Name))
	}
	sort.Strings(ids)
	parts := []string{models.AliasKey(req.Description), strings.TrimSpace(req.HSNCode), strings.Join(ids, ",")}
	return uuid.NewSHA1(cacheNamespace, []byte(strings.Join(parts, "|"))).String()
}
