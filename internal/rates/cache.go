package rates

import (
	"context"
	"errors"
	"sync"
	"time"

	"naira-wallet-bot-go/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache is a shared byte cache for quote snapshots.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache shares quotes between bot replicas. After maxFailures consecutive
// errors it stops calling Redis until retryAfter has passed.
type RedisCache struct {
	client *redis.Client

	mu           sync.Mutex
	failures     int
	maxFailures  int
	retryAfter   time.Duration
	disabledTill time.Time
}

// NewRedisCache connects to Redis. A failed ping is logged and the cache
// starts in degraded mode rather than failing startup.
func NewRedisCache(ctx context.Context, cfg models.RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	c := &RedisCache{
		client:      client,
		maxFailures: 3,
		retryAfter:  30 * time.Second,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		zap.L().Warn("Redis unavailable, rate cache degraded", zap.String("addr", cfg.Addr), zap.Error(err))
		c.recordFailure()
	} else {
		zap.L().Info("Redis rate cache connected", zap.String("addr", cfg.Addr))
	}
	return c
}

func (c *RedisCache) available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures < c.maxFailures || time.Now().After(c.disabledTill)
}

func (c *RedisCache) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= c.maxFailures {
		c.disabledTill = time.Now().Add(c.retryAfter)
	}
}

func (c *RedisCache) recordSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !c.available() {
		return nil, ErrCacheMiss
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordSuccess()
		return nil, ErrCacheMiss
	}
	if err != nil {
		c.recordFailure()
		return nil, err
	}
	c.recordSuccess()
	return data, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.available() {
		return nil
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.recordFailure()
		return err
	}
	c.recordSuccess()
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
