package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/gnosischain/universal-deposit/internal/config"
	"github.com/gnosischain/universal-deposit/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Cache wraps the redis client backing address detection state, per-worker
// heartbeats and the registration rate limiter.
type Cache struct {
	rdb *redis.Client
}

// New connects to redis and verifies connectivity.
func New(cfg *config.RedisConfig) (*Cache, error) {
	timeout := 5 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		metrics.RedisConnectionStatus.Set(0)
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	metrics.RedisConnectionStatus.Set(1)

	return &Cache{rdb: rdb}, nil
}

// NewFromClient wraps an existing client (tests).
func NewFromClient(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Ping probes connectivity for health checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// ownerDailyKey builds the per-owner, per-calendar-day limiter key.
func ownerDailyKey(ownerAddress string, day time.Time) string {
	return fmt.Sprintf("rl:v1:register:owner:%s:%s", ownerAddress, day.UTC().Format("20060102"))
}

// IncrRegistrations atomically increments the owner's daily registration
// counter, setting the window TTL only when the key is created. Returns the
// new count.
func (c *Cache) IncrRegistrations(ctx context.Context, ownerAddress string, day time.Time, window time.Duration) (int64, error) {
	key := ownerDailyKey(ownerAddress, day)

	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment rate limit counter: %w", err)
	}
	return incr.Val(), nil
}

// heartbeatKey builds the liveness key for a service.
func heartbeatKey(service string) string {
	return "hb:" + service
}

// WriteHeartbeat records a liveness timestamp with a TTL of twice the write
// interval, so a stalled worker goes stale within one missed beat.
func (c *Cache) WriteHeartbeat(ctx context.Context, service string, interval time.Duration) error {
	ttl := 2 * interval
	if ttl < time.Second {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, heartbeatKey(service), time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

// HeartbeatFresh reports whether the service wrote a heartbeat within its TTL
// window. Errors read as not-fresh; health reporting must not fail on a cache
// hiccup.
func (c *Cache) HeartbeatFresh(ctx context.Context, service string) bool {
	n, err := c.rdb.Exists(ctx, heartbeatKey(service)).Result()
	return err == nil && n == 1
}
