package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

const rateKey = "param:boost_minutes_per_point"

// defaultRateTTL bounds how stale a cached rate can get between explicit
// invalidations.
const defaultRateTTL = 30 * time.Second

// RateCache implements domain.RateCache: the global boost-to-minutes rate,
// read from the param store and cached in Redis with a short TTL. An admin
// rate change calls Invalidate so the new rate takes effect immediately
// rather than waiting for the TTL to lapse.
type RateCache struct {
	rdb    *redis.Client
	params domain.ParamStore
	ttl    time.Duration
}

// NewRateCache creates a RateCache over the given param store. A ttl of zero
// falls back to the default.
func NewRateCache(c *Client, params domain.ParamStore, ttl time.Duration) *RateCache {
	if ttl <= 0 {
		ttl = defaultRateTTL
	}
	return &RateCache{
		rdb:    c.Underlying(),
		params: params,
		ttl:    ttl,
	}
}

// MinutesPerPoint returns the cached rate, reading through to the param
// store on a miss.
func (rc *RateCache) MinutesPerPoint(ctx context.Context) (int64, error) {
	val, err := rc.rdb.Get(ctx, rateKey).Result()
	if err == nil {
		if rate, parseErr := strconv.ParseInt(val, 10, 64); parseErr == nil && rate > 0 {
			return rate, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redis: get boost rate: %w", err)
	}

	rate, err := rc.params.MinutesPerPoint(ctx)
	if err != nil {
		return 0, fmt.Errorf("redis: load boost rate: %w", err)
	}

	if err := rc.rdb.Set(ctx, rateKey, strconv.FormatInt(rate, 10), rc.ttl).Err(); err != nil {
		return 0, fmt.Errorf("redis: cache boost rate: %w", err)
	}
	return rate, nil
}

// Invalidate drops the cached rate so the next read hits the param store.
func (rc *RateCache) Invalidate(ctx context.Context) error {
	if err := rc.rdb.Del(ctx, rateKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate boost rate: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RateCache = (*RateCache)(nil)
