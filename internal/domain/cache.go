package domain

import (
	"context"
	"time"
)

// RateCache caches the global boost-to-minutes conversion rate with a short
// TTL. Invalidate must take effect immediately so an admin rate change is
// never applied stale mid-tick.
type RateCache interface {
	MinutesPerPoint(ctx context.Context) (int64, error)
	Invalidate(ctx context.Context) error
}

// PriceCache provides fast access to the latest funding-asset prices.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
}

// LockManager provides distributed locking for single-flight jobs.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub delivery of engine events to external
// consumers (dashboards, alert bridges).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
