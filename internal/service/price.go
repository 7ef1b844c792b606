package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// defaultMaxPriceAge bounds how old a cached quote may be before the
// settlement engine refuses to value a reserve with it.
const defaultMaxPriceAge = 2 * time.Minute

// PriceService implements domain.PriceSource over the price cache that the
// websocket feed keeps warm. Quotes older than the staleness bound are
// rejected rather than silently used.
type PriceService struct {
	cache  domain.PriceCache
	maxAge time.Duration
}

// NewPriceService creates a PriceService. A maxAge of zero falls back to the
// default staleness bound.
func NewPriceService(cache domain.PriceCache, maxAge time.Duration) *PriceService {
	if maxAge <= 0 {
		maxAge = defaultMaxPriceAge
	}
	return &PriceService{cache: cache, maxAge: maxAge}
}

// Price returns the current realizable unit value of the asset.
func (s *PriceService) Price(ctx context.Context, asset string) (float64, error) {
	price, ts, err := s.cache.GetPrice(ctx, asset)
	if err != nil {
		return 0, fmt.Errorf("price_service: get price %q: %w", asset, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("price_service: non-positive price for %q: %w", asset, domain.ErrStalePrice)
	}
	if time.Since(ts) > s.maxAge {
		return 0, fmt.Errorf("price_service: quote for %q from %v: %w", asset, ts, domain.ErrStalePrice)
	}
	return price, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*PriceService)(nil)
