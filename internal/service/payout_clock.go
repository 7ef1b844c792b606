package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/clock"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// PayoutClockService owns each position's eligibility timestamp. It
// recomputes and persists the timestamp whenever boost points change, a
// position is created, or the global boost rate moves.
type PayoutClockService struct {
	positions domain.PositionStore
	trenches  domain.TrenchStore
	params    domain.ParamStore
	rates     domain.RateCache
	logger    *slog.Logger
}

// NewPayoutClockService creates a PayoutClockService with all required dependencies.
func NewPayoutClockService(
	positions domain.PositionStore,
	trenches domain.TrenchStore,
	params domain.ParamStore,
	rates domain.RateCache,
	logger *slog.Logger,
) *PayoutClockService {
	return &PayoutClockService{
		positions: positions,
		trenches:  trenches,
		params:    params,
		rates:     rates,
		logger:    logger.With(slog.String("component", "payout_clock")),
	}
}

// Recompute recalculates and persists a position's eligibility timestamp
// from its trench base duration, applied boost points, and the current
// global rate. It is idempotent: unchanged inputs produce the same
// timestamp.
func (s *PayoutClockService) Recompute(ctx context.Context, positionID string) (time.Time, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return time.Time{}, fmt.Errorf("payout_clock: get position %q: %w", positionID, err)
	}

	trench, err := s.trenches.Get(ctx, pos.TrenchID)
	if err != nil {
		return time.Time{}, fmt.Errorf("payout_clock: get trench %q: %w", pos.TrenchID, err)
	}

	rate, err := s.rates.MinutesPerPoint(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("payout_clock: get boost rate: %w", err)
	}

	eligibleAt := clock.Eligibility(pos.JoinedAt, trench.BaseDurationHours, pos.BoostPoints, rate)
	if err := s.positions.UpdateEligibility(ctx, positionID, eligibleAt); err != nil {
		return time.Time{}, fmt.Errorf("payout_clock: persist eligibility %q: %w", positionID, err)
	}
	return eligibleAt, nil
}

// SetRate updates the global boost-to-minutes rate, invalidates the rate
// cache immediately, and recomputes every active position's eligibility
// under the new rate.
func (s *PayoutClockService) SetRate(ctx context.Context, minutesPerPoint int64) error {
	if err := s.params.SetMinutesPerPoint(ctx, minutesPerPoint); err != nil {
		return fmt.Errorf("payout_clock: set rate: %w", err)
	}
	// Invalidate before recomputing so no recompute sees the stale rate.
	if err := s.rates.Invalidate(ctx); err != nil {
		return fmt.Errorf("payout_clock: invalidate rate cache: %w", err)
	}

	n, err := s.RecomputeAll(ctx)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "payout_clock: global rate updated",
		slog.Int64("minutes_per_point", minutesPerPoint),
		slog.Int("recomputed", n),
	)
	return nil
}

// RecomputeAll recomputes eligibility for every active position. Individual
// failures are logged and skipped; a position deleted mid-sweep should not
// abort the bulk recompute.
func (s *PayoutClockService) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.positions.ListActiveIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("payout_clock: list active positions: %w", err)
	}

	recomputed := 0
	for _, id := range ids {
		if _, err := s.Recompute(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "payout_clock: recompute failed",
				slog.String("position_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		recomputed++
	}
	return recomputed, nil
}
