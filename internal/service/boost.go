package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/clock"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// CreditResult reports how an earn-event's boost points were split between
// auto-boosted positions and the user's wallet.
type CreditResult struct {
	Credited     int64
	Distributed  int64
	LeftInWallet int64
}

// BoostService is the single entry point through which boost points enter
// the system. Task completion, referral credit, and content approval all
// call CreditBoostPoints; the service credits the wallet and auto-spends
// against the user's opted-in positions, oldest commitment first.
type BoostService struct {
	tx        domain.TxManager
	positions domain.PositionStore
	trenches  domain.TrenchStore
	wallets   domain.WalletStore
	events    domain.EventStore
	rates     domain.RateCache
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewBoostService creates a BoostService with all required dependencies.
func NewBoostService(
	tx domain.TxManager,
	positions domain.PositionStore,
	trenches domain.TrenchStore,
	wallets domain.WalletStore,
	events domain.EventStore,
	rates domain.RateCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *BoostService {
	return &BoostService{
		tx:        tx,
		positions: positions,
		trenches:  trenches,
		wallets:   wallets,
		events:    events,
		rates:     rates,
		bus:       bus,
		logger:    logger.With(slog.String("component", "boost_service")),
	}
}

// CreditBoostPoints credits earned points to the user's wallet and runs the
// auto-boost allocator, all inside one transaction: the earn-event is
// committed only if the whole wallet/position state change applies.
func (s *BoostService) CreditBoostPoints(ctx context.Context, userID string, amount int64, reason string) (CreditResult, error) {
	if amount <= 0 {
		return CreditResult{}, fmt.Errorf("boost_service: credit amount must be positive, got %d", amount)
	}

	var result CreditResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.wallets.Credit(ctx, userID, amount); err != nil {
			return fmt.Errorf("boost_service: credit wallet %q: %w", userID, err)
		}

		distributed, err := s.distribute(ctx, userID, amount)
		if err != nil {
			return err
		}

		result = CreditResult{
			Credited:     amount,
			Distributed:  distributed,
			LeftInWallet: amount - distributed,
		}
		return nil
	})
	if err != nil {
		return CreditResult{}, err
	}

	s.logger.InfoContext(ctx, "boost_service: points credited",
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.Int64("credited", result.Credited),
		slog.Int64("distributed", result.Distributed),
	)

	s.publish(ctx, map[string]any{
		"event":       "boost_credited",
		"user_id":     userID,
		"reason":      reason,
		"credited":    result.Credited,
		"distributed": result.Distributed,
	})

	return result, nil
}

// distribute spends up to amount points against the user's auto-boost
// positions in FIFO join order. Runs inside the caller's transaction.
// Returns how many points were spent.
func (s *BoostService) distribute(ctx context.Context, userID string, amount int64) (int64, error) {
	positions, err := s.positions.ListAutoBoost(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("boost_service: list auto-boost positions: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	rate, err := s.rates.MinutesPerPoint(ctx)
	if err != nil {
		return 0, fmt.Errorf("boost_service: get boost rate: %w", err)
	}

	// Trench base durations, fetched once per trench.
	baseHours := make(map[string]int)

	now := time.Now().UTC()
	remaining := amount

	for _, pos := range positions {
		if remaining <= 0 {
			break
		}

		// Ready positions get no further auto-spend; pause them so the
		// flag reflects why.
		if !pos.EligibleAt.After(now) {
			if !pos.AutoBoostPaused {
				if err := s.positions.SetAutoBoostPaused(ctx, pos.ID, true); err != nil {
					return 0, fmt.Errorf("boost_service: pause auto-boost %q: %w", pos.ID, err)
				}
			}
			continue
		}

		// A previously paused position whose timer moved back to the
		// future (re-entry reset) is live again.
		if pos.AutoBoostPaused {
			if err := s.positions.SetAutoBoostPaused(ctx, pos.ID, false); err != nil {
				return 0, fmt.Errorf("boost_service: unpause auto-boost %q: %w", pos.ID, err)
			}
		}

		needed := clock.BoostPointsNeeded(pos.EligibleAt, now, rate)
		if needed <= 0 {
			continue
		}

		apply := needed
		if remaining < apply {
			apply = remaining
		}

		hours, ok := baseHours[pos.TrenchID]
		if !ok {
			trench, err := s.trenches.Get(ctx, pos.TrenchID)
			if err != nil {
				return 0, fmt.Errorf("boost_service: get trench %q: %w", pos.TrenchID, err)
			}
			hours = trench.BaseDurationHours
			baseHours[pos.TrenchID] = hours
		}

		eligibleAt := clock.Eligibility(pos.JoinedAt, hours, pos.BoostPoints+apply, rate)

		if err := s.positions.ApplyBoost(ctx, pos.ID, apply, eligibleAt); err != nil {
			return 0, fmt.Errorf("boost_service: apply boost %q: %w", pos.ID, err)
		}
		if err := s.wallets.Debit(ctx, userID, apply); err != nil {
			return 0, fmt.Errorf("boost_service: debit wallet %q: %w", userID, err)
		}
		if err := s.events.Append(ctx, domain.SettlementEvent{
			Kind:        domain.EventBoostApplied,
			Reason:      domain.ReasonAutoBoost,
			PositionID:  pos.ID,
			UserID:      userID,
			TrenchID:    pos.TrenchID,
			BoostPoints: apply,
		}); err != nil {
			return 0, fmt.Errorf("boost_service: record boost event: %w", err)
		}

		remaining -= apply

		// The applied points should have zeroed the timer; pause so the
		// next earn-event does not overshoot on a ready position.
		if !eligibleAt.After(now) {
			if err := s.positions.SetAutoBoostPaused(ctx, pos.ID, true); err != nil {
				return 0, fmt.Errorf("boost_service: pause auto-boost %q: %w", pos.ID, err)
			}
		}
	}

	return amount - remaining, nil
}

// ApplyBoost spends wallet points on one position chosen by the user. The
// wallet debit and position credit apply atomically.
func (s *BoostService) ApplyBoost(ctx context.Context, userID, positionID string, points int64) error {
	if points <= 0 {
		return fmt.Errorf("boost_service: boost amount must be positive, got %d", points)
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		pos, err := s.positions.GetByID(ctx, positionID)
		if err != nil {
			return fmt.Errorf("boost_service: get position %q: %w", positionID, err)
		}
		if pos.UserID != userID {
			return fmt.Errorf("boost_service: position %q: %w", positionID, domain.ErrNotFound)
		}
		if pos.Status != domain.PositionStatusActive {
			return fmt.Errorf("boost_service: position %q is %s: %w", positionID, pos.Status, domain.ErrNotEligible)
		}

		if err := s.wallets.Debit(ctx, userID, points); err != nil {
			return fmt.Errorf("boost_service: debit wallet %q: %w", userID, err)
		}

		trench, err := s.trenches.Get(ctx, pos.TrenchID)
		if err != nil {
			return fmt.Errorf("boost_service: get trench %q: %w", pos.TrenchID, err)
		}
		rate, err := s.rates.MinutesPerPoint(ctx)
		if err != nil {
			return fmt.Errorf("boost_service: get boost rate: %w", err)
		}

		eligibleAt := clock.Eligibility(pos.JoinedAt, trench.BaseDurationHours, pos.BoostPoints+points, rate)
		if err := s.positions.ApplyBoost(ctx, positionID, points, eligibleAt); err != nil {
			return fmt.Errorf("boost_service: apply boost %q: %w", positionID, err)
		}

		if err := s.events.Append(ctx, domain.SettlementEvent{
			Kind:        domain.EventBoostApplied,
			Reason:      domain.ReasonManualBoost,
			PositionID:  positionID,
			UserID:      userID,
			TrenchID:    pos.TrenchID,
			BoostPoints: points,
		}); err != nil {
			return fmt.Errorf("boost_service: record boost event: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, map[string]any{
		"event":       "boost_applied",
		"user_id":     userID,
		"position_id": positionID,
		"points":      points,
	})
	return nil
}

// publish sends a best-effort event to the signal bus; delivery failures are
// logged, never surfaced.
func (s *BoostService) publish(ctx context.Context, payload map[string]any) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, "boosts", evt); err != nil {
		s.logger.WarnContext(ctx, "boost_service: publish event failed",
			slog.String("error", err.Error()),
		)
	}
}
