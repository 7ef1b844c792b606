package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/clock"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// EntryService manages position lifecycle outside of settlement: creation
// from a validated stake, re-entry, forced exit with principal refund, and
// time-based expiry.
type EntryService struct {
	tx        domain.TxManager
	positions domain.PositionStore
	trenches  domain.TrenchStore
	events    domain.EventStore
	rates     domain.RateCache
	prices    domain.PriceSource
	payouts   domain.PayoutExecutor
	logger    *slog.Logger
}

// NewEntryService creates an EntryService with all required dependencies.
func NewEntryService(
	tx domain.TxManager,
	positions domain.PositionStore,
	trenches domain.TrenchStore,
	events domain.EventStore,
	rates domain.RateCache,
	prices domain.PriceSource,
	payouts domain.PayoutExecutor,
	logger *slog.Logger,
) *EntryService {
	return &EntryService{
		tx:        tx,
		positions: positions,
		trenches:  trenches,
		events:    events,
		rates:     rates,
		prices:    prices,
		payouts:   payouts,
		logger:    logger.With(slog.String("component", "entry_service")),
	}
}

// Enter finalizes a stake that the upstream entry-validation layer has
// already approved. A user re-entering a trench where they hold an active
// position grows that position instead of opening a duplicate.
func (s *EntryService) Enter(ctx context.Context, userID, trenchID string, amount float64) (domain.Position, error) {
	if amount <= 0 {
		return domain.Position{}, fmt.Errorf("entry_service: entry amount must be positive, got %.2f", amount)
	}

	trench, err := s.trenches.Get(ctx, trenchID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("entry_service: get trench %q: %w", trenchID, err)
	}

	var pos domain.Position
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.positions.GetActive(ctx, userID, trenchID)
		if err == nil {
			delta := domain.MaxPayoutFor(amount, trench.ROIMultiplier)
			if err := s.positions.IncreaseEntry(ctx, existing.ID, amount, delta); err != nil {
				return fmt.Errorf("entry_service: increase position %q: %w", existing.ID, err)
			}
			existing.EntryAmount += amount
			existing.MaxPayout += delta
			pos = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("entry_service: lookup active position: %w", err)
		}

		rate, err := s.rates.MinutesPerPoint(ctx)
		if err != nil {
			return fmt.Errorf("entry_service: get boost rate: %w", err)
		}

		now := time.Now().UTC()
		pos = domain.Position{
			ID:          uuid.New().String(),
			UserID:      userID,
			TrenchID:    trenchID,
			EntryAmount: amount,
			MaxPayout:   domain.MaxPayoutFor(amount, trench.ROIMultiplier),
			JoinedAt:    now,
			EligibleAt:  clock.Eligibility(now, trench.BaseDurationHours, 0, rate),
			Status:      domain.PositionStatusActive,
		}
		if trench.PositionTTLHours > 0 {
			expires := now.Add(time.Duration(trench.PositionTTLHours) * time.Hour)
			pos.ExpiresAt = &expires
		}

		if err := s.positions.Create(ctx, pos); err != nil {
			return fmt.Errorf("entry_service: create position: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Position{}, err
	}

	s.logger.InfoContext(ctx, "entry_service: position entered",
		slog.String("position_id", pos.ID),
		slog.String("trench_id", trenchID),
		slog.Float64("entry_amount", pos.EntryAmount),
		slog.Float64("max_payout", pos.MaxPayout),
	)
	return pos, nil
}

// ForceExit closes an active position at the owner's request, refunding the
// unearned principal through the treasury and releasing the reserve units
// that backed it.
func (s *EntryService) ForceExit(ctx context.Context, positionID string) error {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return fmt.Errorf("entry_service: get position %q: %w", positionID, err)
	}
	if pos.Status != domain.PositionStatusActive {
		return fmt.Errorf("entry_service: position %q is %s: %w", positionID, pos.Status, domain.ErrConflict)
	}

	trench, err := s.trenches.Get(ctx, pos.TrenchID)
	if err != nil {
		return fmt.Errorf("entry_service: get trench %q: %w", pos.TrenchID, err)
	}

	refund := pos.EntryAmount - pos.ReceivedAmount
	if refund < 0 {
		refund = 0
	}

	var reference string
	if refund > 0 {
		result, err := s.payouts.PayOut(ctx, pos.UserID, refund, trench.FundingAsset, trench.Chain)
		if err != nil {
			return fmt.Errorf("entry_service: refund position %q: %w", positionID, err)
		}
		reference = result.Reference
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if refund > 0 {
			price, err := s.prices.Price(ctx, trench.FundingAsset)
			if err != nil {
				return fmt.Errorf("entry_service: value refund: %w", err)
			}
			units := refund / price
			if units > trench.ReserveUnits {
				units = trench.ReserveUnits
			}
			if units > 0 {
				if err := s.trenches.DebitReserve(ctx, trench.ID, units); err != nil {
					return fmt.Errorf("entry_service: debit reserve %q: %w", trench.ID, err)
				}
			}
		}

		if err := s.positions.MarkExited(ctx, positionID); err != nil {
			return fmt.Errorf("entry_service: mark exited %q: %w", positionID, err)
		}

		if err := s.events.Append(ctx, domain.SettlementEvent{
			Kind:       domain.EventExit,
			Reason:     domain.ReasonForcedExit,
			PositionID: positionID,
			UserID:     pos.UserID,
			TrenchID:   pos.TrenchID,
			Amount:     refund,
			Reference:  reference,
		}); err != nil {
			return fmt.Errorf("entry_service: record exit event: %w", err)
		}
		return nil
	})
}

// ExpireOverdue closes every active position past its hard cutoff. The
// cutoff is independent of payout eligibility; an expired position is not
// refunded here.
func (s *EntryService) ExpireOverdue(ctx context.Context) (int, error) {
	var expired []domain.Position
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		expired, err = s.positions.ExpireDue(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("entry_service: expire positions: %w", err)
		}
		for _, pos := range expired {
			if err := s.events.Append(ctx, domain.SettlementEvent{
				Kind:       domain.EventExpiry,
				Reason:     domain.ReasonTimeExpiry,
				PositionID: pos.ID,
				UserID:     pos.UserID,
				TrenchID:   pos.TrenchID,
			}); err != nil {
				return fmt.Errorf("entry_service: record expiry event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(expired) > 0 {
		s.logger.InfoContext(ctx, "entry_service: positions expired",
			slog.Int("count", len(expired)),
		)
	}
	return len(expired), nil
}
