package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/notify"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/queue"
)

// settlementLockKey guards the tick: two engine replicas never run
// overlapping ticks.
const settlementLockKey = "settlement_tick"

// overFetchFactor controls how many eligibility-ordered candidates are
// loaded before the queue ranker picks the batch. Reputation can promote a
// later-eligible position over an earlier one, so the ranker needs slack.
const overFetchFactor = 4

// TickError records one position's settlement failure inside a tick.
type TickError struct {
	PositionID string
	Err        error
}

// TickReport aggregates one settlement tick's outcomes.
type TickReport struct {
	Skipped   bool
	Paused    bool
	Selected  int
	Paid      int
	Partial   int
	Conflicts int
	Failed    int
	Errors    []TickError
}

// SettlementService pays out eligible positions against trench reserves,
// drawing on the insurance buffer when the reserve's realizable value falls
// short of the promise.
type SettlementService struct {
	tx        domain.TxManager
	positions domain.PositionStore
	trenches  domain.TrenchStore
	users     domain.UserStore
	events    domain.EventStore
	params    domain.ParamStore
	locks     domain.LockManager
	prices    domain.PriceSource
	payouts   domain.PayoutExecutor
	bus       domain.SignalBus
	notifier  *notify.Notifier
	lockTTL   time.Duration
	logger    *slog.Logger
}

// NewSettlementService creates a SettlementService with all required dependencies.
func NewSettlementService(
	tx domain.TxManager,
	positions domain.PositionStore,
	trenches domain.TrenchStore,
	users domain.UserStore,
	events domain.EventStore,
	params domain.ParamStore,
	locks domain.LockManager,
	prices domain.PriceSource,
	payouts domain.PayoutExecutor,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	lockTTL time.Duration,
	logger *slog.Logger,
) *SettlementService {
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &SettlementService{
		tx:        tx,
		positions: positions,
		trenches:  trenches,
		users:     users,
		events:    events,
		params:    params,
		locks:     locks,
		prices:    prices,
		payouts:   payouts,
		bus:       bus,
		notifier:  notifier,
		lockTTL:   lockTTL,
		logger:    logger.With(slog.String("component", "settlement")),
	}
}

// RunTick executes one settlement pass over at most batchSize eligible
// positions. A tick that finds the admin pause flag set reports Paused; one
// that finds another tick's lock held reports Skipped. Both exit without
// side effects. Individual position failures are isolated: one failure never
// aborts the batch.
func (s *SettlementService) RunTick(ctx context.Context, batchSize int) (TickReport, error) {
	if batchSize <= 0 {
		batchSize = 25
	}

	paused, err := s.params.SettlementPaused(ctx)
	if err != nil {
		return TickReport{}, fmt.Errorf("settlement: read pause flag: %w", err)
	}
	if paused {
		s.logger.InfoContext(ctx, "settlement: tick paused by admin flag")
		return TickReport{Paused: true}, nil
	}

	unlock, err := s.locks.Acquire(ctx, settlementLockKey, s.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.InfoContext(ctx, "settlement: previous tick still running, skipping")
			return TickReport{Skipped: true}, nil
		}
		return TickReport{}, fmt.Errorf("settlement: acquire tick lock: %w", err)
	}
	defer unlock()

	now := time.Now().UTC()
	batch, err := s.selectBatch(ctx, now, batchSize)
	if err != nil {
		return TickReport{}, err
	}

	report := TickReport{Selected: len(batch)}
	for _, pos := range batch {
		if ctx.Err() != nil {
			// Out of budget; unprocessed positions stay active and the
			// next tick resumes them.
			break
		}
		outcome, err := s.settleOne(ctx, now, pos)
		switch {
		case err == nil && outcome.partial:
			report.Partial++
			report.Paid++
		case err == nil:
			report.Paid++
		case errors.Is(err, domain.ErrConflict):
			report.Conflicts++
		default:
			report.Failed++
			report.Errors = append(report.Errors, TickError{PositionID: pos.ID, Err: err})
			s.logger.ErrorContext(ctx, "settlement: position failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "settlement: tick complete",
		slog.Int("selected", report.Selected),
		slog.Int("paid", report.Paid),
		slog.Int("partial", report.Partial),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// selectBatch loads eligible positions, ranks them with the priority queue
// ordering, and truncates to the batch size.
func (s *SettlementService) selectBatch(ctx context.Context, now time.Time, batchSize int) ([]domain.Position, error) {
	candidates, err := s.positions.ListSettleable(ctx, now, batchSize*overFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("settlement: list eligible positions: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	userIDs := make([]string, 0, len(candidates))
	byID := make(map[string]domain.Position, len(candidates))
	for _, pos := range candidates {
		userIDs = append(userIDs, pos.UserID)
		byID[pos.ID] = pos
	}

	reputations, err := s.users.Reputations(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("settlement: load reputations: %w", err)
	}

	entrants := make([]queue.Entrant, 0, len(candidates))
	for _, pos := range candidates {
		entrants = append(entrants, queue.Entrant{
			ID:          pos.ID,
			Reputation:  reputations[pos.UserID],
			BoostPoints: pos.BoostPoints,
			JoinedAt:    pos.JoinedAt,
		})
	}

	ranked := queue.Rank(entrants)
	if len(ranked) > batchSize {
		ranked = ranked[:batchSize]
	}

	batch := make([]domain.Position, 0, len(ranked))
	for _, e := range ranked {
		batch = append(batch, byID[e.ID])
	}
	return batch, nil
}

type settleOutcome struct {
	partial bool
}

// settleOne pays out a single position. The status-gated claim makes
// concurrent settlement structurally impossible; the external payout runs
// before any balance moves so a treasury failure leaves state untouched.
func (s *SettlementService) settleOne(ctx context.Context, now time.Time, pos domain.Position) (settleOutcome, error) {
	if err := s.positions.Claim(ctx, pos.ID); err != nil {
		return settleOutcome{}, err
	}

	trench, err := s.trenches.Get(ctx, pos.TrenchID)
	if err != nil {
		s.release(ctx, pos.ID)
		return settleOutcome{}, fmt.Errorf("settlement: get trench %q: %w", pos.TrenchID, err)
	}

	price, err := s.prices.Price(ctx, trench.FundingAsset)
	if err != nil {
		s.release(ctx, pos.ID)
		return settleOutcome{}, fmt.Errorf("settlement: value reserve for %q: %w", trench.FundingAsset, err)
	}

	promised := pos.Outstanding()
	reserveValue := trench.ReserveUnits * price

	// What the reserve can actually deliver right now.
	realizable := promised
	if reserveValue < realizable {
		realizable = reserveValue
	}

	var (
		payAmount = promised
		draw      float64
		residual  float64
		reason    string
	)
	if shortfall := promised - realizable; shortfall > 0 {
		if shortfall <= trench.InsuranceBuffer {
			// Buffer covers the gap: full promised amount still goes out.
			draw = shortfall
			reason = domain.ReasonPriceDrop
		} else {
			// Buffer drained; the residual shortfall is reported, never
			// silently absorbed.
			draw = trench.InsuranceBuffer
			residual = shortfall - draw
			payAmount = realizable + draw
			reason = domain.ReasonEmergencyPayout
		}
	}

	result, err := s.payouts.PayOut(ctx, pos.UserID, payAmount, trench.FundingAsset, trench.Chain)
	if err != nil {
		s.release(ctx, pos.ID)
		s.alert(ctx, "payout_failed", "Payout failed",
			fmt.Sprintf("position %s user %s amount %.2f: %v", pos.ID, pos.UserID, payAmount, err))
		return settleOutcome{}, fmt.Errorf("settlement: execute payout for %q: %w", pos.ID, err)
	}

	// Reserve units consumed by the realizable part of the payment.
	units := realizable / price
	if units > trench.ReserveUnits {
		units = trench.ReserveUnits
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if units > 0 {
			if err := s.trenches.DebitReserve(ctx, trench.ID, units); err != nil {
				return fmt.Errorf("settlement: debit reserve %q: %w", trench.ID, err)
			}
		}
		if draw > 0 {
			if err := s.trenches.DrawInsurance(ctx, trench.ID, draw); err != nil {
				return fmt.Errorf("settlement: draw insurance %q: %w", trench.ID, err)
			}
			if err := s.events.Append(ctx, domain.SettlementEvent{
				Kind:       domain.EventInsuranceDraw,
				Reason:     reason,
				PositionID: pos.ID,
				UserID:     pos.UserID,
				TrenchID:   trench.ID,
				Amount:     draw,
				Shortfall:  residual,
			}); err != nil {
				return fmt.Errorf("settlement: record insurance event: %w", err)
			}
		}

		if err := s.positions.MarkPaid(ctx, pos.ID, payAmount, result.Reference, now); err != nil {
			return fmt.Errorf("settlement: mark paid %q: %w", pos.ID, err)
		}

		kind := domain.EventPayout
		if residual > 0 {
			kind = domain.EventPartialPayout
		}
		if err := s.events.Append(ctx, domain.SettlementEvent{
			Kind:       kind,
			Reason:     reason,
			PositionID: pos.ID,
			UserID:     pos.UserID,
			TrenchID:   trench.ID,
			Amount:     payAmount,
			Shortfall:  residual,
			Reference:  result.Reference,
		}); err != nil {
			return fmt.Errorf("settlement: record payout event: %w", err)
		}
		return nil
	})
	if err != nil {
		// Payment went out but bookkeeping failed; the position stays
		// processing and the settlement reference identifies the transfer
		// for manual reconciliation.
		s.alert(ctx, "settlement_inconsistent", "Settlement bookkeeping failed",
			fmt.Sprintf("position %s reference %s: %v", pos.ID, result.Reference, err))
		return settleOutcome{}, err
	}

	if draw > 0 {
		s.updateReserveHealth(ctx, trench.ID, price)
	}
	if residual > 0 {
		s.alert(ctx, "partial_payout", "Partial payout",
			fmt.Sprintf("position %s paid %.2f of %.2f, shortfall %.2f", pos.ID, payAmount, promised, residual))
	}

	s.publish(ctx, map[string]any{
		"event":       "position_settled",
		"position_id": pos.ID,
		"trench_id":   trench.ID,
		"amount":      payAmount,
		"shortfall":   residual,
		"reference":   result.Reference,
	})

	s.logger.InfoContext(ctx, "settlement: position paid",
		slog.String("position_id", pos.ID),
		slog.Float64("amount", payAmount),
		slog.Float64("insurance_draw", draw),
		slog.Float64("shortfall", residual),
	)
	return settleOutcome{partial: residual > 0}, nil
}

// updateReserveHealth recomputes the buffer ratio after an insurance draw
// and moves the trench status across the paused/emergency thresholds.
// Transitions are logged and alerted only when the status actually changes.
func (s *SettlementService) updateReserveHealth(ctx context.Context, trenchID string, price float64) {
	trench, err := s.trenches.Get(ctx, trenchID)
	if err != nil {
		s.logger.WarnContext(ctx, "settlement: reload trench for health check failed",
			slog.String("trench_id", trenchID),
			slog.String("error", err.Error()),
		)
		return
	}

	ratio := trench.BufferRatio(price)
	status := domain.StatusForRatio(ratio)

	changed, err := s.trenches.SetStatus(ctx, trenchID, status)
	if err != nil {
		s.logger.WarnContext(ctx, "settlement: set trench status failed",
			slog.String("trench_id", trenchID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !changed {
		return
	}

	s.logger.WarnContext(ctx, "settlement: trench status changed",
		slog.String("trench_id", trenchID),
		slog.String("status", string(status)),
		slog.Float64("buffer_ratio", ratio),
	)
	s.alert(ctx, "trench_status", "Trench status changed",
		fmt.Sprintf("trench %s is now %s (buffer ratio %.2f%%)", trenchID, status, ratio*100))
}

func (s *SettlementService) release(ctx context.Context, positionID string) {
	if err := s.positions.Release(ctx, positionID); err != nil {
		s.logger.ErrorContext(ctx, "settlement: release position failed",
			slog.String("position_id", positionID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) alert(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "settlement: alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) publish(ctx context.Context, payload map[string]any) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, "settlements", evt); err != nil {
		s.logger.WarnContext(ctx, "settlement: publish event failed",
			slog.String("error", err.Error()),
		)
	}
}
