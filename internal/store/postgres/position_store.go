package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, user_id, trench_id, entry_amount, max_payout,
	received_amount, boost_points, auto_boost, auto_boost_paused,
	joined_at, eligible_at, expires_at, status, settlement_ref, paid_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string

	err := row.Scan(
		&p.ID, &p.UserID, &p.TrenchID, &p.EntryAmount, &p.MaxPayout,
		&p.ReceivedAmount, &p.BoostPoints, &p.AutoBoost, &p.AutoBoostPaused,
		&p.JoinedAt, &p.EligibleAt, &p.ExpiresAt, &status, &p.SettlementRef, &p.PaidAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, user_id, trench_id, entry_amount, max_payout,
			received_amount, boost_points, auto_boost, auto_boost_paused,
			joined_at, eligible_at, expires_at, status, settlement_ref, paid_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15, NOW()
		)`

	_, err := from(ctx, s.pool).Exec(ctx, query,
		p.ID, p.UserID, p.TrenchID, p.EntryAmount, p.MaxPayout,
		p.ReceivedAmount, p.BoostPoints, p.AutoBoost, p.AutoBoostPaused,
		p.JoinedAt, p.EligibleAt, p.ExpiresAt, string(p.Status), p.SettlementRef, p.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := from(ctx, s.pool).QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetActive returns the user's active position in a trench. The partial
// unique index on (user_id, trench_id) guarantees at most one row.
func (s *PositionStore) GetActive(ctx context.Context, userID, trenchID string) (domain.Position, error) {
	row := from(ctx, s.pool).QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE user_id = $1 AND trench_id = $2 AND status = 'active'`,
		userID, trenchID)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get active position %s/%s: %w", userID, trenchID, err)
	}
	return p, nil
}

// ListAutoBoost returns the user's active auto-boost positions, oldest
// joined first. This is the FIFO order the allocator spends against.
func (s *PositionStore) ListAutoBoost(ctx context.Context, userID string) ([]domain.Position, error) {
	rows, err := from(ctx, s.pool).Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE user_id = $1 AND status = 'active' AND auto_boost
		 ORDER BY joined_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auto-boost positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan auto-boost positions: %w", err)
	}
	return positions, nil
}

// ListSettleable returns active positions whose eligibility has passed and
// that are still owed money, oldest eligibility first.
func (s *PositionStore) ListSettleable(ctx context.Context, now time.Time, limit int) ([]domain.Position, error) {
	rows, err := from(ctx, s.pool).Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'active' AND eligible_at <= $1 AND received_amount < max_payout
		 ORDER BY eligible_at ASC, id ASC
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settleable positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settleable positions: %w", err)
	}
	return positions, nil
}

// ListActiveIDs returns the ids of all active positions.
func (s *PositionStore) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := from(ctx, s.pool).Query(ctx,
		`SELECT id FROM positions WHERE status = 'active' ORDER BY joined_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active position ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan position id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateEligibility persists a recomputed eligibility timestamp.
func (s *PositionStore) UpdateEligibility(ctx context.Context, id string, eligibleAt time.Time) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE positions SET eligible_at = $2, updated_at = NOW() WHERE id = $1`,
		id, eligibleAt)
	if err != nil {
		return fmt.Errorf("postgres: update eligibility %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyBoost increments the position's boost points and moves its
// eligibility in a single statement.
func (s *PositionStore) ApplyBoost(ctx context.Context, id string, points int64, eligibleAt time.Time) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE positions SET
			boost_points = boost_points + $2,
			eligible_at  = $3,
			updated_at   = NOW()
		 WHERE id = $1 AND status = 'active'`,
		id, points, eligibleAt)
	if err != nil {
		return fmt.Errorf("postgres: apply boost to %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetAutoBoostPaused flips the auto-boost pause flag.
func (s *PositionStore) SetAutoBoostPaused(ctx context.Context, id string, paused bool) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE positions SET auto_boost_paused = $2, updated_at = NOW() WHERE id = $1`,
		id, paused)
	if err != nil {
		return fmt.Errorf("postgres: set auto-boost paused %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncreaseEntry grows an existing active position on re-entry.
func (s *PositionStore) IncreaseEntry(ctx context.Context, id string, amount, maxPayoutDelta float64) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE positions SET
			entry_amount = entry_amount + $2,
			max_payout   = max_payout + $3,
			updated_at   = NOW()
		 WHERE id = $1 AND status = 'active'`,
		id, amount, maxPayoutDelta)
	if err != nil {
		return fmt.Errorf("postgres: increase entry %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Claim transitions a position from active to processing. The status guard
// makes concurrent settlement structurally impossible: only one claimer
// sees a row flip.
func (s *PositionStore) Claim(ctx context.Context, id string) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE positions SET status = 'processing', updated_at = NOW()
		 WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return fmt.Errorf("postgres: claim position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// Release returns a claimed position to active after a failed payout so the
// next tick retries it.
func (s *PositionStore) Release(ctx context.Context, id string) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE positions SET status = 'active', updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return fmt.Errorf("postgres: release position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// MarkPaid finalizes a settled position: adds the paid amount, stores the
// settlement reference, and transitions processing → paid.
func (s *PositionStore) MarkPaid(ctx context.Context, id string, amount float64, reference string, paidAt time.Time) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE positions SET
			received_amount = received_amount + $2,
			settlement_ref  = $3,
			paid_at         = $4,
			status          = 'paid',
			updated_at      = NOW()
		 WHERE id = $1 AND status = 'processing'`,
		id, amount, reference, paidAt)
	if err != nil {
		return fmt.Errorf("postgres: mark position %s paid: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// MarkExited transitions an active position to exited.
func (s *PositionStore) MarkExited(ctx context.Context, id string) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE positions SET status = 'exited', updated_at = NOW()
		 WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark position %s exited: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ExpireDue transitions active positions past their hard cutoff to expired
// and returns them for event logging.
func (s *PositionStore) ExpireDue(ctx context.Context, now time.Time) ([]domain.Position, error) {
	rows, err := from(ctx, s.pool).Query(ctx,
		`UPDATE positions SET status = 'expired', updated_at = NOW()
		 WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
		 RETURNING `+positionSelectCols, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: expire positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan expired positions: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
