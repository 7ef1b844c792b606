package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// TrenchStore implements domain.TrenchStore using PostgreSQL. Reserve and
// insurance balances move only through conditional single-statement
// increments so concurrent settlement and admin adjustments never lose
// updates.
type TrenchStore struct {
	pool *pgxpool.Pool
}

// NewTrenchStore creates a new TrenchStore backed by the given connection pool.
func NewTrenchStore(pool *pgxpool.Pool) *TrenchStore {
	return &TrenchStore{pool: pool}
}

const trenchSelectCols = `id, name, base_duration_hours, min_entry, max_entry,
	roi_multiplier, reserve_units, insurance_buffer, funding_asset, chain,
	position_ttl_hours, active, status, updated_at`

func scanTrenchRow(row pgx.Row) (domain.Trench, error) {
	var t domain.Trench
	var status string

	err := row.Scan(
		&t.ID, &t.Name, &t.BaseDurationHours, &t.MinEntry, &t.MaxEntry,
		&t.ROIMultiplier, &t.ReserveUnits, &t.InsuranceBuffer, &t.FundingAsset, &t.Chain,
		&t.PositionTTLHours, &t.Active, &status, &t.UpdatedAt,
	)
	if err != nil {
		return domain.Trench{}, err
	}
	t.Status = domain.TrenchStatus(status)
	return t, nil
}

// Get retrieves a trench by ID.
func (s *TrenchStore) Get(ctx context.Context, id string) (domain.Trench, error) {
	row := from(ctx, s.pool).QueryRow(ctx,
		`SELECT `+trenchSelectCols+` FROM trenches WHERE id = $1`, id)

	t, err := scanTrenchRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trench{}, domain.ErrNotFound
		}
		return domain.Trench{}, fmt.Errorf("postgres: get trench %s: %w", id, err)
	}
	return t, nil
}

// ListActive returns all active trenches.
func (s *TrenchStore) ListActive(ctx context.Context) ([]domain.Trench, error) {
	rows, err := from(ctx, s.pool).Query(ctx,
		`SELECT `+trenchSelectCols+` FROM trenches WHERE active ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active trenches: %w", err)
	}
	defer rows.Close()

	var trenches []domain.Trench
	for rows.Next() {
		t, err := scanTrenchRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trench: %w", err)
		}
		trenches = append(trenches, t)
	}
	return trenches, rows.Err()
}

// DebitReserve decrements the funding reserve. The balance guard in the
// WHERE clause rejects overdrafts instead of going negative.
func (s *TrenchStore) DebitReserve(ctx context.Context, id string, units float64) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE trenches SET reserve_units = reserve_units - $2, updated_at = NOW()
		 WHERE id = $1 AND reserve_units >= $2`, id, units)
	if err != nil {
		return fmt.Errorf("postgres: debit reserve %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// CreditReserve increments the funding reserve.
func (s *TrenchStore) CreditReserve(ctx context.Context, id string, units float64) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE trenches SET reserve_units = reserve_units + $2, updated_at = NOW()
		 WHERE id = $1`, id, units)
	if err != nil {
		return fmt.Errorf("postgres: credit reserve %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DrawInsurance decrements the insurance buffer, never below zero.
func (s *TrenchStore) DrawInsurance(ctx context.Context, id string, amount float64) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE trenches SET insurance_buffer = insurance_buffer - $2, updated_at = NOW()
		 WHERE id = $1 AND insurance_buffer >= $2`, id, amount)
	if err != nil {
		return fmt.Errorf("postgres: draw insurance %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// CreditInsurance increments the insurance buffer.
func (s *TrenchStore) CreditInsurance(ctx context.Context, id string, amount float64) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE trenches SET insurance_buffer = insurance_buffer + $2, updated_at = NOW()
		 WHERE id = $1`, id, amount)
	if err != nil {
		return fmt.Errorf("postgres: credit insurance %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetStatus updates the trench status. It reports whether the status
// actually changed so callers can log transitions only once.
func (s *TrenchStore) SetStatus(ctx context.Context, id string, status domain.TrenchStatus) (bool, error) {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE trenches SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status <> $2`, id, string(status))
	if err != nil {
		return false, fmt.Errorf("postgres: set trench %s status: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Compile-time interface check.
var _ domain.TrenchStore = (*TrenchStore)(nil)
