package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The table is
// append-only; rows are removed only by the archiver after export.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `id, kind, reason, position_id, user_id, trench_id,
	boost_points, amount, shortfall, reference, created_at`

// Append inserts a new settlement event.
func (s *EventStore) Append(ctx context.Context, ev domain.SettlementEvent) error {
	const query = `
		INSERT INTO settlement_events (
			kind, reason, position_id, user_id, trench_id,
			boost_points, amount, shortfall, reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := from(ctx, s.pool).Exec(ctx, query,
		string(ev.Kind), ev.Reason, ev.PositionID, ev.UserID, ev.TrenchID,
		ev.BoostPoints, ev.Amount, ev.Shortfall, ev.Reference,
	)
	if err != nil {
		return fmt.Errorf("postgres: append settlement event: %w", err)
	}
	return nil
}

func scanEventRows(rows pgx.Rows) ([]domain.SettlementEvent, error) {
	var events []domain.SettlementEvent
	for rows.Next() {
		var ev domain.SettlementEvent
		var kind string
		if err := rows.Scan(
			&ev.ID, &kind, &ev.Reason, &ev.PositionID, &ev.UserID, &ev.TrenchID,
			&ev.BoostPoints, &ev.Amount, &ev.Shortfall, &ev.Reference, &ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		ev.Kind = domain.EventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// List returns settlement events with pagination and optional time filtering.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.SettlementEvent, error) {
	query := `SELECT ` + eventSelectCols + ` FROM settlement_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := from(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlement events: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settlement events: %w", err)
	}
	return events, nil
}

// ListBefore returns events created strictly before the cutoff, oldest first.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementEvent, error) {
	rows, err := from(ctx, s.pool).Query(ctx,
		`SELECT `+eventSelectCols+` FROM settlement_events
		 WHERE created_at < $1 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %v: %w", before, err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events before cutoff: %w", err)
	}
	return events, nil
}

// DeleteBefore removes events created strictly before the cutoff and returns
// the number deleted. Called by the archiver only after the export upload
// succeeded.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`DELETE FROM settlement_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before %v: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
