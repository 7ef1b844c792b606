package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, id string) (domain.User, error) {
	row := from(ctx, s.pool).QueryRow(ctx,
		`SELECT id, reputation, created_at FROM users WHERE id = $1`, id)

	var u domain.User
	if err := row.Scan(&u.ID, &u.Reputation, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// Reputations returns reputation scores for the given user ids. Missing
// users are omitted from the result.
func (s *UserStore) Reputations(ctx context.Context, ids []string) (map[string]int64, error) {
	if len(ids) == 0 {
		return map[string]int64{}, nil
	}

	rows, err := from(ctx, s.pool).Query(ctx,
		`SELECT id, reputation FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get reputations: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64, len(ids))
	for rows.Next() {
		var id string
		var rep int64
		if err := rows.Scan(&id, &rep); err != nil {
			return nil, fmt.Errorf("postgres: scan reputation: %w", err)
		}
		result[id] = rep
	}
	return result, rows.Err()
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
