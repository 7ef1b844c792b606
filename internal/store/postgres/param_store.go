package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// Parameter keys in the platform_params table.
const (
	paramMinutesPerPoint = "boost_minutes_per_point"
	paramSettlementPause = "settlement_paused"
)

// defaultMinutesPerPoint applies when the parameter row is missing.
const defaultMinutesPerPoint = 1

// ParamStore implements domain.ParamStore on the platform_params key/value
// table. The admin surface writes these rows; the engine only reads them
// (SetMinutesPerPoint and SetSettlementPaused exist for the rate-change and
// pause flows the engine itself drives).
type ParamStore struct {
	pool *pgxpool.Pool
}

// NewParamStore creates a new ParamStore backed by the given connection pool.
func NewParamStore(pool *pgxpool.Pool) *ParamStore {
	return &ParamStore{pool: pool}
}

func (s *ParamStore) get(ctx context.Context, key string) (string, error) {
	var value string
	err := from(ctx, s.pool).QueryRow(ctx,
		`SELECT value FROM platform_params WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("postgres: get param %s: %w", key, err)
	}
	return value, nil
}

func (s *ParamStore) set(ctx context.Context, key, value string) error {
	_, err := from(ctx, s.pool).Exec(ctx,
		`INSERT INTO platform_params (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value)
	if err != nil {
		return fmt.Errorf("postgres: set param %s: %w", key, err)
	}
	return nil
}

// MinutesPerPoint returns the global boost-to-minutes conversion rate.
func (s *ParamStore) MinutesPerPoint(ctx context.Context) (int64, error) {
	value, err := s.get(ctx, paramMinutesPerPoint)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return defaultMinutesPerPoint, nil
		}
		return 0, err
	}
	rate, err := strconv.ParseInt(value, 10, 64)
	if err != nil || rate <= 0 {
		return defaultMinutesPerPoint, nil
	}
	return rate, nil
}

// SetMinutesPerPoint updates the global rate.
func (s *ParamStore) SetMinutesPerPoint(ctx context.Context, v int64) error {
	if v <= 0 {
		return fmt.Errorf("postgres: minutes per point must be positive, got %d", v)
	}
	return s.set(ctx, paramMinutesPerPoint, strconv.FormatInt(v, 10))
}

// SettlementPaused returns the admin settlement pause flag.
func (s *ParamStore) SettlementPaused(ctx context.Context) (bool, error) {
	value, err := s.get(ctx, paramSettlementPause)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	paused, err := strconv.ParseBool(value)
	if err != nil {
		return false, nil
	}
	return paused, nil
}

// SetSettlementPaused updates the settlement pause flag.
func (s *ParamStore) SetSettlementPaused(ctx context.Context, paused bool) error {
	return s.set(ctx, paramSettlementPause, strconv.FormatBool(paused))
}

// Compile-time interface check.
var _ domain.ParamStore = (*ParamStore)(nil)
