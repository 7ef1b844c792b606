package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a new WalletStore backed by the given connection pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Get retrieves a user's boost-point wallet. A user without a wallet row has
// an implicit zero balance.
func (s *WalletStore) Get(ctx context.Context, userID string) (domain.Wallet, error) {
	row := from(ctx, s.pool).QueryRow(ctx,
		`SELECT user_id, balance, updated_at FROM wallets WHERE user_id = $1`, userID)

	var w domain.Wallet
	if err := row.Scan(&w.UserID, &w.Balance, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{UserID: userID}, nil
		}
		return domain.Wallet{}, fmt.Errorf("postgres: get wallet %s: %w", userID, err)
	}
	return w, nil
}

// Credit upserts the wallet and increments its balance.
func (s *WalletStore) Credit(ctx context.Context, userID string, points int64) error {
	_, err := from(ctx, s.pool).Exec(ctx,
		`INSERT INTO wallets (user_id, balance, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id)
		 DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()`,
		userID, points)
	if err != nil {
		return fmt.Errorf("postgres: credit wallet %s: %w", userID, err)
	}
	return nil
}

// Debit decrements the balance; the guard rejects spends that would go
// negative.
func (s *WalletStore) Debit(ctx context.Context, userID string, points int64) error {
	tag, err := from(ctx, s.pool).Exec(ctx,
		`UPDATE wallets SET balance = balance - $2, updated_at = NOW()
		 WHERE user_id = $1 AND balance >= $2`, userID, points)
	if err != nil {
		return fmt.Errorf("postgres: debit wallet %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// Compile-time interface check.
var _ domain.WalletStore = (*WalletStore)(nil)
