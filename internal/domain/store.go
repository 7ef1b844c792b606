package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TxManager runs a function inside a single database transaction. Every
// multi-entity mutation (wallet debit + position credit, reserve debit +
// insurance draw + payout marking) goes through WithinTx so it either applies
// completely or not at all. Store calls made with the ctx passed to fn join
// the same transaction.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PositionStore persists positions. Balance-bearing columns move only via
// conditional single-statement increments; status transitions are gated on
// the current status so concurrent settlers cannot double-process.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	// GetActive returns the user's active position in a trench, or
	// ErrNotFound when there is none.
	GetActive(ctx context.Context, userID, trenchID string) (Position, error)
	// ListAutoBoost returns the user's active auto-boost positions ordered
	// oldest joinedAt first.
	ListAutoBoost(ctx context.Context, userID string) ([]Position, error)
	// ListSettleable returns active positions whose eligibility has passed
	// and that are still owed money, oldest eligibility first.
	ListSettleable(ctx context.Context, now time.Time, limit int) ([]Position, error)
	// ListActiveIDs returns ids of every active position, for bulk
	// recomputes after a global rate change.
	ListActiveIDs(ctx context.Context) ([]string, error)
	UpdateEligibility(ctx context.Context, id string, eligibleAt time.Time) error
	// ApplyBoost increments the position's boost points and moves its
	// eligibility in one statement.
	ApplyBoost(ctx context.Context, id string, points int64, eligibleAt time.Time) error
	SetAutoBoostPaused(ctx context.Context, id string, paused bool) error
	// IncreaseEntry grows an existing active position on re-entry.
	IncreaseEntry(ctx context.Context, id string, amount, maxPayoutDelta float64) error
	// Claim transitions active → processing; ErrConflict when the position
	// is no longer active.
	Claim(ctx context.Context, id string) error
	// Release transitions processing → active after a failed payout.
	Release(ctx context.Context, id string) error
	// MarkPaid transitions processing → paid, adds the paid amount and
	// records the settlement reference.
	MarkPaid(ctx context.Context, id string, amount float64, reference string, paidAt time.Time) error
	// MarkExited transitions active → exited.
	MarkExited(ctx context.Context, id string) error
	// ExpireDue transitions positions past their hard cutoff to expired and
	// returns them.
	ExpireDue(ctx context.Context, now time.Time) ([]Position, error)
}

// TrenchStore persists trenches and their reserves.
type TrenchStore interface {
	Get(ctx context.Context, id string) (Trench, error)
	ListActive(ctx context.Context) ([]Trench, error)
	// DebitReserve conditionally decrements the funding reserve;
	// ErrInsufficientBalance when the reserve would go negative.
	DebitReserve(ctx context.Context, id string, units float64) error
	CreditReserve(ctx context.Context, id string, units float64) error
	// DrawInsurance conditionally decrements the insurance buffer;
	// ErrInsufficientBalance when the buffer would go negative.
	DrawInsurance(ctx context.Context, id string, amount float64) error
	CreditInsurance(ctx context.Context, id string, amount float64) error
	// SetStatus updates the trench status and reports whether it changed.
	SetStatus(ctx context.Context, id string, status TrenchStatus) (changed bool, err error)
}

// WalletStore persists boost-point wallets.
type WalletStore interface {
	Get(ctx context.Context, userID string) (Wallet, error)
	// Credit upserts the wallet and increments its balance.
	Credit(ctx context.Context, userID string, points int64) error
	// Debit conditionally decrements; ErrInsufficientBalance when the
	// balance would go negative.
	Debit(ctx context.Context, userID string, points int64) error
}

// UserStore reads participant attributes maintained by the surrounding
// platform.
type UserStore interface {
	Get(ctx context.Context, id string) (User, error)
	// Reputations returns reputation scores for the given user ids.
	Reputations(ctx context.Context, ids []string) (map[string]int64, error)
}

// EventStore persists the append-only settlement event log.
type EventStore interface {
	Append(ctx context.Context, ev SettlementEvent) error
	List(ctx context.Context, opts ListOpts) ([]SettlementEvent, error)
	ListBefore(ctx context.Context, before time.Time) ([]SettlementEvent, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ParamStore reads the admin-owned runtime parameters. The admin surface that
// writes them lives outside this engine; the engine re-reads them each tick
// (via the rate cache for the boost rate).
type ParamStore interface {
	MinutesPerPoint(ctx context.Context) (int64, error)
	SetMinutesPerPoint(ctx context.Context, v int64) error
	SettlementPaused(ctx context.Context) (bool, error)
	SetSettlementPaused(ctx context.Context, paused bool) error
}
