package domain

import "time"

// Wallet is a user's spendable boost-point balance, separate from the points
// already applied to positions. Earned from tasks, referrals, and content
// approvals; spent manually or by the auto-boost allocator.
type Wallet struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

// User carries the attributes of a participant that the queue ranker needs.
type User struct {
	ID         string
	Reputation int64
	CreatedAt  time.Time
}
