package domain

import (
	"math"
	"time"
)

// PositionStatus tracks a position through its settlement lifecycle.
type PositionStatus string

const (
	// PositionStatusActive means the position is waiting for its eligibility
	// timestamp and may receive boost points.
	PositionStatusActive PositionStatus = "active"
	// PositionStatusProcessing means a settlement tick has claimed the
	// position and a payout is in flight.
	PositionStatusProcessing PositionStatus = "processing"
	// PositionStatusPaid means the position reached its payout cap.
	PositionStatusPaid PositionStatus = "paid"
	// PositionStatusExited means the owner force-exited and unearned
	// principal was refunded.
	PositionStatusExited PositionStatus = "exited"
	// PositionStatusExpired means the position passed its hard cutoff
	// without settling.
	PositionStatusExpired PositionStatus = "expired"
)

// Position is one user's stake in one trench. A user has at most one active
// position per trench; re-entry increases the existing position.
type Position struct {
	ID              string
	UserID          string
	TrenchID        string
	EntryAmount     float64
	MaxPayout       float64
	ReceivedAmount  float64
	BoostPoints     int64
	AutoBoost       bool
	AutoBoostPaused bool
	JoinedAt        time.Time
	EligibleAt      time.Time
	ExpiresAt       *time.Time
	Status          PositionStatus
	SettlementRef   *string
	PaidAt          *time.Time
}

// MaxPayoutFor computes the capped payout for an entry amount. The cap is
// fixed at creation time and floored to whole currency units.
func MaxPayoutFor(entryAmount, roiMultiplier float64) float64 {
	return math.Floor(entryAmount * roiMultiplier)
}

// Outstanding returns how much the position is still owed.
func (p Position) Outstanding() float64 {
	if out := p.MaxPayout - p.ReceivedAmount; out > 0 {
		return out
	}
	return 0
}

// Settleable reports whether a settlement tick may pick this position up at
// the given instant.
func (p Position) Settleable(now time.Time) bool {
	return p.Status == PositionStatusActive &&
		!p.EligibleAt.After(now) &&
		p.Outstanding() > 0
}
