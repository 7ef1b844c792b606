package domain

import "time"

// EventKind categorizes settlement events.
type EventKind string

const (
	EventBoostApplied  EventKind = "boost_applied"
	EventInsuranceDraw EventKind = "insurance_draw"
	EventPayout        EventKind = "payout"
	EventPartialPayout EventKind = "partial_payout"
	EventExit          EventKind = "exit"
	EventExpiry        EventKind = "expiry"
)

// Reason codes attached to settlement events.
const (
	ReasonTaskReward      = "task_reward"
	ReasonReferralCredit  = "referral_credit"
	ReasonContentApproval = "content_approval"
	ReasonAutoBoost       = "auto_boost"
	ReasonManualBoost     = "manual_boost"
	ReasonPriceDrop       = "price_drop"
	ReasonEmergencyPayout = "emergency_payout"
	ReasonForcedExit      = "forced_exit"
	ReasonTimeExpiry      = "time_expiry"
)

// SettlementEvent is an immutable audit record written by the engine for
// every boost application, insurance draw, and payout execution. Events are
// append-only and never mutated.
type SettlementEvent struct {
	ID          int64
	Kind        EventKind
	Reason      string
	PositionID  string
	UserID      string
	TrenchID    string
	BoostPoints int64
	Amount      float64
	Shortfall   float64
	Reference   string
	CreatedAt   time.Time
}
