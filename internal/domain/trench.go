package domain

import "time"

// TrenchStatus reflects the health of a trench's reserves. It gates new
// entries (enforced by the entry-validation layer upstream) and is
// recomputed by the settlement engine after every insurance draw.
type TrenchStatus string

const (
	TrenchStatusActive    TrenchStatus = "active"
	TrenchStatusPaused    TrenchStatus = "paused"
	TrenchStatusEmergency TrenchStatus = "emergency"
)

// Reserve health thresholds: buffer as a fraction of the reserve's current
// realizable value. Below Paused new entries stop; below Emergency the trench
// is considered at risk of partial payouts.
const (
	BufferPausedThreshold    = 0.10
	BufferEmergencyThreshold = 0.05
)

// Trench is a configuration bucket: entry limits, base wait duration, and
// the reserves that fund its payouts. ReserveUnits is denominated in the
// funding asset; InsuranceBuffer is held in quote currency.
type Trench struct {
	ID                string
	Name              string
	BaseDurationHours int
	MinEntry          float64
	MaxEntry          float64
	ROIMultiplier     float64
	ReserveUnits      float64
	InsuranceBuffer   float64
	FundingAsset      string
	Chain             string
	PositionTTLHours  int
	Active            bool
	Status            TrenchStatus
	UpdatedAt         time.Time
}

// BufferRatio returns the insurance buffer as a fraction of the reserve's
// value at the given price. Zero-valued reserves report a fully healthy
// buffer only when the buffer itself is positive.
func (t Trench) BufferRatio(price float64) float64 {
	reserveValue := t.ReserveUnits * price
	if reserveValue <= 0 {
		if t.InsuranceBuffer > 0 {
			return 1
		}
		return 0
	}
	return t.InsuranceBuffer / reserveValue
}

// StatusForRatio maps a buffer ratio onto a trench status.
func StatusForRatio(ratio float64) TrenchStatus {
	switch {
	case ratio < BufferEmergencyThreshold:
		return TrenchStatusEmergency
	case ratio < BufferPausedThreshold:
		return TrenchStatusPaused
	default:
		return TrenchStatusActive
	}
}
