// Package clock holds the pure payout-time math: converting a position's
// join time, base wait duration, and applied boost points into an
// eligibility timestamp, and rendering the remaining wait for display.
package clock

import (
	"fmt"
	"time"
)

// Eligibility computes when a position becomes payable. Each boost point
// shaves minutesPerPoint minutes off the base wait; the reduction is clamped
// so eligibility never lands before joinedAt.
func Eligibility(joinedAt time.Time, baseDurationHours int, boostPoints, minutesPerPoint int64) time.Time {
	wait := time.Duration(baseDurationHours) * time.Hour
	reduction := time.Duration(boostPoints*minutesPerPoint) * time.Minute
	if reduction >= wait {
		return joinedAt
	}
	return joinedAt.Add(wait - reduction)
}

// BoostPointsNeeded returns the exact number of points required to zero out
// the remaining wait at the given rate: ceil(minutesRemaining / rate).
// Returns 0 when the position is already eligible or the rate is not
// positive.
func BoostPointsNeeded(eligibleAt, now time.Time, minutesPerPoint int64) int64 {
	if minutesPerPoint <= 0 {
		return 0
	}
	remaining := eligibleAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	minutes := int64(remaining / time.Minute)
	if remaining%time.Minute != 0 {
		minutes++
	}
	needed := minutes / minutesPerPoint
	if minutes%minutesPerPoint != 0 {
		needed++
	}
	return needed
}

// Countdown is the zero-clamped remaining wait, broken into display units.
type Countdown struct {
	Days    int
	Hours   int
	Minutes int
	Seconds int
	Ready   bool
}

// Remaining computes the countdown from now to eligibleAt.
func Remaining(eligibleAt, now time.Time) Countdown {
	diff := eligibleAt.Sub(now)
	if diff <= 0 {
		return Countdown{Ready: true}
	}
	return Countdown{
		Days:    int(diff / (24 * time.Hour)),
		Hours:   int(diff % (24 * time.Hour) / time.Hour),
		Minutes: int(diff % time.Hour / time.Minute),
		Seconds: int(diff % time.Minute / time.Second),
	}
}

// Format renders a countdown as a compact largest-unit-first string, omitting
// zero-valued leading units. Minutes always appear. A ready countdown
// renders as "READY".
func (c Countdown) Format() string {
	if c.Ready {
		return "READY"
	}
	switch {
	case c.Days > 0:
		return fmt.Sprintf("%dd %dh %dm", c.Days, c.Hours, c.Minutes)
	case c.Hours > 0:
		return fmt.Sprintf("%dh %dm", c.Hours, c.Minutes)
	default:
		return fmt.Sprintf("%dm %ds", c.Minutes, c.Seconds)
	}
}
