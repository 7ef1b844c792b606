package clock

import (
	"testing"
	"time"
)

func TestEligibility_NoBoost(t *testing.T) {
	joined := time.Date(2026, 1, 24, 10, 0, 0, 0, time.UTC)

	got := Eligibility(joined, 24, 0, 1)

	want := time.Date(2026, 1, 25, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestEligibility_FullReductionClampsToJoin(t *testing.T) {
	joined := time.Date(2026, 1, 24, 10, 0, 0, 0, time.UTC)

	// 1440 points at 1 minute/point exactly cancels the 24h wait.
	got := Eligibility(joined, 24, 1440, 1)
	if !got.Equal(joined) {
		t.Errorf("expected eligibility to clamp to joinedAt %v, got %v", joined, got)
	}

	// Overshooting points never push eligibility before joinedAt.
	got = Eligibility(joined, 24, 10_000, 1)
	if !got.Equal(joined) {
		t.Errorf("expected clamp at joinedAt %v, got %v", joined, got)
	}
}

func TestEligibility_PartialReduction(t *testing.T) {
	joined := time.Date(2026, 1, 24, 10, 0, 0, 0, time.UTC)

	// 90 points at 2 minutes/point = 3h off a 24h wait.
	got := Eligibility(joined, 24, 90, 2)

	want := joined.Add(21 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestEligibility_NeverBeforeJoin(t *testing.T) {
	joined := time.Date(2026, 1, 24, 10, 0, 0, 0, time.UTC)
	for _, bp := range []int64{0, 1, 720, 1440, 1441, 1 << 20} {
		got := Eligibility(joined, 24, bp, 1)
		if got.Before(joined) {
			t.Errorf("bp=%d: eligibility %v is before joinedAt %v", bp, got, joined)
		}
	}
}

func TestBoostPointsNeeded(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		eligible time.Time
		rate     int64
		want     int64
	}{
		{"already ready", now.Add(-time.Minute), 1, 0},
		{"exactly ready", now, 1, 0},
		{"90 minutes at rate 1", now.Add(90 * time.Minute), 1, 90},
		{"90 minutes at rate 2", now.Add(90 * time.Minute), 2, 45},
		{"91 minutes at rate 2 rounds up", now.Add(91 * time.Minute), 2, 46},
		{"partial minute rounds up", now.Add(30 * time.Second), 1, 1},
		{"zero rate", now.Add(time.Hour), 0, 0},
	}
	for _, tt := range tests {
		if got := BoostPointsNeeded(tt.eligible, now, tt.rate); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
}

func TestRemaining(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	c := Remaining(now.Add(26*time.Hour+5*time.Minute+30*time.Second), now)
	if c.Ready {
		t.Fatal("expected not ready")
	}
	if c.Days != 1 || c.Hours != 2 || c.Minutes != 5 || c.Seconds != 30 {
		t.Errorf("unexpected countdown: %+v", c)
	}

	c = Remaining(now.Add(-time.Second), now)
	if !c.Ready {
		t.Error("expected ready for past eligibility")
	}
	if c.Days != 0 || c.Hours != 0 || c.Minutes != 0 || c.Seconds != 0 {
		t.Errorf("expected zeroed countdown, got %+v", c)
	}
}

func TestCountdownFormat(t *testing.T) {
	tests := []struct {
		c    Countdown
		want string
	}{
		{Countdown{Ready: true}, "READY"},
		{Countdown{Days: 2, Hours: 3, Minutes: 4, Seconds: 5}, "2d 3h 4m"},
		{Countdown{Hours: 3, Minutes: 4, Seconds: 5}, "3h 4m"},
		{Countdown{Minutes: 4, Seconds: 5}, "4m 5s"},
		{Countdown{Seconds: 42}, "0m 42s"},
	}
	for _, tt := range tests {
		if got := tt.c.Format(); got != tt.want {
			t.Errorf("%+v: expected %q, got %q", tt.c, tt.want, got)
		}
	}
}

func TestEligibility_Deterministic(t *testing.T) {
	joined := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	a := Eligibility(joined, 48, 333, 3)
	b := Eligibility(joined, 48, 333, 3)
	if !a.Equal(b) {
		t.Errorf("recompute drifted: %v vs %v", a, b)
	}
}
