package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

func newEntryFixture(trenches *fakeTrenches, positions *fakePositions) (*EntryService, *fakeEvents, *fakePayouts) {
	events := &fakeEvents{}
	payouts := &fakePayouts{}
	svc := NewEntryService(
		&fakeTx{}, positions, trenches, events,
		&fakeRates{rate: 1}, &fakePriceSource{price: 1.0}, payouts, testLogger(),
	)
	return svc, events, payouts
}

func TestEnterCreatesPosition(t *testing.T) {
	trenches := newFakeTrenches(domain.Trench{
		ID: "t1", BaseDurationHours: 24, ROIMultiplier: 2.5,
		PositionTTLHours: 72, Active: true,
	})
	positions := newFakePositions()
	svc, _, _ := newEntryFixture(trenches, positions)

	pos, err := svc.Enter(context.Background(), "u1", "t1", 100)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if pos.ID == "" {
		t.Fatal("position has no id")
	}
	if pos.MaxPayout != 250 {
		t.Errorf("max payout = %v, want 250", pos.MaxPayout)
	}
	if pos.Status != domain.PositionStatusActive {
		t.Errorf("status = %s, want active", pos.Status)
	}
	if got, want := pos.EligibleAt, pos.JoinedAt.Add(24*time.Hour); !got.Equal(want) {
		t.Errorf("eligible at = %v, want %v", got, want)
	}
	if pos.ExpiresAt == nil || !pos.ExpiresAt.Equal(pos.JoinedAt.Add(72*time.Hour)) {
		t.Errorf("expires at = %v, want joined+72h", pos.ExpiresAt)
	}
	if stored := positions.get(pos.ID); stored.EntryAmount != 100 {
		t.Errorf("stored entry = %v, want 100", stored.EntryAmount)
	}
}

func TestEnterPayoutCapIsFloored(t *testing.T) {
	trenches := newFakeTrenches(domain.Trench{
		ID: "t1", BaseDurationHours: 24, ROIMultiplier: 2.5, Active: true,
	})
	svc, _, _ := newEntryFixture(trenches, newFakePositions())

	pos, err := svc.Enter(context.Background(), "u1", "t1", 33.33)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if pos.MaxPayout != 83 {
		t.Errorf("max payout = %v, want floor(33.33*2.5) = 83", pos.MaxPayout)
	}
}

func TestEnterGrowsExistingPosition(t *testing.T) {
	now := time.Now().UTC()
	trenches := newFakeTrenches(domain.Trench{
		ID: "t1", BaseDurationHours: 24, ROIMultiplier: 2, Active: true,
	})
	positions := newFakePositions(domain.Position{
		ID: "p1", UserID: "u1", TrenchID: "t1",
		EntryAmount: 100, MaxPayout: 200,
		JoinedAt: now.Add(-time.Hour), EligibleAt: now.Add(23 * time.Hour),
		Status: domain.PositionStatusActive,
	})
	svc, _, _ := newEntryFixture(trenches, positions)

	pos, err := svc.Enter(context.Background(), "u1", "t1", 50)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if pos.ID != "p1" {
		t.Fatalf("re-entry created a new position %q", pos.ID)
	}
	stored := positions.get("p1")
	if stored.EntryAmount != 150 {
		t.Errorf("entry amount = %v, want 150", stored.EntryAmount)
	}
	if stored.MaxPayout != 300 {
		t.Errorf("max payout = %v, want 300", stored.MaxPayout)
	}
}

func TestEnterRejectsNonPositive(t *testing.T) {
	trenches := newFakeTrenches(domain.Trench{ID: "t1", ROIMultiplier: 2, Active: true})
	svc, _, _ := newEntryFixture(trenches, newFakePositions())

	if _, err := svc.Enter(context.Background(), "u1", "t1", 0); err == nil {
		t.Error("Enter accepted a zero amount")
	}
	if _, err := svc.Enter(context.Background(), "u1", "missing", 10); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown trench: err = %v, want ErrNotFound", err)
	}
}

func TestForceExitRefundsUnearnedPrincipal(t *testing.T) {
	now := time.Now().UTC()
	trenches := newFakeTrenches(domain.Trench{
		ID: "t1", ROIMultiplier: 2, ReserveUnits: 1000,
		FundingAsset: "SOL", Chain: "solana", Active: true,
	})
	positions := newFakePositions(domain.Position{
		ID: "p1", UserID: "u1", TrenchID: "t1",
		EntryAmount: 100, MaxPayout: 200, ReceivedAmount: 30,
		JoinedAt: now.Add(-time.Hour), EligibleAt: now.Add(time.Hour),
		Status: domain.PositionStatusActive,
	})
	svc, events, payouts := newEntryFixture(trenches, positions)

	if err := svc.ForceExit(context.Background(), "p1"); err != nil {
		t.Fatalf("ForceExit: %v", err)
	}

	if len(payouts.calls) != 1 || payouts.calls[0].Amount != 70 {
		t.Errorf("refund calls = %+v, want one for 70", payouts.calls)
	}
	if positions.get("p1").Status != domain.PositionStatusExited {
		t.Error("position was not marked exited")
	}
	if got := trenches.get("t1").ReserveUnits; got != 930 {
		t.Errorf("reserve units = %v, want 930", got)
	}
	exits := events.ofKind(domain.EventExit)
	if len(exits) != 1 || exits[0].Reason != domain.ReasonForcedExit || exits[0].Amount != 70 {
		t.Errorf("exit events = %+v, want one forced_exit for 70", exits)
	}
}

func TestForceExitGuards(t *testing.T) {
	now := time.Now().UTC()
	trenches := newFakeTrenches(domain.Trench{ID: "t1", ReserveUnits: 100, Active: true})
	positions := newFakePositions(domain.Position{
		ID: "paid", UserID: "u1", TrenchID: "t1",
		EntryAmount: 100, MaxPayout: 200, ReceivedAmount: 200,
		JoinedAt: now, EligibleAt: now,
		Status: domain.PositionStatusPaid,
	})
	svc, _, payouts := newEntryFixture(trenches, positions)

	if err := svc.ForceExit(context.Background(), "paid"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("exiting a paid position: err = %v, want ErrConflict", err)
	}
	if err := svc.ForceExit(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("exiting a missing position: err = %v, want ErrNotFound", err)
	}
	if len(payouts.calls) != 0 {
		t.Error("guarded exits must not move money")
	}
}

func TestExpireOverdue(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	trenches := newFakeTrenches(domain.Trench{ID: "t1", Active: true})
	positions := newFakePositions(
		domain.Position{
			ID: "overdue", UserID: "u1", TrenchID: "t1",
			JoinedAt: now.Add(-48 * time.Hour), EligibleAt: future,
			ExpiresAt: &past, Status: domain.PositionStatusActive,
		},
		domain.Position{
			ID: "alive", UserID: "u2", TrenchID: "t1",
			JoinedAt: now.Add(-time.Hour), EligibleAt: future,
			ExpiresAt: &future, Status: domain.PositionStatusActive,
		},
		domain.Position{
			ID: "open-ended", UserID: "u3", TrenchID: "t1",
			JoinedAt: now.Add(-time.Hour), EligibleAt: future,
			Status: domain.PositionStatusActive,
		},
	)
	svc, events, _ := newEntryFixture(trenches, positions)

	n, err := svc.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	if positions.get("overdue").Status != domain.PositionStatusExpired {
		t.Error("overdue position was not expired")
	}
	if positions.get("alive").Status != domain.PositionStatusActive {
		t.Error("future-dated position must stay active")
	}
	if positions.get("open-ended").Status != domain.PositionStatusActive {
		t.Error("position without a cutoff must stay active")
	}
	expiries := events.ofKind(domain.EventExpiry)
	if len(expiries) != 1 || expiries[0].PositionID != "overdue" {
		t.Errorf("expiry events = %+v, want one for the overdue position", expiries)
	}
}
