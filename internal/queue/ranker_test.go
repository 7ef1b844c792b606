package queue

import (
	"testing"
	"time"
)

var base = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

func ids(entrants []Entrant) []string {
	out := make([]string, len(entrants))
	for i, e := range entrants {
		out[i] = e.ID
	}
	return out
}

func assertOrder(t *testing.T, got []Entrant, want ...string) {
	t.Helper()
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("expected %d entrants, got %d", len(want), len(gotIDs))
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, gotIDs)
		}
	}
}

func TestRank_ReputationWins(t *testing.T) {
	ranked := Rank([]Entrant{
		{ID: "low", Reputation: 10, BoostPoints: 999, JoinedAt: base},
		{ID: "high", Reputation: 50, BoostPoints: 0, JoinedAt: base.Add(time.Hour)},
	})
	assertOrder(t, ranked, "high", "low")
}

func TestRank_BoostBreaksReputationTie(t *testing.T) {
	ranked := Rank([]Entrant{
		{ID: "fewer", Reputation: 20, BoostPoints: 5, JoinedAt: base},
		{ID: "more", Reputation: 20, BoostPoints: 100, JoinedAt: base.Add(time.Hour)},
	})
	assertOrder(t, ranked, "more", "fewer")
}

func TestRank_JoinTimeBreaksFullTie(t *testing.T) {
	ranked := Rank([]Entrant{
		{ID: "late", Reputation: 20, BoostPoints: 5, JoinedAt: base.Add(time.Hour)},
		{ID: "early", Reputation: 20, BoostPoints: 5, JoinedAt: base},
	})
	assertOrder(t, ranked, "early", "late")
}

func TestRank_StrictTotalOrder(t *testing.T) {
	// Identical keys on distinct participants still produce one
	// deterministic order, keyed on ID.
	in := []Entrant{
		{ID: "b", Reputation: 7, BoostPoints: 3, JoinedAt: base},
		{ID: "a", Reputation: 7, BoostPoints: 3, JoinedAt: base},
		{ID: "c", Reputation: 7, BoostPoints: 3, JoinedAt: base},
	}
	first := Rank(in)
	for i := 0; i < 10; i++ {
		again := Rank(in)
		for i := range first {
			if first[i].ID != again[i].ID {
				t.Fatalf("ranking not deterministic: %v vs %v", ids(first), ids(again))
			}
		}
	}
	assertOrder(t, first, "a", "b", "c")
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	in := []Entrant{
		{ID: "z", Reputation: 1, JoinedAt: base},
		{ID: "a", Reputation: 9, JoinedAt: base},
	}
	_ = Rank(in)
	if in[0].ID != "z" || in[1].ID != "a" {
		t.Error("input slice was reordered")
	}
}

func TestRank_Empty(t *testing.T) {
	if got := Rank(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}
