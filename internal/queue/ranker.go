// Package queue orders a trench's active participants into the payout
// priority queue. The ordering is a computed view over current attributes,
// never a stored sequence: reputation and boost points change continuously,
// so any materialized queue would go stale.
package queue

import (
	"sort"
	"time"
)

// Entrant is a snapshot of one participant's ranking attributes.
type Entrant struct {
	ID          string
	Reputation  int64
	BoostPoints int64
	JoinedAt    time.Time
}

// Rank returns the entrants in settlement priority order: higher reputation
// first, then higher boost points, then earlier join time. The position ID
// is the final key so the order is a strict, deterministic total order. The
// input slice is not modified.
func Rank(entrants []Entrant) []Entrant {
	ranked := make([]Entrant, len(entrants))
	copy(ranked, entrants)

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Reputation != b.Reputation {
			return a.Reputation > b.Reputation
		}
		if a.BoostPoints != b.BoostPoints {
			return a.BoostPoints > b.BoostPoints
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})
	return ranked
}
