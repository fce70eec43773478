// Package engine holds the pure matching computations: turning swipe history into preference
// lists and running capacity-aware deferred acceptance over them. Nothing here does I/O.
package engine

import (
	"slices"

	"mentor_match/internal/domain/matching"
)

// defaultRoundWeight applies to rounds the cycle carries no weight for.
const defaultRoundWeight = 1

type rankedCandidate struct {
	id          string
	score       int
	roundWeight int // weight of the most recent round the candidate was desired in
}

// Preferences builds a participant's ordered, duplicate-free preference list from its round
// records. Only counterparts whose role in roster equals target are ranked.
//
// Every "desired" swipe adds its round's weight to the counterpart's score. Candidates are
// ordered by score, then by the weight of their most recent round, then by the order in which
// a latest-round-first scan meets them.
func Preferences(rounds []matching.RoundRecord, weights []int, target matching.Role, roster map[string]matching.Role) []string {
	ordered := slices.Clone(rounds)
	slices.SortStableFunc(ordered, func(a, b matching.RoundRecord) int {
		return a.Round - b.Round
	})

	scores := make(map[string]int)
	for _, rec := range ordered {
		w := weightFor(weights, rec.Round)
		for _, id := range rec.Desired {
			scores[id] += w
		}
	}

	seen := make(map[string]struct{})
	candidates := make([]rankedCandidate, 0, len(scores))
	for i := len(ordered) - 1; i >= 0; i-- {
		rec := ordered[i]
		w := weightFor(weights, rec.Round)
		for _, id := range rec.Desired {
			if _, dup := seen[id]; dup {
				continue
			}
			if role, ok := roster[id]; !ok || role != target {
				continue
			}
			seen[id] = struct{}{}
			candidates = append(candidates, rankedCandidate{id: id, score: scores[id], roundWeight: w})
		}
	}

	slices.SortStableFunc(candidates, func(a, b rankedCandidate) int {
		if a.score != b.score {
			return b.score - a.score
		}
		return b.roundWeight - a.roundWeight
	})

	prefs := make([]string, len(candidates))
	for i, c := range candidates {
		prefs[i] = c.id
	}
	return prefs
}

func weightFor(weights []int, round int) int {
	if round < 0 || round >= len(weights) || weights[round] == 0 {
		return defaultRoundWeight
	}
	return weights[round]
}
