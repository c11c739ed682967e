package committee

import (
	"github.com/luxfi/ids"
)

// ReputationScores maps an authority to an accumulated score derived from
// prior commit history (spec.md §4.6 "optionally weighted by reputation
// scores"). Scores are non-negative; higher is more likely to be picked.
// A nil map is equivalent to all-authorities-equal.
type ReputationScores map[ids.NodeID]uint64

// LeaderSchedule computes a deterministic leader for a given even round.
// Every honest authority evaluating the same (committee, scores, round)
// must compute the same leader (spec.md §4.6, §9).
//
// With reputation scoring disabled (scores == nil) the schedule is a plain
// round-robin over the canonical authority order, seeded by the round
// number — this matches the reference leader-election scheme in
// narwhal/consensus (round-robin keyed by round, to be replaced by a
// VRF/common-coin once available) while remaining a pure function of
// already-committed data, as required.
//
// With reputation scoring enabled, the round picks among authorities
// weighted by score using the round number as a deterministic PRNG seed;
// each authority's weight is its score plus one, so an authority with a
// zero (or absent) score can still be selected.
func LeaderSchedule(c *Committee, scores ReputationScores, round uint64) ids.NodeID {
	order := c.Ordered()
	if len(order) == 0 {
		return ids.EmptyNodeID
	}
	if len(scores) == 0 {
		return order[round%uint64(len(order))]
	}

	var totalWeight uint64
	weights := make([]uint64, len(order))
	for i, id := range order {
		w := scores[id] + 1 // every authority retains a baseline weight of 1
		weights[i] = w
		totalWeight += w
	}
	if totalWeight == 0 {
		return order[round%uint64(len(order))]
	}

	target := deterministicSeed(round) % totalWeight
	var cumulative uint64
	for i, w := range weights {
		cumulative += w
		if target < cumulative {
			return order[i]
		}
	}
	return order[len(order)-1]
}

// deterministicSeed derives a pseudo-random but reproducible value from a
// round number using a fixed-point multiplicative hash (splitmix64-style).
// This avoids any dependency on wall-clock or process-local randomness so
// that the schedule remains a pure function of (committee, history, round).
func deterministicSeed(round uint64) uint64 {
	x := round + 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	x = x ^ (x >> 31)
	return x
}
