// Package committee describes the fixed set of authorities that make up a
// BFT committee for one epoch, and the stake-weighted thresholds derived
// from it.
package committee

import (
	"fmt"
	"sort"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/utils/set"
)

// Authority is a committee member: a stable public key bound to an integer
// stake. Stake must be strictly positive.
type Authority struct {
	ID        ids.NodeID
	PublicKey []byte
	Stake     uint64
}

// Committee is the finite set of authorities active for one epoch, plus the
// derived quorum/validity thresholds (spec.md §3).
type Committee struct {
	Epoch      uint64
	authorities map[ids.NodeID]Authority
	ordered    []ids.NodeID // canonical byte order of authority IDs
	totalStake uint64
	quorum     uint64
	validity   uint64
}

// New builds a Committee from a set of authorities. Returns an error if any
// stake is non-positive or an authority ID repeats.
func New(epoch uint64, authorities []Authority) (*Committee, error) {
	if len(authorities) == 0 {
		return nil, fmt.Errorf("committee: empty authority set")
	}

	byID := make(map[ids.NodeID]Authority, len(authorities))
	var total uint64
	for _, a := range authorities {
		if a.Stake == 0 {
			return nil, fmt.Errorf("committee: authority %s has zero stake", a.ID)
		}
		if _, dup := byID[a.ID]; dup {
			return nil, fmt.Errorf("committee: duplicate authority %s", a.ID)
		}
		byID[a.ID] = a
		total += a.Stake
	}

	ordered := make([]ids.NodeID, 0, len(authorities))
	for id := range byID {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Compare(ordered[j]) < 0
	})

	c := &Committee{
		Epoch:       epoch,
		authorities: byID,
		ordered:     ordered,
		totalStake:  total,
	}
	c.quorum = smallestStakeOver(total, 2, 3)
	c.validity = smallestStakeOver(total, 1, 3)
	return c, nil
}

// smallestStakeOver returns the smallest integer S such that S > (num/den)*total.
func smallestStakeOver(total uint64, num, den uint64) uint64 {
	// S > total*num/den  <=>  S*den > total*num  <=>  S > total*num/den
	// smallest integer S satisfying S*den > total*num is floor(total*num/den) + 1.
	return (total*num)/den + 1
}

// TotalStake is the sum of stake across all authorities.
func (c *Committee) TotalStake() uint64 { return c.totalStake }

// QuorumStake is the smallest stake sum strictly greater than 2/3 of total
// (the "quorum" of spec.md §3, equivalently >= 2f+1 by stake).
func (c *Committee) QuorumStake() uint64 { return c.quorum }

// ValidityStake is the smallest stake sum strictly greater than 1/3 of total
// (the "validity threshold" of spec.md §3, equivalently >= f+1 by stake).
func (c *Committee) ValidityStake() uint64 { return c.validity }

// Size returns the number of authorities in the committee.
func (c *Committee) Size() int { return len(c.ordered) }

// Has reports whether id is a member of the committee.
func (c *Committee) Has(id ids.NodeID) bool {
	_, ok := c.authorities[id]
	return ok
}

// Authority looks up a single committee member.
func (c *Committee) Authority(id ids.NodeID) (Authority, bool) {
	a, ok := c.authorities[id]
	return a, ok
}

// StakeOf returns the stake of a single authority, or 0 if not a member.
func (c *Committee) StakeOf(id ids.NodeID) uint64 {
	return c.authorities[id].Stake
}

// Ordered returns committee authority IDs in canonical byte order. This is
// the fixed order used for leader election and sub-DAG linearization
// (spec.md §4.6).
func (c *Committee) Ordered() []ids.NodeID {
	out := make([]ids.NodeID, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// StakeOfSet sums the stake of a set of distinct authority IDs. Unknown IDs
// contribute zero and are otherwise ignored, matching the "distinct-author
// parents" accounting of spec.md §3.
func (c *Committee) StakeOfSet(ids_ []ids.NodeID) uint64 {
	seen := set.NewSet[ids.NodeID](len(ids_))
	var total uint64
	for _, id := range ids_ {
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		total += c.authorities[id].Stake
	}
	return total
}

// MeetsQuorum reports whether a stake sum reaches the quorum threshold.
func (c *Committee) MeetsQuorum(stake uint64) bool { return stake >= c.quorum }

// MeetsValidity reports whether a stake sum reaches the validity threshold.
func (c *Committee) MeetsValidity(stake uint64) bool { return stake >= c.validity }
