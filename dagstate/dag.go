// Package dagstate holds the in-memory certificate DAG and the crash-
// recovery state the commit engine walks: the last committed round per
// authority and the frontier used to garbage collect old rounds. The
// indexing and walks (leader lookup, support counting, linkage, sub-dag
// flattening) are a direct port of narwhal/consensus/src/lib.rs's
// KeyAtRound-indexed Dag and State types, adapted from a DBMap-backed
// store to the in-process index the engine keeps alongside the durable
// store.Store (spec.md §4: "the DAG index ... is rebuilt from the
// consensus store on startup").
package dagstate

import (
	"sort"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/committee"
	"github.com/dagbft/core/consensuserrors"
)

// DAG indexes certificates by round and author, mirroring the Rust
// Dag = DBMap<KeyAtRound, (Digest, Certificate)>.
type DAG struct {
	byRound map[block.Round]map[ids.NodeID]*block.Certificate

	lastCommittedRound block.Round
	lastCommitted      map[ids.NodeID]block.Round
}

// New builds an empty DAG seeded with the genesis certificates, one per
// authority at round 0, matching State::new's genesis handling.
func New(genesis []*block.Certificate) *DAG {
	d := &DAG{
		byRound:       make(map[block.Round]map[ids.NodeID]*block.Certificate),
		lastCommitted: make(map[ids.NodeID]block.Round),
	}
	for _, cert := range genesis {
		d.insertUnchecked(cert)
		d.lastCommitted[cert.Block.Author] = cert.Block.Round
	}
	return d
}

func (d *DAG) insertUnchecked(cert *block.Certificate) {
	round := cert.Block.Round
	if d.byRound[round] == nil {
		d.byRound[round] = make(map[ids.NodeID]*block.Certificate)
	}
	d.byRound[round][cert.Block.Author] = cert
}

// Insert adds a certificate to the DAG, rejecting equivocation: a second,
// differently-digested certificate from the same author at the same
// round (spec.md §4.2, narwhal equivocation handling at the primary
// layer, enforced here as the DAG's last line of defense).
func (d *DAG) Insert(cert *block.Certificate) error {
	round := cert.Block.Round
	author := cert.Block.Author
	if existing, ok := d.byRound[round][author]; ok {
		if existing.Digest != cert.Digest {
			return consensuserrors.WithPeer(consensuserrors.KindProtocol, author.String(),
				"equivocation: two distinct certificates at the same round", nil)
		}
		return nil
	}
	d.insertUnchecked(cert)
	return nil
}

// Get returns the certificate for ref, if present.
func (d *DAG) Get(ref block.Ref) (*block.Certificate, bool) {
	round, ok := d.byRound[ref.Round]
	if !ok {
		return nil, false
	}
	cert, ok := round[ref.Author]
	if !ok || cert.Digest != ref.Digest {
		return nil, false
	}
	return cert, true
}

// ByAuthorRound returns the certificate authored by author at round, if
// any regardless of digest.
func (d *DAG) ByAuthorRound(round block.Round, author ids.NodeID) (*block.Certificate, bool) {
	cert, ok := d.byRound[round][author]
	return cert, ok
}

// Round returns every certificate received at round.
func (d *DAG) Round(round block.Round) []*block.Certificate {
	m := d.byRound[round]
	out := make([]*block.Certificate, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Block.Author.Compare(out[j].Block.Author) < 0 })
	return out
}

// LastCommittedRound is the highest round committed so far for any
// authority, i.e. State.last_committed_round.
func (d *DAG) LastCommittedRound() block.Round { return d.lastCommittedRound }

// LastCommittedRoundOf returns the last round committed for author.
func (d *DAG) LastCommittedRoundOf(author ids.NodeID) block.Round {
	return d.lastCommitted[author]
}

// MaxRound returns the highest round for which the DAG holds at least
// one certificate.
func (d *DAG) MaxRound() block.Round {
	var max block.Round
	for r := range d.byRound {
		if r > max {
			max = r
		}
	}
	return max
}

// Leader returns the certificate authored by the scheduled leader of
// round, if the DAG has received it yet. Mirrors Consensus::leader.
func Leader(d *DAG, c *committee.Committee, scores committee.ReputationScores, round block.Round) (*block.Certificate, bool) {
	author := committee.LeaderSchedule(c, scores, uint64(round))
	cert, ok := d.byRound[round][author]
	return cert, ok
}

// parentSupportsLeader reports whether cert (at round r+1) has leaderRef
// among its parents, i.e. spec.md §4.6's "support" relation.
func parentSupportsLeader(cert *block.Certificate, leaderRef block.Ref) bool {
	for _, p := range cert.Block.Parents {
		if p == leaderRef {
			return true
		}
	}
	return false
}

// CommittableStake computes the cumulative stake of round-(r+2) blocks
// that vote for the leader certified at leaderRef (round r), per
// spec.md §4.6: a round r+2 block B votes for L if, among B's parents at
// round r+1, the subset that supports L has stake ≥ validity.
func CommittableStake(d *DAG, c *committee.Committee, leaderRef block.Ref) uint64 {
	var total uint64
	for _, b := range d.byRound[leaderRef.Round+2] {
		var supportStake uint64
		for _, parentRef := range b.Block.Parents {
			if parentRef.Round != leaderRef.Round+1 {
				continue
			}
			parentCert, ok := d.byRound[leaderRef.Round+1][parentRef.Author]
			if !ok || parentCert.Digest != parentRef.Digest {
				continue
			}
			if parentSupportsLeader(parentCert, leaderRef) {
				supportStake += c.StakeOf(parentRef.Author)
			}
		}
		if supportStake >= c.ValidityStake() {
			total += c.StakeOf(b.Block.Author)
		}
	}
	return total
}

// OrderDag collects the sub-dag rooted at leader via a depth-first
// pre-order walk, skipping certificates already ordered in this pass or
// already committed for their authority, and dropping anything past the
// garbage-collection boundary; the walk is a direct port of
// Consensus::order_dag. The collected certificates are then sorted into
// canonical Ref order, which is the commit order returned.
func OrderDag(d *DAG, gcDepth block.Round, leader *block.Certificate) []*block.Certificate {
	ordered := make([]*block.Certificate, 0)
	alreadyOrdered := make(map[ids.ID]struct{})

	buffer := []*block.Certificate{leader}
	for len(buffer) > 0 {
		x := buffer[len(buffer)-1]
		buffer = buffer[:len(buffer)-1]
		ordered = append(ordered, x)

		if x.Block.Round == 0 {
			continue
		}
		for _, p := range x.Block.Parents {
			parentCert, ok := d.byRound[x.Block.Round-1][p.Author]
			if !ok || parentCert.Digest != p.Digest {
				continue
			}
			if _, seen := alreadyOrdered[p.Digest]; seen {
				continue
			}
			if lastRound, ok := d.lastCommitted[parentCert.Block.Author]; ok && lastRound == parentCert.Block.Round {
				continue
			}
			buffer = append(buffer, parentCert)
			alreadyOrdered[p.Digest] = struct{}{}
		}
	}

	filtered := ordered[:0]
	for _, x := range ordered {
		if x.Block.Round+gcDepth >= d.lastCommittedRound {
			filtered = append(filtered, x)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Block.Ref(filtered[i].Digest).Less(filtered[j].Block.Ref(filtered[j].Digest))
	})
	return filtered
}

// Update records cert as committed and purges rounds past the GC
// boundary, mirroring State::update.
func (d *DAG) Update(cert *block.Certificate, gcDepth block.Round) {
	author := cert.Block.Author
	if prev, ok := d.lastCommitted[author]; !ok || cert.Block.Round > prev {
		d.lastCommitted[author] = cert.Block.Round
	}

	max := block.Round(0)
	for _, r := range d.lastCommitted {
		if r > max {
			max = r
		}
	}
	d.lastCommittedRound = max

	bound := max
	if gcDepth+1 > bound {
		bound = gcDepth + 1
	}
	cutoff := bound - gcDepth
	for round := range d.byRound {
		if round < cutoff {
			delete(d.byRound, round)
			continue
		}
		for author, c := range d.byRound[round] {
			if lastRound, ok := d.lastCommitted[author]; ok && round < lastRound {
				delete(d.byRound[round], author)
				_ = c
			}
		}
	}
}
