// Package block defines the wire-level DAG block: one authority's proposal
// for one round, its identifying reference, and the quorum certificate that
// upgrades a block into a certified block (spec.md §3).
package block

import (
	"fmt"

	"github.com/luxfi/ids"
)

// Round is a monotonically increasing round number; round 0 is genesis.
type Round uint64

// Ref uniquely identifies a block by (round, author, digest) — "BlockRef"
// in spec.md §3.
type Ref struct {
	Round  Round
	Author ids.NodeID
	Digest ids.ID
}

// String renders a Ref for logs and error messages.
func (r Ref) String() string {
	return fmt.Sprintf("%d/%s/%s", r.Round, r.Author, r.Digest)
}

// Less provides the canonical structural order used for sub-DAG
// linearization (spec.md §4.6): round ascending, then author in canonical
// byte order, then digest bytes.
func (r Ref) Less(o Ref) bool {
	if r.Round != o.Round {
		return r.Round < o.Round
	}
	if c := r.Author.Compare(o.Author); c != 0 {
		return c < 0
	}
	return r.Digest.Compare(o.Digest) < 0
}

// CommitVote is a BlockRef a block author embeds to attest they observed a
// particular leader block and support its commit (spec.md §3).
type CommitVote struct {
	Leader Ref
}

// Block is one authority's proposal for one round.
type Block struct {
	Version     uint8 // wire format version; decoders refuse unknown versions
	Epoch       uint64
	Round       Round
	Author      ids.NodeID
	TimestampMS int64 // milliseconds since epoch, monotone per-author per-round
	Parents     []Ref
	Payload     []byte // opaque transaction bytes; core does not interpret them
	CommitVotes []CommitVote
	Signature   []byte // author signature over the canonical serialization
}

// IsGenesis reports whether this is a round-0 genesis block.
func (b *Block) IsGenesis() bool { return b.Round == 0 }

// ParentFrom reports whether author appears among the distinct authors of
// Parents, and returns the matching Ref.
func (b *Block) ParentFrom(author ids.NodeID) (Ref, bool) {
	for _, p := range b.Parents {
		if p.Author == author {
			return p, true
		}
	}
	return Ref{}, false
}

// MaxParentTimestamp returns the greatest value among parentTimes, used to
// enforce the "timestamp >= max timestamp among parents" invariant
// (spec.md §3). Callers resolve parent timestamps from the DAG/store since
// a Ref alone does not carry one.
func MaxParentTimestamp(parentTimes []int64) int64 {
	var max int64
	for _, t := range parentTimes {
		if t > max {
			max = t
		}
	}
	return max
}

// Ref computes the block's BlockRef given a pre-computed digest. Digest
// computation belongs to the crypto facade (C1); Block only carries one
// once computed.
func (b *Block) Ref(digest ids.ID) Ref {
	return Ref{Round: b.Round, Author: b.Author, Digest: digest}
}

// Certificate is a block together with a quorum of authority signatures,
// each over the block's Ref (spec.md §3). A Block becomes "certified" once
// its Certificate is assembled (C6).
type Certificate struct {
	Block      *Block
	Digest     ids.ID
	Signatures map[ids.NodeID][]byte // authority -> signature over the Ref
}

// Ref returns the BlockRef this certificate vouches for.
func (c *Certificate) Ref() Ref {
	return c.Block.Ref(c.Digest)
}

// SignerStake sums the stake of a certificate's signers given a stake
// lookup function; used by the certifier and validator to confirm a
// certificate actually meets quorum.
func (c *Certificate) SignerStake(stakeOf func(ids.NodeID) uint64) uint64 {
	var total uint64
	for signer := range c.Signatures {
		total += stakeOf(signer)
	}
	return total
}
