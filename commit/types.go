// Package commit is the commit engine (C8): the leader-election,
// support/vote, and linearization rules of spec.md §4.6, grounded
// directly on narwhal/consensus/src/lib.rs's Consensus::process_certificate
// and its helpers, adapted from Narwhal's odd-round/common-coin framing
// to this spec's even-round, quorum-at-r+2 commit condition.
package commit

import (
	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
)

// Index is a strictly increasing, positive commit sequence number.
type Index uint64

// Ref identifies a durable commit record by index and content digest.
type Ref struct {
	Index  Index
	Digest ids.ID
}

// Commit is the ordered record the engine emits for one decided leader
// slot (spec.md §3's "Commit").
type Commit struct {
	Index       Index
	Epoch       uint64
	Leader      block.Ref   // zero Ref for a skipped slot
	SubDag      []block.Ref // ancestors of Leader not in any prior commit, totally ordered
	TimestampMS int64
	Digest      ids.ID
}

// Info is the per-commit bookkeeping record of spec.md §3.
type Info struct {
	Ref            Ref
	GCRound        block.Round
	PriorSlotClose Ref // the commit that closed the previous leader slot
	Scores         map[ids.NodeID]uint64
}

// FinalizedCommit annotates a Commit's Ref with rejected-transaction
// indices per block, produced by the finalizer (C9, spec.md §4.8).
type FinalizedCommit struct {
	Ref      Ref
	Rejected map[block.Ref][]uint32
}

// Writer is the narrow persistence contract the engine needs. It is
// satisfied structurally by store.Store without commit importing store,
// keeping the store (which must know the Commit type to serialize it)
// and the engine (which must durably emit commits) from forming an
// import cycle.
type Writer interface {
	WriteCommit(c *Commit, info *Info) error
}

// Reader is the narrow read contract the engine needs to resume after a
// restart (spec.md §4.7).
type Reader interface {
	LastCommit() (Ref, bool, error)
	LastCommitInfo() (*Info, bool, error)
}
