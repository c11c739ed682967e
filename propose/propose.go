// Package propose is the proposer (C7): it builds this authority's next
// block at each local round transition (spec.md §4.5).
package propose

import (
	"time"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/committee"
	"github.com/dagbft/core/consensuserrors"
	"github.com/dagbft/core/crypto"
	"github.com/dagbft/core/dagstate"
)

// PayloadSource supplies opaque transaction bytes for a new block. It
// must be non-blocking; returning nil/empty is permitted (spec.md
// §4.5).
type PayloadSource interface {
	NextPayload() []byte
}

// Proposer builds and signs this authority's blocks.
type Proposer struct {
	committee *committee.Committee
	dag       *dagstate.DAG
	signer    crypto.Signer
	payloads  PayloadSource
}

// New constructs a Proposer for the local signer.
func New(c *committee.Committee, dag *dagstate.DAG, signer crypto.Signer, payloads PayloadSource) *Proposer {
	return &Proposer{committee: c, dag: dag, signer: signer, payloads: payloads}
}

// Parents selects the parent set for a block at round, per spec.md
// §4.5: every round-1 BlockRef the DAG holds whose distinct-author
// stake sum meets quorum, requiring the local authority's own round-1
// block.
func (p *Proposer) Parents(round block.Round) ([]block.Ref, error) {
	if round == 0 {
		return nil, nil
	}
	certs := p.dag.Round(round - 1)

	var stake uint64
	refs := make([]block.Ref, 0, len(certs))
	ownPresent := false
	for _, cert := range certs {
		refs = append(refs, cert.Ref())
		stake += p.committee.StakeOf(cert.Block.Author)
		if cert.Block.Author == p.signer.NodeID() {
			ownPresent = true
		}
	}
	if !ownPresent && round > 1 {
		return nil, consensuserrors.New(consensuserrors.KindValidation, "own prior-round block not yet in the DAG")
	}
	if !p.committee.MeetsQuorum(stake) {
		return nil, consensuserrors.New(consensuserrors.KindValidation, "round-1 parent stake does not meet quorum")
	}
	return refs, nil
}

// Propose builds, signs, and returns the next block for round, embedding
// a CommitVote for each ref in supportedLeaders (leader slots within the
// commit window this block's parents causally support, per spec.md
// §4.5's "commit votes" field).
func (p *Proposer) Propose(epoch uint64, round block.Round, nowMS int64, supportedLeaders []block.Ref) (*block.Block, ids.ID, error) {
	parents, err := p.Parents(round)
	if err != nil {
		return nil, ids.Empty, err
	}

	votes := make([]block.CommitVote, 0, len(supportedLeaders))
	for _, ref := range supportedLeaders {
		votes = append(votes, block.CommitVote{Leader: ref})
	}

	var payload []byte
	if p.payloads != nil {
		payload = p.payloads.NextPayload()
	}

	b := &block.Block{
		Epoch:       epoch,
		Round:       round,
		Author:      p.signer.NodeID(),
		TimestampMS: nowMS,
		Parents:     parents,
		Payload:     payload,
		CommitVotes: votes,
	}

	_, boundary := b.Encode()
	digest := crypto.Digest256(boundary)
	sig, err := p.signer.Sign(digest[:])
	if err != nil {
		return nil, ids.Empty, consensuserrors.Wrap(consensuserrors.KindProtocol, "propose: sign block", err)
	}
	b.Signature = sig

	return b, digest, nil
}

// RoundTimer implements the round-transition delay of spec.md §4.5: a
// small, cancelable minimum delay since the authority's own last
// proposal, short-circuited once quorum at the next round is already
// observable.
type RoundTimer struct {
	minDelay time.Duration
	timer    *time.Timer
}

// NewRoundTimer starts a timer for minDelay since now.
func NewRoundTimer(minDelay time.Duration) *RoundTimer {
	return &RoundTimer{minDelay: minDelay, timer: time.NewTimer(minDelay)}
}

// C returns the channel that fires once minDelay has elapsed.
func (t *RoundTimer) C() <-chan time.Time { return t.timer.C }

// Cancel short-circuits the timer, e.g. because quorum at round+1 is
// already observable.
func (t *RoundTimer) Cancel() {
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
		}
	}
}

// ShouldAdvance reports whether both round-transition conditions of
// spec.md §4.5 hold: quorum of distinct-author stake observed at round,
// and the minimum delay has elapsed (or been short-circuited).
func ShouldAdvance(c *committee.Committee, dag *dagstate.DAG, round block.Round, delayElapsed bool) bool {
	if !delayElapsed {
		return false
	}
	var stake uint64
	for _, cert := range dag.Round(round) {
		stake += c.StakeOf(cert.Block.Author)
	}
	return c.MeetsQuorum(stake)
}
