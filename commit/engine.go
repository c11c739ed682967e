package commit

import (
	"go.uber.org/zap"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/committee"
	"github.com/dagbft/core/consensuserrors"
	"github.com/dagbft/core/corelog"
	"github.com/dagbft/core/crypto"
	"github.com/dagbft/core/dagstate"
	"github.com/dagbft/core/metrics"
)

// Engine runs the leader-based commit rule of spec.md §4.6 over a
// dagstate.DAG. It is deliberately decoupled from package store: it only
// calls the Writer/Reader interfaces of types.go, so store.Store can satisfy
// them without commit importing store.
type Engine struct {
	committee *committee.Committee
	dag       *dagstate.DAG
	writer    Writer
	log       corelog.Logger
	metrics   metrics.Metrics // nil unless supplied to NewEngine

	gcDepth           block.Round
	leaderSkipEnabled bool
	reputationEnabled bool
	scores            committee.ReputationScores

	lastCommittedLeaderRound block.Round
	nextIndex                Index
	priorSlotClose           Ref
}

// NewEngine constructs an Engine with no reputation scores; SetScores
// installs them, and they are only consulted when reputationEnabled is
// true (spec.md §4.6, SPEC_FULL.md §4's reputation-weighted leader
// schedule addition).
func NewEngine(
	c *committee.Committee,
	dag *dagstate.DAG,
	writer Writer,
	log corelog.Logger,
	gcDepth block.Round,
	leaderSkipEnabled bool,
	reputationEnabled bool,
	m metrics.Metrics,
) *Engine {
	return &Engine{
		committee:         c,
		dag:               dag,
		writer:            writer,
		log:               log,
		metrics:           m,
		gcDepth:           gcDepth,
		leaderSkipEnabled: leaderSkipEnabled,
		reputationEnabled: reputationEnabled,
		nextIndex:         1,
	}
}

// Resume restores engine cursor state from the store's recovery reader
// per spec.md §4.7 step 2.
func (e *Engine) Resume(reader Reader) error {
	last, ok, err := reader.LastCommit()
	if err != nil {
		return consensuserrors.Wrap(consensuserrors.KindStore, "commit: load last commit", err)
	}
	if !ok {
		return nil
	}
	e.nextIndex = last.Index + 1
	e.priorSlotClose = last

	info, ok, err := reader.LastCommitInfo()
	if err != nil {
		return consensuserrors.Wrap(consensuserrors.KindStore, "commit: load last commit info", err)
	}
	if ok {
		e.lastCommittedLeaderRound = gcRoundToLeaderRound(info.GCRound, e.gcDepth)
	}
	return nil
}

func gcRoundToLeaderRound(gcRound, gcDepth block.Round) block.Round {
	return gcRound + gcDepth
}

// SetScores installs the reputation scores consulted by the leader
// schedule when reputationEnabled is set.
func (e *Engine) SetScores(scores committee.ReputationScores) { e.scores = scores }

// Advance runs the commit rule as far forward as the current DAG state
// allows, emitting zero or more Commits in slot order. Safe to call
// repeatedly as the DAG grows (spec.md §4.6: "runs whenever the DAG
// advances").
func (e *Engine) Advance(epoch uint64, nowMS int64) ([]*Commit, error) {
	var out []*Commit
	maxRound := e.dag.MaxRound()

	for {
		rNext := e.lastCommittedLeaderRound + 2
		if maxRound < rNext+2 {
			break
		}

		var scores committee.ReputationScores
		if e.reputationEnabled {
			scores = e.scores
		}

		leaderCert, ok := dagstate.Leader(e.dag, e.committee, scores, rNext)
		committable := false
		if ok {
			stake := dagstate.CommittableStake(e.dag, e.committee, leaderCert.Ref())
			committable = e.committee.MeetsQuorum(stake)
		}

		switch {
		case committable:
			c, err := e.commitLeader(epoch, leaderCert)
			if err != nil {
				return out, err
			}
			out = append(out, c)
		case e.leaderSkipEnabled:
			c, err := e.commitSkip(epoch, rNext, nowMS)
			if err != nil {
				return out, err
			}
			out = append(out, c)
		default:
			e.log.Debug("leader slot skipped without record", zap.Uint64("round", uint64(rNext)))
			e.lastCommittedLeaderRound = rNext
		}
	}
	return out, nil
}

func (e *Engine) commitLeader(epoch uint64, leaderCert *block.Certificate) (*Commit, error) {
	subdag := dagstate.OrderDag(e.dag, e.gcDepth, leaderCert)
	refs := make([]block.Ref, 0, len(subdag))
	for _, cert := range subdag {
		refs = append(refs, cert.Ref())
	}

	c := &Commit{
		Index:       e.nextIndex,
		Epoch:       epoch,
		Leader:      leaderCert.Ref(),
		SubDag:      refs,
		TimestampMS: leaderCert.Block.TimestampMS,
	}
	c.Digest = crypto.Digest256(c.Encode())

	gcRound := gcRoundFor(leaderCert.Block.Round, e.gcDepth)
	info := &Info{
		Ref:            Ref{Index: c.Index, Digest: c.Digest},
		GCRound:        gcRound,
		PriorSlotClose: e.priorSlotClose,
		Scores:         e.scores,
	}

	if err := e.writer.WriteCommit(c, info); err != nil {
		return nil, consensuserrors.Wrap(consensuserrors.KindStore, "commit: write", err)
	}

	for _, cert := range subdag {
		e.dag.Update(cert, e.gcDepth)
	}

	e.nextIndex++
	e.lastCommittedLeaderRound = leaderCert.Block.Round
	e.priorSlotClose = info.Ref
	return c, nil
}

func (e *Engine) commitSkip(epoch uint64, round block.Round, nowMS int64) (*Commit, error) {
	if e.metrics != nil {
		e.metrics.SlotsSkipped().Inc()
	}
	c := &Commit{
		Index:       e.nextIndex,
		Epoch:       epoch,
		TimestampMS: nowMS,
	}
	c.Digest = crypto.Digest256(c.Encode())

	gcRound := gcRoundFor(round, e.gcDepth)
	info := &Info{
		Ref:            Ref{Index: c.Index, Digest: c.Digest},
		GCRound:        gcRound,
		PriorSlotClose: e.priorSlotClose,
	}
	if err := e.writer.WriteCommit(c, info); err != nil {
		return nil, consensuserrors.Wrap(consensuserrors.KindStore, "commit: write skip record", err)
	}

	e.nextIndex++
	e.lastCommittedLeaderRound = round
	e.priorSlotClose = info.Ref
	return c, nil
}

func gcRoundFor(committedLeaderRound, gcDepth block.Round) block.Round {
	if committedLeaderRound <= gcDepth {
		return 0
	}
	return committedLeaderRound - gcDepth
}
