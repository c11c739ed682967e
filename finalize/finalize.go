// Package finalize is the finalizer (C9): it consumes the stream of
// committed sub-DAGs and, given externally supplied rejected-transaction
// sets per leader slot, produces FinalizedCommits (spec.md §4.8). The
// finalizer never revises an earlier FinalizedCommit.
package finalize

import (
	"sync"
	"time"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/commit"
	"github.com/dagbft/core/consensuserrors"
	"github.com/dagbft/core/metrics"
)

// RejectedTxSource supplies, for a committed leader slot, the map from
// block to the indices of its rejected transactions. Rules for what
// counts as rejected live in the transaction-execution layer, out of
// scope here (spec.md §1); this is purely the injection point.
type RejectedTxSource interface {
	RejectedFor(c *commit.Commit) (map[block.Ref][]uint32, error)
}

// Writer is the narrow persistence contract the finalizer needs,
// satisfied by store.Store without finalize importing store.
type Writer interface {
	WriteFinalizedCommit(fc *commit.FinalizedCommit) error
}

// Finalizer turns Commits into FinalizedCommits in order.
type Finalizer struct {
	rejected RejectedTxSource
	writer   Writer
	metrics  metrics.Metrics // nil unless supplied to New

	mu           sync.Mutex
	subscribers  []chan *commit.FinalizedCommit
	lastFinalized commit.Index
}

// New constructs a Finalizer. m may be nil.
func New(rejected RejectedTxSource, writer Writer, m metrics.Metrics) *Finalizer {
	return &Finalizer{rejected: rejected, writer: writer, metrics: m}
}

// Resume restores the finalizer's cursor after a restart.
func (f *Finalizer) Resume(last commit.Ref) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFinalized = last.Index
}

// Finalize processes c, producing and durably writing its
// FinalizedCommit, then publishing it to subscribers.
func (f *Finalizer) Finalize(c *commit.Commit) (*commit.FinalizedCommit, error) {
	rejected, err := f.rejected.RejectedFor(c)
	if err != nil {
		return nil, consensuserrors.Wrap(consensuserrors.KindProtocol, "finalize: resolve rejected transactions", err)
	}

	fc := &commit.FinalizedCommit{
		Ref:      commit.Ref{Index: c.Index, Digest: c.Digest},
		Rejected: rejected,
	}
	if err := f.writer.WriteFinalizedCommit(fc); err != nil {
		return nil, consensuserrors.Wrap(consensuserrors.KindStore, "finalize: write", err)
	}

	if f.metrics != nil {
		f.metrics.FinalizedCommits().Inc()
		if c.TimestampMS > 0 {
			latency := time.Since(time.UnixMilli(c.TimestampMS))
			f.metrics.CommitLatency().Observe(latency.Seconds())
		}
	}

	f.mu.Lock()
	f.lastFinalized = fc.Ref.Index
	subs := make([]chan *commit.FinalizedCommit, len(f.subscribers))
	copy(subs, f.subscribers)
	f.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- fc:
		default:
		}
	}
	return fc, nil
}

// Subscribe registers a channel that receives every FinalizedCommit
// produced from this point on (spec.md §4.10's
// subscribe_finalized_commits).
func (f *Finalizer) Subscribe(buffer int) <-chan *commit.FinalizedCommit {
	ch := make(chan *commit.FinalizedCommit, buffer)
	f.mu.Lock()
	f.subscribers = append(f.subscribers, ch)
	f.mu.Unlock()
	return ch
}

// LastFinalized returns the last finalized commit index this process
// has produced.
func (f *Finalizer) LastFinalized() commit.Index {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFinalized
}
