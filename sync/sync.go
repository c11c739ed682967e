// Package sync is the block synchronizer (C5): it ensures a block's
// transitive parents above gc_round are present before the block is
// inserted into the DAG, fetching missing ones from peers (spec.md
// §4.4). Peer fetch rate limiting is grounded on
// golang.org/x/time/rate.Limiter, used the same way the pack's own
// RPC proxy throttles upstream calls (0xmhha-indexer-go/pkg/rpcproxy).
package sync

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/consensuserrors"
)

// Fetcher issues a request to a peer for the certified block identified
// by ref, returning the decoded certificate or an error. The transport
// itself is out of scope (spec.md §1); callers inject an implementation
// over whatever network layer they run.
type Fetcher interface {
	Fetch(ctx context.Context, peer ids.NodeID, ref block.Ref) (*block.Certificate, error)
}

// PeerScore tracks per-peer reliability, demoted on fetch failure and
// consulted to pick the next peer to try.
type PeerScore struct {
	mu     sync.Mutex
	scores map[ids.NodeID]float64
}

// NewPeerScore constructs a score tracker with every peer starting at a
// neutral score of 1.0.
func NewPeerScore() *PeerScore { return &PeerScore{scores: make(map[ids.NodeID]float64)} }

func (p *PeerScore) score(peer ids.NodeID) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.scores[peer]; ok {
		return s
	}
	return 1.0
}

// Demote lowers peer's score after a failed or timed-out fetch.
func (p *PeerScore) Demote(peer ids.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.scores[peer]
	if !ok {
		s = 1.0
	}
	s *= 0.5
	if s < 0.01 {
		s = 0.01
	}
	p.scores[peer] = s
}

// Best picks the highest-scoring peer among candidates not in exclude.
func (p *PeerScore) Best(candidates []ids.NodeID, exclude map[ids.NodeID]struct{}) (ids.NodeID, bool) {
	var best ids.NodeID
	bestScore := -1.0
	found := false
	for _, c := range candidates {
		if _, skip := exclude[c]; skip {
			continue
		}
		s := p.score(c)
		if s > bestScore {
			best, bestScore, found = c, s, true
		}
	}
	return best, found
}

// Config bounds the synchronizer's behavior (spec.md §4.4).
type Config struct {
	MaxConcurrency int
	MaxAttempts    int
	FetchTimeout   time.Duration
	RateLimit      rate.Limit
	RateBurst      int
}

// Synchronizer fetches missing parents on demand, coalescing duplicate
// requests and bounding concurrency.
type Synchronizer struct {
	cfg     Config
	fetcher Fetcher
	scores  *PeerScore
	limiter *rate.Limiter

	mu      sync.Mutex
	inFlight map[block.Ref]struct{}
	sem     chan struct{}
}

// New constructs a Synchronizer.
func New(cfg Config, fetcher Fetcher) *Synchronizer {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Inf
	}
	return &Synchronizer{
		cfg:      cfg,
		fetcher:  fetcher,
		scores:   NewPeerScore(),
		limiter:  rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		inFlight: make(map[block.Ref]struct{}),
		sem:      make(chan struct{}, cfg.MaxConcurrency),
	}
}

// claim reserves ref for fetching, returning false if already in
// flight (request coalescing, spec.md §4.4).
func (s *Synchronizer) claim(ref block.Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[ref]; ok {
		return false
	}
	s.inFlight[ref] = struct{}{}
	return true
}

func (s *Synchronizer) release(ref block.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, ref)
}

// Fetch resolves ref from the best-scoring peer among candidates,
// retrying on a fresh peer up to MaxAttempts times, demoting each failed
// peer. Blocks at or below gcRound are treated as implicitly present and
// never fetched (spec.md §4.4).
func (s *Synchronizer) Fetch(ctx context.Context, ref block.Ref, candidates []ids.NodeID, gcRound block.Round) (*block.Certificate, error) {
	if ref.Round <= gcRound {
		return nil, nil
	}
	if !s.claim(ref) {
		return nil, nil
	}
	defer s.release(ref)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, consensuserrors.New(consensuserrors.KindShuttingDown, "sync: cancelled waiting for a fetch slot")
	}
	defer func() { <-s.sem }()

	tried := make(map[ids.NodeID]struct{})
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		peer, ok := s.scores.Best(candidates, tried)
		if !ok {
			break
		}
		tried[peer] = struct{}{}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, consensuserrors.New(consensuserrors.KindShuttingDown, "sync: cancelled waiting on rate limiter")
		}

		fetchCtx := ctx
		var cancel context.CancelFunc
		if s.cfg.FetchTimeout > 0 {
			fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		}
		cert, err := s.fetcher.Fetch(fetchCtx, peer, ref)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return cert, nil
		}
		if ctx.Err() != nil {
			return nil, consensuserrors.New(consensuserrors.KindShuttingDown, "sync: cancelled mid-fetch")
		}
		s.scores.Demote(peer)
	}
	return nil, consensuserrors.WithPeer(consensuserrors.KindNetwork, "", "sync: exhausted attempts fetching block", nil)
}

// BatchByRound groups a set of missing refs by round, to amortize round
// trips per spec.md §4.4's "batches requests by round".
func BatchByRound(refs []block.Ref) map[block.Round][]block.Ref {
	out := make(map[block.Round][]block.Ref)
	for _, r := range refs {
		out[r.Round] = append(out[r.Round], r)
	}
	return out
}
