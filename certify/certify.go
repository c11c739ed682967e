// Package certify is the certifier (C6): it aggregates peer
// acknowledgment signatures over a locally-proposed block's BlockRef
// into a quorum certificate (spec.md §4.5).
package certify

import (
	"sync"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/committee"
	"github.com/dagbft/core/crypto"
	"github.com/dagbft/core/metrics"
)

// InFlight tracks signature collection for one locally-proposed block
// until it is certified or abandoned.
type InFlight struct {
	mu        sync.Mutex
	committee *committee.Committee
	b         *block.Block
	digest    ids.ID
	sigs      map[ids.NodeID][]byte
	certified bool
	metrics   metrics.Metrics // nil unless supplied to NewInFlight
}

// NewInFlight starts tracking acknowledgments for b, whose digest has
// already been computed by the crypto facade. m may be nil.
func NewInFlight(c *committee.Committee, b *block.Block, digest ids.ID, m metrics.Metrics) *InFlight {
	return &InFlight{committee: c, b: b, digest: digest, sigs: make(map[ids.NodeID][]byte), metrics: m}
}

// AddAck records signer's acknowledgment signature over the block's
// BlockRef. Acknowledgments arriving after certification are ignored
// (spec.md §4.5). Returns the assembled Certificate once stake meets
// quorum, nil otherwise.
func (f *InFlight) AddAck(signer ids.NodeID, sig []byte, verifier crypto.Verifier) *block.Certificate {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.certified {
		return nil
	}
	if !f.committee.Has(signer) {
		return nil
	}
	ref := f.b.Ref(f.digest)
	if verifier != nil && !verifier.Verify(signer, ref.Digest[:], sig) {
		return nil
	}
	f.sigs[signer] = sig

	var stake uint64
	for s := range f.sigs {
		stake += f.committee.StakeOf(s)
	}
	if !f.committee.MeetsQuorum(stake) {
		return nil
	}

	f.certified = true
	if f.metrics != nil {
		f.metrics.CertificatesFormed().Inc()
	}
	sigsCopy := make(map[ids.NodeID][]byte, len(f.sigs))
	for k, v := range f.sigs {
		sigsCopy[k] = v
	}
	return &block.Certificate{Block: f.b, Digest: f.digest, Signatures: sigsCopy}
}

// Certified reports whether this block has already been certified.
func (f *InFlight) Certified() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.certified
}

// Tracker manages one InFlight certification per locally-proposed
// BlockRef. Entries are removed only by Evict; the Tracker does not
// drop entries by round or GC frontier on its own.
type Tracker struct {
	mu      sync.Mutex
	cur     map[block.Ref]*InFlight
	metrics metrics.Metrics // nil unless supplied to NewTracker
}

// NewTracker constructs an empty Tracker. m may be nil.
func NewTracker(m metrics.Metrics) *Tracker {
	return &Tracker{cur: make(map[block.Ref]*InFlight), metrics: m}
}

// Start begins tracking acknowledgments for a freshly proposed block.
func (t *Tracker) Start(c *committee.Committee, b *block.Block, digest ids.ID) *InFlight {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := NewInFlight(c, b, digest, t.metrics)
	t.cur[b.Ref(digest)] = f
	return f
}

// Get returns the in-flight certification tracker for ref, if any.
func (t *Tracker) Get(ref block.Ref) (*InFlight, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.cur[ref]
	return f, ok
}

// Evict stops tracking ref, e.g. once certified or garbage collected.
func (t *Tracker) Evict(ref block.Ref) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cur, ref)
}
