// Package crypto is the consensus core's crypto facade (C1, spec.md §4
// intro): signing, verification, and signature-collection aggregation,
// treated by every other package as opaque primitives with the guarantees
// stated here. No cryptographic primitive is implemented from scratch —
// hashing delegates to github.com/luxfi/crypto/hashing (the same call the
// teacher's block-digest code uses) and signing delegates to a pluggable
// Signer/Verifier the host process supplies; see DESIGN.md for why the
// bundled default implementation is backed by stdlib ed25519 rather than a
// third-party package.
package crypto

import (
	"github.com/luxfi/crypto/hashing"
	"github.com/luxfi/ids"
)

// Digest256 hashes the canonical byte encoding of a block or commit into a
// 32-byte ID, per spec.md §6 ("a leading magic number plus format-version
// byte ... Digests are computed over the serialized bytes excluding any
// variable trailing metadata").
func Digest256(canonical []byte) ids.ID {
	return ids.ID(hashing.ComputeHash256Array(canonical))
}

// Signer produces a signature over an arbitrary message for one authority
// identity. Implementations MUST be deterministic for a given (key, msg)
// pair only insofar as the underlying scheme requires — no consensus
// invariant depends on signature determinism.
type Signer interface {
	NodeID() ids.NodeID
	Sign(msg []byte) ([]byte, error)
}

// Verifier checks a single signature against an authority's known public
// key material.
type Verifier interface {
	// Verify reports whether sig is a valid signature over msg by author.
	Verify(author ids.NodeID, msg []byte, sig []byte) bool
}

// SignatureSet is an unordered collection of per-authority signatures over
// the same message, as carried by a Certificate (spec.md §3). It is the
// "collection-of-signatures aggregation" C1 provides: no cryptographic
// aggregation is required since every authority's signature is individually
// retained and verified, keeping certificate verification a pure function
// of the committee's public keys.
type SignatureSet struct {
	Msg        []byte
	Signatures map[ids.NodeID][]byte
}

// NewSignatureSet creates an empty collection over msg.
func NewSignatureSet(msg []byte) *SignatureSet {
	return &SignatureSet{Msg: msg, Signatures: make(map[ids.NodeID][]byte)}
}

// Add records signer's signature. Re-adding the same signer overwrites
// their prior entry.
func (s *SignatureSet) Add(signer ids.NodeID, sig []byte) {
	s.Signatures[signer] = sig
}

// Has reports whether signer already contributed a signature.
func (s *SignatureSet) Has(signer ids.NodeID) bool {
	_, ok := s.Signatures[signer]
	return ok
}

// VerifyAll verifies every signature in the set against v, returning the
// first failing authority, or true with an empty NodeID if all verify.
func (s *SignatureSet) VerifyAll(v Verifier) (ok bool, failedAuthor ids.NodeID) {
	for author, sig := range s.Signatures {
		if !v.Verify(author, s.Msg, sig) {
			return false, author
		}
	}
	return true, ids.EmptyNodeID
}
