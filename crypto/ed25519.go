package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/luxfi/ids"
)

// Ed25519Signer is the bundled default Signer/Verifier backend. Production
// deployments are expected to inject a Signer backed by whatever key
// management the hosting binary uses (out of scope per spec.md §1); this
// implementation exists so the engine, its tests, and consensustest
// fixtures have a concrete, deterministic signer without depending on
// external key infrastructure.
type Ed25519Signer struct {
	nodeID ids.NodeID
	priv   ed25519.PrivateKey
}

// NewEd25519Signer generates a fresh keypair bound to nodeID.
func NewEd25519Signer(nodeID ids.NodeID) (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate ed25519 key: %w", err)
	}
	return &Ed25519Signer{nodeID: nodeID, priv: priv}, nil
}

func (s *Ed25519Signer) NodeID() ids.NodeID { return s.nodeID }

func (s *Ed25519Signer) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, msg), nil
}

// PublicKey returns the raw public key bytes for registration in a
// committee.Authority.
func (s *Ed25519Signer) PublicKey() []byte {
	return s.priv.Public().(ed25519.PublicKey)
}

// KeyVerifier verifies signatures against a fixed author->public-key map,
// typically sourced from committee.Committee.
type KeyVerifier struct {
	PublicKeys map[ids.NodeID][]byte
}

func (v *KeyVerifier) Verify(author ids.NodeID, msg []byte, sig []byte) bool {
	pub, ok := v.PublicKeys[author]
	if !ok || len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}
