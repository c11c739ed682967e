// Package consensustest provides deterministic fixtures for exercising
// the consensus core in unit tests: a fixed-stake test committee, its
// matching signers/verifier, and genesis certificate construction.
// Grounded on the teacher's consensustest package (testing.TB-scoped
// helper constructors such as Context/SimpleContext), adapted from
// Avalanche chain-context fixtures to this package's DAG-BFT types.
package consensustest

import (
	"testing"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/committee"
	"github.com/dagbft/core/crypto"
)

// Committee is a deterministic test committee: equal-stake authorities,
// each with a generated ed25519 signer, plus a verifier that checks
// against every authority's public key.
type Committee struct {
	Committee *committee.Committee
	Signers   map[ids.NodeID]*crypto.Ed25519Signer
	Verifier  *crypto.KeyVerifier
	Order     []ids.NodeID
}

// NewCommittee builds a Committee of n equal-stake authorities for the
// given epoch. Fails the test immediately on any construction error,
// mirroring the teacher's test-helper convention of calling tb.Fatalf
// rather than returning an error.
func NewCommittee(tb testing.TB, epoch uint64, n int) *Committee {
	tb.Helper()

	signers := make(map[ids.NodeID]*crypto.Ed25519Signer, n)
	pubKeys := make(map[ids.NodeID][]byte, n)
	authorities := make([]committee.Authority, 0, n)

	for i := 0; i < n; i++ {
		nodeID := ids.GenerateTestNodeID()
		signer, err := crypto.NewEd25519Signer(nodeID)
		if err != nil {
			tb.Fatalf("consensustest: generate signer: %v", err)
		}
		signers[nodeID] = signer
		pubKeys[nodeID] = signer.PublicKey()
		authorities = append(authorities, committee.Authority{
			ID:        nodeID,
			PublicKey: signer.PublicKey(),
			Stake:     1,
		})
	}

	c, err := committee.New(epoch, authorities)
	if err != nil {
		tb.Fatalf("consensustest: build committee: %v", err)
	}

	return &Committee{
		Committee: c,
		Signers:   signers,
		Verifier:  &crypto.KeyVerifier{PublicKeys: pubKeys},
		Order:     c.Ordered(),
	}
}

// Genesis builds one round-0 certificate per authority, each signed by
// every authority (trivially meets quorum since genesis blocks carry no
// parents to validate against).
func (c *Committee) Genesis(tb testing.TB, epoch uint64) []*block.Certificate {
	tb.Helper()

	certs := make([]*block.Certificate, 0, len(c.Order))
	for _, author := range c.Order {
		b := &block.Block{
			Epoch:       epoch,
			Round:       0,
			Author:      author,
			TimestampMS: 0,
		}
		_, boundary := b.Encode()
		digest := crypto.Digest256(boundary)
		sigs := make(map[ids.NodeID][]byte, len(c.Order))
		for signerID, signer := range c.Signers {
			sig, err := signer.Sign(digest[:])
			if err != nil {
				tb.Fatalf("consensustest: sign genesis block: %v", err)
			}
			sigs[signerID] = sig
		}
		certs = append(certs, &block.Certificate{Block: b, Digest: digest, Signatures: sigs})
	}
	return certs
}
