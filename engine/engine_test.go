package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/committee"
	"github.com/dagbft/core/config"
	"github.com/dagbft/core/consensuserrors"
	"github.com/dagbft/core/corelog"
	"github.com/dagbft/core/crypto"
	"github.com/dagbft/core/store"
	dagsync "github.com/dagbft/core/sync"
)

// fourSignedAuthorities builds a 4-member equal-stake committee with real
// ed25519 keys, plus a verifier that checks any of them.
func fourSignedAuthorities(t *testing.T) (*committee.Committee, []*crypto.Ed25519Signer, *crypto.KeyVerifier) {
	t.Helper()
	signers := make([]*crypto.Ed25519Signer, 4)
	auths := make([]committee.Authority, 4)
	pubkeys := make(map[ids.NodeID][]byte, 4)
	for i := 0; i < 4; i++ {
		var id ids.NodeID
		id[0] = byte(i + 1)
		s, err := crypto.NewEd25519Signer(id)
		require.NoError(t, err)
		signers[i] = s
		auths[i] = committee.Authority{ID: id, Stake: 1}
		pubkeys[id] = s.PublicKey()
	}
	comm, err := committee.New(1, auths)
	require.NoError(t, err)
	return comm, signers, &crypto.KeyVerifier{PublicKeys: pubkeys}
}

func genesisCerts(authors ...ids.NodeID) []*block.Certificate {
	out := make([]*block.Certificate, 0, len(authors))
	for _, a := range authors {
		out = append(out, &block.Certificate{Block: &block.Block{Round: 0, Author: a}, Digest: ids.ID{}})
	}
	return out
}

// signedCert builds and signs a block's own proposer signature (the
// signature checkSignature verifies), distinct from the ack-quorum
// Signatures map a Certificate also carries. TimestampMS is stamped to
// the current wall clock so checkTimestamp's skew bound is satisfied.
func signedCert(t *testing.T, signer *crypto.Ed25519Signer, round block.Round, parents []block.Ref) *block.Certificate {
	t.Helper()
	b := &block.Block{Round: round, Author: signer.NodeID(), Epoch: 1, Parents: parents, TimestampMS: time.Now().UnixMilli()}
	_, boundary := b.Encode()
	digest := crypto.Digest256(boundary)
	sig, err := signer.Sign(digest[:])
	require.NoError(t, err)
	b.Signature = sig
	return &block.Certificate{Block: b, Digest: digest}
}

func genesisRefs(authors []ids.NodeID) []block.Ref {
	refs := make([]block.Ref, len(authors))
	for i, a := range authors {
		refs[i] = block.Ref{Round: 0, Author: a, Digest: ids.ID{}}
	}
	return refs
}

func newTestEngine(t *testing.T, comm *committee.Committee, signer *crypto.Ed25519Signer, verifier *crypto.KeyVerifier, genesis []*block.Certificate) *Engine {
	t.Helper()
	return newTestEngineWithFetcher(t, comm, signer, verifier, genesis, nil)
}

// newTestEngineWithFetcher is the same as newTestEngine but wires fetcher
// into Deps before construction: the synchronizer captures its Fetcher at
// New time, so assigning deps.SyncFetcher after construction would leave
// the already-built synchronizer pointed at the old (nil) value.
func newTestEngineWithFetcher(t *testing.T, comm *committee.Committee, signer *crypto.Ed25519Signer, verifier *crypto.KeyVerifier, genesis []*block.Certificate, fetcher dagsync.Fetcher) *Engine {
	t.Helper()
	deps := Deps{
		Epoch:       1,
		Committee:   comm,
		Params:      config.DefaultParams(),
		Log:         corelog.NewNop(),
		Store:       store.New(memdb.New(), corelog.NewNop()),
		Signer:      signer,
		Verifier:    verifier,
		SyncFetcher: fetcher,
	}
	e := New(deps, genesis)
	require.NoError(t, e.Initialize(context.Background()))
	return e
}

func TestEngine_InitializeTransitionsToRunning(t *testing.T) {
	comm, signers, verifier := fourSignedAuthorities(t)
	authors := make([]ids.NodeID, len(signers))
	for i, s := range signers {
		authors[i] = s.NodeID()
	}
	e := newTestEngine(t, comm, signers[0], verifier, genesisCerts(authors...))
	require.Equal(t, StateRunning, e.State())
}

func TestEngine_ProposeHandleAckInsertsCertifiedBlock(t *testing.T) {
	comm, signers, verifier := fourSignedAuthorities(t)
	authors := make([]ids.NodeID, len(signers))
	for i, s := range signers {
		authors[i] = s.NodeID()
	}
	e := newTestEngine(t, comm, signers[0], verifier, genesisCerts(authors...))

	b, digest, err := e.Propose(nil)
	require.NoError(t, err)
	require.Equal(t, block.Round(1), b.Round)

	ref := b.Ref(digest)
	// Three of four authorities (quorum) acknowledge; the third ack must
	// assemble and insert the certificate.
	for i := 1; i <= 3; i++ {
		sig, signErr := signers[i].Sign(ref.Digest[:])
		require.NoError(t, signErr)
		_, ackErr := e.HandleAck(context.Background(), ref, signers[i].NodeID(), sig)
		require.NoError(t, ackErr)
	}

	got, found, err := e.deps.Store.GetBlockByAuthorRound(signers[0].NodeID(), 1)
	require.NoError(t, err)
	require.True(t, found, "certified block must have been inserted and durably written")
	require.Equal(t, digest, got.Digest)
}

func TestEngine_HandleAckUnknownRefReturnsProtocolKind(t *testing.T) {
	comm, signers, verifier := fourSignedAuthorities(t)
	authors := make([]ids.NodeID, len(signers))
	for i, s := range signers {
		authors[i] = s.NodeID()
	}
	e := newTestEngine(t, comm, signers[0], verifier, genesisCerts(authors...))

	ref := block.Ref{Round: 1, Author: signers[0].NodeID(), Digest: ids.ID{1}}
	_, err := e.HandleAck(context.Background(), ref, signers[1].NodeID(), []byte("sig"))
	require.Error(t, err)
	kind, ok := consensuserrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, consensuserrors.KindProtocol, kind)
}

func TestEngine_InsertBlockFetchesMissingParentsThenInserts(t *testing.T) {
	comm, signers, verifier := fourSignedAuthorities(t)
	authors := make([]ids.NodeID, len(signers))
	for i, s := range signers {
		authors[i] = s.NodeID()
	}
	genRefs := genesisRefs(authors)
	round1 := make([]*block.Certificate, len(signers))
	round1Refs := make([]block.Ref, len(signers))
	for i, s := range signers {
		round1[i] = signedCert(t, s, 1, genRefs)
		round1Refs[i] = round1[i].Ref()
	}

	e := newTestEngineWithFetcher(t, comm, signers[0], verifier, genesisCerts(authors...), &fakeFetcher{byRef: toRefMap(round1)})

	round2 := signedCert(t, signers[0], 2, round1Refs)

	commits, err := e.InsertBlock(context.Background(), round2)
	require.NoError(t, err)
	require.Empty(t, commits, "no leader slot is committable this early")

	for _, ref := range round1Refs {
		_, ok := e.dag.Get(ref)
		require.True(t, ok, "missing round-1 parent must have been fetched and inserted")
	}
	_, ok := e.dag.Get(round2.Ref())
	require.True(t, ok)
}

type fakeFetcher struct {
	byRef map[block.Ref]*block.Certificate
}

func toRefMap(certs []*block.Certificate) map[block.Ref]*block.Certificate {
	out := make(map[block.Ref]*block.Certificate, len(certs))
	for _, c := range certs {
		out[c.Ref()] = c
	}
	return out
}

func (f *fakeFetcher) Fetch(ctx context.Context, peer ids.NodeID, ref block.Ref) (*block.Certificate, error) {
	if c, ok := f.byRef[ref]; ok {
		return c, nil
	}
	return nil, consensuserrors.New(consensuserrors.KindNetwork, "fakeFetcher: no such block")
}
