package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

func nodeID(b byte) ids.NodeID {
	var n ids.NodeID
	n[0] = b
	return n
}

func digestID(b byte) ids.ID {
	var id ids.ID
	id[0] = b
	return id
}

func TestRefLess_OrdersByRoundThenAuthorThenDigest(t *testing.T) {
	low := Ref{Round: 1, Author: nodeID(1), Digest: digestID(9)}
	high := Ref{Round: 2, Author: nodeID(0), Digest: digestID(0)}
	require.True(t, low.Less(high), "lower round must sort first regardless of author/digest")
	require.False(t, high.Less(low))

	sameRoundA := Ref{Round: 1, Author: nodeID(1), Digest: digestID(9)}
	sameRoundB := Ref{Round: 1, Author: nodeID(2), Digest: digestID(0)}
	require.True(t, sameRoundA.Less(sameRoundB), "equal round falls back to canonical author order")

	sameAuthorA := Ref{Round: 1, Author: nodeID(1), Digest: digestID(1)}
	sameAuthorB := Ref{Round: 1, Author: nodeID(1), Digest: digestID(2)}
	require.True(t, sameAuthorA.Less(sameAuthorB), "equal round and author falls back to digest bytes")
	require.False(t, sameAuthorA.Less(sameAuthorA))
}

func TestBlockEncodeDecode_RoundTrip(t *testing.T) {
	b := &Block{
		Version:     uint8(1),
		Epoch:       7,
		Round:       3,
		Author:      nodeID(5),
		TimestampMS: 123456,
		Parents: []Ref{
			{Round: 2, Author: nodeID(1), Digest: digestID(1)},
			{Round: 2, Author: nodeID(2), Digest: digestID(2)},
		},
		Payload:     []byte("hello world"),
		CommitVotes: []CommitVote{{Leader: Ref{Round: 1, Author: nodeID(3), Digest: digestID(3)}}},
		Signature:   []byte("sig-bytes"),
	}

	full, boundary := b.Encode()
	require.NotEmpty(t, full)
	require.Less(t, len(boundary), len(full), "digest boundary must exclude the trailing signature")

	decoded, err := Decode(full)
	require.NoError(t, err)
	require.Equal(t, b.Version, decoded.Version)
	require.Equal(t, b.Epoch, decoded.Epoch)
	require.Equal(t, b.Round, decoded.Round)
	require.Equal(t, b.Author, decoded.Author)
	require.Equal(t, b.TimestampMS, decoded.TimestampMS)
	require.Equal(t, b.Parents, decoded.Parents)
	require.Equal(t, b.Payload, decoded.Payload)
	require.Equal(t, b.CommitVotes, decoded.CommitVotes)
	require.Equal(t, b.Signature, decoded.Signature)
}

func TestCertificateEncodeDecode_RoundTrip(t *testing.T) {
	b := &Block{Epoch: 1, Round: 0, Author: nodeID(1)}
	cert := &Certificate{
		Block:  b,
		Digest: digestID(42),
		Signatures: map[ids.NodeID][]byte{
			nodeID(1): []byte("sig1"),
			nodeID(2): []byte("sig2"),
		},
	}

	encoded := cert.EncodeCertificate()
	decoded, err := DecodeCertificate(encoded)
	require.NoError(t, err)
	require.Equal(t, cert.Digest, decoded.Digest)
	require.Equal(t, cert.Block.Epoch, decoded.Block.Epoch)
	require.Equal(t, cert.Block.Author, decoded.Block.Author)
	require.Len(t, decoded.Signatures, 2)
	require.Equal(t, []byte("sig1"), decoded.Signatures[nodeID(1)])
	require.Equal(t, []byte("sig2"), decoded.Signatures[nodeID(2)])
}

func TestCertificateSignerStake(t *testing.T) {
	cert := &Certificate{
		Block:  &Block{},
		Digest: digestID(1),
		Signatures: map[ids.NodeID][]byte{
			nodeID(1): []byte("a"),
			nodeID(2): []byte("b"),
		},
	}
	stakeOf := func(id ids.NodeID) uint64 {
		if id == nodeID(1) {
			return 10
		}
		return 5
	}
	require.Equal(t, uint64(15), cert.SignerStake(stakeOf))
}
