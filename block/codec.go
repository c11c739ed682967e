package block

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/codec"
)

// Encode produces the canonical binary encoding of b, returning both the
// bytes and the digest-boundary prefix (everything but the trailing
// signature) that the crypto facade should hash for the block's digest.
func (b *Block) Encode() (full []byte, digestBoundary []byte) {
	w := codec.NewWriter()
	w.PutUint8(b.Version)
	w.PutUint64(b.Epoch)
	w.PutUint64(uint64(b.Round))
	w.PutBytes(b.Author[:])
	w.PutInt64(b.TimestampMS)

	w.PutUint16(uint16(len(b.Parents)))
	for _, p := range b.Parents {
		w.PutUint64(uint64(p.Round))
		w.PutBytes(p.Author[:])
		w.PutBytes(p.Digest[:])
	}

	w.PutBytes(b.Payload)

	w.PutUint16(uint16(len(b.CommitVotes)))
	for _, v := range b.CommitVotes {
		w.PutUint64(uint64(v.Leader.Round))
		w.PutBytes(v.Leader.Author[:])
		w.PutBytes(v.Leader.Digest[:])
	}

	boundary := w.DigestBoundary()
	w.PutBytes(b.Signature)
	return w.Bytes(), boundary
}

// Decode parses a block previously produced by Encode.
func Decode(data []byte) (*Block, error) {
	r, err := codec.NewReader(data)
	if err != nil {
		return nil, err
	}

	b := &Block{}
	b.Version = r.Uint8()
	b.Epoch = r.Uint64()
	b.Round = Round(r.Uint64())
	b.Author = nodeIDFrom(r.Bytes())
	b.TimestampMS = r.Int64()

	numParents := r.Uint16()
	b.Parents = make([]Ref, 0, numParents)
	for i := uint16(0); i < numParents; i++ {
		round := Round(r.Uint64())
		author := nodeIDFrom(r.Bytes())
		digest := idFrom(r.Bytes())
		b.Parents = append(b.Parents, Ref{Round: round, Author: author, Digest: digest})
	}

	b.Payload = append([]byte(nil), r.Bytes()...)

	numVotes := r.Uint16()
	b.CommitVotes = make([]CommitVote, 0, numVotes)
	for i := uint16(0); i < numVotes; i++ {
		round := Round(r.Uint64())
		author := nodeIDFrom(r.Bytes())
		digest := idFrom(r.Bytes())
		b.CommitVotes = append(b.CommitVotes, CommitVote{Leader: Ref{Round: round, Author: author, Digest: digest}})
	}

	b.Signature = append([]byte(nil), r.Bytes()...)

	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("block: decode: %w", err)
	}
	return b, nil
}

// EncodeCertificate appends the quorum signature set to the block's own
// encoding, producing the form persisted in the store's `blocks`
// namespace (spec.md §4.1: "serialized block with embedded certificate").
func (c *Certificate) EncodeCertificate() []byte {
	full, _ := c.Block.Encode()
	w := codec.NewWriter()
	w.PutBytes(full)
	w.PutBytes(c.Digest[:])
	w.PutUint16(uint16(len(c.Signatures)))
	for signer, sig := range c.Signatures {
		w.PutBytes(signer[:])
		w.PutBytes(sig)
	}
	return w.Bytes()
}

// DecodeCertificate parses a certificate previously produced by
// EncodeCertificate.
func DecodeCertificate(data []byte) (*Certificate, error) {
	r, err := codec.NewReader(data)
	if err != nil {
		return nil, err
	}
	blockBytes := r.Bytes()
	digest := idFrom(r.Bytes())
	n := r.Uint16()
	sigs := make(map[ids.NodeID][]byte, n)
	for i := uint16(0); i < n; i++ {
		signer := nodeIDFrom(r.Bytes())
		sig := append([]byte(nil), r.Bytes()...)
		sigs[signer] = sig
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("block: decode certificate: %w", err)
	}
	b, err := Decode(blockBytes)
	if err != nil {
		return nil, fmt.Errorf("block: decode certificate: %w", err)
	}
	return &Certificate{Block: b, Digest: digest, Signatures: sigs}, nil
}

func nodeIDFrom(b []byte) ids.NodeID {
	var n ids.NodeID
	copy(n[:], b)
	return n
}

func idFrom(b []byte) ids.ID {
	var id ids.ID
	copy(id[:], b)
	return id
}
