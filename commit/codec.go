package commit

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/codec"
)

// Encode produces the canonical binary encoding of c, whose hash is the
// opaque digest stored in c.Digest (spec.md §3: "an opaque digest of the
// canonical serialization").
func (c *Commit) Encode() []byte {
	w := codec.NewWriter()
	w.PutUint64(uint64(c.Index))
	w.PutUint64(c.Epoch)
	w.PutUint64(uint64(c.Leader.Round))
	w.PutBytes(c.Leader.Author[:])
	w.PutBytes(c.Leader.Digest[:])
	w.PutInt64(c.TimestampMS)

	w.PutUint16(uint16(len(c.SubDag)))
	for _, ref := range c.SubDag {
		w.PutUint64(uint64(ref.Round))
		w.PutBytes(ref.Author[:])
		w.PutBytes(ref.Digest[:])
	}
	return w.Bytes()
}

// Decode parses a commit previously produced by Encode; c.Digest is not
// part of the wire encoding and is left zero for the caller to fill in.
func Decode(data []byte) (*Commit, error) {
	r, err := codec.NewReader(data)
	if err != nil {
		return nil, err
	}
	c := &Commit{}
	c.Index = Index(r.Uint64())
	c.Epoch = r.Uint64()
	c.Leader.Round = block.Round(r.Uint64())
	c.Leader.Author = nodeIDFrom(r.Bytes())
	c.Leader.Digest = idFrom(r.Bytes())
	c.TimestampMS = r.Int64()

	n := r.Uint16()
	c.SubDag = make([]block.Ref, 0, n)
	for i := uint16(0); i < n; i++ {
		round := block.Round(r.Uint64())
		author := nodeIDFrom(r.Bytes())
		digest := idFrom(r.Bytes())
		c.SubDag = append(c.SubDag, block.Ref{Round: round, Author: author, Digest: digest})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("commit: decode: %w", err)
	}
	return c, nil
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
