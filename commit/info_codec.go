package commit

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/codec"
)

// EncodeInfo serializes a CommitInfo record (spec.md §3's "CommitInfo").
func (i *Info) EncodeInfo() []byte {
	w := codec.NewWriter()
	w.PutUint64(uint64(i.Ref.Index))
	w.PutBytes(i.Ref.Digest[:])
	w.PutUint64(uint64(i.GCRound))
	w.PutUint64(uint64(i.PriorSlotClose.Index))
	w.PutBytes(i.PriorSlotClose.Digest[:])

	w.PutUint16(uint16(len(i.Scores)))
	for author, score := range i.Scores {
		w.PutBytes(author[:])
		w.PutUint64(score)
	}
	return w.Bytes()
}

// DecodeInfo parses a CommitInfo record previously produced by EncodeInfo.
func DecodeInfo(data []byte) (*Info, error) {
	r, err := codec.NewReader(data)
	if err != nil {
		return nil, err
	}
	i := &Info{}
	i.Ref.Index = Index(r.Uint64())
	i.Ref.Digest = idFrom(r.Bytes())
	i.GCRound = block.Round(r.Uint64())
	i.PriorSlotClose.Index = Index(r.Uint64())
	i.PriorSlotClose.Digest = idFrom(r.Bytes())

	n := r.Uint16()
	if n > 0 {
		i.Scores = make(map[ids.NodeID]uint64, n)
	}
	for k := uint16(0); k < n; k++ {
		author := nodeIDFrom(r.Bytes())
		score := r.Uint64()
		i.Scores[author] = score
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("commit: decode info: %w", err)
	}
	return i, nil
}

// EncodeFinalized serializes a FinalizedCommit record.
func (f *FinalizedCommit) EncodeFinalized() []byte {
	w := codec.NewWriter()
	w.PutUint64(uint64(f.Ref.Index))
	w.PutBytes(f.Ref.Digest[:])
	w.PutUint16(uint16(len(f.Rejected)))
	for ref, indices := range f.Rejected {
		w.PutUint64(uint64(ref.Round))
		w.PutBytes(ref.Author[:])
		w.PutBytes(ref.Digest[:])
		w.PutUint16(uint16(len(indices)))
		for _, idx := range indices {
			w.PutUint64(uint64(idx))
		}
	}
	return w.Bytes()
}

// DecodeFinalized parses a FinalizedCommit record previously produced by
// EncodeFinalized.
func DecodeFinalized(data []byte) (*FinalizedCommit, error) {
	r, err := codec.NewReader(data)
	if err != nil {
		return nil, err
	}
	f := &FinalizedCommit{}
	f.Ref.Index = Index(r.Uint64())
	f.Ref.Digest = idFrom(r.Bytes())

	n := r.Uint16()
	if n > 0 {
		f.Rejected = make(map[block.Ref][]uint32, n)
	}
	for k := uint16(0); k < n; k++ {
		round := block.Round(r.Uint64())
		author := nodeIDFrom(r.Bytes())
		digest := idFrom(r.Bytes())
		ref := block.Ref{Round: round, Author: author, Digest: digest}
		m := r.Uint16()
		indices := make([]uint32, 0, m)
		for j := uint16(0); j < m; j++ {
			indices = append(indices, uint32(r.Uint64()))
		}
		f.Rejected[ref] = indices
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("commit: decode finalized commit: %w", err)
	}
	return f, nil
}
