package store

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/commit"
	"github.com/dagbft/core/corelog"
	"github.com/dagbft/core/metrics"
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

func TestStore_WriteAndGetBlockRoundTrip(t *testing.T) {
	s := New(memdb.New(), corelog.NewNop())

	cert := &block.Certificate{
		Block:      &block.Block{Round: 1, Author: nodeID(1), Epoch: 1, Payload: []byte("p")},
		Digest:     digestID(1),
		Signatures: map[ids.NodeID][]byte{nodeID(1): []byte("sig")},
	}
	require.NoError(t, s.WriteBlock(cert))

	got, found, err := s.GetBlock(cert.Ref())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, cert.Block.Round, got.Block.Round)
	require.Equal(t, cert.Block.Author, got.Block.Author)
	require.Equal(t, cert.Digest, got.Digest)

	byAuthorRound, found, err := s.GetBlockByAuthorRound(nodeID(1), 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, cert.Ref(), byAuthorRound)

	_, found, err = s.GetBlock(block.Ref{Round: 1, Author: nodeID(2), Digest: digestID(1)})
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_WriteCommitAndLastCommitResume(t *testing.T) {
	s := New(memdb.New(), corelog.NewNop())

	c := &commit.Commit{Index: 1, Epoch: 1, TimestampMS: 100}
	c.Digest = digestID(9)
	info := &commit.Info{Ref: commit.Ref{Index: 1, Digest: c.Digest}}

	require.NoError(t, s.WriteCommit(c, info))

	last, ok, err := s.LastCommit()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, commit.Index(1), last.Index)

	lastInfo, ok, err := s.LastCommitInfo()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, last, lastInfo.Ref)
}

func TestStore_RoundDigestsTracksWrittenBlocks(t *testing.T) {
	s := New(memdb.New(), corelog.NewNop())

	c1 := &block.Certificate{Block: &block.Block{Round: 5, Author: nodeID(1)}, Digest: digestID(1)}
	c2 := &block.Certificate{Block: &block.Block{Round: 5, Author: nodeID(2)}, Digest: digestID(2)}
	require.NoError(t, s.WriteBlock(c1))
	require.NoError(t, s.WriteBlock(c2))

	refs := s.RoundDigests(5)
	require.Len(t, refs, 2)

	s.AdvanceGC(6)
	require.Empty(t, s.RoundDigests(5), "AdvanceGC must drop the in-memory round index below the frontier")
}

func TestStore_RecoverBlocksScansAuthorRoundRange(t *testing.T) {
	s := New(memdb.New(), corelog.NewNop())
	a, b := nodeID(1), nodeID(2)

	require.NoError(t, s.WriteBlock(&block.Certificate{Block: &block.Block{Round: 1, Author: a}, Digest: digestID(1)}))
	require.NoError(t, s.WriteBlock(&block.Certificate{Block: &block.Block{Round: 2, Author: b}, Digest: digestID(2)}))
	require.NoError(t, s.WriteBlock(&block.Certificate{Block: &block.Block{Round: 3, Author: a}, Digest: digestID(3)}))

	recovered, err := s.RecoverBlocks([]ids.NodeID{a, b}, 1, 3)
	require.NoError(t, err)
	require.Len(t, recovered, 3)
}

func TestStore_ComparingModeLogsDiscrepancyAndIncrementsMetric(t *testing.T) {
	primary := memdb.New()
	secondary := memdb.New() // left empty: every primary write is "missing" here

	m, err := metrics.New("store_test_discrepancy", prometheus.NewRegistry())
	require.NoError(t, err)

	s := New(primary, corelog.NewNop()).WithMetrics(m)

	cert := &block.Certificate{Block: &block.Block{Round: 1, Author: nodeID(1)}, Digest: digestID(1)}
	require.NoError(t, s.WriteBlock(cert)) // secondary not yet enabled: primary-only write

	s.secondary = secondary // enable comparing mode post-hoc against the still-empty secondary

	_, found, err := s.GetBlock(cert.Ref())
	require.NoError(t, err)
	require.True(t, found, "primary is still the canonical source even when secondary disagrees")

	require.GreaterOrEqual(t, testutil.ToFloat64(m.StoreDiscrepancies()), 1.0)
}

func TestStore_CloseClosesBothBackends(t *testing.T) {
	s := New(memdb.New(), corelog.NewNop()).WithComparing(memdb.New(), 10)
	require.NoError(t, s.Close())
}

func TestDecodeRef_RejectsMalformedData(t *testing.T) {
	_, err := decodeRef([]byte("too short"))
	require.Error(t, err)
}
