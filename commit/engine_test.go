package commit

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/committee"
	"github.com/dagbft/core/corelog"
	"github.com/dagbft/core/dagstate"
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

type fakeWriter struct {
	commits []*Commit
	infos   []*Info
}

func (w *fakeWriter) WriteCommit(c *Commit, info *Info) error {
	w.commits = append(w.commits, c)
	w.infos = append(w.infos, info)
	return nil
}

func cert(round block.Round, author ids.NodeID, digest ids.ID, parents []block.Ref) *block.Certificate {
	return &block.Certificate{
		Block:  &block.Block{Round: round, Author: author, Parents: parents},
		Digest: digest,
	}
}

func genesisCerts(authors ...ids.NodeID) []*block.Certificate {
	out := make([]*block.Certificate, 0, len(authors))
	for _, a := range authors {
		out = append(out, &block.Certificate{Block: &block.Block{Round: 0, Author: a}, Digest: digestID(0)})
	}
	return out
}

// fourAuthorCommittee returns a quorum-of-3-of-4 equal-stake committee and
// its four member IDs in insertion order (1,2,3,4).
func fourAuthorCommittee(t *testing.T) (*committee.Committee, []ids.NodeID) {
	t.Helper()
	authors := []ids.NodeID{nodeID(1), nodeID(2), nodeID(3), nodeID(4)}
	comm, err := committee.New(1, []committee.Authority{
		{ID: authors[0], Stake: 1}, {ID: authors[1], Stake: 1},
		{ID: authors[2], Stake: 1}, {ID: authors[3], Stake: 1},
	})
	require.NoError(t, err)
	return comm, authors
}

// Advance's first iteration always looks for a leader at round 2 (the
// zero-value lastCommittedLeaderRound plus 2), and needs committable
// votes from round 4. leaderCert occupies round 2; every round-3 block
// supports it directly, and every round-4 block descends from all four
// round-3 blocks, so all four round-4 blocks vote for the leader.
func TestEngine_AdvanceCommitsLeaderWhenQuorumReached(t *testing.T) {
	comm, authors := fourAuthorCommittee(t)
	dag := dagstate.New(genesisCerts(authors...))

	leaderAuthor := committee.LeaderSchedule(comm, nil, 2)
	leaderCert := cert(2, leaderAuthor, digestID(10), nil)
	require.NoError(t, dag.Insert(leaderCert))
	leaderRef := leaderCert.Ref()

	round3 := make([]block.Ref, 0, len(authors))
	for i, a := range authors {
		d := digestID(byte(30 + i))
		require.NoError(t, dag.Insert(cert(3, a, d, []block.Ref{leaderRef})))
		round3 = append(round3, block.Ref{Round: 3, Author: a, Digest: d})
	}
	for i, a := range authors {
		require.NoError(t, dag.Insert(cert(4, a, digestID(byte(40+i)), round3)))
	}

	writer := &fakeWriter{}
	eng := NewEngine(comm, dag, writer, corelog.NewNop(), 60, true, false, nil)

	commits, err := eng.Advance(1, 0)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	require.Equal(t, leaderRef, commits[0].Leader)
	require.Len(t, writer.commits, 1)
}

func TestEngine_AdvanceSkipsWhenLeaderNeverProposedAndSkipEnabled(t *testing.T) {
	comm, authors := fourAuthorCommittee(t)
	dag := dagstate.New(genesisCerts(authors...))

	// Nobody occupies the scheduled round-2 leader slot, but rounds 3-4
	// are populated anyway so Advance's rNext+2 bound is met; with no
	// committable leader and leaderSkipEnabled, a skip record must be
	// emitted instead.
	for i, a := range authors {
		require.NoError(t, dag.Insert(cert(3, a, digestID(byte(30+i)), nil)))
		require.NoError(t, dag.Insert(cert(4, a, digestID(byte(40+i)), nil)))
	}

	m, err := metrics.New("commit_test_skip", prometheus.NewRegistry())
	require.NoError(t, err)

	writer := &fakeWriter{}
	eng := NewEngine(comm, dag, writer, corelog.NewNop(), 60, true, false, m)

	commits, err := eng.Advance(1, 42)
	require.NoError(t, err)
	require.NotEmpty(t, commits)
	require.Equal(t, block.Ref{}, commits[0].Leader, "a skipped slot carries the zero leader ref")

	require.GreaterOrEqual(t, testutil.ToFloat64(m.SlotsSkipped()), 1.0)
}

func TestGcRoundFor_ClampsAtZero(t *testing.T) {
	require.Equal(t, block.Round(0), gcRoundFor(10, 60))
	require.Equal(t, block.Round(5), gcRoundFor(65, 60))
}
