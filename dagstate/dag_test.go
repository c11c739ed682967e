package dagstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/committee"
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

func genesisCerts(authors ...ids.NodeID) []*block.Certificate {
	out := make([]*block.Certificate, 0, len(authors))
	for _, a := range authors {
		out = append(out, &block.Certificate{
			Block:  &block.Block{Round: 0, Author: a},
			Digest: digestID(0),
		})
	}
	return out
}

func cert(round block.Round, author ids.NodeID, digest ids.ID, parents []block.Ref) *block.Certificate {
	return &block.Certificate{
		Block:  &block.Block{Round: round, Author: author, Parents: parents},
		Digest: digest,
	}
}

func TestDAGInsert_RejectsEquivocation(t *testing.T) {
	a := nodeID(1)
	d := New(genesisCerts(a))

	c1 := cert(1, a, digestID(1), []block.Ref{{Round: 0, Author: a, Digest: digestID(0)}})
	require.NoError(t, d.Insert(c1))

	// Same author, same round, different digest: equivocation.
	c2 := cert(1, a, digestID(2), []block.Ref{{Round: 0, Author: a, Digest: digestID(0)}})
	err := d.Insert(c2)
	require.Error(t, err)

	// Re-inserting the exact same certificate is idempotent, not an error.
	require.NoError(t, d.Insert(c1))
}

func TestDAGGet_RejectsDigestMismatch(t *testing.T) {
	a := nodeID(1)
	d := New(genesisCerts(a))
	c1 := cert(1, a, digestID(1), nil)
	require.NoError(t, d.Insert(c1))

	_, ok := d.Get(block.Ref{Round: 1, Author: a, Digest: digestID(2)})
	require.False(t, ok)

	got, ok := d.Get(block.Ref{Round: 1, Author: a, Digest: digestID(1)})
	require.True(t, ok)
	require.Equal(t, c1, got)
}

func TestLeader_PicksScheduledAuthorWhenPresent(t *testing.T) {
	a, b := nodeID(1), nodeID(2)
	c, err := committee.New(1, []committee.Authority{{ID: a, Stake: 1}, {ID: b, Stake: 1}})
	require.NoError(t, err)

	d := New(genesisCerts(a, b))
	leaderAuthor := committee.LeaderSchedule(c, nil, 1)
	leaderCert := cert(1, leaderAuthor, digestID(1), nil)
	require.NoError(t, d.Insert(leaderCert))

	got, ok := Leader(d, c, nil, 1)
	require.True(t, ok)
	require.Equal(t, leaderCert, got)
}

func TestLeader_AbsentWhenScheduledAuthorHasNotProposed(t *testing.T) {
	a, b := nodeID(1), nodeID(2)
	c, err := committee.New(1, []committee.Authority{{ID: a, Stake: 1}, {ID: b, Stake: 1}})
	require.NoError(t, err)
	d := New(genesisCerts(a, b))

	_, ok := Leader(d, c, nil, 1)
	require.False(t, ok)
}

// buildFourRoundChain wires a minimal four-authority DAG spanning rounds
// 0-3 so CommittableStake (which looks two rounds past the leader) and
// OrderDag have a non-trivial sub-DAG to walk.
func buildFourRoundChain(t *testing.T) (*DAG, *committee.Committee, ids.NodeID, ids.NodeID, ids.NodeID, ids.NodeID) {
	t.Helper()
	a, b, c2, d2 := nodeID(1), nodeID(2), nodeID(3), nodeID(4)
	comm, err := committee.New(1, []committee.Authority{
		{ID: a, Stake: 1}, {ID: b, Stake: 1}, {ID: c2, Stake: 1}, {ID: d2, Stake: 1},
	})
	require.NoError(t, err)

	dag := New(genesisCerts(a, b, c2, d2))

	round0 := []block.Ref{
		{Round: 0, Author: a, Digest: digestID(0)},
		{Round: 0, Author: b, Digest: digestID(0)},
		{Round: 0, Author: c2, Digest: digestID(0)},
		{Round: 0, Author: d2, Digest: digestID(0)},
	}
	leaderCert := cert(1, a, digestID(10), round0)
	require.NoError(t, dag.Insert(leaderCert))
	require.NoError(t, dag.Insert(cert(1, b, digestID(11), round0)))
	require.NoError(t, dag.Insert(cert(1, c2, digestID(12), round0)))
	require.NoError(t, dag.Insert(cert(1, d2, digestID(13), round0)))

	// Every round-1 block, including the leader's, becomes a parent of
	// every round-2 block: round-2 blocks therefore all "support" the
	// leader per parentSupportsLeader.
	leaderRef := leaderCert.Ref()
	round1 := []block.Ref{
		leaderRef,
		{Round: 1, Author: b, Digest: digestID(11)},
		{Round: 1, Author: c2, Digest: digestID(12)},
		{Round: 1, Author: d2, Digest: digestID(13)},
	}
	require.NoError(t, dag.Insert(cert(2, a, digestID(20), round1)))
	require.NoError(t, dag.Insert(cert(2, b, digestID(21), round1)))
	require.NoError(t, dag.Insert(cert(2, c2, digestID(22), round1)))
	require.NoError(t, dag.Insert(cert(2, d2, digestID(23), round1)))

	// Round-3 blocks parent the round-2 blocks, which all support the
	// leader, so all four round-3 blocks vote for the leader.
	round2 := []block.Ref{
		{Round: 2, Author: a, Digest: digestID(20)},
		{Round: 2, Author: b, Digest: digestID(21)},
		{Round: 2, Author: c2, Digest: digestID(22)},
		{Round: 2, Author: d2, Digest: digestID(23)},
	}
	require.NoError(t, dag.Insert(cert(3, a, digestID(30), round2)))
	require.NoError(t, dag.Insert(cert(3, b, digestID(31), round2)))
	require.NoError(t, dag.Insert(cert(3, c2, digestID(32), round2)))
	require.NoError(t, dag.Insert(cert(3, d2, digestID(33), round2)))

	return dag, comm, a, b, c2, d2
}

func TestCommittableStake_MeetsQuorumWhenAllFourVote(t *testing.T) {
	dag, comm, a, _, _, _ := buildFourRoundChain(t)
	leaderCert, ok := dag.ByAuthorRound(1, a)
	require.True(t, ok)

	stake := CommittableStake(dag, comm, leaderCert.Ref())
	require.True(t, comm.MeetsQuorum(stake), "all four round-3 blocks descend from round-2 blocks that all support the leader")
}

func TestOrderDag_SortsByRoundThenCanonicalAuthorThenDigest(t *testing.T) {
	dag, _, a, _, _, _ := buildFourRoundChain(t)
	// Root the walk at the round-2 leader block: its four round-1 parents
	// (one per author) all survive the walk's skip checks, so the ordering
	// pass has same-round, different-author ties to break.
	root, ok := dag.ByAuthorRound(2, a)
	require.True(t, ok)

	ordered := OrderDag(dag, 60, root)
	require.Len(t, ordered, 5, "the round-2 leader plus its four round-1 parents")

	for i := 1; i < len(ordered); i++ {
		prevRef := ordered[i-1].Block.Ref(ordered[i-1].Digest)
		curRef := ordered[i].Block.Ref(ordered[i].Digest)
		require.False(t, curRef.Less(prevRef), "sub-DAG must be non-decreasing under the canonical Ref order")
	}
	// The four round-1 ties must land in canonical author order.
	require.Equal(t, block.Round(1), ordered[0].Block.Round)
	for i := 0; i < 3; i++ {
		require.True(t, ordered[i].Block.Author.Compare(ordered[i+1].Block.Author) < 0)
	}
}

func TestDAGUpdate_PurgesRoundsBelowGCFloor(t *testing.T) {
	a, b := nodeID(1), nodeID(2)
	d := New(genesisCerts(a, b))
	for r := block.Round(1); r <= 5; r++ {
		require.NoError(t, d.Insert(cert(r, a, digestID(byte(r)), nil)))
	}
	// b never advances past round 0, so its round-3 entry has no
	// last-committed round of its own to be pruned against.
	require.NoError(t, d.Insert(cert(3, b, digestID(30), nil)))

	leaderCert := cert(5, a, digestID(5), nil)
	d.Update(leaderCert, 2)

	require.Equal(t, block.Round(5), d.LastCommittedRound())

	// Whole rounds below the gc_depth=2 floor (cutoff = 5-2 = 3) are dropped.
	require.Empty(t, d.byRound[1])
	require.Empty(t, d.byRound[2])

	// Within the surviving window, a's own round-3/4 entries are superseded
	// by its round-5 commit and pruned, but b's round-3 entry survives since
	// b has nothing later committed yet.
	_, ok := d.Get(block.Ref{Round: 3, Author: a, Digest: digestID(3)})
	require.False(t, ok)
	_, ok = d.Get(block.Ref{Round: 3, Author: b, Digest: digestID(30)})
	require.True(t, ok, "b's round-3 block is still within the GC window and not yet superseded")
	_, ok = d.Get(block.Ref{Round: 5, Author: a, Digest: digestID(5)})
	require.True(t, ok)
}
