package chord

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wanhive/hub-sub001/internal/ringid"
)

func newTable(t *testing.T, k uint, self uint64) (*ringid.Ring, *RoutingTable) {
	t.Helper()
	r, err := ringid.New(k)
	require.NoError(t, err)
	tbl, err := NewRoutingTable(r, self)
	require.NoError(t, err)
	return r, tbl
}

func TestStandaloneRouting(t *testing.T) {
	r, tbl := newTable(t, 4, 7)
	for k := uint64(0); k < r.N(); k++ {
		require.True(t, tbl.IsLocal(k), "IsLocal(%d)", k)
		require.Equal(t, uint64(7), tbl.NextHop(k), "NextHop(%d)", k)
	}
	require.True(t, tbl.IsStable())
	require.Equal(t, uint64(7), tbl.Predecessor())
	require.Equal(t, uint64(7), tbl.Successor())
}

func TestJoinSemantics(t *testing.T) {
	_, tbl := newTable(t, 4, 1)
	tbl.Join(5)
	require.Equal(t, uint64(0), tbl.Predecessor())
	require.Equal(t, uint64(5), tbl.Successor())
	require.False(t, tbl.IsStable())
}

// TestStabilizeConvergence reproduces spec.md §8's three-node scenario:
// K=4 (N=16), nodes {1,5,9}. Running stabilize+notify to fixed point
// should yield the cyclic predecessor/successor pairs (9,5),(1,9),(5,1).
func TestStabilizeConvergence(t *testing.T) {
	_, n1 := newTable(t, 4, 1)
	_, n5 := newTable(t, 4, 5)
	_, n9 := newTable(t, 4, 9)

	// Seed: each node joins its clockwise neighbor as successor.
	n1.Join(5)
	n5.Join(9)
	n9.Join(1)

	nodes := map[uint64]*RoutingTable{1: n1, 5: n5, 9: n9}

	// Run several rounds of stabilize+notify until the ring converges.
	for round := 0; round < 10; round++ {
		for id, n := range nodes {
			succID := n.Successor()
			succ := nodes[succID]
			n.Stabilize(succ.Predecessor())
			succ.Notify(id)
		}
	}

	require.Equal(t, uint64(1), n5.Predecessor())
	require.Equal(t, uint64(9), n5.Successor())

	require.Equal(t, uint64(5), n9.Predecessor())
	require.Equal(t, uint64(1), n9.Successor())

	require.Equal(t, uint64(9), n1.Predecessor())
	require.Equal(t, uint64(5), n1.Successor())
}

func TestStabilityFlag(t *testing.T) {
	_, tbl := newTable(t, 4, 7)
	changed, err := tbl.SetFinger(0, 11)
	require.NoError(t, err)
	require.True(t, changed)
	require.False(t, tbl.IsConsistent(0))

	f, err := tbl.Finger(0)
	require.NoError(t, err)
	require.Equal(t, uint64(11), f.Current())
	require.Equal(t, uint64(7), f.Committed())

	// commit() alone must not flip stability either way - it is the
	// caller's responsibility to call SetStable after observing the
	// aggregate result of a fix-finger pass.
	tbl.SetStable(false)
	_, err = tbl.Commit(0)
	require.NoError(t, err)
	require.False(t, tbl.IsStable(), "commit must not implicitly restabilize")
	require.True(t, tbl.IsConsistent(0))
}

func TestSetSuccessorRejectsZero(t *testing.T) {
	_, tbl := newTable(t, 4, 7)
	ok := tbl.SetSuccessor(0)
	require.False(t, ok)
	require.Equal(t, uint64(7), tbl.Successor())
}

func TestSetPredecessorAcceptsZero(t *testing.T) {
	_, tbl := newTable(t, 4, 7)
	tbl.SetPredecessor(0)
	require.Equal(t, uint64(0), tbl.Predecessor())
}

func TestUpdateChurn(t *testing.T) {
	_, tbl := newTable(t, 4, 7)
	tbl.SetPredecessor(3)
	tbl.CommitPredecessor()
	changed, err := tbl.SetFinger(0, 3)
	require.NoError(t, err)
	require.True(t, changed)

	found := tbl.Update(3, false)
	require.True(t, found)
	require.Equal(t, uint64(0), tbl.Predecessor())
	f, _ := tbl.Finger(0)
	require.False(t, f.Connected())
}

func TestIsInRoute(t *testing.T) {
	_, tbl := newTable(t, 4, 7)
	require.True(t, tbl.IsInRoute(7))
	require.True(t, tbl.IsInRoute(0))
	require.False(t, tbl.IsInRoute(3))
	tbl.SetFinger(0, 3)
	require.True(t, tbl.IsInRoute(3))
}
