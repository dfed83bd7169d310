package watcher

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func loopbackConn(t *testing.T) net.Conn {
	t.Helper()
	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	return c1
}

func TestRegistryInsertRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	c := New(1, loopbackConn(t), 1024, 8)
	require.NoError(t, r.Insert(1, c))
	require.ErrorIs(t, r.Insert(1, c), ErrExists)
}

func TestRegistryMoveOneSided(t *testing.T) {
	r := NewRegistry()
	c := New(100, loopbackConn(t), 1024, 8)
	require.NoError(t, r.Insert(100, c))

	require.NoError(t, r.Move(100, 7, false))
	require.Nil(t, r.Lookup(100))
	require.Same(t, c, r.Lookup(7))
	require.Equal(t, uint64(7), c.ID())
}

func TestRegistryMoveSwap(t *testing.T) {
	r := NewRegistry()
	a := New(1, loopbackConn(t), 1024, 8)
	b := New(2, loopbackConn(t), 1024, 8)
	require.NoError(t, r.Insert(1, a))
	require.NoError(t, r.Insert(2, b))

	require.NoError(t, r.Move(1, 2, true))
	require.Same(t, b, r.Lookup(1))
	require.Same(t, a, r.Lookup(2))
	require.Equal(t, uint64(1), b.ID())
	require.Equal(t, uint64(2), a.ID())
}

func TestRegistryMoveConflictWithoutSwap(t *testing.T) {
	r := NewRegistry()
	a := New(1, loopbackConn(t), 1024, 8)
	b := New(2, loopbackConn(t), 1024, 8)
	require.NoError(t, r.Insert(1, a))
	require.NoError(t, r.Insert(2, b))
	require.ErrorIs(t, r.Move(1, 2, false), ErrMoveConflict)
}

func TestRegistryIterateRemove(t *testing.T) {
	r := NewRegistry()
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, r.Insert(i, New(i, loopbackConn(t), 1024, 8)))
	}
	r.Iterate(func(id uint64, c *Connection) int {
		if id == 2 {
			return 1
		}
		return 0
	})
	require.Equal(t, 2, r.Len())
	require.Nil(t, r.Lookup(2))
}

func TestEphemeralPromotion(t *testing.T) {
	r := NewRegistry()
	guests := NewGuestRing(4)
	ephemeral := uint64(1) << 63

	c := New(ephemeral, loopbackConn(t), 1024, 8)
	require.NoError(t, r.Insert(ephemeral, c))
	guests.Add(ephemeral, time.Now())

	authenticated := uint64(42)
	require.NoError(t, r.Move(ephemeral, authenticated, true))
	guests.Remove(ephemeral)

	require.Nil(t, r.Lookup(ephemeral))
	require.Same(t, c, r.Lookup(authenticated))
	require.Equal(t, authenticated, c.ID())
	require.Equal(t, 0, guests.Count())
}
