package topics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeAndFanout(t *testing.T) {
	r := New()
	require.True(t, r.Subscribe(5, 100))
	require.True(t, r.Subscribe(5, 200))
	require.True(t, r.Contains(5, 100))
	require.Equal(t, 2, r.CountOf(5))

	seen := map[uint64]bool{}
	r.Each(5, func(id uint64) { seen[id] = true })
	require.True(t, seen[100])
	require.True(t, seen[200])
}

func TestUnsubscribe(t *testing.T) {
	r := New()
	r.Subscribe(1, 1)
	r.Unsubscribe(1, 1)
	require.False(t, r.Contains(1, 1))
	require.Equal(t, 0, r.CountOf(1))
}

func TestUnsubscribeAllAcrossTopics(t *testing.T) {
	r := New()
	r.Subscribe(1, 42)
	r.Subscribe(2, 42)
	r.UnsubscribeAll(42)
	require.False(t, r.Contains(1, 42))
	require.False(t, r.Contains(2, 42))
}

func TestOutOfRangeTopicRejected(t *testing.T) {
	r := New()
	require.False(t, r.Subscribe(Count, 1))
	require.False(t, r.Contains(Count, 1))
}
