package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wanhive/hub-sub001/internal/frame"
)

func TestConnectionFrameAssemblyAcrossChunks(t *testing.T) {
	c := New(1, loopbackConn(t), 1024, 8)

	f, err := frame.New(1, 2, frame.CmdOverlay, frame.QlfPing, frame.AqlfRequest, []byte("hello"))
	require.NoError(t, err)
	buf, err := frame.Encode(f, nil)
	require.NoError(t, err)

	// Deliver the header in one chunk, payload in a second.
	c.AppendIncoming(buf[:frame.HeaderSize])
	got, err := c.NextFrame()
	require.NoError(t, err)
	require.Nil(t, got)

	c.AppendIncoming(buf[frame.HeaderSize:])
	got, err = c.NextFrame()
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, []byte("hello"), got.Payload)

	// Nothing left to parse.
	got, err = c.NextFrame()
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestConnectionPublishBackpressure(t *testing.T) {
	c := New(1, loopbackConn(t), 1024, 2) // rounds up to capacity 2
	f1, _ := frame.New(1, 2, frame.CmdNull, frame.QlfDescribe, frame.AqlfResponse, nil)
	f2, _ := frame.New(1, 2, frame.CmdNull, frame.QlfDescribe, frame.AqlfResponse, nil)
	f3, _ := frame.New(1, 2, frame.CmdNull, frame.QlfDescribe, frame.AqlfResponse, nil)

	require.True(t, c.Publish(f1))
	require.True(t, c.Publish(f2))
	require.False(t, c.Publish(f3))
	require.Equal(t, uint64(1), c.OutDropped())
}

func TestSubscriptionBitmap(t *testing.T) {
	c := New(1, loopbackConn(t), 1024, 8)
	require.False(t, c.IsSubscribed(200))
	c.Subscribe(200)
	require.True(t, c.IsSubscribed(200))
	c.Unsubscribe(200)
	require.False(t, c.IsSubscribed(200))
}

func TestGuestRingReapExpired(t *testing.T) {
	g := NewGuestRing(4)
	base := time.Now()
	g.Add(1, base)
	g.Add(2, base)

	var expired []uint64
	g.Reap(base.Add(50*time.Millisecond), 100, 10, func(id uint64) {
		expired = append(expired, id)
	})
	require.Empty(t, expired)
	require.Equal(t, 2, g.Count())

	g.Reap(base.Add(150*time.Millisecond), 100, 10, func(id uint64) {
		expired = append(expired, id)
	})
	require.ElementsMatch(t, []uint64{1, 2}, expired)
	require.Equal(t, 0, g.Count())
}
