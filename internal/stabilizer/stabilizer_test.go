// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package stabilizer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wanhive/hub-sub001/internal/config"
	"github.com/wanhive/hub-sub001/internal/frame"
	"github.com/wanhive/hub-sub001/internal/hub"
	"github.com/wanhive/hub-sub001/internal/watcher"
)

type nullDispatcher struct{}

func (nullDispatcher) Dispatch(h *hub.Hub, origin *watcher.Connection, f *frame.Frame) *frame.Frame {
	return nil
}

func newTestHub(t *testing.T, selfID uint64) *hub.Hub {
	t.Helper()
	opts := config.Defaults()
	opts.Listen = false
	opts.RingK = 16
	h, err := hub.New(opts, selfID, nullDispatcher{}, zap.NewNop())
	require.NoError(t, err)
	return h
}

func TestTickStabilizeSendsGetPredecessorToSuccessor(t *testing.T) {
	h := newTestHub(t, 100)
	succConn := registerSuccessor(t, h, 150)
	h.Table.SetSuccessor(150)

	s := New(h, Intervals{})
	s.tickStabilize()
	h.DrainJobs()

	// The enqueued job issued a get_predecessor request to the successor's
	// connection; draining its outgoing ring should yield exactly that.
	var sent *frame.Frame
	succConn.DrainOut(func(f *frame.Frame) bool {
		sent = f
		return true
	})
	require.NotNil(t, sent)
	require.Equal(t, frame.CmdNode, sent.Header.Command)
	require.Equal(t, frame.QlfGetPredecessor, sent.Header.Qualifier)
}

func TestTickFixFingerSetsSelfWhenOwnerIsSelf(t *testing.T) {
	h := newTestHub(t, 100)
	s := New(h, Intervals{})

	s.tickFixFinger()
	h.DrainJobs()
	f, err := h.Table.Finger(0)
	require.NoError(t, err)
	require.Equal(t, uint64(100), f.Current())
}

func TestTickCheckPredecessorPingsPredecessor(t *testing.T) {
	h := newTestHub(t, 100)
	predConn := registerSuccessor(t, h, 50)
	h.Table.SetPredecessor(50)

	s := New(h, Intervals{})
	s.tickCheckPredecessor()
	h.DrainJobs()

	var sent *frame.Frame
	predConn.DrainOut(func(f *frame.Frame) bool {
		sent = f
		return true
	})
	require.NotNil(t, sent)
	require.Equal(t, frame.CmdOverlay, sent.Header.Command)
	require.Equal(t, frame.QlfPing, sent.Header.Qualifier)
}

func registerSuccessor(t *testing.T, h *hub.Hub, id uint64) *watcher.Connection {
	t.Helper()
	client, _ := net.Pipe()
	c := watcher.New(id, client, 1024, 8)
	require.NoError(t, h.Registry().Insert(id, c))
	return c
}
