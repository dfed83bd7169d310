// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package hub

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wanhive/hub-sub001/internal/chord"
	"github.com/wanhive/hub-sub001/internal/frame"
	"github.com/wanhive/hub-sub001/internal/ringid"
	"github.com/wanhive/hub-sub001/internal/topics"
	"github.com/wanhive/hub-sub001/internal/watcher"
)

func newTestPipeline(t *testing.T, self uint64) (*Pipeline, *ringid.Ring, *chord.RoutingTable, *watcher.Registry, *topics.Registry) {
	t.Helper()
	ring, err := ringid.New(16)
	require.NoError(t, err)
	table, err := chord.NewRoutingTable(ring, self)
	require.NoError(t, err)
	registry := watcher.NewRegistry()
	topicsReg := topics.New()
	return NewPipeline(ring, table, registry, topicsReg, 4), ring, table, registry, topicsReg
}

func newConn(id uint64) *watcher.Connection {
	c, _ := net.Pipe()
	return watcher.New(id, c, 1024, 8)
}

func TestTTLDecrementsAndSeeds(t *testing.T) {
	f, err := frame.New(1, 2, frame.CmdMcast, frame.QlfPublish, frame.AqlfRequest, nil)
	require.NoError(t, err)
	require.Zero(t, TTL(f))

	p, _, _, _, _ := newTestPipeline(t, 100)
	ok, _ := p.Validate(f)
	require.True(t, ok)
	require.Equal(t, uint8(4), TTL(f)) // unset TTL seeded at defaultTTL(4)

	ok, _ = p.Validate(f)
	require.True(t, ok)
	require.Equal(t, uint8(3), TTL(f)) // subsequent calls decrement
}

func TestTTLDropsAtZero(t *testing.T) {
	f, err := frame.New(1, 2, frame.CmdMcast, frame.QlfPublish, frame.AqlfRequest, nil)
	require.NoError(t, err)
	SetTTL(f, 1)

	p, _, _, _, _ := newTestPipeline(t, 100)
	ok, reason := p.Validate(f)
	require.False(t, ok)
	require.Equal(t, DropTTL, reason)
}

func TestValidateRejectsControllerDestForOrdinaryCommand(t *testing.T) {
	f, err := frame.New(1, ringid.Controller, frame.CmdMcast, frame.QlfPublish, frame.AqlfRequest, nil)
	require.NoError(t, err)

	p, _, _, _, _ := newTestPipeline(t, 100)
	ok, reason := p.Validate(f)
	require.False(t, ok)
	require.Equal(t, DropNoRoute, reason)
}

func TestRouteMulticastByDestinationTopic(t *testing.T) {
	p, _, _, _, _ := newTestPipeline(t, 100)
	f, err := frame.New(1, 5, frame.CmdMcast, frame.QlfPublish, frame.AqlfRequest, nil)
	require.NoError(t, err)

	routed := p.Route(f, 100)
	require.Equal(t, Multicast, routed.Decision)
	require.Equal(t, uint8(5), routed.Topic)
}

func TestRouteDeliverLocalWhenRegistered(t *testing.T) {
	p, _, _, registry, _ := newTestPipeline(t, 100)
	conn := newConn(77)
	require.NoError(t, registry.Insert(77, conn))

	f, err := frame.New(1, 77, frame.CmdNode, frame.QlfPing, frame.AqlfRequest, nil)
	require.NoError(t, err)
	routed := p.Route(f, 100)
	require.Equal(t, DeliverLocal, routed.Decision)
	require.Same(t, conn, routed.Conn)
}

func TestRouteDeliverSelfForControllerAndSelf(t *testing.T) {
	p, _, _, _, _ := newTestPipeline(t, 100)

	toController, err := frame.New(1, ringid.Controller, frame.CmdNode, frame.QlfPing, frame.AqlfRequest, nil)
	require.NoError(t, err)
	require.Equal(t, DeliverSelf, p.Route(toController, 100).Decision)

	toSelf, err := frame.New(1, 100, frame.CmdNode, frame.QlfPing, frame.AqlfRequest, nil)
	require.NoError(t, err)
	require.Equal(t, DeliverSelf, p.Route(toSelf, 100).Decision)
}

func TestRouteForwardsToNextHop(t *testing.T) {
	p, _, table, registry, _ := newTestPipeline(t, 100)
	table.SetSuccessor(200)
	next := newConn(200)
	require.NoError(t, registry.Insert(200, next))

	f, err := frame.New(1, 150, frame.CmdNode, frame.QlfPing, frame.AqlfRequest, nil)
	require.NoError(t, err)
	routed := p.Route(f, 100)
	require.Equal(t, Forward, routed.Decision)
	require.Same(t, next, routed.Conn)
}

func TestPolicerReservesSeparatePoolsPerClass(t *testing.T) {
	pol := NewPolicer(4, 0.5, 0.5) // answer=2, forward=2, unreserved = cap-4
	require.True(t, pol.Admit(ClassAnswer, 0, 10))
	require.True(t, pol.Admit(ClassGeneral, 5, 10)) // unreserved region is [0,6)
	require.False(t, pol.Admit(ClassGeneral, 6, 10))
	require.True(t, pol.Admit(ClassAnswer, 7, 10)) // within unreserved+answer = 6+2=8
	require.False(t, pol.Admit(ClassAnswer, 8, 10))
}

func TestPolicerClampsOverlappingRatios(t *testing.T) {
	pol := NewPolicer(10, 0.9, 0.9) // sum > 1, scaled down proportionally
	require.LessOrEqual(t, pol.answer+pol.forward, uint(10))
}

func TestDropCountersAccumulate(t *testing.T) {
	var d DropCounters
	d.Record(DropTTL, 32)
	d.Record(DropTTL, 16)
	d.Record(DropQueueFull, 8)
	require.Equal(t, uint64(2), d.Count(DropTTL))
	require.Equal(t, uint64(48), d.Bytes(DropTTL))
	require.Equal(t, uint64(3), d.Total())
}
