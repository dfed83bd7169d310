// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package hub

import (
	"github.com/wanhive/hub-sub001/internal/chord"
	"github.com/wanhive/hub-sub001/internal/frame"
	"github.com/wanhive/hub-sub001/internal/ringid"
	"github.com/wanhive/hub-sub001/internal/topics"
	"github.com/wanhive/hub-sub001/internal/watcher"
)

// Decision is the outcome of routing one frame.
type Decision int

const (
	// DeliverSelf means the frame addresses this node's own control
	// plane (destination is the reserved controller id, this node's ring
	// id, or a key this node is root for, in each case with no registered
	// connection under that id) and should be handed to the protocol
	// handler dispatcher.
	DeliverSelf Decision = iota
	// DeliverLocal means destination resolved to a connection registered
	// on this hub; the frame should be published to it directly.
	DeliverLocal
	// Multicast means the frame is a topic publish; fan out to every
	// subscriber.
	Multicast
	// Forward means the frame must be routed onward to next_hop.
	Forward
	// Drop means the frame could not be routed; reason explains why.
	Drop
)

// Routed is the result of Pipeline.Route.
type Routed struct {
	Decision Decision
	Conn     *watcher.Connection // set for DeliverLocal and Forward
	Topic    uint8               // set for Multicast
	Reason   DropReason          // set for Drop
}

// Pipeline implements the per-frame processing steps of spec.md §4.8:
// probe, validate (TTL) and route. Policing is applied afterwards, when
// the hub delivers the frame (see Policer); no throttling step is
// implemented. It holds no state
// of its own beyond the dependencies it was built with; all durable
// state (registry, table, counters) lives in the Hub and is passed in or
// referenced directly.
type Pipeline struct {
	ring     *ringid.Ring
	table    *chord.RoutingTable
	registry *watcher.Registry
	topicsReg *topics.Registry
	defaultTTL uint8
}

// NewPipeline builds a Pipeline bound to the hub's routing state.
func NewPipeline(ring *ringid.Ring, table *chord.RoutingTable, registry *watcher.Registry, topicsReg *topics.Registry, defaultTTL uint8) *Pipeline {
	return &Pipeline{ring: ring, table: table, registry: registry, topicsReg: topicsReg, defaultTTL: defaultTTL}
}

// IsProbe reports whether f carries the probe/invalid marker and should
// be answered internally (liveness, describe) rather than routed.
func (p *Pipeline) IsProbe(f *frame.Frame) bool {
	return f.IsProbe()
}

// Validate enforces destination != 0 for non-overlay, non-controller
// commands and decrements TTL, stored in the frame's Context field's low
// byte (see ttl.go). It returns false with a reason if the frame must be
// dropped.
func (p *Pipeline) Validate(f *frame.Frame) (ok bool, reason DropReason) {
	if f.Header.Destination == ringid.Controller &&
		f.Header.Command != frame.CmdNode &&
		f.Header.Command != frame.CmdOverlay &&
		f.Header.Command != frame.CmdAuth &&
		f.Header.Command != frame.CmdNull {
		return false, DropNoRoute
	}
	ttl := TTL(f)
	if ttl == 0 {
		ttl = p.defaultTTL
	} else {
		ttl--
	}
	if ttl == 0 {
		return false, DropTTL
	}
	SetTTL(f, ttl)
	return true, 0
}

// Route implements the routing decision tree of spec.md §4.8 step 3.
func (p *Pipeline) Route(f *frame.Frame, selfID uint64) Routed {
	if f.Header.Command == frame.CmdMcast && f.Header.Qualifier == frame.QlfPublish {
		return Routed{Decision: Multicast, Topic: uint8(f.Header.Destination)}
	}

	dest := f.Header.Destination
	if conn := p.registry.Lookup(dest); conn != nil {
		return Routed{Decision: DeliverLocal, Conn: conn}
	}
	if dest == ringid.Controller || dest == selfID {
		return Routed{Decision: DeliverSelf}
	}
	if p.table.IsLocal(dest) {
		// This node is the root for dest but no connection is
		// registered under that exact id: treat as addressed to self
		// (e.g. a peer probing a key this node currently owns).
		return Routed{Decision: DeliverSelf}
	}

	next := p.table.NextHop(dest)
	if next == selfID {
		return Routed{Decision: Drop, Reason: DropNoRoute}
	}
	if conn := p.registry.Lookup(next); conn != nil {
		return Routed{Decision: Forward, Conn: conn}
	}
	return Routed{Decision: Drop, Reason: DropNoRoute}
}
