// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package hub

import (
	"time"

	"github.com/wanhive/hub-sub001/internal/frame"
	"github.com/wanhive/hub-sub001/internal/reactor"
	"github.com/wanhive/hub-sub001/internal/watcher"
)

// onNotifierReady drains the event-notifier pipe; its only purpose is to
// wake Poll, so the bytes themselves carry no meaning.
func (h *Hub) onNotifierReady(w *reactor.Watcher, ready reactor.Interest) bool {
	buf := make([]byte, 64)
	for {
		n, err := h.notifyR.Read(buf)
		if n == 0 || err != nil {
			return true
		}
	}
}

// Notify wakes a blocked Poll from another goroutine (e.g. the
// stabilizer or a signal handler) and is the only cross-thread entry
// point into the hub (spec.md §5).
func (h *Hub) Notify() {
	if h.notifyW != nil {
		h.notifyW.Write([]byte{1})
	}
}

// Cancel requests the Run loop to exit after completing its current
// iteration.
func (h *Hub) Cancel() {
	h.cancel.Store(true)
	h.Notify()
}

// onConnReady services one connection's readiness: reads and parses
// available frames into incoming, then drains its outgoing ring.
func (h *Hub) onConnReady(c *watcher.Connection, w *reactor.Watcher, ready reactor.Interest) bool {
	if ready&reactor.Error != 0 {
		h.closeConnection(c)
		return false
	}
	if ready&reactor.Read != 0 {
		h.readConnection(c)
	}
	if c.HasFlag(watcher.FlagInvalid) {
		h.closeConnection(c)
		return false
	}
	if ready&reactor.Write != 0 || c.HasFlag(watcher.FlagOutPending) {
		h.writeConnection(c)
	}
	return !c.HasFlag(watcher.FlagInvalid)
}

func (h *Hub) readConnection(c *watcher.Connection) {
	buf := make([]byte, h.opts.MTU)
	for i := uint(0); i < h.opts.InQuota; i++ {
		n, err := c.Conn().Read(buf)
		if n > 0 {
			c.AppendIncoming(buf[:n])
		}
		if err != nil {
			if n == 0 {
				c.SetFlag(watcher.FlagInvalid)
			}
			break
		}
		if n == 0 {
			break
		}
	}

	for {
		f, err := c.NextFrame()
		if err != nil {
			c.SetFlag(watcher.FlagInvalid)
			return
		}
		if f == nil {
			return
		}
		if f.Header.Source == 0 {
			f.Header.Source = c.ID()
		}
		h.received++
		h.incoming.Push(f)
	}
}

func (h *Hub) writeConnection(c *watcher.Connection) {
	var scratch []byte
	c.DrainOut(func(f *frame.Frame) bool {
		buf, err := frame.Encode(f, scratch)
		if err != nil {
			return true // malformed locally-built frame; drop and continue
		}
		n, err := c.Conn().Write(buf)
		if err != nil && n == 0 {
			return false // would-block; retry next cycle
		}
		if err != nil && n < len(buf) {
			return false // short write; leave for next cycle (simplification: no partial-write resume buffer)
		}
		return true
	})
}

func (h *Hub) closeConnection(c *watcher.Connection) {
	if w := c.Watcher(); w != nil {
		h.react.Disable(w)
	}
	h.registry.Delete(c.ID())
	h.topicsR.UnsubscribeAll(c.ID())
	h.guests.Remove(c.ID())
	c.Close()
	h.refreshOccupancyMetrics()
}

// recordDrop records a dropped frame in both the in-process counters and
// the attached Prometheus collector, if any.
func (h *Hub) recordDrop(reason DropReason, n int) {
	h.drops.Record(reason, n)
	if h.metrics != nil {
		h.metrics.Drops.WithLabelValues(reason.String()).Inc()
	}
}

// recordRoute tallies a routing decision in the attached Prometheus
// collector, if any.
func (h *Hub) recordRoute(decision Decision) {
	if h.metrics == nil {
		return
	}
	h.metrics.Routed.WithLabelValues(decisionLabel(decision)).Inc()
}

func decisionLabel(d Decision) string {
	switch d {
	case DeliverSelf:
		return "deliver_self"
	case DeliverLocal:
		return "deliver_local"
	case Multicast:
		return "multicast"
	case Forward:
		return "forward"
	default:
		return "drop"
	}
}

// Run executes the main event-loop iterations (spec.md §4.6) until
// Cancel is called. It blocks only inside reactor.Poll.
func (h *Hub) Run() error {
	defer h.react.Close()
	for !h.cancel.Load() {
		block := h.incoming.Len() == 0 && h.outgoing.Len() == 0 && len(h.jobs) == 0
		timeout := -1
		if !block {
			timeout = 0
		}
		if err := h.react.Poll(timeout, block); err != nil {
			return err
		}
		if err := h.react.Dispatch(); err != nil {
			return err
		}
		h.DrainJobs()
		h.publishOutgoing()
		h.processIncoming()
		h.maintain()
	}
	return nil
}

// publishOutgoing delivers every frame the pipeline queued for another
// connection (step 3 of spec.md §4.6).
func (h *Hub) publishOutgoing() {
	h.outgoing.DrainAll(func(f *frame.Frame) {
		conn := h.registry.Lookup(f.Header.Destination)
		if conn == nil {
			h.recordDrop(DropNoRoute, int(f.Header.Length))
			return
		}
		if !conn.Publish(f) {
			h.recordDrop(DropQueueFull, int(f.Header.Length))
		}
	})
}

// processIncoming runs the message pipeline over every frame read this
// iteration (spec.md §4.6 step 4, §4.8).
func (h *Hub) processIncoming() {
	h.incoming.DrainAll(func(f *frame.Frame) {
		h.processFrame(f)
	})
}

func (h *Hub) processFrame(f *frame.Frame) {
	if h.pipeline.IsProbe(f) {
		h.answerProbe(f)
		return
	}
	if f.IsResponse() && f.Header.Destination == h.SelfID() && h.resolveResponse(f) {
		return
	}

	ok, reason := h.pipeline.Validate(f)
	if !ok {
		h.recordDrop(reason, int(f.Header.Length))
		return
	}

	routed := h.pipeline.Route(f, h.SelfID())
	h.recordRoute(routed.Decision)
	switch routed.Decision {
	case DeliverSelf:
		h.handleSelf(f)
	case DeliverLocal:
		h.deliver(routed.Conn, f, ClassGeneral)
	case Multicast:
		h.fanout(routed.Topic, f)
	case Forward:
		h.deliver(routed.Conn, f, ClassForward)
	case Drop:
		h.recordDrop(routed.Reason, int(f.Header.Length))
	}
}

func (h *Hub) deliver(conn *watcher.Connection, f *frame.Frame, class Class) {
	if h.opts.Policing && !h.policer.Admit(class, conn.OutLen(), int(h.opts.OutQuota)) {
		h.recordDrop(DropQueueFull, int(f.Header.Length))
		return
	}
	if !conn.Publish(f) {
		h.recordDrop(DropQueueFull, int(f.Header.Length))
	}
}

func (h *Hub) fanout(topic uint8, f *frame.Frame) {
	h.topicsR.Each(topic, func(id uint64) {
		conn := h.registry.Lookup(id)
		if conn == nil {
			return
		}
		f.Ref()
		if !conn.Publish(f) {
			h.recordDrop(DropQueueFull, int(f.Header.Length))
		}
	})
}

// handleSelf dispatches a frame addressed to this node's own control
// plane to the overlay protocol handlers.
func (h *Hub) handleSelf(f *frame.Frame) {
	if h.dispatch == nil {
		return
	}
	origin := h.registry.Lookup(f.Header.Source)
	resp := h.dispatch.Dispatch(h, origin, f)
	if resp == nil {
		return
	}
	if origin != nil {
		h.deliver(origin, resp, ClassAnswer)
	}
}

// answerProbe replies to a liveness/describe probe without entering the
// routing pipeline.
func (h *Hub) answerProbe(f *frame.Frame) {
	h.handleSelf(f)
}

// maintain reaps expired guest connections (spec.md §4.6 step 5, §4.7).
func (h *Hub) maintain() {
	const reapTarget = 16
	now := time.Now()
	h.guests.Reap(now, int64(h.opts.GuestLeaseMs), reapTarget, func(id uint64) {
		if conn := h.registry.Lookup(id); conn != nil {
			h.closeConnection(conn)
		}
	})
	h.expirePending(now)
	h.authSessions.Reap(now)
}

// Close releases resources not torn down by Run's own defer (used when
// Open succeeded but Run was never started).
func (h *Hub) Close() error {
	if h.listener != nil {
		h.listener.Close()
	}
	if h.notifyR != nil {
		h.notifyR.Close()
	}
	if h.notifyW != nil {
		h.notifyW.Close()
	}
	return nil
}
