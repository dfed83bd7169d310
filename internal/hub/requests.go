// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package hub

import (
	"time"

	"github.com/wanhive/hub-sub001/internal/frame"
)

// pendingEntry tracks one outstanding request this node issued, awaiting a
// matching response frame.
type pendingEntry struct {
	cb      func(resp *frame.Frame, ok bool)
	expires time.Time
}

const requestTimeout = 5 * time.Second

// Send builds a request frame addressed to dest and publishes it to dest's
// registered connection, recording cb to be invoked from the hub goroutine
// when the matching response (or a timeout) arrives. Send only reaches
// peers with an already-open connection on this hub; it does not dial out
// to establish new ones (see DESIGN.md).
func (h *Hub) Send(dest uint64, command, qualifier uint8, payload []byte, cb func(resp *frame.Frame, ok bool)) error {
	conn := h.registry.Lookup(dest)
	if conn == nil {
		return ErrUnknownDest
	}
	f, err := frame.New(h.SelfID(), dest, command, qualifier, frame.AqlfRequest, payload)
	if err != nil {
		return err
	}
	h.nextSeq++
	f.Header.Sequence = h.nextSeq
	if cb != nil {
		if h.pending == nil {
			h.pending = make(map[uint16]pendingEntry)
		}
		h.pending[f.Header.Sequence] = pendingEntry{cb: cb, expires: time.Now().Add(requestTimeout)}
	}
	if !conn.Publish(f) {
		delete(h.pending, f.Header.Sequence)
		h.drops.Record(DropQueueFull, int(f.Header.Length))
		return ErrQueueFull
	}
	return nil
}

// resolveResponse delivers a response frame to its originating Send
// callback, if still pending. Returns true if the frame was a response
// this node was waiting on.
func (h *Hub) resolveResponse(f *frame.Frame) bool {
	if !f.IsResponse() {
		return false
	}
	entry, ok := h.pending[f.Header.Sequence]
	if !ok {
		return false
	}
	delete(h.pending, f.Header.Sequence)
	entry.cb(f, true)
	return true
}

// expirePending invokes the timeout callback for every request past its
// deadline, called once per maintain() cycle.
func (h *Hub) expirePending(now time.Time) {
	for seq, entry := range h.pending {
		if now.After(entry.expires) {
			delete(h.pending, seq)
			entry.cb(nil, false)
		}
	}
}

// Enqueue schedules fn to run on the hub's own goroutine during its next
// Run iteration, and wakes a blocked Poll. This is the only way code
// running on another goroutine (the stabilizer) may touch hub state, since
// the hub core itself holds no locks (spec.md §5).
func (h *Hub) Enqueue(fn func(*Hub)) {
	select {
	case h.jobs <- fn:
		h.Notify()
	default:
		h.log.Warn("hub: job queue full, dropping scheduled job")
	}
}

// DrainJobs runs every job currently queued by Enqueue on the calling
// goroutine. Run calls this once per iteration; tests that exercise
// scheduled work without driving the full reactor loop may call it
// directly.
func (h *Hub) DrainJobs() {
	for {
		select {
		case fn := <-h.jobs:
			fn(h)
		default:
			return
		}
	}
}
