// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FrameQueue is the hub's process-wide incoming/outgoing frame queue
// (spec.md §3 "Message Queues"): single-consumer, drained once per event
// loop iteration. Grounded on the teacher's internal/concurrency/executor.go
// task queue, which wraps the same github.com/eapache/queue ring buffer for
// single-consumer FIFO dispatch.
package queue

import (
	"github.com/eapache/queue"

	"github.com/wanhive/hub-sub001/internal/frame"
)

// FrameQueue is an unbounded FIFO of frame pointers. Unlike a connection's
// outgoing ring (fixed capacity, back-pressure visible to the publisher),
// the hub's process-wide incoming/outgoing queues are sized only by how
// many frames the reactor read in one dispatch pass, so eapache/queue's
// auto-growing ring is the right fit.
type FrameQueue struct {
	q *queue.Queue
}

// NewFrameQueue creates an empty frame queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{q: queue.New()}
}

// Push appends a frame.
func (fq *FrameQueue) Push(f *frame.Frame) {
	fq.q.Add(f)
}

// Pop removes and returns the oldest frame, or nil if empty.
func (fq *FrameQueue) Pop() *frame.Frame {
	if fq.q.Length() == 0 {
		return nil
	}
	v := fq.q.Peek()
	fq.q.Remove()
	f, _ := v.(*frame.Frame)
	return f
}

// Len returns the number of queued frames.
func (fq *FrameQueue) Len() int { return fq.q.Length() }

// DrainAll removes every queued frame, invoking fn on each in FIFO order.
// fn may enqueue further work onto unrelated queues but must not push back
// onto fq itself mid-drain.
func (fq *FrameQueue) DrainAll(fn func(*frame.Frame)) {
	n := fq.q.Length()
	for i := 0; i < n; i++ {
		fn(fq.Pop())
	}
}
