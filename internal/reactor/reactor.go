// Package reactor implements the hub's single-threaded readiness
// multiplexer (spec.md §4.4): a FIFO ready list fed by a platform-specific
// poller, dispatched once per event-loop iteration.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on the teacher's reactor/epoll_reactor.go (epoll syscalls,
// registration bookkeeping) and api/poll.go (Poller/Event/Handler shape),
// rewritten around an explicit admit/modify/disable/poll/dispatch contract
// and a FIFO ready list rather than the teacher's callback-per-fd map with
// no ordering guarantee.
package reactor

import "fmt"

// Interest is a bitmask of the conditions a watcher is armed for.
type Interest uint8

const (
	Read Interest = 1 << iota
	Write
	Error
)

// Callback is invoked once per dispatch when a watcher is ready. ready
// reports which of the armed interests fired. The return value tells the
// reactor whether to re-enqueue the watcher for another round of service
// in the next Dispatch call (true) or leave it idle until the next poll
// reports it ready again (false).
type Callback func(w *Watcher, ready Interest) bool

// Watcher is one registered file descriptor. Callers obtain a *Watcher
// from Admit and use it to Modify or Disable the registration; the fields
// below are read-only to callers outside this package.
type Watcher struct {
	Fd       int
	Interest Interest
	Data     any // caller payload, e.g. *watcher.Connection

	cb        Callback
	invalid   bool     // disabled; removed lazily if currently enqueued
	queued    bool     // currently present in the ready list
	readyMask Interest // conditions observed by the last Poll
}

// Invalid reports whether Disable has been called on this watcher.
func (w *Watcher) Invalid() bool { return w.invalid }

// poller is the platform-specific half: translating Interest bitmasks into
// real readiness notifications. Linux backs this with epoll; other
// platforms get a stub that errors out of New.
type poller interface {
	add(fd int, interest Interest) error
	modify(fd int, interest Interest) error
	remove(fd int) error
	wait(timeoutMs int, out []readyEvent) (int, error)
	close() error
}

type readyEvent struct {
	fd      int
	ready   Interest
}

// Reactor owns the watcher table, the FIFO ready list, and the platform
// poller. It is not safe for concurrent use: per spec.md §5 the hub core
// is single-threaded and owns the reactor exclusively.
type Reactor struct {
	p        poller
	watchers map[int]*Watcher
	ready    []*Watcher // FIFO queue; head at index readHead
	readHead int

	events []readyEvent // scratch buffer reused across Poll calls
}

// New constructs a reactor using the platform poller (epoll on Linux; an
// error on platforms without a backend).
func New() (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		p:        p,
		watchers: make(map[int]*Watcher),
		events:   make([]readyEvent, 128),
	}, nil
}

// Admit registers fd with the given interest and callback, returning its
// Watcher handle.
func (r *Reactor) Admit(fd int, interest Interest, cb Callback) (*Watcher, error) {
	if _, exists := r.watchers[fd]; exists {
		return nil, fmt.Errorf("reactor: fd %d already admitted", fd)
	}
	if err := r.p.add(fd, interest); err != nil {
		return nil, err
	}
	w := &Watcher{Fd: fd, Interest: interest, cb: cb}
	r.watchers[fd] = w
	return w, nil
}

// Modify changes a watcher's armed interest.
func (r *Reactor) Modify(w *Watcher, interest Interest) error {
	if w.invalid {
		return fmt.Errorf("reactor: watcher for fd %d is disabled", w.Fd)
	}
	if err := r.p.modify(w.Fd, interest); err != nil {
		return err
	}
	w.Interest = interest
	return nil
}

// Disable marks a watcher invalid. If it is not currently sitting in the
// ready list its poller registration and table entry are torn down
// immediately; otherwise removal is deferred to Dispatch, which drops
// invalid watchers as it drains the ready list (spec.md §4.4).
func (r *Reactor) Disable(w *Watcher) error {
	if w.invalid {
		return nil
	}
	w.invalid = true
	if w.queued {
		return nil
	}
	return r.teardown(w)
}

func (r *Reactor) teardown(w *Watcher) error {
	delete(r.watchers, w.Fd)
	return r.p.remove(w.Fd)
}

// Poll waits for readiness and appends newly-ready watchers to the FIFO
// ready list. timeoutMs follows the single-timer convention: -1 blocks
// indefinitely, 0 returns immediately. When block is false, a non-empty
// ready list forces timeoutMs to 0 so pending work is drained before the
// reactor waits again.
func (r *Reactor) Poll(timeoutMs int, block bool) error {
	if !block && r.Pending() > 0 {
		timeoutMs = 0
	}
	n, err := r.p.wait(timeoutMs, r.events)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		ev := r.events[i]
		w, ok := r.watchers[ev.fd]
		if !ok || w.invalid || w.queued {
			continue
		}
		w.queued = true
		w.readyMask = ev.ready
		r.enqueue(w)
	}
	return nil
}

func (r *Reactor) enqueue(w *Watcher) {
	r.ready = append(r.ready, w)
}

// Pending reports how many watchers remain in the ready list.
func (r *Reactor) Pending() int { return len(r.ready) - r.readHead }

// Dispatch drains the current ready list exactly once: invalid watchers
// are torn down and dropped, valid ones have their callback invoked and
// are re-enqueued only if the callback returns true.
func (r *Reactor) Dispatch() error {
	n := len(r.ready)
	head := r.readHead
	var next []*Watcher

	for i := head; i < n; i++ {
		w := r.ready[i]
		w.queued = false
		if w.invalid {
			if err := r.teardown(w); err != nil {
				return err
			}
			continue
		}
		if w.cb(w, w.readyMask) {
			w.queued = true
			next = append(next, w)
		}
	}

	if len(next) == 0 {
		r.ready = r.ready[:0]
	} else {
		r.ready = next
	}
	r.readHead = 0
	return nil
}

// Close releases the underlying poller.
func (r *Reactor) Close() error {
	return r.p.close()
}
