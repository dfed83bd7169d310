// Package stabilizer runs the overlay hub's periodic churn-handling
// protocol: check_predecessor, stabilize, fix_finger (spec.md §4.3), on
// background tickers separate from the hub's own event-loop goroutine.
// The routing table's backup successor list is not maintained or walked
// by these loops.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on the Koorde DHT example's StartStabilizers three-ticker
// layout (stabilizeLoop / fixFingersLoop / checkPredecessorLoop, see
// other_examples/46b36081_YuzhengShi-KoordeDHT...), adapted from
// synchronous RPC calls made directly against the routing table to
// scheduled closures submitted through Hub.Enqueue, since this hub's
// routing table is single-threaded and may only be mutated on its own
// event-loop goroutine (spec.md §5).
package stabilizer

import (
	"context"
	"encoding/binary"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wanhive/hub-sub001/internal/frame"
	"github.com/wanhive/hub-sub001/internal/hub"
)

// Intervals configures the three maintenance tickers. Zero fields fall
// back to the defaults below.
type Intervals struct {
	Stabilize        time.Duration
	FixFinger        time.Duration
	CheckPredecessor time.Duration
}

const (
	defaultStabilize        = 2 * time.Second
	defaultFixFinger        = 500 * time.Millisecond
	defaultCheckPredecessor = 5 * time.Second
)

func (iv Intervals) withDefaults() Intervals {
	if iv.Stabilize <= 0 {
		iv.Stabilize = defaultStabilize
	}
	if iv.FixFinger <= 0 {
		iv.FixFinger = defaultFixFinger
	}
	if iv.CheckPredecessor <= 0 {
		iv.CheckPredecessor = defaultCheckPredecessor
	}
	return iv
}

// Stabilizer drives one hub's periodic routing maintenance.
type Stabilizer struct {
	h          *hub.Hub
	iv         Intervals
	nextFinger uint32
}

// New builds a Stabilizer bound to h.
func New(h *hub.Hub, iv Intervals) *Stabilizer {
	return &Stabilizer{h: h, iv: iv.withDefaults()}
}

// Run starts the three maintenance loops and blocks until ctx is
// cancelled or one loop returns an error.
func (s *Stabilizer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(ctx, s.iv.Stabilize, s.tickStabilize) })
	g.Go(func() error { return s.loop(ctx, s.iv.FixFinger, s.tickFixFinger) })
	g.Go(func() error { return s.loop(ctx, s.iv.CheckPredecessor, s.tickCheckPredecessor) })
	return g.Wait()
}

func (s *Stabilizer) loop(ctx context.Context, interval time.Duration, tick func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
		}
	}
}

// tickStabilize asks the current successor for its predecessor, adopts it
// if it lies strictly between self and successor, then notifies the
// (possibly updated) successor of self (spec.md §4.3).
func (s *Stabilizer) tickStabilize() {
	s.h.Enqueue(func(h *hub.Hub) {
		succ := h.Table.Successor()
		if succ == h.SelfID() || succ == 0 {
			return
		}
		_ = h.Send(succ, frame.CmdNode, frame.QlfGetPredecessor, nil, func(resp *frame.Frame, ok bool) {
			if !ok || len(resp.Payload) < 8 {
				h.Table.Update(succ, false)
				return
			}
			x := be64(resp.Payload)
			h.Table.Stabilize(x)

			notifySucc := h.Table.Successor()
			selfID := u64Payload(h.SelfID())
			_ = h.Send(notifySucc, frame.CmdNode, frame.QlfNotify, selfID, nil)
		})
	})
}

// tickFixFinger refreshes one finger per invocation, rotating through the
// table so the full refresh cost is amortized (spec.md §4.3).
func (s *Stabilizer) tickFixFinger() {
	s.h.Enqueue(func(h *hub.Hub) {
		idx := s.nextFinger
		s.nextFinger = (s.nextFinger + 1) % uint32(h.Table.K())

		f, err := h.Table.Finger(idx)
		if err != nil {
			return
		}
		start := f.Start()
		owner := h.Table.NextHop(start)
		if owner == h.SelfID() {
			h.Table.SetFinger(idx, h.SelfID())
			return
		}
		_ = h.Send(owner, frame.CmdOverlay, frame.QlfFindSuccessor, u64Payload(start), func(resp *frame.Frame, ok bool) {
			if !ok || len(resp.Payload) < 16 {
				return
			}
			successor := be64(resp.Payload[8:16])
			h.Table.SetFinger(idx, successor)
		})
	})
}

// tickCheckPredecessor pings the current predecessor and clears it if the
// probe times out (spec.md §4.3).
func (s *Stabilizer) tickCheckPredecessor() {
	s.h.Enqueue(func(h *hub.Hub) {
		pred := h.Table.Predecessor()
		if pred == 0 {
			return
		}
		_ = h.Send(pred, frame.CmdOverlay, frame.QlfPing, nil, func(resp *frame.Frame, ok bool) {
			if !ok {
				h.Table.Update(pred, false)
			}
		})
	})
}

func u64Payload(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func be64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
