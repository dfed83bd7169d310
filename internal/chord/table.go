// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RoutingTable owns the per-node Chord state: K fingers, predecessor,
// stability flag, and a backup successor list.
package chord

import (
	"fmt"

	"github.com/wanhive/hub-sub001/internal/ringid"
)

// RoutingTable is the per-hub Chord state machine. It is single-threaded:
// the hub's reactor goroutine is the only caller (see spec.md §5).
type RoutingTable struct {
	ring *ringid.Ring
	self uint64

	predecessor Finger
	fingers     []Finger // length K; fingers[0].current is the successor

	stable bool

	// successors is the backup successor list (length K-1). It starts
	// filled with self and changes only through SetSuccessorList; the
	// stabilizer does not read it.
	successors []uint64
}

// NewRoutingTable builds a stand-alone routing table for identifier self on
// the given ring. Per spec.md §3: predecessor = self, every finger's
// current = self, every finger committed, stability = true, connected =
// false.
func NewRoutingTable(ring *ringid.Ring, self uint64) (*RoutingTable, error) {
	if !ring.Valid(self) {
		return nil, fmt.Errorf("chord: self id %d out of range", self)
	}
	t := &RoutingTable{
		ring:       ring,
		self:       self,
		fingers:    make([]Finger, ring.K()),
		successors: make([]uint64, ring.K()-1),
	}
	t.predecessor.current = self
	t.predecessor.committed = self
	for i := range t.fingers {
		start, err := ring.Successor(self, uint(i))
		if err != nil {
			return nil, err
		}
		t.fingers[i].setStart(start)
		t.fingers[i].current = self
		t.fingers[i].committed = self
		t.fingers[i].connected = false
	}
	for i := range t.successors {
		t.successors[i] = self
	}
	t.stable = true
	return t, nil
}

// Self returns this node's identifier.
func (t *RoutingTable) Self() uint64 { return t.self }

// K returns the number of fingers.
func (t *RoutingTable) K() uint { return t.ring.K() }

// Predecessor returns the current predecessor identifier (0 means none).
func (t *RoutingTable) Predecessor() uint64 { return t.predecessor.current }

// Successor returns finger 0's current value.
func (t *RoutingTable) Successor() uint64 { return t.fingers[0].current }

// IsStable reports the routing table's stability flag.
func (t *RoutingTable) IsStable() bool { return t.stable }

// SetStable sets the stability flag directly; used by the stabilizer once a
// full fix-finger pass completes without detecting further drift.
func (t *RoutingTable) SetStable(stable bool) { t.stable = stable }

// Finger returns a read-only view of finger i, or an error if i is out of
// range.
func (t *RoutingTable) Finger(i uint32) (*Finger, error) {
	if int(i) >= len(t.fingers) {
		return nil, fmt.Errorf("chord: finger index %d out of range [0,%d)", i, len(t.fingers))
	}
	return &t.fingers[i], nil
}

// SuccessorList returns the backup successor list, most-preferred first.
func (t *RoutingTable) SuccessorList() []uint64 {
	out := make([]uint64, len(t.successors))
	copy(out, t.successors)
	return out
}

// SetSuccessorList replaces the backup successor list, padding any
// remaining slots with self.
func (t *RoutingTable) SetSuccessorList(list []uint64) {
	n := copy(t.successors, list)
	for ; n < len(t.successors); n++ {
		t.successors[n] = t.self
	}
}

// SetPredecessor sets the predecessor finger. Per the resolved Open
// Question (§12.3 of SPEC_FULL.md), 0 is a legal "no predecessor" value.
// Returns whether the table was destabilized as a result.
func (t *RoutingTable) SetPredecessor(key uint64) bool {
	changed := t.predecessor.set(key)
	if changed {
		t.stable = false
	}
	return changed
}

// CommitPredecessor commits the predecessor finger and returns its previous
// committed value.
func (t *RoutingTable) CommitPredecessor() uint64 {
	return t.predecessor.commit()
}

// SetFinger sets finger i's current value. 0 is rejected for ordinary
// fingers (a node is never its own finger target of "no one"); an
// out-of-range i is reported as the error from Finger(i).
func (t *RoutingTable) SetFinger(i uint32, key uint64) (bool, error) {
	if key == 0 {
		return false, nil
	}
	f, err := t.Finger(i)
	if err != nil {
		return false, err
	}
	changed := f.set(key)
	if changed {
		t.stable = false
	}
	return changed, nil
}

// SetSuccessor sets finger 0. Per §12.3, 0 is rejected: a node always has a
// successor (itself at minimum). Reports false (no error) if key is 0.
func (t *RoutingTable) SetSuccessor(key uint64) bool {
	if key == 0 {
		return false
	}
	changed, _ := t.SetFinger(0, key)
	return changed
}

// Commit commits finger i, returning its previous committed value.
func (t *RoutingTable) Commit(i uint32) (uint64, error) {
	f, err := t.Finger(i)
	if err != nil {
		return 0, err
	}
	return f.commit(), nil
}

// IsConsistent reports whether finger i's current equals its committed
// value.
func (t *RoutingTable) IsConsistent(i uint32) bool {
	f, err := t.Finger(i)
	if err != nil {
		return false
	}
	return f.IsConsistent()
}
