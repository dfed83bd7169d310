// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Node algorithms: the recursive routing selector and the churn-handling
// protocol steps (join, stabilize, notify, update). Grounded on
// wanhive/hub's Node.cpp (see _examples/original_source).
package chord

// IsLocal reports whether key is this node's routing responsibility:
// key in (predecessor, self] or key == self. A node whose predecessor and
// successor are both itself is alone on the ring and owns every valid key.
func (t *RoutingTable) IsLocal(key uint64) bool {
	p := t.Predecessor()
	if p == t.self && t.Successor() == t.self {
		return t.ring.Valid(key)
	}
	return t.ring.IsBetween(key, p, t.self) || key == t.self
}

// localSuccessor returns the successor if key lies in (self, successor]
// (the half-open-on-the-left, closed-on-the-right arc Chord calls the
// "local successor" case), or 0 if key is not covered by it.
func (t *RoutingTable) localSuccessor(key uint64) uint64 {
	succ := t.Successor()
	if t.ring.IsBetween(key, t.self, succ) || key == succ {
		return succ
	}
	return 0
}

// ClosestPreceding scans fingers from K-1 down to 0 for the closest node
// preceding key. When requireConnected is true, only fingers with an
// active outbound connection are eligible. Falls back to self if no finger
// qualifies (the caller treats that as a routing dead-end).
func (t *RoutingTable) ClosestPreceding(key uint64, requireConnected bool) uint64 {
	for i := len(t.fingers) - 1; i >= 0; i-- {
		f := &t.fingers[i]
		if t.ring.IsBetween(f.current, t.self, key) && (!requireConnected || f.connected) {
			return f.current
		}
	}
	return t.self
}

// NextHop is the recursive routing selector (spec.md §4.2):
//  1. If this node is key's root, return self.
//  2. Else if key falls in (self, successor], return successor.
//  3. Else return the closest connected preceding finger, or self if none
//     qualifies (routing dead-end).
func (t *RoutingTable) NextHop(key uint64) uint64 {
	if t.IsLocal(key) {
		return t.self
	}
	if s := t.localSuccessor(key); s != 0 {
		return s
	}
	return t.ClosestPreceding(key, true)
}

// Join seeds the table with a bootstrap peer: predecessor becomes
// unassigned (0), successor becomes k.
func (t *RoutingTable) Join(k uint64) {
	t.SetPredecessor(0)
	t.SetSuccessor(k)
}

// Stabilize adopts x as the new successor if x lies strictly between self
// and the current successor. x is the successor's claimed predecessor.
func (t *RoutingTable) Stabilize(x uint64) bool {
	if x != 0 && t.ring.IsBetween(x, t.self, t.Successor()) {
		return t.SetSuccessor(x)
	}
	return false
}

// Notify accepts x as the new predecessor if there is none yet, or if x
// lies strictly between the current predecessor and self.
func (t *RoutingTable) Notify(x uint64) bool {
	p := t.Predecessor()
	if p == 0 || t.ring.IsBetween(x, p, t.self) {
		return t.SetPredecessor(x)
	}
	return false
}

// Update handles a churn event for peer k: if k was our predecessor and it
// just departed, clear the predecessor; for every finger whose current
// equals k, flip its connected flag to joined. Returns whether anything in
// the table changed.
func (t *RoutingTable) Update(k uint64, joined bool) bool {
	found := false
	if t.Predecessor() == k && !joined {
		t.SetPredecessor(0)
		found = true
	}
	for i := range t.fingers {
		if t.fingers[i].current == k {
			t.fingers[i].SetConnected(joined)
			found = true
		}
	}
	return found
}

// IsInRoute reports whether key names this node, the controller, or any
// current finger target — i.e. whether key is a peer this node already
// knows how to reach directly.
func (t *RoutingTable) IsInRoute(key uint64) bool {
	if key == t.self || key == 0 {
		return true
	}
	for i := range t.fingers {
		if t.fingers[i].current == key {
			return true
		}
	}
	return false
}
