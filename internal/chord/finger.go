// Package chord implements the routing table and node algorithms of the
// overlay hub's Chord-style DHT.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on wanhive/hub's Node.cpp and Finger.h (see
// _examples/original_source/src/server/overlay).
package chord

// Finger is one routing-table entry: the node believed to own the ring
// position `start`, plus churn/stability bookkeeping.
type Finger struct {
	start     uint64 // ring position this finger covers
	current   uint64 // node currently believed to own start
	committed uint64 // last acknowledged value of current
	connected bool   // active outbound connection to current present
}

// Start returns the finger's fixed ring position.
func (f *Finger) Start() uint64 { return f.start }

// Current returns the finger's current target.
func (f *Finger) Current() uint64 { return f.current }

// Committed returns the last committed target.
func (f *Finger) Committed() uint64 { return f.committed }

// Connected reports whether an active outbound connection to Current exists.
func (f *Finger) Connected() bool { return f.connected }

// IsConsistent reports whether current matches the last committed value.
func (f *Finger) IsConsistent() bool { return f.current == f.committed }

// SetConnected updates the connected flag directly (churn bookkeeping).
func (f *Finger) SetConnected(connected bool) { f.connected = connected }

// setStart is used only during table initialization.
func (f *Finger) setStart(start uint64) { f.start = start }

// commit copies current into committed and returns the value it replaced.
func (f *Finger) commit() uint64 {
	old := f.committed
	f.committed = f.current
	return old
}

// set assigns a new current value. It reports whether the table's overall
// stability should be marked false as a result. Per the invariant: setting
// current to v where v != 0 and v != committed destabilizes the table; a
// value equal to the already-committed value (including a repeated no-op
// write) never does.
func (f *Finger) set(key uint64) (changed bool) {
	f.current = key
	return key != 0 && key != f.committed
}
