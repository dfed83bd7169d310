// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package watcher

import "time"

// guestEntry records when an ephemeral connection was admitted.
type guestEntry struct {
	id       uint64
	admitted time.Time
	occupied bool
}

// GuestRing is the fixed-size ring of ephemeral connection ids used to
// bound and expire unauthenticated guests (spec.md §4.7). Each
// maintenance tick resumes scanning where the previous one stopped and
// stops after a bounded number of expirations or one full revolution.
type GuestRing struct {
	slots []guestEntry
	next  int // next slot to be written by Add
	scan  int // next slot to be examined by Reap
	count int
}

// NewGuestRing allocates a ring with room for capacity guests.
func NewGuestRing(capacity int) *GuestRing {
	return &GuestRing{slots: make([]guestEntry, capacity)}
}

// Cap returns the configured guest capacity.
func (g *GuestRing) Cap() int { return len(g.slots) }

// Count returns the number of occupied slots.
func (g *GuestRing) Count() int { return g.count }

// Add records a newly admitted guest id in the slot at the write cursor,
// evicting that slot's occupant if it has one (after Remove has freed
// other slots, this can happen while the ring is not full). It returns the
// evicted id and true if an eviction occurred.
func (g *GuestRing) Add(id uint64, now time.Time) (evicted uint64, didEvict bool) {
	slot := &g.slots[g.next]
	if slot.occupied {
		evicted, didEvict = slot.id, true
	} else {
		g.count++
	}
	*slot = guestEntry{id: id, admitted: now, occupied: true}
	g.next = (g.next + 1) % len(g.slots)
	return evicted, didEvict
}

// Remove clears the slot holding id, if found, without shifting other
// entries (used when a guest promotes before its lease expires).
func (g *GuestRing) Remove(id uint64) {
	for i := range g.slots {
		if g.slots[i].occupied && g.slots[i].id == id {
			g.slots[i] = guestEntry{}
			g.count--
			return
		}
	}
}

// Reap scans slots starting from where the previous call left off,
// calling expire for every occupied slot older than leaseMs. It stops
// after target expirations or one full revolution.
func (g *GuestRing) Reap(now time.Time, leaseMs int64, target int, expire func(id uint64)) {
	if len(g.slots) == 0 {
		return
	}
	lease := time.Duration(leaseMs) * time.Millisecond
	expired := 0
	i := 0
	for ; i < len(g.slots) && expired < target; i++ {
		idx := (g.scan + i) % len(g.slots)
		s := &g.slots[idx]
		if !s.occupied {
			continue
		}
		if now.Sub(s.admitted) >= lease {
			expire(s.id)
			*s = guestEntry{}
			g.count--
			expired++
		}
	}
	g.scan = (g.scan + i) % len(g.slots)
}
