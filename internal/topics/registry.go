// Package topics implements the multicast subscription registry:
// associating connection identifiers with the topics they have
// subscribed to, for MCAST PUBLISH fan-out (spec.md §4.9).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on original_source/src/server/core/Topics.cpp: a fixed-size
// array of per-topic watcher lists plus a reverse index for O(1)
// membership checks and removal. The reverse index there exists because
// C++'s intrusive list needs an O(1) way to splice out one element; Go's
// native map already gives that, so the association is a fixed array of
// per-topic id sets ([Count]map[uint64]struct{}) here instead of a
// parallel hash+array pair.
package topics

// Count is the number of addressable topics (the bitmap used in
// internal/watcher.Connection is sized to match).
const Count = 256

// Registry maps topic ids to the set of subscriber connection ids.
// Not safe for concurrent use; owned by the hub goroutine.
type Registry struct {
	subscribers [Count]map[uint64]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Subscribe associates id with topic. topic must be < Count.
func (r *Registry) Subscribe(topic uint8, id uint64) bool {
	if int(topic) >= Count {
		return false
	}
	if r.subscribers[topic] == nil {
		r.subscribers[topic] = make(map[uint64]struct{})
	}
	r.subscribers[topic][id] = struct{}{}
	return true
}

// Unsubscribe removes the association, if present.
func (r *Registry) Unsubscribe(topic uint8, id uint64) {
	if int(topic) >= Count || r.subscribers[topic] == nil {
		return
	}
	delete(r.subscribers[topic], id)
}

// UnsubscribeAll removes id from every topic it was subscribed to; used
// when a connection closes.
func (r *Registry) UnsubscribeAll(id uint64) {
	for i := range r.subscribers {
		if r.subscribers[i] != nil {
			delete(r.subscribers[i], id)
		}
	}
}

// Contains reports whether id is subscribed to topic.
func (r *Registry) Contains(topic uint8, id uint64) bool {
	if int(topic) >= Count || r.subscribers[topic] == nil {
		return false
	}
	_, ok := r.subscribers[topic][id]
	return ok
}

// CountOf returns the number of subscribers for topic.
func (r *Registry) CountOf(topic uint8) int {
	if int(topic) >= Count {
		return 0
	}
	return len(r.subscribers[topic])
}

// Each calls fn once for every subscriber of topic; iteration order is
// unspecified.
func (r *Registry) Each(topic uint8, fn func(id uint64)) {
	if int(topic) >= Count {
		return
	}
	for id := range r.subscribers[topic] {
		fn(id)
	}
}
