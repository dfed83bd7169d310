// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package watcher

import "errors"

// ErrExists is returned by Insert when the key is already registered.
var ErrExists = errors.New("watcher: identifier already registered")

// ErrMoveConflict is returned by Move when neither side of the swap can
// be resolved under the requested allowSwap policy.
var ErrMoveConflict = errors.New("watcher: move conflict")

// IterFunc is invoked once per entry during Iterate. Returning 0
// continues the scan; 1 removes the current entry and continues; any
// other value halts iteration immediately (spec.md §4.5).
type IterFunc func(id uint64, c *Connection) int

// Registry maps identifiers to connections. It is a plain map with no
// internal locking: per spec.md §5, per-connection state (including
// registry membership) is owned exclusively by the hub goroutine.
type Registry struct {
	byID map[uint64]*Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint64]*Connection)}
}

// Insert adds c under key id. It fails if id is already registered;
// callers that want to displace an existing entry must Delete first or
// use Move.
func (r *Registry) Insert(id uint64, c *Connection) error {
	if _, exists := r.byID[id]; exists {
		return ErrExists
	}
	r.byID[id] = c
	return nil
}

// Lookup returns the connection registered under id, or nil.
func (r *Registry) Lookup(id uint64) *Connection {
	return r.byID[id]
}

// Delete removes the entry for id, if present.
func (r *Registry) Delete(id uint64) {
	delete(r.byID, id)
}

// Len reports how many connections are registered.
func (r *Registry) Len() int { return len(r.byID) }

// Move relocates a connection from identifier `from` to `to`, per
// spec.md §4.5:
//   - both present, allowSwap=true: swap the two stored pointers, and
//     update each connection's stored id to match its new key.
//   - exactly one present: reinsert that connection under the missing
//     key and update its stored id.
//   - neither present, or both present with allowSwap=false: failure.
func (r *Registry) Move(from, to uint64, allowSwap bool) error {
	src, srcOK := r.byID[from]
	dst, dstOK := r.byID[to]

	switch {
	case srcOK && dstOK:
		if !allowSwap {
			return ErrMoveConflict
		}
		src.SetID(to)
		dst.SetID(from)
		r.byID[to] = src
		r.byID[from] = dst
		return nil
	case srcOK && !dstOK:
		delete(r.byID, from)
		src.SetID(to)
		r.byID[to] = src
		return nil
	case !srcOK && dstOK:
		delete(r.byID, to)
		dst.SetID(from)
		r.byID[from] = dst
		return nil
	default:
		return ErrMoveConflict
	}
}

// Iterate performs a single-shot scan over the registry, applying fn to
// each entry. Map iteration order is unspecified, matching the
// "single-shot" contract (no guarantee of insertion order).
func (r *Registry) Iterate(fn IterFunc) {
	for id, c := range r.byID {
		switch fn(id, c) {
		case 0:
			continue
		case 1:
			delete(r.byID, id)
			continue
		default:
			return
		}
	}
}
