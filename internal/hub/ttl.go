// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package hub

import "github.com/wanhive/hub-sub001/internal/frame"

// TTL and SetTTL store the hop-limit counter in the low byte of the
// frame's reserved Context field. Decision (spec.md's open question on
// decrement timing): TTL is decremented once per routing decision, in
// Pipeline.Validate, rather than once per physical hop transmitted -
// this makes the limit a bound on "how many times this hub's pipeline
// will make a forwarding decision about this frame" and keeps the rule
// local to a single, easily-tested stage instead of spread across the
// reactor's write path.
func TTL(f *frame.Frame) uint8 {
	return uint8(f.Header.Context & 0xFF)
}

// SetTTL overwrites the low byte of Context with ttl, preserving the
// remaining 56 bits for other reserved use.
func SetTTL(f *frame.Frame, ttl uint8) {
	f.Header.Context = (f.Header.Context &^ 0xFF) | uint64(ttl)
}
