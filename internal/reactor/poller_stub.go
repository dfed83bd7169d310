//go:build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-Linux placeholder: the overlay hub's reactor is epoll-only, matching
// the teacher's own Linux-first posture (its epoll backend is the one with
// a complete, coherent implementation; the Windows/IOCP variant it carried
// alongside was a separate, unfinished design — see DESIGN.md).
package reactor

import "errors"

// ErrUnsupportedPlatform is returned by New on platforms without a poller
// backend.
var ErrUnsupportedPlatform = errors.New("reactor: no poller backend for this platform")

func newPoller() (poller, error) {
	return nil, ErrUnsupportedPlatform
}
