// Package watcher holds the hub's per-socket connection state and the
// registry that indexes connections by identifier.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection is grounded on the teacher's api/interfaces.go NetConn
// contract (plain Read/Write/Close) and api/buffer.go zero-copy Buffer,
// generalized from a single request/response WebSocket stream to the
// overlay hub's persistent, bidirectional, multi-frame-in-flight stream
// per spec.md §4.3 and §4.7.
package watcher

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/wanhive/hub-sub001/internal/frame"
	"github.com/wanhive/hub-sub001/internal/queue"
	"github.com/wanhive/hub-sub001/internal/reactor"
)

// Flag is a bitmask of a connection's lifecycle state.
type Flag uint8

const (
	// FlagActive means the connection has been admitted to the reactor
	// and is eligible for read/write service.
	FlagActive Flag = 1 << iota
	// FlagMulticastEnabled means the connection may receive fan-out
	// traffic for topics it has subscribed to.
	FlagMulticastEnabled
	// FlagOutPending means the outgoing ring holds unflushed frames.
	FlagOutPending
	// FlagInvalid means the connection is slated for teardown: peer
	// closed, protocol violation, or explicit close.
	FlagInvalid
	// FlagReady means the connection is present in the reactor's ready
	// list (mirrors reactor.Watcher.queued for diagnostics).
	FlagReady
)

const topicBitmapWords = 4 // 4 * 64 = 256 topics

// Connection is one accepted socket: its raw fd, buffering state, and
// subscription bitmap. It is owned exclusively by the hub goroutine; no
// field is safe for concurrent access from another goroutine (the
// stabilizer and SRP workers communicate results back through the hub's
// queues, never by touching a Connection directly).
type Connection struct {
	id      uint64
	conn    net.Conn
	tlsConn *tls.Conn // non-nil when TLS is active; conn wraps the same fd
	watcher *reactor.Watcher

	in  *byteRing
	out *queue.Ring[*frame.Frame]

	partial *frame.Header // header parsed but payload not yet complete
	mtu     uint16

	topics [topicBitmapWords]uint64

	flags     Flag
	createdAt time.Time

	outDropped uint64 // frames dropped for this conn due to policing/quota
}

// New wraps an accepted net.Conn under the given ephemeral or assigned id.
// outCapacity is rounded up to a power of two by the underlying ring.
func New(id uint64, conn net.Conn, mtu uint16, outCapacity int) *Connection {
	tlsConn, _ := conn.(*tls.Conn)
	return &Connection{
		id:        id,
		conn:      conn,
		tlsConn:   tlsConn,
		in:        newByteRing(2 * int(mtu)),
		out:       queue.NewRing[*frame.Frame](outCapacity),
		mtu:       mtu,
		flags:     FlagActive,
		createdAt: time.Now(),
	}
}

// ID returns the connection's current identifier (ephemeral or promoted).
func (c *Connection) ID() uint64 { return c.id }

// SetID updates the stored identifier; used by registry.Move during
// ephemeral-to-authenticated promotion.
func (c *Connection) SetID(id uint64) { c.id = id }

// Conn returns the underlying net.Conn (for raw fd extraction by the
// reactor admission path).
func (c *Connection) Conn() net.Conn { return c.conn }

// IsTLS reports whether this connection negotiated TLS.
func (c *Connection) IsTLS() bool { return c.tlsConn != nil }

// Watcher returns the bound reactor watcher, or nil before admission.
func (c *Connection) Watcher() *reactor.Watcher { return c.watcher }

// BindWatcher associates this connection with its reactor watcher.
func (c *Connection) BindWatcher(w *reactor.Watcher) { c.watcher = w }

// HasFlag reports whether all bits of f are set.
func (c *Connection) HasFlag(f Flag) bool { return c.flags&f == f }

// SetFlag sets the given bits.
func (c *Connection) SetFlag(f Flag) { c.flags |= f }

// ClearFlag clears the given bits.
func (c *Connection) ClearFlag(f Flag) { c.flags &^= f }

// CreatedAt returns the connection's admission timestamp, used for guest
// lease expiry.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// Subscribe marks topic as subscribed (topic is taken mod 256).
func (c *Connection) Subscribe(topic uint8) {
	word, bit := topic/64, topic%64
	c.topics[word] |= 1 << bit
}

// Unsubscribe clears a topic subscription.
func (c *Connection) Unsubscribe(topic uint8) {
	word, bit := topic/64, topic%64
	c.topics[word] &^= 1 << bit
}

// IsSubscribed reports whether topic is subscribed.
func (c *Connection) IsSubscribed(topic uint8) bool {
	word, bit := topic/64, topic%64
	return c.topics[word]&(1<<bit) != 0
}

// Publish enqueues f onto the outgoing ring. It returns false without
// mutating state if the ring is at capacity (back-pressure, spec.md §8
// "at-most-once publish"); callers must account the drop themselves so
// the same frame is never silently lost without a counter increment.
func (c *Connection) Publish(f *frame.Frame) bool {
	if c.out.Enqueue(f) {
		c.SetFlag(FlagOutPending)
		return true
	}
	c.outDropped++
	return false
}

// OutDropped returns the number of frames dropped for this connection due
// to outgoing back-pressure.
func (c *Connection) OutDropped() uint64 { return c.outDropped }

// OutLen reports how many frames are queued for delivery.
func (c *Connection) OutLen() int { return c.out.Len() }

// DrainOut removes queued outgoing frames one at a time via fn, which
// returns false to stop draining early (e.g. on a short write).
func (c *Connection) DrainOut(fn func(*frame.Frame) bool) {
	for {
		f, ok := c.out.Peek()
		if !ok {
			c.ClearFlag(FlagOutPending)
			return
		}
		if !fn(f) {
			return
		}
		c.out.Dequeue()
	}
}

// AppendIncoming copies newly-read bytes into the incoming ring.
func (c *Connection) AppendIncoming(b []byte) { c.in.write(b) }

// NextFrame attempts to parse one complete frame from the incoming ring.
// It returns (nil, nil) when more bytes are needed, or a parse error for
// a protocol violation (caller marks the connection invalid).
func (c *Connection) NextFrame() (*frame.Frame, error) {
	raw := c.in.peekAll()
	f, consumed, err := frame.DecodeFromBytes(raw, c.mtu)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, nil
	}
	c.in.advance(consumed)
	return f, nil
}

// Close releases the socket. It does not touch the reactor; callers must
// Disable the watcher first.
func (c *Connection) Close() error {
	return c.conn.Close()
}
