// Package hub wires the reactor, routing table, connection registry,
// topics, and message pipeline into the overlay hub's single-threaded
// event loop (spec.md §4.6).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on the teacher's server/server.go accept-loop wiring
// (listener, buffer pool, control adapter assembled in one constructor),
// generalized from "accept and hand to a WebSocket handler" to "accept,
// admit into the reactor, and run the overlay message pipeline."
package hub

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wanhive/hub-sub001/internal/auth"
	"github.com/wanhive/hub-sub001/internal/chord"
	"github.com/wanhive/hub-sub001/internal/config"
	"github.com/wanhive/hub-sub001/internal/frame"
	"github.com/wanhive/hub-sub001/internal/metrics"
	"github.com/wanhive/hub-sub001/internal/queue"
	"github.com/wanhive/hub-sub001/internal/reactor"
	"github.com/wanhive/hub-sub001/internal/ringid"
	"github.com/wanhive/hub-sub001/internal/topics"
	"github.com/wanhive/hub-sub001/internal/watcher"
)

// authSessionTTL bounds how long a TOKEN exchange's Begin step waits for
// the matching VerifyClientProof round trip before its state is reaped.
const authSessionTTL = 30 * time.Second

// Dispatcher handles a frame addressed to this node's own control plane
// (the overlay protocol handlers of spec.md §4.9). The hub package only
// routes; internal/protocol supplies the implementation, wired in via
// this interface to avoid an import cycle.
type Dispatcher interface {
	Dispatch(h *Hub, origin *watcher.Connection, f *frame.Frame) *frame.Frame
}

// Hub is the process-wide overlay node: exactly one goroutine drives its
// Run loop (spec.md §5 "the hub proper is single-threaded").
type Hub struct {
	opts    config.Options
	runtime *config.Runtime
	log     *zap.Logger

	ring     *ringid.Ring
	Table    *chord.RoutingTable
	registry *watcher.Registry
	guests   *watcher.GuestRing
	topicsR  *topics.Registry

	react    *reactor.Reactor
	listener net.Listener

	incoming *queue.FrameQueue
	outgoing *queue.FrameQueue

	pipeline *Pipeline
	policer  Policer
	dispatch Dispatcher

	drops   DropCounters
	metrics *metrics.Collector

	authGroup    auth.Group
	authHash     string
	authStore    *auth.IdentityStore
	authSessions *auth.SessionStore

	pending map[uint16]pendingEntry
	nextSeq uint16
	jobs    chan func(*Hub)

	startedAt time.Time
	received  uint64

	nextEphemeral atomic.Uint64
	cancel        atomic.Bool

	notifyR, notifyW *os.File // event-notifier pipe; writing wakes Poll
}

// New constructs a Hub from loaded options. It does not start listening;
// call Open to bind the listener and admit the prime watchers.
func New(opts config.Options, selfID uint64, dispatch Dispatcher, log *zap.Logger) (*Hub, error) {
	ring, err := ringid.New(uint(opts.RingK))
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	table, err := chord.NewRoutingTable(ring, selfID)
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	react, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("hub: reactor: %w", err)
	}

	registry := watcher.NewRegistry()
	topicsR := topics.New()

	h := &Hub{
		opts:     opts,
		runtime:  config.NewRuntime(opts),
		log:      log,
		ring:     ring,
		Table:    table,
		registry: registry,
		guests:   watcher.NewGuestRing(int(opts.MaxGuests)),
		topicsR:  topicsR,
		react:    react,
		incoming: queue.NewFrameQueue(),
		outgoing: queue.NewFrameQueue(),
		pipeline: NewPipeline(ring, table, registry, topicsR, uint8(opts.TTL)),
		policer:  NewPolicer(opts.ReservedSlots, opts.AnswerRatio, opts.ForwardRatio),
		dispatch: dispatch,
		pending:      make(map[uint16]pendingEntry),
		jobs:         make(chan func(*Hub), 64),
		authGroup:    auth.GroupForBits(opts.GroupSize),
		authHash:     opts.Hash,
		authStore:    auth.NewIdentityStore(),
		authSessions: auth.NewSessionStore(authSessionTTL),
	}
	h.nextEphemeral.Store(ringid.EphemeralBase)
	return h, nil
}

// SelfID returns this node's ring identifier.
func (h *Hub) SelfID() uint64 { return h.Table.Self() }

// Registry exposes the connection registry for protocol handlers that
// need to look up peers (e.g. privilege checks).
func (h *Hub) Registry() *watcher.Registry { return h.registry }

// Topics exposes the multicast subscription registry.
func (h *Hub) Topics() *topics.Registry { return h.topicsR }

// Runtime exposes the hot-reloadable option snapshot.
func (h *Hub) Runtime() *config.Runtime { return h.runtime }

// Logger exposes the structured logger for protocol handlers.
func (h *Hub) Logger() *zap.Logger { return h.log }

// SetMetrics attaches a Prometheus collector; until called, metric
// recording is a no-op.
func (h *Hub) SetMetrics(c *metrics.Collector) { h.metrics = c }

// AuthGroup returns the configured SRP-6a prime group.
func (h *Hub) AuthGroup() auth.Group { return h.authGroup }

// AuthHash returns the configured SRP-6a hash algorithm name.
func (h *Hub) AuthHash() string { return h.authHash }

// AuthStore exposes the registered-identity store to protocol handlers.
func (h *Hub) AuthStore() *auth.IdentityStore { return h.authStore }

// AuthSessions exposes the in-flight TOKEN exchange store to protocol
// handlers.
func (h *Hub) AuthSessions() *auth.SessionStore { return h.authSessions }

// Uptime reports how long the hub has been open.
func (h *Hub) Uptime() time.Duration {
	if h.startedAt.IsZero() {
		return 0
	}
	return time.Since(h.startedAt)
}

// Received reports the total number of frames read off connections since
// Open, regardless of how the pipeline subsequently routed or dropped
// them.
func (h *Hub) Received() uint64 { return h.received }

// Drops returns a snapshot of the in-process drop counters.
func (h *Hub) Drops() DropCounters { return h.drops }

// ConnectionCount reports the number of currently registered connections.
func (h *Hub) ConnectionCount() int { return h.registry.Len() }

// MaxConnections returns the configured connection cap.
func (h *Hub) MaxConnections() uint32 { return uint32(h.opts.MaxConnections) }

// GuestCount reports the number of connections still awaiting
// authentication.
func (h *Hub) GuestCount() int { return h.guests.Count() }

// MaxGuests returns the configured guest-ring capacity.
func (h *Hub) MaxGuests() uint32 { return uint32(h.opts.MaxGuests) }

// MTU returns the configured maximum frame size.
func (h *Hub) MTU() uint16 { return h.opts.MTU }

// Open admits the prime watchers: the event notifier always, and the
// listener when configured to accept external connections (spec.md
// §4.6).
func (h *Hub) Open() error {
	h.startedAt = time.Now()
	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("hub: event notifier: %w", err)
	}
	h.notifyR, h.notifyW = r, w
	if _, err := h.react.Admit(int(r.Fd()), reactor.Read, h.onNotifierReady); err != nil {
		return fmt.Errorf("hub: admit notifier: %w", err)
	}

	if !h.opts.Listen {
		return nil
	}
	network := h.opts.BindType
	if network == "" {
		network = "tcp"
	}
	ln, err := net.Listen(network, h.opts.BindName)
	if err != nil {
		return fmt.Errorf("hub: listen: %w", err)
	}
	h.listener = ln

	fd, err := fdOf(ln)
	if err != nil {
		ln.Close()
		return fmt.Errorf("hub: listener fd: %w", err)
	}
	_, err = h.react.Admit(fd, reactor.Read, h.onListenerReady)
	if err != nil {
		ln.Close()
		return fmt.Errorf("hub: admit listener: %w", err)
	}
	h.log.Info("hub listening", zap.String("network", network), zap.String("addr", h.opts.BindName))
	return nil
}

// onListenerReady accepts every pending connection and admits each one.
func (h *Hub) onListenerReady(w *reactor.Watcher, ready reactor.Interest) bool {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			return true // EAGAIN or similar; stay armed for next readiness
		}
		h.admit(conn)
	}
}

// admit wraps a freshly accepted socket as a guest connection with an
// ephemeral id and registers it with the reactor and registry.
func (h *Hub) admit(conn net.Conn) {
	if uint(h.registry.Len()) >= h.opts.MaxConnections {
		conn.Close()
		return
	}
	id := h.nextEphemeral.Add(1)
	c := watcher.New(id, conn, h.opts.MTU, int(h.opts.OutQuota))

	fd, err := fdOf(conn)
	if err != nil {
		h.log.Warn("admit: fd extraction failed", zap.Error(err))
		conn.Close()
		return
	}

	w, err := h.react.Admit(fd, reactor.Read, func(rw *reactor.Watcher, ready reactor.Interest) bool {
		return h.onConnReady(c, rw, ready)
	})
	if err != nil {
		h.log.Warn("admit: reactor admit failed", zap.Error(err))
		conn.Close()
		return
	}
	c.BindWatcher(w)

	if err := h.registry.Insert(id, c); err != nil {
		h.react.Disable(w)
		conn.Close()
		return
	}
	h.guests.Add(id, time.Now())
	h.refreshOccupancyMetrics()
}

// refreshOccupancyMetrics pushes the current registry/guest-ring sizes
// into the attached collector, if any.
func (h *Hub) refreshOccupancyMetrics() {
	if h.metrics == nil {
		return
	}
	h.metrics.Connections.Set(float64(h.registry.Len()))
	h.metrics.Guests.Set(float64(h.guests.Count()))
}

// fdOf extracts the raw file descriptor from anything exposing
// syscall.Conn (net.TCPConn, net.UnixConn, net.TCPListener,
// net.UnixListener), for reactor admission. TLS connections are admitted
// via their underlying net.Conn, obtained before the TLS handshake is
// layered on.
func fdOf(c any) (int, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("hub: %T does not expose a raw fd", c)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	var ctrlErr error
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		ctrlErr = err
	}
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}
