// Package protocol implements the overlay hub's control-plane command
// handlers (spec.md §4.9): NODE, OVERLAY, NULL, MCAST, and AUTH command
// groups, dispatched by (command, qualifier).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on original_source/src/server/overlay/OverlayProtocol.cpp's
// per-qualifier handler table (same command/qualifier numbering, same
// request/response body shapes), reimplemented as a Go map-dispatch over
// a small closed set of handler functions instead of a C++ switch over
// an enum, per the "tagged variant over virtual dispatch" design note.
package protocol

import (
	"encoding/binary"
	"math/big"

	"github.com/google/uuid"

	"github.com/wanhive/hub-sub001/internal/auth"
	"github.com/wanhive/hub-sub001/internal/frame"
	"github.com/wanhive/hub-sub001/internal/hub"
	"github.com/wanhive/hub-sub001/internal/watcher"
)

// handlerFunc processes one request frame and returns the response
// payload and whether a response is sent at all (false for handlers with
// no reply, e.g. NOTIFY; PING replies with an empty payload).
type handlerFunc func(h *hub.Hub, origin *watcher.Connection, req *frame.Frame) ([]byte, bool)

type key struct {
	command, qualifier uint8
}

// Handlers implements hub.Dispatcher by table lookup on (command,
// qualifier).
type Handlers struct {
	table map[key]handlerFunc
}

// New builds the mandatory handler table of spec.md §4.9.
func New() *Handlers {
	d := &Handlers{table: make(map[key]handlerFunc)}
	d.table[key{frame.CmdNode, frame.QlfGetPredecessor}] = handleGetPredecessor
	d.table[key{frame.CmdNode, frame.QlfSetPredecessor}] = handleSetPredecessor
	d.table[key{frame.CmdNode, frame.QlfGetSuccessor}] = handleGetSuccessor
	d.table[key{frame.CmdNode, frame.QlfSetSuccessor}] = handleSetSuccessor
	d.table[key{frame.CmdNode, frame.QlfGetFinger}] = handleGetFinger
	d.table[key{frame.CmdNode, frame.QlfSetFinger}] = handleSetFinger
	d.table[key{frame.CmdNode, frame.QlfGetNeighbours}] = handleGetNeighbours
	d.table[key{frame.CmdNode, frame.QlfNotify}] = handleNotify

	d.table[key{frame.CmdOverlay, frame.QlfFindSuccessor}] = handleFindSuccessor
	d.table[key{frame.CmdOverlay, frame.QlfPing}] = handlePing

	d.table[key{frame.CmdNull, frame.QlfDescribe}] = handleDescribe

	d.table[key{frame.CmdMcast, frame.QlfSubscribe}] = handleSubscribe
	d.table[key{frame.CmdMcast, frame.QlfUnsubscribe}] = handleUnsubscribe

	d.table[key{frame.CmdAuth, frame.QlfRegister}] = handleRegister
	d.table[key{frame.CmdAuth, frame.QlfToken}] = handleToken
	d.table[key{frame.CmdAuth, frame.QlfFindRoot}] = handleFindRoot
	d.table[key{frame.CmdAuth, frame.QlfBootstrap}] = handleBootstrap
	return d
}

// privileged lists the NODE qualifiers that may only be invoked by a
// source the hub regards as a peer (its predecessor/successor or a
// finger target), per spec.md §4.9.
var privileged = map[uint8]bool{
	frame.QlfSetPredecessor: true,
	frame.QlfSetSuccessor:   true,
	frame.QlfSetFinger:      true,
	frame.QlfNotify:         true,
}

// Dispatch implements hub.Dispatcher.
func (d *Handlers) Dispatch(h *hub.Hub, origin *watcher.Connection, req *frame.Frame) *frame.Frame {
	if !req.IsRequest() {
		return nil
	}
	if req.Header.Command == frame.CmdNode && privileged[req.Header.Qualifier] && !isPeer(h, req.Header.Source) {
		return nil
	}

	fn, ok := d.table[key{req.Header.Command, req.Header.Qualifier}]
	if !ok {
		return nil
	}
	payload, hasResponse := fn(h, origin, req)
	if !hasResponse {
		return nil
	}
	resp, err := frame.New(req.Header.Destination, req.Header.Source, req.Header.Command, req.Header.Qualifier, frame.AqlfResponse, payload)
	if err != nil {
		return nil
	}
	resp.Header.Sequence = req.Header.Sequence
	resp.Header.Session = req.Header.Session
	return resp
}

// isPeer reports whether id names the hub's current predecessor,
// successor, or one of its finger targets (IsInRoute also accepts this
// node's own id and the controller id).
func isPeer(h *hub.Hub, id uint64) bool {
	return id == h.Table.Predecessor() || h.Table.IsInRoute(id)
}

func handleGetPredecessor(h *hub.Hub, _ *watcher.Connection, _ *frame.Frame) ([]byte, bool) {
	return u64Payload(h.Table.Predecessor()), true
}

func handleSetPredecessor(h *hub.Hub, _ *watcher.Connection, req *frame.Frame) ([]byte, bool) {
	candidate := readU64(req.Payload, 0)
	h.Table.SetPredecessor(candidate)
	return u64Payload(candidate), true
}

func handleGetSuccessor(h *hub.Hub, _ *watcher.Connection, _ *frame.Frame) ([]byte, bool) {
	return u64Payload(h.Table.Successor()), true
}

func handleSetSuccessor(h *hub.Hub, _ *watcher.Connection, req *frame.Frame) ([]byte, bool) {
	candidate := readU64(req.Payload, 0)
	h.Table.SetSuccessor(candidate) // 0 is rejected and leaves the successor unchanged
	return u64Payload(h.Table.Successor()), true
}

func handleGetFinger(h *hub.Hub, _ *watcher.Connection, req *frame.Frame) ([]byte, bool) {
	idx := readU32(req.Payload, 0)
	f, err := h.Table.Finger(idx)
	if err != nil {
		return nil, false
	}
	out := make([]byte, 12)
	binary.BigEndian.PutUint32(out[0:4], idx)
	binary.BigEndian.PutUint64(out[4:12], f.Current())
	return out, true
}

func handleSetFinger(h *hub.Hub, _ *watcher.Connection, req *frame.Frame) ([]byte, bool) {
	idx := readU32(req.Payload, 0)
	value := readU64(req.Payload, 4)
	if _, err := h.Table.SetFinger(idx, value); err != nil {
		return nil, false
	}
	out := make([]byte, 12)
	binary.BigEndian.PutUint32(out[0:4], idx)
	binary.BigEndian.PutUint64(out[4:12], value)
	return out, true
}

func handleGetNeighbours(h *hub.Hub, _ *watcher.Connection, _ *frame.Frame) ([]byte, bool) {
	out := make([]byte, 16)
	binary.BigEndian.PutUint64(out[0:8], h.Table.Predecessor())
	binary.BigEndian.PutUint64(out[8:16], h.Table.Successor())
	return out, true
}

func handleNotify(h *hub.Hub, _ *watcher.Connection, req *frame.Frame) ([]byte, bool) {
	candidate := readU64(req.Payload, 0)
	h.Table.Notify(candidate)
	return nil, false
}

func handleFindSuccessor(h *hub.Hub, origin *watcher.Connection, req *frame.Frame) ([]byte, bool) {
	key := readU64(req.Payload, 0)
	if h.Table.IsLocal(key) {
		out := make([]byte, 16)
		binary.BigEndian.PutUint64(out[0:8], key)
		binary.BigEndian.PutUint64(out[8:16], h.Table.Successor())
		return out, true
	}

	// Forward: rewrite destination to next_hop, keep source/sequence so
	// the eventual root answers the original requester directly.
	next := h.Table.NextHop(key)
	fwd, err := frame.New(req.Header.Source, next, frame.CmdOverlay, frame.QlfFindSuccessor, frame.AqlfRequest, req.Payload)
	if err != nil {
		return nil, false
	}
	fwd.Header.Sequence = req.Header.Sequence
	if conn := h.Registry().Lookup(next); conn != nil {
		conn.Publish(fwd)
	}
	return nil, false
}

func handlePing(h *hub.Hub, _ *watcher.Connection, _ *frame.Frame) ([]byte, bool) {
	return nil, true
}

// describePrefixSize is the fixed portion of a describe response: uid,
// predecessor, successor, uptime, frames received, frames dropped (6 u64
// fields, 48 bytes), connection/
// guest occupancy and their configured caps (4 u32 fields, 16 bytes), MTU
// plus a reserved pad (2 u16 fields, 4 bytes).
const describePrefixSize = 48 + 16 + 4

// fingerRecordSize is start, current, committed (3 u64 fields) plus a
// connected flag byte.
const fingerRecordSize = 8 + 8 + 8 + 1

// handleDescribe answers a NULL/describe probe with this node's identity,
// uptime, traffic counters, resource occupancy, and full routing summary:
// the describePrefixSize fixed prefix, then routes (u32), stable (u8),
// then one fingerRecordSize record per finger.
func handleDescribe(h *hub.Hub, _ *watcher.Connection, _ *frame.Frame) ([]byte, bool) {
	k := h.Table.K()
	out := make([]byte, 0, describePrefixSize+4+1+int(k)*fingerRecordSize)

	out = appendU64(out, h.SelfID())
	out = appendU64(out, h.Table.Predecessor())
	out = appendU64(out, h.Table.Successor())
	out = appendU64(out, uint64(h.Uptime().Seconds()))
	out = appendU64(out, h.Received())
	out = appendU64(out, h.Drops().Total())
	out = appendU32(out, uint32(h.ConnectionCount()))
	out = appendU32(out, h.MaxConnections())
	out = appendU32(out, uint32(h.GuestCount()))
	out = appendU32(out, h.MaxGuests())
	out = appendU16(out, h.MTU())
	out = appendU16(out, 0) // reserved

	out = appendU32(out, uint32(k))
	out = append(out, boolByte(h.Table.IsStable()))

	for i := uint32(0); i < uint32(k); i++ {
		f, err := h.Table.Finger(i)
		if err != nil {
			break
		}
		out = appendU64(out, f.Start())
		out = appendU64(out, f.Current())
		out = appendU64(out, f.Committed())
		out = append(out, boolByte(f.Connected()))
	}
	return out, true
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func handleSubscribe(h *hub.Hub, origin *watcher.Connection, req *frame.Frame) ([]byte, bool) {
	if origin == nil || len(req.Payload) < 1 {
		return nil, false
	}
	topic := req.Payload[0]
	h.Topics().Subscribe(topic, origin.ID())
	origin.Subscribe(topic)
	origin.SetFlag(watcher.FlagMulticastEnabled)
	return []byte{1}, true
}

func handleUnsubscribe(h *hub.Hub, origin *watcher.Connection, req *frame.Frame) ([]byte, bool) {
	if origin == nil || len(req.Payload) < 1 {
		return nil, false
	}
	topic := req.Payload[0]
	h.Topics().Unsubscribe(topic, origin.ID())
	origin.Unsubscribe(topic)
	return []byte{1}, true
}

func handleFindRoot(h *hub.Hub, _ *watcher.Connection, req *frame.Frame) ([]byte, bool) {
	key := readU64(req.Payload, 0)
	root := key
	if !h.Table.IsLocal(key) {
		root = h.Table.NextHop(key)
	} else {
		root = h.SelfID()
	}
	return u64Payload(root), true
}

func handleBootstrap(h *hub.Hub, _ *watcher.Connection, _ *frame.Frame) ([]byte, bool) {
	nodes := []uint64{h.Table.Predecessor(), h.Table.Successor()}
	out := make([]byte, 8*len(nodes))
	for i, n := range nodes {
		binary.BigEndian.PutUint64(out[i*8:i*8+8], n)
	}
	return out, true
}

// handleRegister stores a new identity's SRP-6a salt and verifier
// (spec.md AUTH register). Wire shape: [identityLen u8][identity]
// [saltLen u8][salt][verifierLen u16][verifier].
func handleRegister(h *hub.Hub, _ *watcher.Connection, req *frame.Frame) ([]byte, bool) {
	b := req.Payload
	identity, off, ok := readLenPrefixedU8(b, 0)
	if !ok {
		return nil, false
	}
	salt, off, ok := readLenPrefixedU8(b, off)
	if !ok {
		return nil, false
	}
	verifierBytes, _, ok := readLenPrefixedU16(b, off)
	if !ok {
		return nil, false
	}
	v := auth.Verifier{Salt: salt, V: new(big.Int).SetBytes(verifierBytes)}
	h.AuthStore().Register(string(identity), v)
	return []byte{1}, true
}

// authTokenBegin and authTokenVerify select a TOKEN request's step; the
// exchange spans two round trips correlated by the opaque token minted
// in the Begin response, since the hub answers each request statelessly
// otherwise.
const (
	authTokenBegin  uint8 = 0
	authTokenVerify uint8 = 1
)

// handleToken drives one step of an SRP-6a exchange (spec.md AUTH
// token). Begin wire shape: [step=0][identityLen u8][identity]
// [ALen u16][A] -> [token 16 bytes][saltLen u8][salt][BLen u16][B].
// Verify wire shape: [step=1][token 16 bytes][proofLen u8][proof] ->
// [ok u8][proof] (proof present only when ok == 1).
func handleToken(h *hub.Hub, _ *watcher.Connection, req *frame.Frame) ([]byte, bool) {
	b := req.Payload
	if len(b) < 1 {
		return nil, false
	}
	switch b[0] {
	case authTokenBegin:
		identity, off, ok := readLenPrefixedU8(b, 1)
		if !ok {
			return nil, false
		}
		aBytes, _, ok := readLenPrefixedU16(b, off)
		if !ok {
			return nil, false
		}
		clientA := new(big.Int).SetBytes(aBytes)

		session := auth.NewHostSession(h.AuthGroup(), h.AuthHash())
		v, found := h.AuthStore().Lookup(string(identity))
		salt, B, err := session.Begin(string(identity), clientA, v, found, []byte(identity))
		if err != nil {
			return nil, false
		}
		token := h.AuthSessions().Put(session)

		out := make([]byte, 0, 16+1+len(salt)+2+len(B.Bytes()))
		out = append(out, token[:]...)
		out = appendLenPrefixedU8(out, salt)
		out = appendLenPrefixedU16(out, B.Bytes())
		return out, true

	case authTokenVerify:
		if len(b) < 17 {
			return nil, false
		}
		token, err := uuid.FromBytes(b[1:17])
		if err != nil {
			return nil, false
		}
		proof, _, ok := readLenPrefixedU8(b, 17)
		if !ok {
			return nil, false
		}
		session, ok := h.AuthSessions().Take(token)
		if !ok {
			return []byte{0}, true
		}
		hostProof, err := session.VerifyClientProof(proof)
		if err != nil {
			return []byte{0}, true
		}
		return append([]byte{1}, hostProof...), true

	default:
		return nil, false
	}
}

func readLenPrefixedU8(b []byte, off int) (value []byte, next int, ok bool) {
	if len(b) < off+1 {
		return nil, off, false
	}
	n := int(b[off])
	off++
	if len(b) < off+n {
		return nil, off, false
	}
	return b[off : off+n], off + n, true
}

func readLenPrefixedU16(b []byte, off int) (value []byte, next int, ok bool) {
	if len(b) < off+2 {
		return nil, off, false
	}
	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+n {
		return nil, off, false
	}
	return b[off : off+n], off + n, true
}

func appendLenPrefixedU8(b, v []byte) []byte {
	b = append(b, uint8(len(v)))
	return append(b, v...)
}

func appendLenPrefixedU16(b, v []byte) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(len(v)))
	b = append(b, tmp[:]...)
	return append(b, v...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func u64Payload(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func readU64(b []byte, off int) uint64 {
	if len(b) < off+8 {
		return 0
	}
	return binary.BigEndian.Uint64(b[off : off+8])
}

func readU32(b []byte, off int) uint32 {
	if len(b) < off+4 {
		return 0
	}
	return binary.BigEndian.Uint32(b[off : off+4])
}
