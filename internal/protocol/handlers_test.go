// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package protocol

import (
	"math/big"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wanhive/hub-sub001/internal/auth"
	"github.com/wanhive/hub-sub001/internal/config"
	"github.com/wanhive/hub-sub001/internal/frame"
	"github.com/wanhive/hub-sub001/internal/hub"
	"github.com/wanhive/hub-sub001/internal/watcher"
)

func newTestHub(t *testing.T, selfID uint64) *hub.Hub {
	t.Helper()
	opts := config.Defaults()
	opts.Listen = false
	opts.RingK = 16
	opts.GroupSize = 2048
	opts.Hash = "sha256"
	h, err := hub.New(opts, selfID, New(), zap.NewNop())
	require.NoError(t, err)
	return h
}

func registerConn(h *hub.Hub, id uint64) *watcher.Connection {
	client, _ := net.Pipe()
	c := watcher.New(id, client, 1024, 8)
	h.Registry().Insert(id, c)
	return c
}

func TestDispatchGetSetPredecessor(t *testing.T) {
	h := newTestHub(t, 100)
	d := New()

	get, err := frame.New(7, 100, frame.CmdNode, frame.QlfGetPredecessor, frame.AqlfRequest, nil)
	require.NoError(t, err)
	resp := d.Dispatch(h, nil, get)
	require.NotNil(t, resp)
	require.Equal(t, frame.AqlfResponse, resp.Header.Aqlf)

	origin := registerConn(h, 7)
	h.Table.SetSuccessor(7) // make origin a recognized peer (IsInRoute checks finger targets) so set_predecessor is privileged-ok
	payload := u64Payload(55)
	set, err := frame.New(7, 100, frame.CmdNode, frame.QlfSetPredecessor, frame.AqlfRequest, payload)
	require.NoError(t, err)
	resp = d.Dispatch(h, origin, set)
	require.NotNil(t, resp)
	require.Equal(t, uint64(55), h.Table.Predecessor())
}

func TestDispatchRejectsUnprivilegedSetPredecessor(t *testing.T) {
	h := newTestHub(t, 100)
	d := New()
	origin := registerConn(h, 9999) // not predecessor/successor/finger

	payload := u64Payload(55)
	set, err := frame.New(9999, 100, frame.CmdNode, frame.QlfSetPredecessor, frame.AqlfRequest, payload)
	require.NoError(t, err)
	resp := d.Dispatch(h, origin, set)
	require.Nil(t, resp)
	require.NotEqual(t, uint64(55), h.Table.Predecessor())
}

func TestDispatchFindSuccessorLocal(t *testing.T) {
	h := newTestHub(t, 100)
	d := New()

	req, err := frame.New(1, 100, frame.CmdOverlay, frame.QlfFindSuccessor, frame.AqlfRequest, u64Payload(100))
	require.NoError(t, err)
	resp := d.Dispatch(h, nil, req)
	require.NotNil(t, resp)
	require.Equal(t, uint64(100), readU64(resp.Payload, 0))
}

func TestDispatchDescribe(t *testing.T) {
	h := newTestHub(t, 100)
	d := New()

	req, err := frame.New(1, 100, frame.CmdNull, frame.QlfDescribe, frame.AqlfRequest, nil)
	require.NoError(t, err)
	resp := d.Dispatch(h, nil, req)
	require.NotNil(t, resp)
	require.Equal(t, uint64(100), readU64(resp.Payload, 0))
}

// TestDispatchDescribeStandaloneSeed reproduces the "standalone describe"
// seed scenario: K=4, node id=7, empty routing table.
func TestDispatchDescribeStandaloneSeed(t *testing.T) {
	opts := config.Defaults()
	opts.Listen = false
	opts.RingK = 4
	h, err := hub.New(opts, 7, New(), zap.NewNop())
	require.NoError(t, err)
	d := New()

	req, err := frame.New(1, 7, frame.CmdNull, frame.QlfDescribe, frame.AqlfRequest, nil)
	require.NoError(t, err)
	resp := d.Dispatch(h, nil, req)
	require.NotNil(t, resp)

	payload := resp.Payload
	require.Equal(t, uint64(7), readU64(payload, 0))  // uid
	require.Equal(t, uint64(7), readU64(payload, 8))  // predecessor
	require.Equal(t, uint64(7), readU64(payload, 16)) // successor

	routes := readU32(payload, describePrefixSize)
	require.Equal(t, uint32(4), routes)
	stable := payload[describePrefixSize+4]
	require.Equal(t, byte(1), stable)

	recordsStart := describePrefixSize + 4 + 1
	for i := 0; i < 4; i++ {
		off := recordsStart + i*fingerRecordSize
		current := readU64(payload, off+8)
		committed := readU64(payload, off+16)
		connected := payload[off+24]
		require.Equal(t, uint64(7), current, "finger %d current", i)
		require.Equal(t, uint64(7), committed, "finger %d committed", i)
		require.Equal(t, byte(0), connected, "finger %d connected", i)
	}
}

func TestDispatchSubscribeUnsubscribe(t *testing.T) {
	h := newTestHub(t, 100)
	d := New()
	origin := registerConn(h, 42)

	sub, err := frame.New(42, 100, frame.CmdMcast, frame.QlfSubscribe, frame.AqlfRequest, []byte{5})
	require.NoError(t, err)
	resp := d.Dispatch(h, origin, sub)
	require.NotNil(t, resp)
	require.True(t, h.Topics().Contains(5, 42))
	require.True(t, origin.IsSubscribed(5))

	unsub, err := frame.New(42, 100, frame.CmdMcast, frame.QlfUnsubscribe, frame.AqlfRequest, []byte{5})
	require.NoError(t, err)
	resp = d.Dispatch(h, origin, unsub)
	require.NotNil(t, resp)
	require.False(t, h.Topics().Contains(5, 42))
}

func TestDispatchUnknownQualifierReturnsNil(t *testing.T) {
	h := newTestHub(t, 100)
	d := New()
	req, err := frame.New(1, 100, frame.CmdOverlay, frame.QlfMap, frame.AqlfRequest, nil)
	require.NoError(t, err)
	require.Nil(t, d.Dispatch(h, nil, req))
}

func TestDispatchRegisterAndTokenHappyPath(t *testing.T) {
	h := newTestHub(t, 100)
	d := New()

	const identity = "42"
	const password = "correct horse battery staple"
	group := h.AuthGroup()
	hashName := h.AuthHash()

	salt := []byte("fixed-test-salt")
	x := auth.DerivePrivateKey(group, hashName, identity, password, salt, 1)
	v := auth.GenerateVerifier(group, x)

	regPayload := appendLenPrefixedU8(nil, []byte(identity))
	regPayload = appendLenPrefixedU8(regPayload, salt)
	regPayload = appendLenPrefixedU16(regPayload, v.Bytes())
	reg, err := frame.New(1, 100, frame.CmdAuth, frame.QlfRegister, frame.AqlfRequest, regPayload)
	require.NoError(t, err)
	resp := d.Dispatch(h, nil, reg)
	require.NotNil(t, resp)

	user := auth.NewUserSession(group, hashName)
	clientA, err := user.Begin()
	require.NoError(t, err)

	beginPayload := append([]byte{authTokenBegin}, appendLenPrefixedU8(nil, []byte(identity))...)
	beginPayload = appendLenPrefixedU16(beginPayload, clientA.Bytes())
	beginReq, err := frame.New(1, 100, frame.CmdAuth, frame.QlfToken, frame.AqlfRequest, beginPayload)
	require.NoError(t, err)
	beginResp := d.Dispatch(h, nil, beginReq)
	require.NotNil(t, beginResp)

	token := beginResp.Payload[0:16]
	hostSalt, off, ok := readLenPrefixedU8(beginResp.Payload, 16)
	require.True(t, ok)
	bBytes, _, ok := readLenPrefixedU16(beginResp.Payload, off)
	require.True(t, ok)
	serverB := new(big.Int).SetBytes(bBytes)

	clientProof, err := user.ComputeProof(identity, password, hostSalt, serverB, 1)
	require.NoError(t, err)

	verifyPayload := append([]byte{authTokenVerify}, token...)
	verifyPayload = appendLenPrefixedU8(verifyPayload, clientProof)
	verifyReq, err := frame.New(1, 100, frame.CmdAuth, frame.QlfToken, frame.AqlfRequest, verifyPayload)
	require.NoError(t, err)
	verifyResp := d.Dispatch(h, nil, verifyReq)
	require.NotNil(t, verifyResp)
	require.Equal(t, uint8(1), verifyResp.Payload[0])
	require.True(t, user.VerifyServerProof(verifyResp.Payload[1:]))
}

func TestDispatchTokenWrongPassword(t *testing.T) {
	h := newTestHub(t, 100)
	d := New()

	const identity = "42"
	const password = "correct horse battery staple"
	group := h.AuthGroup()
	hashName := h.AuthHash()

	salt := []byte("fixed-test-salt")
	x := auth.DerivePrivateKey(group, hashName, identity, password, salt, 1)
	v := auth.GenerateVerifier(group, x)

	regPayload := appendLenPrefixedU8(nil, []byte(identity))
	regPayload = appendLenPrefixedU8(regPayload, salt)
	regPayload = appendLenPrefixedU16(regPayload, v.Bytes())
	reg, err := frame.New(1, 100, frame.CmdAuth, frame.QlfRegister, frame.AqlfRequest, regPayload)
	require.NoError(t, err)
	require.NotNil(t, d.Dispatch(h, nil, reg))

	user := auth.NewUserSession(group, hashName)
	clientA, err := user.Begin()
	require.NoError(t, err)

	beginPayload := append([]byte{authTokenBegin}, appendLenPrefixedU8(nil, []byte(identity))...)
	beginPayload = appendLenPrefixedU16(beginPayload, clientA.Bytes())
	beginReq, err := frame.New(1, 100, frame.CmdAuth, frame.QlfToken, frame.AqlfRequest, beginPayload)
	require.NoError(t, err)
	beginResp := d.Dispatch(h, nil, beginReq)
	require.NotNil(t, beginResp)

	token := beginResp.Payload[0:16]
	hostSalt, off, ok := readLenPrefixedU8(beginResp.Payload, 16)
	require.True(t, ok)
	bBytes, _, ok := readLenPrefixedU16(beginResp.Payload, off)
	require.True(t, ok)
	serverB := new(big.Int).SetBytes(bBytes)

	clientProof, err := user.ComputeProof(identity, "wrong password", hostSalt, serverB, 1)
	require.NoError(t, err)

	verifyPayload := append([]byte{authTokenVerify}, token...)
	verifyPayload = appendLenPrefixedU8(verifyPayload, clientProof)
	verifyReq, err := frame.New(1, 100, frame.CmdAuth, frame.QlfToken, frame.AqlfRequest, verifyPayload)
	require.NoError(t, err)
	verifyResp := d.Dispatch(h, nil, verifyReq)
	require.NotNil(t, verifyResp)
	require.Equal(t, uint8(0), verifyResp.Payload[0])
}

func TestDispatchIgnoresResponseFrames(t *testing.T) {
	h := newTestHub(t, 100)
	d := New()
	req, err := frame.New(1, 100, frame.CmdOverlay, frame.QlfPing, frame.AqlfResponse, nil)
	require.NoError(t, err)
	require.Nil(t, d.Dispatch(h, nil, req))
}
