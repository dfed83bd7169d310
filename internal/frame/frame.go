// Package frame implements the overlay hub's fixed-header wire protocol.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wire layout (big-endian, 32-byte header), per spec.md §6:
//
//	offset  size  field
//	  0      8    source id (u64)
//	  8      8    destination id (u64)
//	 16      2    length (u16)      total frame size, header+payload
//	 18      2    sequence (u16)
//	 20      1    session (u8)
//	 21      1    command (u8)
//	 22      1    qualifier (u8)
//	 23      1    aqlf (u8)         0=request, 1=response, 127=invalid/probe
//	 24      8    context/reserved
//
// Framing style (DecodeFromBytes returning (frame, consumed, error), with
// nil/0/nil meaning "need more bytes") follows the teacher's
// protocol/frame_codec.go idiom, adapted from variable WebSocket framing to
// this fixed 32-byte header.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed header length in bytes.
const HeaderSize = 32

// Aqlf values.
const (
	AqlfRequest  uint8 = 0
	AqlfResponse uint8 = 1
	AqlfInvalid  uint8 = 127 // also used as the probe marker
)

// Command groups (spec.md §4.9).
const (
	CmdNull    uint8 = 0
	CmdMcast   uint8 = 1
	CmdAuth    uint8 = 2
	CmdNode    uint8 = 3
	CmdOverlay uint8 = 4
)

// Qualifiers for CmdNode.
const (
	QlfGetPredecessor uint8 = 0
	QlfSetPredecessor uint8 = 1
	QlfGetSuccessor   uint8 = 2
	QlfSetSuccessor   uint8 = 3
	QlfGetFinger      uint8 = 4
	QlfSetFinger      uint8 = 5
	QlfGetNeighbours  uint8 = 6
	QlfNotify         uint8 = 7
)

// Qualifiers for CmdOverlay.
const (
	QlfFindSuccessor uint8 = 0
	QlfPing          uint8 = 1
	QlfMap           uint8 = 2
)

// Qualifier for CmdNull.
const QlfDescribe uint8 = 127

// Qualifiers for CmdMcast.
const (
	QlfPublish     uint8 = 0
	QlfSubscribe   uint8 = 1
	QlfUnsubscribe uint8 = 2
)

// Qualifiers for CmdAuth.
const (
	QlfRegister  uint8 = 0
	QlfToken     uint8 = 1
	QlfFindRoot  uint8 = 2
	QlfBootstrap uint8 = 3
)

var (
	// ErrTooShort means fewer than HeaderSize bytes were given to
	// ParseHeader; the caller should read more bytes and retry.
	ErrTooShort = errors.New("frame: incomplete")
	// ErrBadLength means the declared length is outside [HeaderSize, MTU].
	ErrBadLength = errors.New("frame: length out of bounds")
)

// Header is the fixed 32-byte frame header.
type Header struct {
	Source      uint64
	Destination uint64
	Length      uint16
	Sequence    uint16
	Session     uint8
	Command     uint8
	Qualifier   uint8
	Aqlf        uint8
	Context     uint64
}

// Frame is a parsed header plus its payload slice.
type Frame struct {
	Header  Header
	Payload []byte

	refs int // refcount; see Ref/Release.
}

// Ref increments the frame's reference count. Used when a frame is fanned
// out to several multicast subscribers.
func (f *Frame) Ref() { f.refs++ }

// Release decrements the reference count and reports whether it reached
// zero (the frame may now be recycled).
func (f *Frame) Release() bool {
	if f.refs > 0 {
		f.refs--
	}
	return f.refs <= 0
}

// RefCount returns the current reference count (0 or 1 for unpublished
// frames, >1 once fanned out to multiple watchers).
func (f *Frame) RefCount() int { return f.refs }

// IsRequest reports whether the frame should be treated as a request that
// may be answered.
func (f *Frame) IsRequest() bool { return f.Header.Aqlf == AqlfRequest }

// IsResponse reports whether the frame should only be delivered, never
// answered.
func (f *Frame) IsResponse() bool { return f.Header.Aqlf == AqlfResponse }

// IsProbe reports whether the frame carries the probe/invalid marker.
func (f *Frame) IsProbe() bool { return f.Header.Aqlf == AqlfInvalid }

// New builds a frame with a freshly allocated header, stamping Length from
// len(payload)+HeaderSize. The caller fills in addressing and context
// fields directly on the returned Frame before serializing it.
func New(source, destination uint64, command, qualifier, aqlf uint8, payload []byte) (*Frame, error) {
	total := HeaderSize + len(payload)
	if total > 0xFFFF {
		return nil, fmt.Errorf("frame: payload too large (%d bytes)", len(payload))
	}
	return &Frame{
		Header: Header{
			Source:      source,
			Destination: destination,
			Length:      uint16(total),
			Command:     command,
			Qualifier:   qualifier,
			Aqlf:        aqlf,
		},
		Payload: payload,
		refs:    1,
	}, nil
}

// Encode serializes f and returns the encoded bytes (f.Header.Length of
// them). dst[:0] is reused if it has sufficient capacity; otherwise a new
// slice is allocated.
func Encode(f *Frame, dst []byte) ([]byte, error) {
	total := int(f.Header.Length)
	if total < HeaderSize {
		return nil, ErrBadLength
	}
	if cap(dst) < total {
		dst = make([]byte, total)
	} else {
		dst = dst[:total]
	}
	binary.BigEndian.PutUint64(dst[0:8], f.Header.Source)
	binary.BigEndian.PutUint64(dst[8:16], f.Header.Destination)
	binary.BigEndian.PutUint16(dst[16:18], f.Header.Length)
	binary.BigEndian.PutUint16(dst[18:20], f.Header.Sequence)
	dst[20] = f.Header.Session
	dst[21] = f.Header.Command
	dst[22] = f.Header.Qualifier
	dst[23] = f.Header.Aqlf
	binary.BigEndian.PutUint64(dst[24:32], f.Header.Context)
	copy(dst[32:total], f.Payload)
	return dst, nil
}

// ParseHeader decodes the first HeaderSize bytes of raw into a Header.
// raw must have length >= HeaderSize.
func ParseHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{}, ErrTooShort
	}
	h := Header{
		Source:      binary.BigEndian.Uint64(raw[0:8]),
		Destination: binary.BigEndian.Uint64(raw[8:16]),
		Length:      binary.BigEndian.Uint16(raw[16:18]),
		Sequence:    binary.BigEndian.Uint16(raw[18:20]),
		Session:     raw[20],
		Command:     raw[21],
		Qualifier:   raw[22],
		Aqlf:        raw[23],
		Context:     binary.BigEndian.Uint64(raw[24:32]),
	}
	return h, nil
}

// ValidateLength checks length against the header minimum and the
// configured MTU.
func ValidateLength(length uint16, mtu uint16) error {
	if length < HeaderSize || length > mtu {
		return ErrBadLength
	}
	return nil
}

// DecodeFromBytes attempts to parse one frame from the front of raw. It
// returns (nil, 0, nil) when raw does not yet hold a complete frame (the
// caller should read more and retry), a non-nil error for a validation
// failure (the connection should be marked invalid), or the parsed frame
// and the number of bytes it consumed.
func DecodeFromBytes(raw []byte, mtu uint16) (*Frame, int, error) {
	if len(raw) < HeaderSize {
		return nil, 0, nil
	}
	h, err := ParseHeader(raw)
	if err != nil {
		return nil, 0, err
	}
	if err := ValidateLength(h.Length, mtu); err != nil {
		return nil, 0, err
	}
	total := int(h.Length)
	if len(raw) < total {
		return nil, 0, nil
	}
	payload := make([]byte, total-HeaderSize)
	copy(payload, raw[HeaderSize:total])
	return &Frame{Header: h, Payload: payload, refs: 1}, total, nil
}
