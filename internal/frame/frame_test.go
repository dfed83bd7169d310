package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testMTU = 1024

func TestHeaderRoundTrip(t *testing.T) {
	f, err := New(3, 11, CmdOverlay, QlfFindSuccessor, AqlfRequest, []byte("payload"))
	require.NoError(t, err)
	f.Header.Sequence = 42
	f.Header.Session = 7
	f.Header.Context = 0xdeadbeef

	buf, err := Encode(f, nil)
	require.NoError(t, err)

	got, err := ParseHeader(buf)
	require.NoError(t, err)
	require.Equal(t, f.Header, got)
}

func TestDecodeFromBytesRoundTrip(t *testing.T) {
	f, err := New(1, 2, CmdNode, QlfGetPredecessor, AqlfRequest, []byte("abc"))
	require.NoError(t, err)
	buf, err := Encode(f, nil)
	require.NoError(t, err)

	decoded, consumed, err := DecodeFromBytes(buf, testMTU)
	require.NoError(t, err)
	require.Equal(t, len(buf), consumed)
	require.Equal(t, f.Header, decoded.Header)
	require.Equal(t, []byte("abc"), decoded.Payload)
}

func TestDecodeFromBytesIncomplete(t *testing.T) {
	f, err := New(1, 2, CmdNode, QlfGetPredecessor, AqlfRequest, []byte("abcdef"))
	require.NoError(t, err)
	buf, err := Encode(f, nil)
	require.NoError(t, err)

	// Less than a full header.
	decoded, consumed, err := DecodeFromBytes(buf[:HeaderSize-1], testMTU)
	require.NoError(t, err)
	require.Nil(t, decoded)
	require.Zero(t, consumed)

	// Header plus partial payload.
	decoded, consumed, err = DecodeFromBytes(buf[:len(buf)-1], testMTU)
	require.NoError(t, err)
	require.Nil(t, decoded)
	require.Zero(t, consumed)
}

func TestValidateLengthRejectsOutOfBounds(t *testing.T) {
	require.Error(t, ValidateLength(HeaderSize-1, testMTU))
	require.Error(t, ValidateLength(testMTU+1, testMTU))
	require.NoError(t, ValidateLength(HeaderSize, testMTU))
	require.NoError(t, ValidateLength(testMTU, testMTU))
}

func TestDecodeFromBytesRejectsBadLength(t *testing.T) {
	raw := make([]byte, HeaderSize)
	raw[16] = 0
	raw[17] = 4 // length = 4, below HeaderSize
	_, _, err := DecodeFromBytes(raw, testMTU)
	require.ErrorIs(t, err, ErrBadLength)
}

func TestFrameRefcount(t *testing.T) {
	f, err := New(1, 2, CmdMcast, QlfPublish, AqlfRequest, nil)
	require.NoError(t, err)
	require.Equal(t, 1, f.RefCount())
	f.Ref()
	f.Ref()
	require.Equal(t, 3, f.RefCount())
	require.False(t, f.Release())
	require.False(t, f.Release())
	require.True(t, f.Release())
}
