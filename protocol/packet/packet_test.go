package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttnetgo/protoerr"
)

func TestHeaderSeedScenario(t *testing.T) {
	in := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	var warn protoerr.Warnings
	h, rest, err := UnpackHeader(&warn, in)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), h.Flags)
	assert.Equal(t, uint16(0), h.Ack)
	assert.Equal(t, uint8(1), h.NumChunks)
	assert.Equal(t, Token{0, 0, 0, 0}, h.Token)
	assert.Empty(t, rest)
	assert.False(t, warn.Has("PacketHeaderPadding"))

	out := make([]byte, HeaderSize)
	h.Pack(out)
	assert.Equal(t, in, out)
}

func TestHeaderPackUnpackRoundTrip(t *testing.T) {
	h := Header{Flags: 0b1010, Ack: 0x3a5, NumChunks: 200, Token: Token{1, 2, 3, 4}}
	out := make([]byte, HeaderSize)
	h.Pack(out)

	var warn protoerr.Warnings
	got, _, err := UnpackHeader(&warn, out)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestControlCloseSeedScenario(t *testing.T) {
	in := []byte{0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04, 'b', 'y', 'e', 0x00}
	var warn protoerr.Warnings
	res, err := Read(&warn, in, nil)
	require.NoError(t, err)
	require.False(t, res.IsConnless)
	assert.Equal(t, uint16(0), res.Connected.Ack)
	assert.Equal(t, TypeControl, res.Connected.Type)
	assert.Equal(t, ControlClose, res.Connected.Control.Kind)
	assert.Equal(t, "bye", string(res.Connected.Control.Reason))
	assert.Empty(t, warn.Items())
}

func TestReadTooLong(t *testing.T) {
	big := make([]byte, MaxPacketSize+1)
	_, err := Read(nil, big, nil)
	require.ErrorIs(t, err, ErrTooLong)
}

func TestReadTooShort(t *testing.T) {
	_, err := Read(nil, []byte{1, 2, 3}, nil)
	require.ErrorIs(t, err, ErrTooShort)
}

func TestChunksNoChunksWarning(t *testing.T) {
	h := Header{Flags: 0, Ack: 0, NumChunks: 0, Token: Token{}}
	raw := WriteHeader(h, nil)
	var warn protoerr.Warnings
	res, err := Read(&warn, raw, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeChunks, res.Connected.Type)
	assert.True(t, warn.Has("ChunksNoChunks"))
}

func TestConnlessRoundTrip(t *testing.T) {
	h := HeaderConnless{Flags: FlagConnless, Version: ConnlessVersion, Token: Token{1, 1, 1, 1}, ResponseToken: Token{2, 2, 2, 2}}
	buf := make([]byte, HeaderSizeConnless+3)
	h.Pack(buf[:HeaderSizeConnless])
	copy(buf[HeaderSizeConnless:], []byte("xyz"))

	var warn protoerr.Warnings
	res, err := Read(&warn, buf, nil)
	require.NoError(t, err)
	assert.True(t, res.IsConnless)
	assert.Equal(t, "xyz", string(res.Connless))
}

func TestWriteControlCloseRoundTrip(t *testing.T) {
	raw := WriteControl(7, Token{9, 9, 9, 9}, ControlClose, []byte("bye"))
	var warn protoerr.Warnings
	res, err := Read(&warn, raw, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), res.Connected.Ack)
	assert.Equal(t, ControlClose, res.Connected.Control.Kind)
	assert.Equal(t, "bye", string(res.Connected.Control.Reason))
}
