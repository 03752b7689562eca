package sysmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttnetgo/internal/packer"
	"ttnetgo/protoerr"
	"ttnetgo/protocol/msgid"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	w := packer.NewWriter()
	m.Encode(w)

	u := packer.NewUnpacker(w.Bytes())
	var warn protoerr.Warnings
	// build a fresh zero value of the same dynamic type via Decode
	// directly on m would mutate it in place; callers compare m to
	// itself after a decode into a copy, so decode into a new Info et al.
	return decodeInto(t, m, u, &warn)
}

func decodeInto(t *testing.T, like Message, u *packer.Unpacker, warn *protoerr.Warnings) Message {
	t.Helper()
	switch like.(type) {
	case *Info:
		got := &Info{}
		require.NoError(t, got.Decode(u, warn))
		return got
	case *MapChange:
		got := &MapChange{}
		require.NoError(t, got.Decode(u, warn))
		return got
	case *Snap:
		got := &Snap{}
		require.NoError(t, got.Decode(u, warn))
		return got
	case *Input:
		got := &Input{}
		require.NoError(t, got.Decode(u, warn))
		return got
	}
	t.Fatalf("unhandled type in test helper")
	return nil
}

func TestInfoRoundTrip(t *testing.T) {
	m := &Info{Version: []byte("0.7"), Password: []byte("")}
	got := roundTrip(t, m).(*Info)
	assert.Equal(t, m.Version, got.Version)
	assert.Equal(t, m.Password, got.Password)
}

func TestMapChangeRoundTrip(t *testing.T) {
	m := &MapChange{Name: []byte("dm1"), CRC: 0x1234, Size: 4096}
	got := roundTrip(t, m).(*MapChange)
	assert.Equal(t, m.Name, got.Name)
	assert.Equal(t, m.CRC, got.CRC)
	assert.Equal(t, m.Size, got.Size)
}

func TestSnapRoundTrip(t *testing.T) {
	m := &Snap{Tick: 100, DeltaTick: 90, NumParts: 1, Part: 0, CRC: 42, Data: []byte{1, 2, 3}}
	got := roundTrip(t, m).(*Snap)
	assert.Equal(t, m.Tick, got.Tick)
	assert.Equal(t, m.Data, got.Data)
}

func TestInputRoundTrip(t *testing.T) {
	m := &Input{AckSnapshot: 5, IntendedTick: 6, InputSize: 3, Input: []int32{1, -1, 100}}
	got := roundTrip(t, m).(*Input)
	assert.Equal(t, m.Input, got.Input)
}

func TestMapDataToBoolValidation(t *testing.T) {
	w := packer.NewWriter()
	w.WriteInt(2) // invalid bool
	w.WriteInt(0)
	w.WriteInt(0)
	w.WriteData(nil)

	u := packer.NewUnpacker(w.Bytes())
	m := &MapData{}
	err := m.Decode(u, nil)
	require.Error(t, err)
}

func TestDecodeUnknownOrdinal(t *testing.T) {
	id := msgid.Ordinal(999, msgid.ClassSystem)
	w := packer.NewWriter()
	u := packer.NewUnpacker(w.Bytes())

	var warn protoerr.Warnings
	_, derr := Decode(id, u, &warn)
	require.Error(t, derr)
}
