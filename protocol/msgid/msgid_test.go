package msgid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttnetgo/internal/packer"
	"ttnetgo/protoerr"
)

func TestOrdinalRoundTrip(t *testing.T) {
	id := Ordinal(5, ClassSystem)
	w := packer.NewWriter()
	Write(w, id)

	u := packer.NewUnpacker(w.Bytes())
	var warn protoerr.Warnings
	got, err := Read(u, &warn)
	require.NoError(t, err)
	assert.Equal(t, KindOrdinal, got.Kind)
	assert.Equal(t, int32(5), got.NumericID())
	assert.Equal(t, ClassSystem, got.Class())
}

func TestGameClassBit(t *testing.T) {
	id := Ordinal(12, ClassGame)
	assert.Equal(t, ClassGame, id.Class())
	assert.Equal(t, int32(12), id.NumericID())
}

func TestUUIDRoundTrip(t *testing.T) {
	var u16 [16]byte
	for i := range u16 {
		u16[i] = byte(i)
	}
	id := UUIDOf(u16)
	w := packer.NewWriter()
	Write(w, id)

	u := packer.NewUnpacker(w.Bytes())
	var warn protoerr.Warnings
	got, err := Read(u, &warn)
	require.NoError(t, err)
	assert.Equal(t, KindUUID, got.Kind)
	assert.Equal(t, u16, got.UUID)
}
