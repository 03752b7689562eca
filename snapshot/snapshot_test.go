package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttnetgo/internal/packer"
	"ttnetgo/protoerr"
)

func TestSnapshotGetAndItems(t *testing.T) {
	b := newBuilder(Empty())
	b.update(Key(1, 1), []int32{10, 20, 30})
	b.update(Key(1, 2), []int32{1})
	s := b.seal()

	data, ok := s.Get(1, 1)
	require.True(t, ok)
	assert.Equal(t, []int32{10, 20, 30}, data)

	_, ok = s.Get(2, 1)
	assert.False(t, ok)

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, uint16(1), items[0].ID)
	assert.Equal(t, uint16(2), items[1].ID)
}

func TestDeltaUpdateWinsOverDelete(t *testing.T) {
	base := newBuilder(Empty())
	base.update(Key(1, 5), []int32{7})
	snap := base.seal()

	schema := FixedSchema{1: 1}

	w := packer.NewWriter()
	DeltaHeader{NumDeletedItems: 1, NumUpdatedItems: 1}.Encode(w)
	// delete (type_id=1, id=5)
	w.WriteInt(1)
	w.WriteInt(5)
	// update (type_id=1, id=5) -> [9]
	w.WriteInt(1)
	w.WriteInt(5)
	w.WriteInt(9)

	var warn protoerr.Warnings
	delta, err := DecodeDelta(w.Bytes(), schema, &warn)
	require.NoError(t, err)
	assert.True(t, warn.Has("DeleteUpdate"))

	next := Apply(snap, delta, &warn)
	data, ok := next.Get(1, 5)
	require.True(t, ok, "update must win over delete of the same key")
	assert.Equal(t, []int32{9}, data)
}

func TestDeltaDeleteOfAbsentKeyWarns(t *testing.T) {
	base := Empty()
	schema := FixedSchema{}

	w := packer.NewWriter()
	DeltaHeader{NumDeletedItems: 1, NumUpdatedItems: 0}.Encode(w)
	w.WriteInt(1)
	w.WriteInt(5)

	var warn protoerr.Warnings
	delta, err := DecodeDelta(w.Bytes(), schema, &warn)
	require.NoError(t, err)

	next := Apply(base, delta, &warn)
	assert.True(t, warn.Has("UnknownDelete"))
	assert.Equal(t, 0, next.Len())
}

func TestManagerSnapEmptyYieldsIdenticalSnapshot(t *testing.T) {
	schema := FixedSchema{1: 3}
	m := NewManager(schema)

	b := newBuilder(Empty())
	b.update(Key(1, 1), []int32{1, 2, 3})
	snap99 := b.seal()
	m.seal(99, snap99)

	var warn protoerr.Warnings
	got, resync, err := m.FeedEmpty(100, 1, &warn)
	require.NoError(t, err)
	assert.Nil(t, resync)
	require.NotNil(t, got)

	data, ok := got.Get(1, 1)
	require.True(t, ok)
	assert.Equal(t, []int32{1, 2, 3}, data)
	assert.Equal(t, snap99.Len(), got.Len())

	sealed, ok := m.At(100)
	require.True(t, ok)
	assert.Equal(t, got, sealed)
	assert.Equal(t, int32(100), m.AckTick())
}

func TestManagerMultiPartReassembly(t *testing.T) {
	schema := FixedSchema{1: 1}
	m := NewManager(schema)

	w := packer.NewWriter()
	DeltaHeader{NumDeletedItems: 0, NumUpdatedItems: 1}.Encode(w)
	w.WriteInt(1)
	w.WriteInt(1)
	w.WriteInt(42)
	raw := w.Bytes()
	mid := len(raw) / 2
	part0, part1 := raw[:mid], raw[mid:]

	crc := int32(42)

	var warn protoerr.Warnings
	snap, resync, err := m.FeedPart(10, 0, 2, 0, crc, part0, &warn)
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Nil(t, resync)

	snap, resync, err = m.FeedPart(10, 0, 2, 1, crc, part1, &warn)
	require.NoError(t, err)
	assert.Nil(t, resync)
	require.NotNil(t, snap)

	data, ok := snap.Get(1, 1)
	require.True(t, ok)
	assert.Equal(t, []int32{42}, data)
}

func TestManagerMissingBaseRequestsResync(t *testing.T) {
	schema := FixedSchema{}
	m := NewManager(schema)

	var warn protoerr.Warnings
	snap, resync, err := m.FeedSingle(500, 50, 0, nil, &warn)
	require.NoError(t, err)
	assert.Nil(t, snap)
	require.NotNil(t, resync)
	assert.Equal(t, int32(0), resync.AckTick)
}

func TestManagerDuplicatePartWarns(t *testing.T) {
	schema := FixedSchema{}
	m := NewManager(schema)

	var warn protoerr.Warnings
	_, _, err := m.FeedPart(10, 0, 2, 0, 0, []byte{1}, &warn)
	require.NoError(t, err)
	_, _, err = m.FeedPart(10, 0, 2, 0, 0, []byte{1}, &warn)
	require.NoError(t, err)
	assert.True(t, warn.Has("DuplicatePart"))
}
