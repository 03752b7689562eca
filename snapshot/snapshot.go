// Package snapshot implements the world-state snapshot stream: sealed
// per-tick object tables, the delta format that transforms one sealed
// snapshot into the next, and the multi-part reassembly buffer that
// accumulates a delta's wire bytes across several Snap messages.
//
// Grounded on original_source/snapshot/src/format.rs's key/key_to_type_id/
// key_to_id/DeltaHeader (ported 1:1 in meaning) and arloliu-mebo/blob's
// sorted-index-plus-contiguous-arena storage layout, per the design
// note in spec.md §9 ("a sorted flat vector of (key, data_offset,
// data_len) plus a single contiguous int arena").
package snapshot

import (
	"sort"

	"ttnetgo/protoerr"
)

// Key packs a (type_id, id) pair into the 32-bit sort key items are
// ordered by, matching the reference's key/key_to_type_id/key_to_id.
func Key(typeID, id uint16) int32 {
	return int32((uint32(typeID) << 16) | uint32(id))
}

// KeyTypeID extracts the type id half of a key.
func KeyTypeID(key int32) uint16 { return uint16((uint32(key) >> 16) & 0xffff) }

// KeyID extracts the instance id half of a key.
func KeyID(key int32) uint16 { return uint16(uint32(key) & 0xffff) }

// entry is one sorted index slot: a key plus the half-open range of
// the shared int arena holding that object's payload.
type entry struct {
	key    int32
	offset int
	length int
}

// Snapshot is an immutable, sealed mapping (type_id, id) -> []int32.
// New ticks are built as entirely new Snapshots; nothing is ever
// mutated in place once sealed, per spec.md §3's lifecycle invariant.
type Snapshot struct {
	entries []entry
	arena   []int32
}

// Empty returns a snapshot with no objects.
func Empty() *Snapshot {
	return &Snapshot{}
}

// Get returns the payload for (type_id, id), or ok=false if absent.
func (s *Snapshot) Get(typeID, id uint16) (data []int32, ok bool) {
	key := Key(typeID, id)
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].key >= key })
	if i == len(s.entries) || s.entries[i].key != key {
		return nil, false
	}
	e := s.entries[i]
	return s.arena[e.offset : e.offset+e.length], true
}

// Items returns every (key, data) pair in ascending key order.
func (s *Snapshot) Items() []Item {
	out := make([]Item, len(s.entries))
	for i, e := range s.entries {
		out[i] = Item{
			TypeID: KeyTypeID(e.key),
			ID:     KeyID(e.key),
			Data:   s.arena[e.offset : e.offset+e.length],
		}
	}
	return out
}

// Len reports the number of objects in the snapshot.
func (s *Snapshot) Len() int { return len(s.entries) }

// Item is one decoded object: its identity and its int payload.
type Item struct {
	TypeID uint16
	ID     uint16
	Data   []int32
}

// builder assembles a new sealed Snapshot from a base plus a set of
// deletes and updates, applied atomically (§4.F step 5).
type builder struct {
	byKey map[int32][]int32
}

func newBuilder(base *Snapshot) *builder {
	b := &builder{byKey: make(map[int32][]int32, base.Len())}
	for _, e := range base.entries {
		b.byKey[e.key] = base.arena[e.offset : e.offset+e.length]
	}
	return b
}

func (b *builder) delete(key int32, warn *protoerr.Warnings) {
	if _, ok := b.byKey[key]; !ok {
		warn.Warn("UnknownDelete", "")
		return
	}
	delete(b.byKey, key)
}

func (b *builder) update(key int32, data []int32) {
	b.byKey[key] = data
}

func (b *builder) seal() *Snapshot {
	keys := make([]int32, 0, len(b.byKey))
	for k := range b.byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	s := &Snapshot{entries: make([]entry, 0, len(keys))}
	for _, k := range keys {
		data := b.byKey[k]
		s.entries = append(s.entries, entry{key: k, offset: len(s.arena), length: len(data)})
		s.arena = append(s.arena, data...)
	}
	return s
}
