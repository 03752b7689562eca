package snapshot

import (
	"ttnetgo/internal/packer"
	"ttnetgo/protoerr"
)

// DeltaHeader is the three-int preamble of every delta payload: the
// deleted-item count, the updated-item count, and a reserved
// zero-padding int. Ported 1:1 from
// original_source/snapshot/src/format.rs's DeltaHeader.
type DeltaHeader struct {
	NumDeletedItems int32
	NumUpdatedItems int32
}

// DecodeDeltaHeader reads and validates a DeltaHeader, warning
// NonZeroPadding if the trailing pad int isn't zero.
func DecodeDeltaHeader(u *packer.Unpacker, warn *protoerr.Warnings) (DeltaHeader, error) {
	nDel, err := u.ReadInt(warn)
	if err != nil {
		return DeltaHeader{}, err
	}
	if nDel, err = packer.Positive(nDel); err != nil {
		return DeltaHeader{}, err
	}
	nUpd, err := u.ReadInt(warn)
	if err != nil {
		return DeltaHeader{}, err
	}
	if nUpd, err = packer.Positive(nUpd); err != nil {
		return DeltaHeader{}, err
	}
	pad, err := u.ReadInt(warn)
	if err != nil {
		return DeltaHeader{}, err
	}
	if pad != 0 {
		warn.Warn("NonZeroPadding", "")
	}
	return DeltaHeader{NumDeletedItems: nDel, NumUpdatedItems: nUpd}, nil
}

// Encode writes h followed by the reserved zero pad int.
func (h DeltaHeader) Encode(w *packer.Writer) {
	w.WriteInt(h.NumDeletedItems)
	w.WriteInt(h.NumUpdatedItems)
	w.WriteInt(0)
}

// TypeSchema answers how many ints an object of a given type occupies.
// extended==true means the wire form carries an explicit per-item size
// instead (used for UUID-mapped / forward-compatible object types).
type TypeSchema interface {
	Size(typeID uint16) (size int, extended bool, ok bool)
}

// FixedSchema is a TypeSchema backed by a flat map of fixed sizes, the
// common case for a dialect's built-in object types.
type FixedSchema map[uint16]int

func (s FixedSchema) Size(typeID uint16) (int, bool, bool) {
	n, ok := s[typeID]
	return n, false, ok
}

// Delta is one decoded snapshot delta: the keys to delete and the
// items to upsert.
type Delta struct {
	Deletes []int32
	Updates []Item
}

// DecodeDelta parses raw delta bytes per spec.md §4.F step 4: header,
// then deleted keys, then updates (type_id, optional extended size,
// id, payload ints), validating each update's size against schema.
func DecodeDelta(raw []byte, schema TypeSchema, warn *protoerr.Warnings) (*Delta, error) {
	u := packer.NewUnpacker(raw)
	header, err := DecodeDeltaHeader(u, warn)
	if err != nil {
		return nil, err
	}

	d := &Delta{}
	seenDelete := make(map[int32]bool, header.NumDeletedItems)
	for i := int32(0); i < header.NumDeletedItems; i++ {
		typeID, err := u.ReadInt(warn)
		if err != nil {
			return nil, err
		}
		id, err := u.ReadInt(warn)
		if err != nil {
			return nil, err
		}
		key := Key(uint16(typeID), uint16(id))
		if seenDelete[key] {
			warn.Warn("DuplicateDelete", "")
			continue
		}
		seenDelete[key] = true
		d.Deletes = append(d.Deletes, key)
	}

	seenUpdate := make(map[int32]bool, header.NumUpdatedItems)
	for i := int32(0); i < header.NumUpdatedItems; i++ {
		typeID, err := u.ReadInt(warn)
		if err != nil {
			return nil, err
		}
		size, extended, ok := schema.Size(uint16(typeID))
		if extended {
			raw, err := u.ReadInt(warn)
			if err != nil {
				return nil, err
			}
			validated, err := packer.Positive(raw)
			if err != nil {
				return nil, err
			}
			size = int(validated)
		} else if !ok {
			return nil, protoerr.New(protoerr.KindState, "decode_delta", protoerr.ErrUnknownID)
		}
		id, err := u.ReadInt(warn)
		if err != nil {
			return nil, err
		}
		n := size
		data := make([]int32, n)
		for j := 0; j < n; j++ {
			if data[j], err = u.ReadInt(warn); err != nil {
				return nil, err
			}
		}
		key := Key(uint16(typeID), uint16(id))
		if seenUpdate[key] {
			warn.Warn("DuplicateUpdate", "")
		}
		seenUpdate[key] = true
		if seenDelete[key] {
			warn.Warn("DeleteUpdate", "")
		}
		d.Updates = append(d.Updates, Item{TypeID: uint16(typeID), ID: uint16(id), Data: data})
	}
	u.Finish(warn)
	return d, nil
}

// Apply builds the next sealed snapshot from base: deletes first, then
// updates (update wins over a delete of the same key), per spec.md
// §4.F step 5 / §8's "update wins" testable property. Pure: the result
// depends only on base's contents and delta, not on base's internal
// layout.
func Apply(base *Snapshot, d *Delta, warn *protoerr.Warnings) *Snapshot {
	b := newBuilder(base)
	for _, key := range d.Deletes {
		b.delete(key, warn)
	}
	for _, it := range d.Updates {
		b.update(Key(it.TypeID, it.ID), it.Data)
	}
	return b.seal()
}
