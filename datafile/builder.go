package datafile

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zlib"

	"ttnetgo/protoerr"
)

// Builder accumulates items and data blobs in memory, insertion-ordered
// per the reference's DatafileBuffer but keeping each type's items
// sorted by id as they're added (get_item_type_index/get_item_index in
// the reference do the same insertion-sort-on-add).
//
// ItemFind is additionally backed by an xxhash64 index (the teacher
// pack's arloliu-mebo/internal/hash.ID pattern) so lookups by
// (type_id, id) don't need the reference's linear scan once a builder
// holds thousands of items, as a compiled datafile's map entities can.
type Builder struct {
	types []itemTypeEntry
	items []Item
	data  [][]byte

	index map[uint64]int // xxhash64(type_id,id) -> index into items
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[uint64]int)}
}

func itemKey(typeID, id uint16) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint16(buf[0:2], typeID)
	binary.LittleEndian.PutUint16(buf[2:4], id)
	return xxhash.Sum64(buf[:])
}

func (b *Builder) typeIndex(typeID uint16) (idx int, found bool) {
	for i, t := range b.types {
		if uint16(t.TypeID) == typeID {
			return i, true
		}
		if typeID < uint16(t.TypeID) {
			return i, false
		}
	}
	return len(b.types), false
}

// AddItem inserts one item, keeping item_types and the per-type item
// run sorted by (type_id, id). Returns an error if the (type_id, id)
// pair already exists, matching DatafileBuffer::add_item.
func (b *Builder) AddItem(typeID, id uint16, data []int32) error {
	key := itemKey(typeID, id)
	if _, ok := b.index[key]; ok {
		return protoerr.New(protoerr.KindValidation, "datafile_add_item", fmt.Errorf("duplicate item type_id=%d id=%d", typeID, id))
	}

	typeIdx, typeFound := b.typeIndex(typeID)
	insertAt := len(b.items)
	if typeFound {
		t := b.types[typeIdx]
		insertAt = int(t.Start)
		for i := int(t.Start); i < int(t.Start+t.Num); i++ {
			if id <= b.items[i].ID {
				insertAt = i
				break
			}
			insertAt = i + 1
		}
	} else if typeIdx != len(b.types) {
		insertAt = int(b.types[typeIdx].Start)
	}

	if !typeFound {
		entry := itemTypeEntry{TypeID: int32(typeID), Start: int32(insertAt), Num: 0}
		b.types = append(b.types, itemTypeEntry{})
		copy(b.types[typeIdx+1:], b.types[typeIdx:])
		b.types[typeIdx] = entry
	}
	b.types[typeIdx].Num++
	for i := typeIdx + 1; i < len(b.types); i++ {
		b.types[i].Start++
	}

	b.items = append(b.items, Item{})
	copy(b.items[insertAt+1:], b.items[insertAt:])
	cp := make([]int32, len(data))
	copy(cp, data)
	b.items[insertAt] = Item{TypeID: typeID, ID: id, Data: cp}

	b.index = make(map[uint64]int, len(b.items))
	for i, it := range b.items {
		b.index[itemKey(it.TypeID, it.ID)] = i
	}
	return nil
}

// AddData appends a data blob, returning its index.
func (b *Builder) AddData(data []byte) int {
	cp := make([]byte, len(data))
	copy(cp, data)
	b.data = append(b.data, cp)
	return len(b.data) - 1
}

// NumItemTypes implements Datafile.
func (b *Builder) NumItemTypes() int { return len(b.types) }

// ItemType implements Datafile.
func (b *Builder) ItemType(index int) uint16 { return uint16(b.types[index].TypeID) }

// NumItems implements Datafile.
func (b *Builder) NumItems() int { return len(b.items) }

// Item implements Datafile.
func (b *Builder) Item(index int) Item { return b.items[index] }

// ItemTypeItems implements Datafile.
func (b *Builder) ItemTypeItems(typeID uint16) []Item {
	idx, found := b.typeIndex(typeID)
	if !found {
		return nil
	}
	t := b.types[idx]
	return append([]Item(nil), b.items[t.Start:t.Start+t.Num]...)
}

// ItemFind implements Datafile, using the xxhash index for O(1) lookup.
func (b *Builder) ItemFind(typeID, id uint16) (Item, bool) {
	i, ok := b.index[itemKey(typeID, id)]
	if !ok {
		return Item{}, false
	}
	return b.items[i], true
}

// NumData implements Datafile.
func (b *Builder) NumData() int { return len(b.data) }

// Data implements Datafile: builder data is never compressed in
// memory, so this is a plain copy.
func (b *Builder) Data(index int) ([]byte, error) {
	return append([]byte(nil), b.data[index]...), nil
}

// Write serializes the builder's contents as a version 4 container:
// every data blob zlib-compressed, offset tables built from the
// compressed lengths, and a header computed to match, per spec.md
// §4.G's "writer is symmetric" requirement. Unlike
// original_source/datafile/src/datafile_raw.rs's write_datafile (left
// unimplemented there), this always succeeds for internally consistent
// builder state or returns an error — it carries no tolerance for the
// anomalies Reader.check accepts.
func (b *Builder) Write(w *bytes.Buffer) error {
	compressed := make([][]byte, len(b.data))
	uncompSizes := make([]int32, len(b.data))
	for i, d := range b.data {
		var cbuf bytes.Buffer
		zw := zlib.NewWriter(&cbuf)
		if _, err := zw.Write(d); err != nil {
			return protoerr.New(protoerr.KindResource, "datafile_write", err)
		}
		if err := zw.Close(); err != nil {
			return protoerr.New(protoerr.KindResource, "datafile_write", err)
		}
		compressed[i] = cbuf.Bytes()
		uncompSizes[i] = int32(len(d))
	}

	sizeItems := int32(0)
	for _, it := range b.items {
		sizeItems += 8 + int32(len(it.Data))*4
	}
	sizeData := int32(0)
	dataOffsets := make([]int32, len(compressed))
	for i, c := range compressed {
		dataOffsets[i] = sizeData
		sizeData += int32(len(c))
	}

	hv := headerVersion{Magic: Magic, Version: Version4}
	hdr := header{
		NumItemTypes: int32(len(b.types)),
		NumItems:     int32(len(b.items)),
		NumData:      int32(len(b.data)),
		SizeItems:    sizeItems,
		SizeData:     sizeData,
	}
	hdr.Size = 0
	hdr.Swaplen = 0

	writeLE := func(v any) error {
		return binary.Write(w, binary.LittleEndian, v)
	}
	if err := writeLE(hv.Magic); err != nil {
		return err
	}
	if err := writeLE(hv.Version); err != nil {
		return err
	}
	if err := writeLE(hdr); err != nil {
		return err
	}
	for _, t := range b.types {
		if err := writeLE(t); err != nil {
			return err
		}
	}

	itemOffsets := make([]int32, len(b.items))
	offset := int32(0)
	for i := range b.items {
		itemOffsets[i] = offset
		offset += 8 + int32(len(b.items[i].Data))*4
	}
	for _, off := range itemOffsets {
		if err := writeLE(off); err != nil {
			return err
		}
	}
	for _, off := range dataOffsets {
		if err := writeLE(off); err != nil {
			return err
		}
	}
	for _, sz := range uncompSizes {
		if err := writeLE(sz); err != nil {
			return err
		}
	}
	for _, it := range b.items {
		ih := itemHeader{TypeIDAndID: packTypeIDAndID(it.TypeID, it.ID), Size: int32(len(it.Data))}
		if err := writeLE(ih); err != nil {
			return err
		}
		for _, v := range it.Data {
			if err := writeLE(v); err != nil {
				return err
			}
		}
	}
	for _, c := range compressed {
		if _, err := w.Write(c); err != nil {
			return protoerr.New(protoerr.KindResource, "datafile_write", err)
		}
	}
	return nil
}
