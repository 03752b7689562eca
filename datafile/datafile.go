// Package datafile implements the container format used to store maps
// and demo replays: a versioned header, item-type and item-offset
// tables, and a blob of (optionally zlib-compressed) data chunks
// addressed by offset.
//
// Ported from original_source/datafile/src/datafile_raw.rs's
// DatafileHeaderVersion/DatafileHeader/DatafileReader, generalized from
// its Rust trait-object reader/buffer split into a single Go interface
// (Datafile) implemented by both Reader and Builder, per spec.md §4.G.
package datafile

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"ttnetgo/protoerr"
)

// Magic is the four-byte signature of a little-endian datafile.
var Magic = [4]byte{'D', 'A', 'T', 'A'}

// MagicBigEndian is Magic's byte-reversed form, accepted per spec.md
// §9's endian-flip tolerance decision.
var MagicBigEndian = [4]byte{'A', 'T', 'A', 'D'}

// Supported container versions.
const (
	Version3 = 3
	Version4 = 4
)

// ItemTypeIDRange bounds a valid item_type's type_id (exclusive upper
// bound), matching DATAFILE_ITEMTYPE_ID_RANGE.
const ItemTypeIDRange = 0x10000

// headerVersion is the first fixed-size block of every datafile: magic
// plus version, always 8 bytes regardless of container version.
type headerVersion struct {
	Magic   [4]byte
	Version int32
}

// header is the second fixed-size block, 28 bytes, present in both v3
// and v4 containers. Size/Swaplen are carried for compatibility but are
// advisory (Open Question decision, see DESIGN.md): they are stored as
// read, and check() neither validates nor logs them.
type header struct {
	Size          int32
	Swaplen       int32
	NumItemTypes  int32
	NumItems      int32
	NumData       int32
	SizeItems     int32
	SizeData      int32
}

// itemTypeEntry is one row of the item-type table: a type id plus the
// contiguous run of item-table indices ([Start, Start+Num)) it owns.
type itemTypeEntry struct {
	TypeID int32
	Start  int32
	Num    int32
}

// itemHeader is the 8-byte header preceding each item's int payload in
// the items blob.
type itemHeader struct {
	TypeIDAndID int32
	Size        int32
}

func (h itemHeader) typeID() uint16 { return uint16(uint32(h.TypeIDAndID) >> 16) }
func (h itemHeader) id() uint16     { return uint16(uint32(h.TypeIDAndID) & 0xffff) }

func packTypeIDAndID(typeID, id uint16) int32 {
	return int32((uint32(typeID) << 16) | uint32(id))
}

// Item is one decoded item: its identity and its int32 payload.
type Item struct {
	TypeID uint16
	ID     uint16
	Data   []int32
}

// Datafile is satisfied by both Reader (reads a sealed container from
// disk) and Builder (accumulates one in memory), matching the split in
// the reference between DatafileReader and DatafileBuffer.
type Datafile interface {
	NumItemTypes() int
	ItemType(index int) uint16
	NumItems() int
	Item(index int) Item
	ItemTypeItems(typeID uint16) []Item
	ItemFind(typeID, id uint16) (Item, bool)
	NumData() int
	Data(index int) ([]byte, error)
}

func readLE(r *bytes.Reader, v any) error {
	return readOrder(r, binary.LittleEndian, v)
}

// readOrder reads v using the given byte order, letting Open's caller
// supply binary.BigEndian when the header's magic came in byte-reversed
// (see MagicBigEndian) so every subsequent int32 field is flipped back
// to its native value instead of being silently misread.
func readOrder(r *bytes.Reader, order binary.ByteOrder, v any) error {
	if err := binary.Read(r, order, v); err != nil {
		return protoerr.New(protoerr.KindWireFormat, "datafile_read", fmt.Errorf("%w: %v", protoerr.ErrMalformedDatafile, err))
	}
	return nil
}

func readInt32Slice(r *bytes.Reader, order binary.ByteOrder, count int32) ([]int32, error) {
	out := make([]int32, count)
	for i := range out {
		if err := readOrder(r, order, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
