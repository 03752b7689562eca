package datafile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"ttnetgo/protoerr"
)

// Reader is a parsed, validated datafile container backed by an
// io.ReaderAt (typically an *os.File). All accessors except Data are
// served from in-memory tables built at Open time; Data seeks into the
// backing reader and, for v4 containers, zlib-inflates the result.
//
// Grounded on DatafileReader in
// original_source/datafile/src/datafile_raw.rs: same two-pass
// read-then-check structure, same table layout, same seek-on-demand
// data accessor.
type Reader struct {
	hv     headerVersion
	hdr    header
	types  []itemTypeEntry
	itemOffsets []int32
	dataOffsets []int32
	uncompSizes []int32 // nil for v3
	itemsRaw    []int32 // flattened item blob, as int32 words

	dataOffset int64
	backing    io.ReaderAt
}

// Open parses and validates a datafile from r. size is the total
// length of the backing store, needed to bound the final data blob's
// length.
func Open(r io.ReaderAt, size int64) (*Reader, error) {
	sr := io.NewSectionReader(r, 0, size)
	buf := make([]byte, size)
	if _, err := io.ReadFull(sr, buf); err != nil {
		return nil, protoerr.New(protoerr.KindWireFormat, "datafile_open", fmt.Errorf("%w: %v", protoerr.ErrMalformedDatafile, err))
	}
	br := bytes.NewReader(buf)

	var hv headerVersion
	if err := readLE(br, &hv.Magic); err != nil {
		return nil, err
	}
	if hv.Magic != Magic && hv.Magic != MagicBigEndian {
		return nil, protoerr.New(protoerr.KindWireFormat, "datafile_open", protoerr.ErrMalformedDatafile)
	}
	// A byte-reversed magic means every multi-byte field from here on was
	// written in the opposite byte order; order selects BigEndian for the
	// rest of the parse so integers come back correctly instead of the
	// reversed-magic branch being accepted but never acted on.
	order := binary.ByteOrder(binary.LittleEndian)
	if hv.Magic == MagicBigEndian {
		order = binary.BigEndian
	}
	if err := readOrder(br, order, &hv.Version); err != nil {
		return nil, err
	}
	if hv.Version != Version3 && hv.Version != Version4 {
		return nil, protoerr.New(protoerr.KindWireFormat, "datafile_open", protoerr.ErrMalformedDatafile)
	}

	var hdr header
	if err := readOrder(br, order, &hdr); err != nil {
		return nil, err
	}
	if hdr.NumItemTypes < 0 || hdr.NumItems < 0 || hdr.NumData < 0 ||
		hdr.SizeItems < 0 || hdr.SizeData < 0 {
		return nil, protoerr.New(protoerr.KindWireFormat, "datafile_open", protoerr.ErrMalformedDatafile)
	}
	if hdr.SizeItems%4 != 0 {
		return nil, protoerr.New(protoerr.KindWireFormat, "datafile_open", protoerr.ErrMalformedDatafile)
	}

	rawTypes := make([]struct {
		TypeID int32
		Start  int32
		Num    int32
	}, hdr.NumItemTypes)
	for i := range rawTypes {
		if err := readOrder(br, order, &rawTypes[i]); err != nil {
			return nil, err
		}
	}
	types := make([]itemTypeEntry, len(rawTypes))
	for i, t := range rawTypes {
		types[i] = itemTypeEntry{TypeID: t.TypeID, Start: t.Start, Num: t.Num}
	}

	itemOffsets, err := readInt32Slice(br, order, hdr.NumItems)
	if err != nil {
		return nil, err
	}
	dataOffsets, err := readInt32Slice(br, order, hdr.NumData)
	if err != nil {
		return nil, err
	}
	var uncompSizes []int32
	if hv.Version == Version4 {
		if uncompSizes, err = readInt32Slice(br, order, hdr.NumData); err != nil {
			return nil, err
		}
	}
	itemsRaw, err := readInt32Slice(br, order, hdr.SizeItems/4)
	if err != nil {
		return nil, err
	}

	dataOffset, err := br.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, protoerr.New(protoerr.KindWireFormat, "datafile_open", err)
	}

	rd := &Reader{
		hv:          hv,
		hdr:         hdr,
		types:       types,
		itemOffsets: itemOffsets,
		dataOffsets: dataOffsets,
		uncompSizes: uncompSizes,
		itemsRaw:    itemsRaw,
		dataOffset:  dataOffset,
		backing:     r,
	}
	if err := rd.check(); err != nil {
		return nil, err
	}
	return rd, nil
}

// check validates every invariant spec.md §3 and §4.G require before
// any accessor may be trusted, mirroring DatafileReader::check in the
// reference line for line.
func (r *Reader) check() error {
	expectedStart := int32(0)
	for i, t := range r.types {
		if t.TypeID < 0 || t.TypeID >= ItemTypeIDRange {
			return malformed("item_type %d: type_id %d out of range", i, t.TypeID)
		}
		if t.Num < 0 || t.Num > r.hdr.NumItems-t.Start {
			return malformed("item_type %d: num %d out of range", i, t.Num)
		}
		if t.Start != expectedStart {
			return malformed("item_type %d: start %d != expected %d", i, t.Start, expectedStart)
		}
		expectedStart += t.Num
		for k := 0; k < i; k++ {
			if r.types[k].TypeID == t.TypeID {
				return malformed("item_type %d duplicates type_id of item_type %d", i, k)
			}
		}
	}
	if expectedStart != r.hdr.NumItems {
		return malformed("item_types do not cover all %d items", r.hdr.NumItems)
	}

	offset := int32(0)
	for i := int32(0); i < r.hdr.NumItems; i++ {
		if r.itemOffsets[i] < 0 || r.itemOffsets[i] != offset {
			return malformed("item %d: bad offset %d, wanted %d", i, r.itemOffsets[i], offset)
		}
		offset += 8 // itemHeader is two int32 words
		if offset > r.hdr.SizeItems {
			return malformed("item %d header out of bounds", i)
		}
		ih := r.itemHeaderAt(int(i))
		if ih.Size < 0 {
			return malformed("item %d has negative size %d", i, ih.Size)
		}
		offset += ih.Size * 4
		if offset > r.hdr.SizeItems {
			return malformed("item %d payload out of bounds", i)
		}
	}
	if offset != r.hdr.SizeItems {
		return malformed("trailing bytes after last item, offset=%d size_items=%d", offset, r.hdr.SizeItems)
	}

	previous := int32(0)
	for i := int32(0); i < r.hdr.NumData; i++ {
		if r.uncompSizes != nil && r.uncompSizes[i] < 0 {
			return malformed("data %d: negative uncompressed size", i)
		}
		off := r.dataOffsets[i]
		if off < 0 || off > r.hdr.SizeData {
			return malformed("data %d: offset %d out of bounds", i, off)
		}
		if previous > off {
			return malformed("data %d overlaps data %d", i-1, i)
		}
		previous = off
	}

	for i, t := range r.types {
		for k := t.Start; k < t.Start+t.Num; k++ {
			ih := r.itemHeaderAt(int(k))
			if ih.typeID() != uint16(t.TypeID) {
				return malformed("item_type %d: item %d has wrong type_id %d", i, k, ih.typeID())
			}
		}
	}
	return nil
}

func malformed(format string, args ...any) error {
	return protoerr.New(protoerr.KindWireFormat, "datafile_check", fmt.Errorf("%w: %s", protoerr.ErrMalformedDatafile, fmt.Sprintf(format, args...)))
}

func (r *Reader) itemHeaderAt(index int) itemHeader {
	word := int(r.itemOffsets[index]) / 4
	return itemHeader{TypeIDAndID: r.itemsRaw[word], Size: r.itemsRaw[word+1]}
}

// NumItemTypes implements Datafile.
func (r *Reader) NumItemTypes() int { return len(r.types) }

// ItemType implements Datafile.
func (r *Reader) ItemType(index int) uint16 { return uint16(r.types[index].TypeID) }

// NumItems implements Datafile.
func (r *Reader) NumItems() int { return int(r.hdr.NumItems) }

// Item implements Datafile.
func (r *Reader) Item(index int) Item {
	ih := r.itemHeaderAt(index)
	word := int(r.itemOffsets[index])/4 + 2
	data := r.itemsRaw[word : word+int(ih.Size)]
	return Item{TypeID: ih.typeID(), ID: ih.id(), Data: data}
}

// ItemTypeItems implements Datafile.
func (r *Reader) ItemTypeItems(typeID uint16) []Item {
	start, num := r.itemTypeRange(typeID)
	out := make([]Item, num)
	for i := 0; i < num; i++ {
		out[i] = r.Item(start + i)
	}
	return out
}

// ItemFind implements Datafile.
func (r *Reader) ItemFind(typeID, id uint16) (Item, bool) {
	for _, it := range r.ItemTypeItems(typeID) {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func (r *Reader) itemTypeRange(typeID uint16) (start, num int) {
	for _, t := range r.types {
		if uint16(t.TypeID) == typeID {
			return int(t.Start), int(t.Num)
		}
	}
	return 0, 0
}

// NumData implements Datafile.
func (r *Reader) NumData() int { return int(r.hdr.NumData) }

func (r *Reader) dataSizeFile(index int) int64 {
	start := int64(r.dataOffsets[index])
	var end int64
	if index < len(r.dataOffsets)-1 {
		end = int64(r.dataOffsets[index+1])
	} else {
		end = int64(r.hdr.SizeData)
	}
	return end - start
}

// Data implements Datafile: seeks to data_offset+data_offsets[index],
// reads the raw (compressed, for v4) bytes, and in v4 zlib-inflates
// them into a buffer of the recorded uncompressed size. A size
// mismatch after inflation is CompressionError-equivalent
// (ErrCompressionMismatch), matching the reference's uncomp_data_impl.
func (r *Reader) Data(index int) ([]byte, error) {
	rawLen := r.dataSizeFile(index)
	raw := make([]byte, rawLen)
	off := r.dataOffset + int64(r.dataOffsets[index])
	if _, err := r.backing.ReadAt(raw, off); err != nil {
		return nil, protoerr.New(protoerr.KindResource, "datafile_data", err)
	}

	if r.uncompSizes == nil {
		return raw, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, protoerr.New(protoerr.KindWireFormat, "datafile_data", fmt.Errorf("%w: %v", protoerr.ErrCompressionMismatch, err))
	}
	defer zr.Close()
	want := int(r.uncompSizes[index])
	out := make([]byte, want)
	n, err := io.ReadFull(zr, out)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, protoerr.New(protoerr.KindWireFormat, "datafile_data", fmt.Errorf("%w: %v", protoerr.ErrCompressionMismatch, err))
	}
	if n != want {
		return nil, protoerr.New(protoerr.KindWireFormat, "datafile_data", protoerr.ErrCompressionMismatch)
	}
	return out, nil
}
