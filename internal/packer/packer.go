// Package packer implements the Teeworlds variable-length integer and
// string codec shared by every layer that reads or writes payload
// integers: the message catalog, the snapshot delta format, and the
// server-browse info payloads.
//
// A signed integer is encoded as 1-5 bytes. The first byte carries a
// continuation bit (0x80), a sign bit (0x40), and 6 data bits; each
// following byte carries a continuation bit (0x80) and 7 data bits.
// The sign is XOR-applied to the decoded magnitude once all bytes are
// read, matching the reference implementation bit for bit.
package packer

import (
	"ttnetgo/protoerr"
)

// Unpacker reads varint-encoded integers, NUL-terminated strings, and
// length-prefixed data blobs from a byte slice it borrows but does not
// own. Every returned []byte aliases the original buffer; callers must
// copy before the buffer is reused (zero-copy decoding, per the design
// notes).
type Unpacker struct {
	data   []byte
	offset int
}

// NewUnpacker wraps data for reading. The slice must outlive the Unpacker.
func NewUnpacker(data []byte) *Unpacker {
	return &Unpacker{data: data}
}

// Remaining returns the number of unread bytes.
func (u *Unpacker) Remaining() int { return len(u.data) - u.offset }

// ReadInt decodes one variable-length signed integer: a 6-bit first
// group (sign bit at 0x40, continuation bit at 0x80) followed by up to
// four 7-bit continuation groups. The magnitude is one's-complemented
// when the sign bit is set, so -1 encodes as a lone 0x40 byte.
func (u *Unpacker) ReadInt(warn *protoerr.Warnings) (int32, error) {
	if u.offset >= len(u.data) {
		return 0, protoerr.New(protoerr.KindWireFormat, "read_int", protoerr.ErrEndOfInput)
	}
	b := u.data[u.offset]
	u.offset++

	sign := uint32(b>>6) & 1
	result := uint32(b & 0x3f)
	shift := uint(6)

	for b&0x80 != 0 {
		if u.offset >= len(u.data) {
			return 0, protoerr.New(protoerr.KindWireFormat, "read_int", protoerr.ErrEndOfInput)
		}
		b = u.data[u.offset]
		u.offset++
		if shift >= 34 {
			warn.Warn("ExcessBits", "int continued past 5 bytes")
			continue
		}
		result |= uint32(b&0x7f) << shift
		shift += 7
	}

	if sign != 0 {
		result = ^result
	}
	return int32(result), nil
}

// ReadString returns the bytes up to the terminating NUL. The NUL is
// consumed but excluded from the returned slice.
func (u *Unpacker) ReadString() ([]byte, error) {
	start := u.offset
	for i := u.offset; i < len(u.data); i++ {
		if u.data[i] == 0 {
			u.offset = i + 1
			return u.data[start:i], nil
		}
	}
	u.offset = len(u.data)
	return nil, protoerr.New(protoerr.KindWireFormat, "read_string", protoerr.ErrEndOfInput)
}

// MaxDataSize bounds a single read_data blob, matching the largest
// payload a packet can carry (component C's MAX_PAYLOAD).
const MaxDataSize = 1390

// ReadData reads a length-prefixed byte blob: a varint length followed
// by that many raw bytes. The length is bounded at MaxDataSize.
func (u *Unpacker) ReadData(warn *protoerr.Warnings) ([]byte, error) {
	n, err := u.ReadInt(warn)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, protoerr.New(protoerr.KindValidation, "read_data", protoerr.ErrIntOutOfRange)
	}
	if n > MaxDataSize {
		return nil, protoerr.New(protoerr.KindResource, "read_data", protoerr.ErrCapacity)
	}
	return u.ReadRaw(int(n))
}

// ReadRaw reads exactly n bytes.
func (u *Unpacker) ReadRaw(n int) ([]byte, error) {
	if n < 0 || u.offset+n > len(u.data) {
		return nil, protoerr.New(protoerr.KindWireFormat, "read_raw", protoerr.ErrEndOfInput)
	}
	result := u.data[u.offset : u.offset+n]
	u.offset += n
	return result, nil
}

// Finish warns ExtraData if unread bytes remain.
func (u *Unpacker) Finish(warn *protoerr.Warnings) {
	if u.offset != len(u.data) {
		warn.Warn("ExtraData", "trailing bytes after last field")
	}
}

// IntUnpacker reads from a slice of already-decoded 32-bit ints, the
// shape the snapshot engine uses once a delta payload has been split
// into its constituent i32 fields.
type IntUnpacker struct {
	data   []int32
	offset int
}

// NewIntUnpacker wraps a decoded int slice for sequential reads.
func NewIntUnpacker(data []int32) *IntUnpacker {
	return &IntUnpacker{data: data}
}

// Remaining returns the number of unread ints.
func (u *IntUnpacker) Remaining() int { return len(u.data) - u.offset }

// ReadInt returns the next int, failing if exhausted.
func (u *IntUnpacker) ReadInt() (int32, error) {
	if u.offset >= len(u.data) {
		return 0, protoerr.New(protoerr.KindWireFormat, "read_int", protoerr.ErrEndOfInput)
	}
	v := u.data[u.offset]
	u.offset++
	return v, nil
}

// ReadRest returns every remaining int and advances to the end.
func (u *IntUnpacker) ReadRest() []int32 {
	rest := u.data[u.offset:]
	u.offset = len(u.data)
	return rest
}

// Writer accumulates a packed payload: varint-encoded integers,
// NUL-terminated strings, and length-prefixed data blobs, in the
// inverse of Unpacker's format.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated payload. The caller must not mutate it.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// WriteInt appends the variable-length encoding of i.
func (w *Writer) WriteInt(i int32) {
	var sign uint32
	v := uint32(i)
	if i < 0 {
		sign = 0x40
		v = ^v
	}

	b := byte(v&0x3f) | byte(sign)
	v >>= 6
	if v != 0 {
		b |= 0x80
	}
	w.buf = append(w.buf, b)

	for v != 0 {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
	}
}

// WriteString appends s followed by a terminating NUL. s must not
// itself contain a NUL byte; callers are expected to sanitize first.
func (w *Writer) WriteString(s []byte) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// WriteData appends a varint length prefix followed by data verbatim.
func (w *Writer) WriteData(data []byte) {
	w.WriteInt(int32(len(data)))
	w.buf = append(w.buf, data...)
}

// WriteRaw appends data with no length prefix.
func (w *Writer) WriteRaw(data []byte) {
	w.buf = append(w.buf, data...)
}

// InRange validates lo <= v <= hi, the shape every bounded-int message
// field decode goes through.
func InRange(v, lo, hi int32) (int32, error) {
	if v < lo || v > hi {
		return 0, protoerr.New(protoerr.KindValidation, "in_range", protoerr.ErrIntOutOfRange)
	}
	return v, nil
}

// Positive validates v >= 0.
func Positive(v int32) (int32, error) {
	if v < 0 {
		return 0, protoerr.New(protoerr.KindValidation, "positive", protoerr.ErrIntOutOfRange)
	}
	return v, nil
}

// AtLeast validates v >= lo.
func AtLeast(v, lo int32) (int32, error) {
	if v < lo {
		return 0, protoerr.New(protoerr.KindValidation, "at_least", protoerr.ErrIntOutOfRange)
	}
	return v, nil
}

// ToBool accepts exactly 0 or 1, rejecting everything else as
// IntOutOfRange rather than treating arbitrary nonzero as true.
func ToBool(v int32) (bool, error) {
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, protoerr.New(protoerr.KindValidation, "to_bool", protoerr.ErrIntOutOfRange)
	}
}

// Sanitize rejects strings containing control characters (everything
// below 0x20 except none are permitted, and 0x7f), the same bound the
// message catalog applies to every string field before it is handed to
// calling code.
func Sanitize(warn *protoerr.Warnings, b []byte) ([]byte, error) {
	for _, c := range b {
		if c < 0x20 || c == 0x7f {
			return nil, protoerr.New(protoerr.KindValidation, "sanitize", protoerr.ErrIntOutOfRange)
		}
	}
	return b, nil
}
