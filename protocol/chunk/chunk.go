// Package chunk implements the chunk layer: splitting a packet payload
// into individual chunks (vital and non-vital), and the per-peer
// reliability bookkeeping — outbound resend queue, inbound sequence
// tracking, and keepalive timers — built on top of it.
//
// The reassembly/resend bookkeeping is generalized from the teacher's
// Session struct in source/protocol/raknet.go (SendQueue,
// RecoveryQueue, ACKQueue/NACKQueue, MessageIndex/SequenceNumber), but
// the sequence space shrinks from RakNet's 24-bit range to this
// protocol's 10-bit modulo-1024 vital sequence, and acking moves from
// per-datagram bitmaps to a single highest-observed-ack counter.
package chunk

import (
	"time"

	"ttnetgo/protoerr"
)

const (
	HeaderSize      = 2
	HeaderSizeVital = 3

	chunkFlagsBits = 2
	chunkSizeBits  = 12

	sequenceBits    = 10
	SequenceModulus = 1 << sequenceBits

	// FlagVital marks a chunk as carrying a sequence number eligible
	// for retransmission; FlagResend marks a retransmitted copy.
	FlagVital  uint8 = 1 << 0
	FlagResend uint8 = 1 << 1

	// KeepaliveInterval and DefaultTimeout match §6's configuration defaults.
	KeepaliveInterval = 5 * time.Second
	DefaultTimeout    = 10 * time.Second
)

// Header is an unpacked chunk header; Sequence is only meaningful when
// Flags&FlagVital != 0.
type Header struct {
	Flags    uint8 // u2
	Size     uint16
	Sequence uint16 // u10, vital chunks only
}

// Pack writes the 2- or 3-byte wire form into dst (len(dst) must match
// HeaderSize or HeaderSizeVital per h.Flags).
func (h Header) Pack(dst []byte) {
	flagsSize := (h.Flags & 0b11 << 6) | byte((h.Size&0b1111_1100_0000)>>6)
	paddingSize := byte(h.Size & 0b0000_0011_1111)
	if h.Flags&FlagVital == 0 {
		dst[0] = flagsSize
		dst[1] = paddingSize
		return
	}
	sequenceSize := paddingSize | byte((h.Sequence&0b11_0000_0000)>>2)
	dst[0] = flagsSize
	dst[1] = sequenceSize
	dst[2] = byte(h.Sequence & 0b00_1111_1111)
}

// unpackBase decodes the flags/size-bearing first two bytes, ignoring
// whether the chunk turns out to be vital.
func unpackBase(warn *protoerr.Warnings, data []byte) Header {
	flagsSize, paddingSize := data[0], data[1]
	h := Header{
		Flags: (flagsSize & 0b1100_0000) >> 6,
		Size:  ((uint16(flagsSize&0b0011_1111) << 6) | uint16(paddingSize&0b0011_1111)),
	}
	if h.Flags&FlagVital == 0 && paddingSize&0b1100_0000 != 0 {
		warn.Warn("ChunkHeaderPadding", "")
	}
	return h
}

// ReadHeader decodes one chunk header (2 or 3 bytes depending on the
// vital flag) from the front of data, returning the header and the
// remaining bytes (chunk payload + anything after it).
func ReadHeader(warn *protoerr.Warnings, data []byte) (Header, []byte, bool) {
	if len(data) < HeaderSize {
		return Header{}, nil, false
	}
	h := unpackBase(warn, data)
	if h.Flags&FlagVital == 0 {
		return h, data[HeaderSize:], true
	}
	if len(data) < HeaderSizeVital {
		return Header{}, nil, false
	}
	sequenceSize := data[1]
	sequence := (uint16(sequenceSize&0b1100_0000) << 2) | uint16(data[2])
	h.Sequence = sequence
	return h, data[HeaderSizeVital:], true
}

// Chunk is one decoded chunk: its payload (borrowing the packet
// buffer) and, for vital chunks, its sequence number and resend flag.
type Chunk struct {
	Data    []byte
	Vital   bool
	Seq     uint16
	IsRetry bool
}

// Iterate splits payload into up to numChunks chunks, invoking fn for
// each. It stops (without error) on ChunksUnknownData (a chunk's
// declared size exceeds the remaining payload) and warns
// ChunksNumChunks if the declared count didn't match what was found.
func Iterate(warn *protoerr.Warnings, payload []byte, numChunks uint8, fn func(Chunk)) {
	remaining := int32(numChunks)
	data := payload
	for {
		if len(data) == 0 {
			if remaining != 0 {
				warn.Warn("ChunksNumChunks", "")
			}
			return
		}
		if remaining == 0 {
			warn.Warn("ChunksNumChunks", "")
			return
		}
		h, rest, ok := ReadHeader(warn, data)
		if !ok {
			warn.Warn("ChunksUnknownData", "")
			return
		}
		size := int(h.Size)
		if len(rest) < size {
			warn.Warn("ChunksUnknownData", "")
			return
		}
		chunkData := rest[:size]
		data = rest[size:]
		remaining--
		fn(Chunk{
			Data:    chunkData,
			Vital:   h.Flags&FlagVital != 0,
			Seq:     h.Sequence,
			IsRetry: h.Flags&FlagResend != 0,
		})
	}
}

// WriteChunk appends one chunk's header and payload to dst, returning
// the extended slice.
func WriteChunk(dst []byte, data []byte, vital bool, seq uint16, isRetry bool) []byte {
	h := Header{Size: uint16(len(data))}
	hdrLen := HeaderSize
	if vital {
		h.Flags |= FlagVital
		if isRetry {
			h.Flags |= FlagResend
		}
		h.Sequence = seq
		hdrLen = HeaderSizeVital
	}
	hdr := make([]byte, hdrLen)
	h.Pack(hdr)
	dst = append(dst, hdr...)
	dst = append(dst, data...)
	return dst
}

// SeqLess reports whether a precedes b in the modulo-1024 sequence
// space using window-of-half comparison: a precedes b iff the forward
// distance from a to b is strictly less than half the modulus.
func SeqLess(a, b uint16) bool {
	return seqDistance(a, b) > 0 && seqDistance(a, b) < SequenceModulus/2
}

// seqDistance returns (b - a) mod SequenceModulus as a signed-style
// quantity in [0, SequenceModulus).
func seqDistance(a, b uint16) int32 {
	d := (int32(b) - int32(a)) % SequenceModulus
	if d < 0 {
		d += SequenceModulus
	}
	return d
}
