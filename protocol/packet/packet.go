// Package packet implements the top-level UDP packet framer: the
// 7-byte connected header, the 9-byte connectionless header, and the
// control sub-dispatch (keepalive/connect/accept/close/token).
//
// Bit layout is generalized from the teacher's BitStream header
// packing in source/protocol/raknet.go, carried over to this
// protocol's exact field widths (4-bit flags, 10-bit ack, 2-bit
// version) instead of RakNet's fixed-width fields.
package packet

import (
	"ttnetgo/internal/huffman"
	"ttnetgo/internal/packer"
	"ttnetgo/protoerr"
)

const (
	ChunkHeaderSize      = 2
	ChunkHeaderSizeVital = 3
	HeaderSize           = 7
	HeaderSizeConnless   = 9
	MaxPacketSize        = 1400
	MaxPayload           = 1390
)

// Packet flag bits (the 4-bit flags field of the connected header).
const (
	FlagControl        uint8 = 1 << 0
	FlagRequestResend  uint8 = 1 << 1
	FlagCompression    uint8 = 1 << 2
	FlagConnless       uint8 = 1 << 3
	packetFlagsBits          = 4
	sequenceBits             = 10
	sequenceModulus    int32 = 1 << sequenceBits
)

// Chunk flag bits, re-exported here since the connected-packet control
// dispatch and the chunk layer both need them.
const (
	ChunkFlagVital  uint8 = 1 << 0
	ChunkFlagResend uint8 = 1 << 1
)

// Control sub-message ids.
const (
	CtrlKeepAlive uint8 = 0
	CtrlConnect   uint8 = 1
	CtrlAccept    uint8 = 2
	CtrlClose     uint8 = 4
	CtrlToken     uint8 = 5
)

const (
	ConnlessVersion         uint8 = 1
	CloseReasonMaxLen             = 127
	TokenRequestPacketSize        = 519
)

// Token is the 4-byte session tag exchanged at handshake.
type Token [4]byte

// TokenNone is the sentinel token used before a session has one assigned.
var TokenNone = Token{0xff, 0xff, 0xff, 0xff}

// Sentinel errors, one per PacketReadError arm of the reference decoder.
var (
	ErrTooLong                     = protoerr.New(protoerr.KindWireFormat, "packet_read", protoerr.ErrCapacity)
	ErrTooShort                    = protoerr.New(protoerr.KindWireFormat, "packet_read", protoerr.ErrEndOfInput)
	ErrCompression                 = protoerr.New(protoerr.KindWireFormat, "packet_read", protoerr.ErrCompressionMismatch)
	ErrControlMissing              = protoerr.New(protoerr.KindWireFormat, "packet_read", protoerr.ErrEndOfInput)
	ErrControlResponseTokenMissing = protoerr.New(protoerr.KindWireFormat, "packet_read", protoerr.ErrEndOfInput)
	ErrControlTokenRequestTooShort = protoerr.New(protoerr.KindWireFormat, "packet_read", protoerr.ErrEndOfInput)
	ErrUnknownConnlessVersion      = protoerr.New(protoerr.KindWireFormat, "packet_read", protoerr.ErrUnknownID)
	ErrUnknownControl              = protoerr.New(protoerr.KindWireFormat, "packet_read", protoerr.ErrUnknownID)
)

// Header is the unpacked 7-byte connected-packet header.
type Header struct {
	Flags     uint8 // u4
	Ack       uint16
	NumChunks uint8
	Token     Token
}

// Pack writes the header's 7-byte wire form into dst, which must have
// length >= HeaderSize.
func (h Header) Pack(dst []byte) {
	dst[0] = h.Flags<<2 | byte(h.Ack>>8)
	dst[1] = byte(h.Ack)
	dst[2] = h.NumChunks
	copy(dst[3:7], h.Token[:])
}

// UnpackHeader reads a 7-byte connected header from src, warning
// PacketHeaderPadding if either reserved high bit is set.
func UnpackHeader(warn *protoerr.Warnings, src []byte) (Header, []byte, error) {
	if len(src) < HeaderSize {
		return Header{}, nil, ErrTooShort
	}
	b0 := src[0]
	if b0&0b1100_0000 != 0 {
		warn.Warn("PacketHeaderPadding", "")
	}
	h := Header{
		Flags:     (b0 & 0b0011_1100) >> 2,
		Ack:       (uint16(b0&0b0000_0011) << 8) | uint16(src[1]),
		NumChunks: src[2],
	}
	copy(h.Token[:], src[3:7])
	return h, src[HeaderSize:], nil
}

// HeaderConnless is the unpacked 9-byte connectionless header.
type HeaderConnless struct {
	Flags         uint8 // u4
	Version       uint8 // u2
	Token         Token
	ResponseToken Token
}

// Pack writes the 9-byte wire form into dst.
func (h HeaderConnless) Pack(dst []byte) {
	dst[0] = h.Flags<<2 | h.Version
	copy(dst[1:5], h.Token[:])
	copy(dst[5:9], h.ResponseToken[:])
}

// UnpackHeaderConnless reads a 9-byte connectionless header from src.
func UnpackHeaderConnless(warn *protoerr.Warnings, src []byte) (HeaderConnless, []byte, error) {
	if len(src) < HeaderSizeConnless {
		return HeaderConnless{}, nil, ErrTooShort
	}
	b0 := src[0]
	if b0&0b1100_0000 != 0 {
		warn.Warn("PacketHeaderPadding", "")
	}
	h := HeaderConnless{
		Flags:   (b0 & 0b0011_1100) >> 2,
		Version: b0 & 0b0000_0011,
	}
	copy(h.Token[:], src[1:5])
	copy(h.ResponseToken[:], src[5:9])
	return h, src[HeaderSizeConnless:], nil
}

// ControlKind tags which control sub-message a ControlPacket carries.
type ControlKind uint8

const (
	ControlKeepAlive ControlKind = iota
	ControlConnect
	ControlAccept
	ControlClose
	ControlToken
)

// ControlPacket is a decoded control sub-message.
type ControlPacket struct {
	Kind   ControlKind
	Token  Token  // Connect, Token
	Reason []byte // Close; borrows the packet buffer
}

// ConnectedType tags whether a connected packet carries chunks or a
// control sub-message.
type ConnectedType int

const (
	TypeChunks ConnectedType = iota
	TypeControl
)

// Connected is a decoded non-connectionless packet.
type Connected struct {
	Ack   uint16
	Type  ConnectedType
	// Chunks fields, valid when Type == TypeChunks.
	RequestResend bool
	NumChunks     uint8
	Payload       []byte // borrows the input buffer; a newly allocated slice when the packet was compressed
	// Control field, valid when Type == TypeControl.
	Control ControlPacket
}

// Result is the outcome of Read: exactly one of Connless or Connected
// is populated.
type Result struct {
	IsConnless bool
	Connless   []byte
	Connected  Connected
}

// NeedsDecompression reports whether packet carries a connected,
// compressed payload that Read would need decompressBuf for.
func NeedsDecompression(packet []byte) bool {
	if len(packet) > MaxPacketSize || len(packet) < HeaderSize {
		return false
	}
	var ignore protoerr.Warnings
	h, _, err := UnpackHeader(&ignore, packet)
	if err != nil {
		return false
	}
	return h.Flags&FlagConnless == 0 && h.Flags&FlagCompression != 0
}

// Read parses one UDP datagram. For a compressed packet only
// decompressBuf's capacity is used: it bounds the decompressed size,
// and the payload is decompressed into a new slice. It must have
// capacity >= MaxPacketSize
// whenever the caller expects compressed packets (pass nil otherwise
// and accept ErrCompression for any compressed packet).
func Read(warn *protoerr.Warnings, bytes []byte, decompressBuf []byte) (Result, error) {
	if len(bytes) > MaxPacketSize {
		return Result{}, ErrTooLong
	}
	header, payload, err := UnpackHeader(warn, bytes)
	if err != nil {
		return Result{}, ErrTooShort
	}

	if header.Flags&FlagConnless != 0 {
		chdr, cpayload, err := UnpackHeaderConnless(warn, bytes)
		if err != nil {
			return Result{}, ErrTooShort
		}
		if chdr.Version != ConnlessVersion {
			return Result{}, ErrUnknownConnlessVersion
		}
		if chdr.Flags&FlagCompression != 0 || chdr.Flags&FlagRequestResend != 0 || chdr.Flags&FlagControl != 0 {
			warn.Warn("ConnlessFlags", "")
		}
		return Result{IsConnless: true, Connless: cpayload}, nil
	}

	if header.Flags&FlagCompression != 0 {
		if decompressBuf == nil {
			return Result{}, ErrCompression
		}
		decompressed, derr := huffman.Decompress(payload, cap(decompressBuf))
		if derr != nil {
			return Result{}, ErrCompression
		}
		payload = decompressed
	}

	if len(payload) > MaxPayload {
		return Result{}, ErrCompression
	}

	if header.Flags&FlagControl != 0 {
		if header.NumChunks != 0 {
			warn.Warn("ControlNumChunks", "")
		}
		if header.Flags&FlagCompression != 0 || header.Flags&FlagRequestResend != 0 {
			warn.Warn("ControlFlags", "")
		}
		if len(payload) == 0 {
			return Result{}, ErrControlMissing
		}
		ctrl, cerr := readControl(warn, header.Token, bytes, payload)
		if cerr != nil {
			return Result{}, cerr
		}
		return Result{Connected: Connected{Ack: header.Ack, Type: TypeControl, Control: ctrl}}, nil
	}

	requestResend := header.Flags&FlagRequestResend != 0
	if header.NumChunks == 0 && !requestResend {
		warn.Warn("ChunksNoChunks", "")
	}
	return Result{Connected: Connected{
		Ack:           header.Ack,
		Type:          TypeChunks,
		RequestResend: requestResend,
		NumChunks:     header.NumChunks,
		Payload:       payload,
	}}, nil
}

func readControl(warn *protoerr.Warnings, headerToken Token, fullPacket, payload []byte) (ControlPacket, error) {
	kind := payload[0]
	rest := payload[1:]

	warnExcess := func() {
		if len(rest) != 0 {
			warn.Warn("ControlExcessData", "")
		}
	}
	readToken := func(warnMore bool) (Token, []byte, error) {
		if len(rest) < 4 {
			return Token{}, nil, ErrControlResponseTokenMissing
		}
		var tok Token
		copy(tok[:], rest[:4])
		remainder := rest[4:]
		if warnMore && len(remainder) != 0 {
			warn.Warn("ControlExcessData", "")
		}
		return tok, remainder, nil
	}

	switch kind {
	case CtrlKeepAlive:
		warnExcess()
		return ControlPacket{Kind: ControlKeepAlive}, nil
	case CtrlConnect:
		tok, _, err := readToken(true)
		if err != nil {
			return ControlPacket{}, err
		}
		return ControlPacket{Kind: ControlConnect, Token: tok}, nil
	case CtrlAccept:
		warnExcess()
		return ControlPacket{Kind: ControlAccept}, nil
	case CtrlClose:
		nul := len(rest)
		for i, b := range rest {
			if b == 0 {
				nul = i
				break
			}
		}
		if nul > CloseReasonMaxLen {
			nul = CloseReasonMaxLen
		}
		if len(rest) != 0 && nul+1 != len(rest) {
			if nul+1 < len(rest) {
				warn.Warn("ControlExcessData", "")
			} else {
				warn.Warn("ControlNulTermination", "")
			}
		}
		return ControlPacket{Kind: ControlClose, Reason: rest[:nul]}, nil
	case CtrlToken:
		if headerToken == TokenNone && len(fullPacket) < TokenRequestPacketSize {
			return ControlPacket{}, ErrControlTokenRequestTooShort
		}
		tok, _, err := readToken(headerToken != TokenNone)
		if err != nil {
			return ControlPacket{}, err
		}
		return ControlPacket{Kind: ControlToken, Token: tok}, nil
	default:
		return ControlPacket{}, ErrUnknownControl
	}
}

// WriteHeader encodes a connected, non-compressed chunk payload behind
// h's packed header, returning the full packet in a newly allocated
// slice.
func WriteHeader(h Header, payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	h.Pack(out[:HeaderSize])
	copy(out[HeaderSize:], payload)
	return out
}

// WriteControl builds a connected control packet.
func WriteControl(ack uint16, token Token, kind ControlKind, arg []byte) []byte {
	w := packer.NewWriter()
	switch kind {
	case ControlKeepAlive:
		w.WriteRaw([]byte{CtrlKeepAlive})
	case ControlConnect:
		w.WriteRaw([]byte{CtrlConnect})
		w.WriteRaw(arg)
	case ControlAccept:
		w.WriteRaw([]byte{CtrlAccept})
	case ControlClose:
		w.WriteRaw([]byte{CtrlClose})
		w.WriteRaw(arg)
		w.WriteRaw([]byte{0})
	case ControlToken:
		w.WriteRaw([]byte{CtrlToken})
		w.WriteRaw(arg)
	}
	h := Header{Flags: FlagControl, Ack: ack, NumChunks: 0, Token: token}
	return WriteHeader(h, w.Bytes())
}
