// Package msgid implements message identity: the tagged union between
// a small-integer ordinal (whose bit 0 marks system vs. game class)
// and a 128-bit UUID used for negotiated extensions.
//
// Grounded on spec.md §3's "message identity" data model and the
// design note in §9 recommending a sum type over an open enum; wire
// encode/decode follows the teacher's flat RPC-id constant style in
// source/protocol/rpc.go, generalized from a bare uint8 id to this
// protocol's ordinal-or-UUID shape.
package msgid

import (
	"ttnetgo/internal/packer"
	"ttnetgo/protoerr"
)

// Class distinguishes the System and Game message partitions.
type Class int

const (
	ClassSystem Class = iota
	ClassGame
)

// sentinelOrdinal is never used as a real ordinal; its presence on the
// wire signals "the next 16 bytes are a UUID" instead.
const sentinelOrdinal int32 = 0

// Kind tags which arm of the sum type an ID holds.
type Kind int

const (
	KindOrdinal Kind = iota
	KindUUID
)

// ID is a message identity: either a small ordinal or a UUID.
type ID struct {
	Kind    Kind
	Ordinal int32
	UUID    [16]byte
}

// Ordinal builds an ordinal ID from a numeric id and class; class is
// folded into bit 0 the way the wire format expects.
func Ordinal(id int32, class Class) ID {
	ordinal := id << 1
	if class == ClassGame {
		ordinal |= 1
	}
	return ID{Kind: KindOrdinal, Ordinal: ordinal}
}

// UUIDOf builds a UUID-tagged ID.
func UUIDOf(u [16]byte) ID {
	return ID{Kind: KindUUID, UUID: u}
}

// NumericID and Class unpack an ordinal ID's encoded id and class;
// callers must check Kind == KindOrdinal first.
func (id ID) NumericID() int32 { return id.Ordinal >> 1 }
func (id ID) Class() Class {
	if id.Ordinal&1 != 0 {
		return ClassGame
	}
	return ClassSystem
}

// Read decodes one message id from u: a varint ordinal, or, if that
// ordinal is the sentinel, 16 raw bytes of UUID.
func Read(u *packer.Unpacker, warn *protoerr.Warnings) (ID, error) {
	raw, err := u.ReadInt(warn)
	if err != nil {
		return ID{}, err
	}
	if raw != sentinelOrdinal {
		return ID{Kind: KindOrdinal, Ordinal: raw}, nil
	}
	b, err := u.ReadRaw(16)
	if err != nil {
		return ID{}, err
	}
	var uuid [16]byte
	copy(uuid[:], b)
	return ID{Kind: KindUUID, UUID: uuid}, nil
}

// Write encodes id into w in the inverse of Read.
func Write(w *packer.Writer, id ID) {
	switch id.Kind {
	case KindOrdinal:
		w.WriteInt(id.Ordinal)
	case KindUUID:
		w.WriteInt(sentinelOrdinal)
		w.WriteRaw(id.UUID[:])
	}
}
