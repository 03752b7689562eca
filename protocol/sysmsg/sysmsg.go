// Package sysmsg implements the System message partition: transport-
// adjacent messages (handshake, map transfer, snapshots, input,
// keepalive, remote console) plus the UUID-addressed extension
// messages a peer negotiates at runtime.
//
// Grounded on original_source/gamenet/ddnet/src/msg/system.rs's message
// list and UUID constants (WHAT_IS/IT_IS/I_DONT_KNOW, RCON_CMD_ADD/
// REMOVE, PING_EX/PONG_EX, CHECKSUM_REQUEST/RESPONSE/ERROR), decoded
// through the validators of internal/packer the way every generated
// message decoder in the reference does (packer::positive,
// packer::to_bool, etc.), with the per-message builder shape
// generalized from the teacher's Build*RPC functions in
// source/protocol/rpc.go.
package sysmsg

import (
	"ttnetgo/internal/packer"
	"ttnetgo/protoerr"
)

// Numeric system message ids (the ordinal half of msgid.ID, before the
// class bit is folded in).
const (
	IDInfo           int32 = 1
	IDMapChange      int32 = 2
	IDMapData        int32 = 3
	IDConReady       int32 = 4
	IDSnap           int32 = 5
	IDSnapEmpty      int32 = 6
	IDSnapSingle     int32 = 7
	IDInput          int32 = 8
	IDRconAuthStatus int32 = 9
	IDRconLine       int32 = 10
	IDRequestMapData int32 = 11
	IDReady          int32 = 12
	IDEnterGame      int32 = 13
	IDPing           int32 = 14
	IDPingReply      int32 = 15
	IDRconCmdAdd     int32 = 25
	IDRconCmdRemove  int32 = 26
)

// Message is implemented by every system message struct.
type Message interface {
	Decode(u *packer.Unpacker, warn *protoerr.Warnings) error
	Encode(w *packer.Writer)
}

// Info is the client's handshake identification.
type Info struct {
	Version  []byte
	Password []byte
}

func (m *Info) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.Version, err = sanitizedString(u, warn); err != nil {
		return err
	}
	if m.Password, err = sanitizedString(u, warn); err != nil {
		return err
	}
	return nil
}
func (m *Info) Encode(w *packer.Writer) {
	w.WriteString(m.Version)
	w.WriteString(m.Password)
}

// MapChange announces a new map by name, crc, and size.
type MapChange struct {
	Name []byte
	CRC  int32
	Size int32
}

func (m *MapChange) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.Name, err = sanitizedString(u, warn); err != nil {
		return err
	}
	if m.CRC, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.Size, err = u.ReadInt(warn); err != nil {
		return err
	}
	if _, err := packer.Positive(m.Size); err != nil {
		return err
	}
	return nil
}
func (m *MapChange) Encode(w *packer.Writer) {
	w.WriteString(m.Name)
	w.WriteInt(m.CRC)
	w.WriteInt(m.Size)
}

// MapData carries one chunk of the map file being downloaded.
type MapData struct {
	Last     bool
	CRC      int32
	Chunk    int32
	Data     []byte
}

func (m *MapData) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	last, err := u.ReadInt(warn)
	if err != nil {
		return err
	}
	if m.Last, err = packer.ToBool(last); err != nil {
		return err
	}
	if m.CRC, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.Chunk, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.Data, err = u.ReadData(warn); err != nil {
		return err
	}
	return nil
}
func (m *MapData) Encode(w *packer.Writer) {
	if m.Last {
		w.WriteInt(1)
	} else {
		w.WriteInt(0)
	}
	w.WriteInt(m.CRC)
	w.WriteInt(m.Chunk)
	w.WriteData(m.Data)
}

// ConReady has no fields; it signals the connection is ready for the
// game-specific handshake to continue.
type ConReady struct{}

func (m *ConReady) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error { return nil }
func (m *ConReady) Encode(w *packer.Writer)                                 {}

// Snap carries one multi-part snapshot delta fragment.
type Snap struct {
	Tick      int32
	DeltaTick int32
	NumParts  int32
	Part      int32
	CRC       int32
	Data      []byte
}

func (m *Snap) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.Tick, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.DeltaTick, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.NumParts, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.Part, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.CRC, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.Data, err = u.ReadData(warn); err != nil {
		return err
	}
	return nil
}
func (m *Snap) Encode(w *packer.Writer) {
	w.WriteInt(m.Tick)
	w.WriteInt(m.DeltaTick)
	w.WriteInt(m.NumParts)
	w.WriteInt(m.Part)
	w.WriteInt(m.CRC)
	w.WriteData(m.Data)
}

// SnapEmpty signals no world-state change for this tick.
type SnapEmpty struct {
	Tick      int32
	DeltaTick int32
}

func (m *SnapEmpty) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.Tick, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.DeltaTick, err = u.ReadInt(warn); err != nil {
		return err
	}
	return nil
}
func (m *SnapEmpty) Encode(w *packer.Writer) {
	w.WriteInt(m.Tick)
	w.WriteInt(m.DeltaTick)
}

// SnapSingle is a one-part snapshot, the common case.
type SnapSingle struct {
	Tick      int32
	DeltaTick int32
	CRC       int32
	Data      []byte
}

func (m *SnapSingle) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.Tick, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.DeltaTick, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.CRC, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.Data, err = u.ReadData(warn); err != nil {
		return err
	}
	return nil
}
func (m *SnapSingle) Encode(w *packer.Writer) {
	w.WriteInt(m.Tick)
	w.WriteInt(m.DeltaTick)
	w.WriteInt(m.CRC)
	w.WriteData(m.Data)
}

// Input carries one tick's player input vector plus ack bookkeeping.
type Input struct {
	AckSnapshot int32
	IntendedTick int32
	InputSize   int32
	Input       []int32
}

func (m *Input) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.AckSnapshot, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.IntendedTick, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.InputSize, err = u.ReadInt(warn); err != nil {
		return err
	}
	if _, err := packer.Positive(m.InputSize); err != nil {
		return err
	}
	m.Input = make([]int32, m.InputSize)
	for i := range m.Input {
		if m.Input[i], err = u.ReadInt(warn); err != nil {
			return err
		}
	}
	return nil
}
func (m *Input) Encode(w *packer.Writer) {
	w.WriteInt(m.AckSnapshot)
	w.WriteInt(m.IntendedTick)
	w.WriteInt(int32(len(m.Input)))
	for _, v := range m.Input {
		w.WriteInt(v)
	}
}

// RequestMapData asks the server for one more chunk of the map
// currently being downloaded.
type RequestMapData struct {
	Chunk int32
}

func (m *RequestMapData) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	m.Chunk, err = u.ReadInt(warn)
	return err
}
func (m *RequestMapData) Encode(w *packer.Writer) { w.WriteInt(m.Chunk) }

// Ready, EnterGame have no fields.
type Ready struct{}

func (m *Ready) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error { return nil }
func (m *Ready) Encode(w *packer.Writer)                                 {}

type EnterGame struct{}

func (m *EnterGame) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error { return nil }
func (m *EnterGame) Encode(w *packer.Writer)                                 {}

// Ping/PingReply carry no fields; round-trip time is measured by the
// caller from packet arrival, not from message payload.
type Ping struct{}

func (m *Ping) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error { return nil }
func (m *Ping) Encode(w *packer.Writer)                                 {}

type PingReply struct{}

func (m *PingReply) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error { return nil }
func (m *PingReply) Encode(w *packer.Writer)                                 {}

// RconAuthStatus reports whether an rcon login attempt succeeded.
type RconAuthStatus struct {
	Authed     int32
	CmdList    int32
}

func (m *RconAuthStatus) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.Authed, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.CmdList, err = u.ReadInt(warn); err != nil {
		return err
	}
	return nil
}
func (m *RconAuthStatus) Encode(w *packer.Writer) {
	w.WriteInt(m.Authed)
	w.WriteInt(m.CmdList)
}

// RconLine is one line of remote-console output.
type RconLine struct {
	Line []byte
}

func (m *RconLine) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	m.Line, err = sanitizedString(u, warn)
	return err
}
func (m *RconLine) Encode(w *packer.Writer) { w.WriteString(m.Line) }

// RconCmdAdd/RconCmdRemove advertise and retract one remote-console
// command during capability negotiation.
type RconCmdAdd struct {
	Name, Help, Params []byte
}

func (m *RconCmdAdd) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.Name, err = sanitizedString(u, warn); err != nil {
		return err
	}
	if m.Help, err = sanitizedString(u, warn); err != nil {
		return err
	}
	if m.Params, err = sanitizedString(u, warn); err != nil {
		return err
	}
	return nil
}
func (m *RconCmdAdd) Encode(w *packer.Writer) {
	w.WriteString(m.Name)
	w.WriteString(m.Help)
	w.WriteString(m.Params)
}

type RconCmdRemove struct {
	Name []byte
}

func (m *RconCmdRemove) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	m.Name, err = sanitizedString(u, warn)
	return err
}
func (m *RconCmdRemove) Encode(w *packer.Writer) { w.WriteString(m.Name) }

func sanitizedString(u *packer.Unpacker, warn *protoerr.Warnings) ([]byte, error) {
	s, err := u.ReadString()
	if err != nil {
		return nil, err
	}
	return packer.Sanitize(warn, s)
}
