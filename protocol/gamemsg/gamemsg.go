// Package gamemsg implements the Game message partition: gameplay-
// facing messages such as chat, the message-of-the-day, vote
// lifecycle, and tuning parameters.
//
// Grounded on spec.md §4.E's Game-class message list and the same
// schema-driven per-message struct shape as protocol/sysmsg, decoded
// through internal/packer's validators. Messages whose wire shape
// actually differs across dialects (SvChat, per
// original_source/gamenet/{teeworlds-0.5,teeworlds-0.7,ddnet}/src/msg/game.rs)
// take a Schema selecting which shape to use; everything else is
// dialect-invariant and ignores it.
package gamemsg

import (
	"ttnetgo/internal/packer"
	"ttnetgo/protoerr"
)

// Schema selects which per-dialect wire encoding a dialect-varying
// message uses. Several dialects share the same Game partition message
// ids but disagree on field shapes.
type Schema int

const (
	// Schema05 matches teeworlds-0.5/src/msg/game.rs: a bool team flag.
	Schema05 Schema = iota
	// Schema06DDNet matches gamenet/src/msg/game.rs, shared by vanilla
	// 0.6 and DDNet: a three-way team int (spectators/red/blue).
	Schema06DDNet
	// Schema07 matches teeworlds-0.7/src/msg/game.rs: an explicit chat
	// mode plus a whisper target instead of a team scope.
	Schema07
)

// Chat team/mode constants, per gamenet/src/msg/game.rs and
// teeworlds-0.7/src/msg/game.rs's enums::Chat.
const (
	TeamSpectators int32 = -1
	TeamRed        int32 = 0
	TeamBlue       int32 = 1

	MaxClients05 int32 = 16

	ChatModeAll     int32 = 0
	ChatModeTeam    int32 = 1
	ChatModeWhisper int32 = 2
)

const (
	IDSvMotd           int32 = 1
	IDSvChat           int32 = 2
	IDClCallVote       int32 = 3
	IDSvVoteSet        int32 = 4
	IDSvVoteStatus     int32 = 5
	IDSvTuneParams     int32 = 6
	IDClSetTeam        int32 = 7
	IDClStartInfo      int32 = 8
	IDSvReadyToEnter   int32 = 9
	IDSvVoteClearOptions int32 = 10
	IDSvVoteOptionListAdd int32 = 11
	IDSvVoteOptionAdd  int32 = 12
	IDSvVoteOptionRemove int32 = 13
)

// Message is implemented by every game message struct.
type Message interface {
	Decode(u *packer.Unpacker, warn *protoerr.Warnings) error
	Encode(w *packer.Writer)
}

// SvMotd carries the message-of-the-day shown on connect.
type SvMotd struct {
	Message []byte
}

func (m *SvMotd) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	s, err := u.ReadString()
	if err != nil {
		return err
	}
	m.Message, err = packer.Sanitize(warn, s)
	return err
}
func (m *SvMotd) Encode(w *packer.Writer) { w.WriteString(m.Message) }

// SvChat is one chat line. Its wire shape differs by dialect: 0.5
// packs a bool team flag, 0.6/DDNet pack a three-way team int
// (spectators/red/blue), and 0.7 drops team scoping in favor of an
// explicit chat mode plus a whisper target. Schema records which shape
// this instance decodes/encodes as; Team is meaningful only under
// Schema05/Schema06DDNet, Mode/TargetID only under Schema07.
type SvChat struct {
	Schema   Schema
	Team     int32
	Mode     int32
	ClientID int32
	TargetID int32
	Message  []byte
}

func (m *SvChat) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	switch m.Schema {
	case Schema07:
		mode, err := u.ReadInt(warn)
		if err != nil {
			return err
		}
		if m.Mode, err = packer.InRange(mode, ChatModeAll, ChatModeWhisper); err != nil {
			return err
		}
		if m.ClientID, err = u.ReadInt(warn); err != nil {
			return err
		}
		if _, err = packer.InRange(m.ClientID, -1, 63); err != nil {
			return err
		}
		if m.TargetID, err = u.ReadInt(warn); err != nil {
			return err
		}
		if _, err = packer.InRange(m.TargetID, -1, 63); err != nil {
			return err
		}
	case Schema05:
		team, err := u.ReadInt(warn)
		if err != nil {
			return err
		}
		b, err := packer.ToBool(team)
		if err != nil {
			return err
		}
		if b {
			m.Team = 1
		} else {
			m.Team = 0
		}
		if m.ClientID, err = u.ReadInt(warn); err != nil {
			return err
		}
		if _, err = packer.InRange(m.ClientID, -1, MaxClients05-1); err != nil {
			return err
		}
	default: // Schema06DDNet
		team, err := u.ReadInt(warn)
		if err != nil {
			return err
		}
		if m.Team, err = packer.InRange(team, TeamSpectators, TeamBlue); err != nil {
			return err
		}
		if m.ClientID, err = u.ReadInt(warn); err != nil {
			return err
		}
		if _, err = packer.InRange(m.ClientID, -1, MaxClients05-1); err != nil {
			return err
		}
	}
	s, err := u.ReadString()
	if err != nil {
		return err
	}
	m.Message, err = packer.Sanitize(warn, s)
	return err
}

func (m *SvChat) Encode(w *packer.Writer) {
	switch m.Schema {
	case Schema07:
		w.WriteInt(m.Mode)
		w.WriteInt(m.ClientID)
		w.WriteInt(m.TargetID)
	default:
		w.WriteInt(m.Team)
		w.WriteInt(m.ClientID)
	}
	w.WriteString(m.Message)
}

// ClCallVote is a client's request to start a kick/spectate/option
// vote.
type ClCallVote struct {
	Type   []byte
	Value  []byte
	Reason []byte
}

func (m *ClCallVote) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.Type, err = sanitizedString(u, warn); err != nil {
		return err
	}
	if m.Value, err = sanitizedString(u, warn); err != nil {
		return err
	}
	if m.Reason, err = sanitizedString(u, warn); err != nil {
		return err
	}
	return nil
}
func (m *ClCallVote) Encode(w *packer.Writer) {
	w.WriteString(m.Type)
	w.WriteString(m.Value)
	w.WriteString(m.Reason)
}

// SvVoteSet announces an active vote and its timeout; a nonzero
// timeout drives the VoteSet -> VoteEnd transition of spec.md's
// session FSM, and a timeout of zero ends the vote (VoteEnd ->
// VoteResult).
type SvVoteSet struct {
	Timeout     int32
	Description []byte
	Reason      []byte
}

func (m *SvVoteSet) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.Timeout, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.Description, err = sanitizedString(u, warn); err != nil {
		return err
	}
	if m.Reason, err = sanitizedString(u, warn); err != nil {
		return err
	}
	return nil
}
func (m *SvVoteSet) Encode(w *packer.Writer) {
	w.WriteInt(m.Timeout)
	w.WriteString(m.Description)
	w.WriteString(m.Reason)
}

// SvVoteStatus reports the running tally while a vote is active.
type SvVoteStatus struct {
	Yes, No, Pass, Total int32
}

func (m *SvVoteStatus) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.Yes, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.No, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.Pass, err = u.ReadInt(warn); err != nil {
		return err
	}
	if m.Total, err = u.ReadInt(warn); err != nil {
		return err
	}
	return nil
}
func (m *SvVoteStatus) Encode(w *packer.Writer) {
	w.WriteInt(m.Yes)
	w.WriteInt(m.No)
	w.WriteInt(m.Pass)
	w.WriteInt(m.Total)
}

// SvTuneParams carries the full tuning-parameter vector as fixed-point
// ints (the wire form of the gameplay's floating tuning values).
type SvTuneParams struct {
	Params []int32
}

func (m *SvTuneParams) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	m.Params = nil
	for u.Remaining() > 0 {
		v, err := u.ReadInt(warn)
		if err != nil {
			return err
		}
		m.Params = append(m.Params, v)
	}
	return nil
}
func (m *SvTuneParams) Encode(w *packer.Writer) {
	for _, v := range m.Params {
		w.WriteInt(v)
	}
}

// ClSetTeam requests joining a team (typically spectator, red, or blue).
type ClSetTeam struct {
	Team int32
}

func (m *ClSetTeam) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	m.Team, err = u.ReadInt(warn)
	return err
}
func (m *ClSetTeam) Encode(w *packer.Writer) { w.WriteInt(m.Team) }

// ClStartInfo carries the player's chosen name and skin.
type ClStartInfo struct {
	Name []byte
	Skin []byte
}

func (m *ClStartInfo) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.Name, err = sanitizedString(u, warn); err != nil {
		return err
	}
	if m.Skin, err = sanitizedString(u, warn); err != nil {
		return err
	}
	return nil
}
func (m *ClStartInfo) Encode(w *packer.Writer) {
	w.WriteString(m.Name)
	w.WriteString(m.Skin)
}

// SvReadyToEnter signals the server finished loading this client into
// the world; the session FSM's ReadyToEnter -> VoteSet transition
// fires on receiving it. Carries no payload.
type SvReadyToEnter struct{}

func (m *SvReadyToEnter) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error { return nil }
func (m *SvReadyToEnter) Encode(w *packer.Writer)                                 {}

// SvVoteClearOptions empties the client's known vote-option set; it
// precedes a fresh SvVoteOptionListAdd/SvVoteOptionAdd burst.
type SvVoteClearOptions struct{}

func (m *SvVoteClearOptions) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error { return nil }
func (m *SvVoteClearOptions) Encode(w *packer.Writer)                                 {}

// SvVoteOptionListAdd carries up to 15 vote-option descriptions in one
// message, the batched form used when the server's option list is
// large.
type SvVoteOptionListAdd struct {
	NumOptions  int32
	Description [][]byte
}

func (m *SvVoteOptionListAdd) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	if m.NumOptions, err = u.ReadInt(warn); err != nil {
		return err
	}
	if _, err := packer.InRange(m.NumOptions, 0, 15); err != nil {
		return err
	}
	m.Description = make([][]byte, m.NumOptions)
	for i := range m.Description {
		if m.Description[i], err = sanitizedString(u, warn); err != nil {
			return err
		}
	}
	return nil
}
func (m *SvVoteOptionListAdd) Encode(w *packer.Writer) {
	w.WriteInt(m.NumOptions)
	for _, d := range m.Description {
		w.WriteString(d)
	}
}

// SvVoteOptionAdd/SvVoteOptionRemove add or retract one vote option.
type SvVoteOptionAdd struct {
	Description []byte
}

func (m *SvVoteOptionAdd) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	m.Description, err = sanitizedString(u, warn)
	return err
}
func (m *SvVoteOptionAdd) Encode(w *packer.Writer) { w.WriteString(m.Description) }

type SvVoteOptionRemove struct {
	Description []byte
}

func (m *SvVoteOptionRemove) Decode(u *packer.Unpacker, warn *protoerr.Warnings) error {
	var err error
	m.Description, err = sanitizedString(u, warn)
	return err
}
func (m *SvVoteOptionRemove) Encode(w *packer.Writer) { w.WriteString(m.Description) }

func sanitizedString(u *packer.Unpacker, warn *protoerr.Warnings) ([]byte, error) {
	s, err := u.ReadString()
	if err != nil {
		return nil, err
	}
	return packer.Sanitize(warn, s)
}

var registry = map[int32]func(Schema) Message{
	IDSvMotd:       func(Schema) Message { return &SvMotd{} },
	IDSvChat:       func(s Schema) Message { return &SvChat{Schema: s} },
	IDClCallVote:   func(Schema) Message { return &ClCallVote{} },
	IDSvVoteSet:    func(Schema) Message { return &SvVoteSet{} },
	IDSvVoteStatus: func(Schema) Message { return &SvVoteStatus{} },
	IDSvTuneParams: func(Schema) Message { return &SvTuneParams{} },
	IDClSetTeam:    func(Schema) Message { return &ClSetTeam{} },
	IDClStartInfo:  func(Schema) Message { return &ClStartInfo{} },
	IDSvReadyToEnter: func(Schema) Message { return &SvReadyToEnter{} },
	IDSvVoteClearOptions:  func(Schema) Message { return &SvVoteClearOptions{} },
	IDSvVoteOptionListAdd: func(Schema) Message { return &SvVoteOptionListAdd{} },
	IDSvVoteOptionAdd:     func(Schema) Message { return &SvVoteOptionAdd{} },
	IDSvVoteOptionRemove:  func(Schema) Message { return &SvVoteOptionRemove{} },
}

// Decode dispatches on a numeric game-message id, applying schema to
// whichever messages vary their wire shape by dialect.
func Decode(schema Schema, id int32, u *packer.Unpacker, warn *protoerr.Warnings) (Message, error) {
	factory, ok := registry[id]
	if !ok {
		return nil, protoerr.New(protoerr.KindWireFormat, "gamemsg_decode", protoerr.ErrUnknownID)
	}
	msg := factory(schema)
	if err := msg.Decode(u, warn); err != nil {
		return nil, err
	}
	return msg, nil
}
