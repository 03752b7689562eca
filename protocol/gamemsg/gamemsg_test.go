package gamemsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttnetgo/internal/packer"
	"ttnetgo/protoerr"
)

func TestSvChatRoundTripSchema06DDNet(t *testing.T) {
	m := &SvChat{Schema: Schema06DDNet, Team: TeamRed, ClientID: 3, Message: []byte("hi")}
	w := packer.NewWriter()
	m.Encode(w)

	u := packer.NewUnpacker(w.Bytes())
	got := &SvChat{Schema: Schema06DDNet}
	require.NoError(t, got.Decode(u, nil))
	assert.Equal(t, m.Team, got.Team)
	assert.Equal(t, m.ClientID, got.ClientID)
	assert.Equal(t, m.Message, got.Message)
}

func TestSvChatRoundTripSchema05(t *testing.T) {
	m := &SvChat{Schema: Schema05, Team: 1, ClientID: 5, Message: []byte("hi")}
	w := packer.NewWriter()
	m.Encode(w)

	u := packer.NewUnpacker(w.Bytes())
	got := &SvChat{Schema: Schema05}
	require.NoError(t, got.Decode(u, nil))
	assert.Equal(t, m.Team, got.Team)
	assert.Equal(t, m.ClientID, got.ClientID)
	assert.Equal(t, m.Message, got.Message)
}

func TestSvChatRoundTripSchema07(t *testing.T) {
	m := &SvChat{Schema: Schema07, Mode: ChatModeWhisper, ClientID: 2, TargetID: 7, Message: []byte("psst")}
	w := packer.NewWriter()
	m.Encode(w)

	u := packer.NewUnpacker(w.Bytes())
	got := &SvChat{Schema: Schema07}
	require.NoError(t, got.Decode(u, nil))
	assert.Equal(t, m.Mode, got.Mode)
	assert.Equal(t, m.ClientID, got.ClientID)
	assert.Equal(t, m.TargetID, got.TargetID)
	assert.Equal(t, m.Message, got.Message)
}

func TestSvChatSchema07RejectsClientIDOutOfRange(t *testing.T) {
	w := packer.NewWriter()
	w.WriteInt(ChatModeAll)
	w.WriteInt(64)
	w.WriteInt(-1)
	w.WriteString([]byte("hi"))

	u := packer.NewUnpacker(w.Bytes())
	got := &SvChat{Schema: Schema07}
	require.Error(t, got.Decode(u, nil))
}

func TestSvTuneParamsRoundTrip(t *testing.T) {
	m := &SvTuneParams{Params: []int32{100, -50, 0, 99999}}
	w := packer.NewWriter()
	m.Encode(w)

	u := packer.NewUnpacker(w.Bytes())
	got := &SvTuneParams{}
	require.NoError(t, got.Decode(u, nil))
	assert.Equal(t, m.Params, got.Params)
}

func TestClCallVoteRoundTrip(t *testing.T) {
	m := &ClCallVote{Type: []byte("kick"), Value: []byte("3"), Reason: []byte("afk")}
	w := packer.NewWriter()
	m.Encode(w)

	u := packer.NewUnpacker(w.Bytes())
	got := &ClCallVote{}
	require.NoError(t, got.Decode(u, nil))
	assert.Equal(t, m.Type, got.Type)
	assert.Equal(t, m.Value, got.Value)
	assert.Equal(t, m.Reason, got.Reason)
}

func TestDecodeDispatch(t *testing.T) {
	m := &SvMotd{Message: []byte("welcome")}
	w := packer.NewWriter()
	m.Encode(w)

	u := packer.NewUnpacker(w.Bytes())
	var warn protoerr.Warnings
	got, err := Decode(Schema06DDNet, IDSvMotd, u, &warn)
	require.NoError(t, err)
	motd, ok := got.(*SvMotd)
	require.True(t, ok)
	assert.Equal(t, "welcome", string(motd.Message))
}

func TestDecodeUnknownID(t *testing.T) {
	u := packer.NewUnpacker(nil)
	_, err := Decode(Schema06DDNet, 999, u, nil)
	require.Error(t, err)
}

func TestDecodeAppliesSchemaToSvChat(t *testing.T) {
	m := &SvChat{Schema: Schema07, Mode: ChatModeTeam, ClientID: 1, TargetID: -1, Message: []byte("yo")}
	w := packer.NewWriter()
	m.Encode(w)

	u := packer.NewUnpacker(w.Bytes())
	got, err := Decode(Schema07, IDSvChat, u, nil)
	require.NoError(t, err)
	chat, ok := got.(*SvChat)
	require.True(t, ok)
	assert.Equal(t, ChatModeTeam, chat.Mode)
}
