package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttnetgo/internal/packer"
	"ttnetgo/protocol/gamemsg"
	"ttnetgo/protocol/msgid"
	"ttnetgo/protocol/sysmsg"
	"ttnetgo/protoerr"
)

func TestSelectDialect(t *testing.T) {
	assert.Equal(t, Vanilla05, Select([]byte("0.5.0")))
	assert.Equal(t, Vanilla06, Select([]byte("0.6.4")))
	assert.Equal(t, Vanilla07, Select([]byte("0.7.5")))
	assert.Equal(t, DDNet, Select([]byte("0.6 +ddnet")))
	assert.Equal(t, Vanilla07, Select([]byte("nonsense")))
}

func TestDecodeSystemMessage(t *testing.T) {
	id := msgid.Ordinal(sysmsg.IDConReady, msgid.ClassSystem)
	w := packer.NewWriter()
	msgid.Write(w, id)

	u := packer.NewUnpacker(w.Bytes())
	var warn protoerr.Warnings
	decoded, err := Decode(Vanilla06, u, &warn)
	require.NoError(t, err)
	_, ok := decoded.SystemMsg.(*sysmsg.ConReady)
	assert.True(t, ok)
}

func TestDecodeGameMessage(t *testing.T) {
	id := msgid.Ordinal(gamemsg.IDSvMotd, msgid.ClassGame)
	w := packer.NewWriter()
	msgid.Write(w, id)
	(&gamemsg.SvMotd{Message: []byte("hi")}).Encode(w)

	u := packer.NewUnpacker(w.Bytes())
	var warn protoerr.Warnings
	decoded, err := Decode(Vanilla06, u, &warn)
	require.NoError(t, err)
	motd, ok := decoded.GameMsg.(*gamemsg.SvMotd)
	require.True(t, ok)
	assert.Equal(t, "hi", string(motd.Message))
}

func TestDecodeAppliesDialectSchemaToSvChat(t *testing.T) {
	id := msgid.Ordinal(gamemsg.IDSvChat, msgid.ClassGame)
	w := packer.NewWriter()
	msgid.Write(w, id)
	(&gamemsg.SvChat{Schema: gamemsg.Schema07, Mode: gamemsg.ChatModeWhisper, ClientID: 1, TargetID: 2, Message: []byte("hi")}).Encode(w)

	u := packer.NewUnpacker(w.Bytes())
	var warn protoerr.Warnings
	decoded, err := Decode(Vanilla07, u, &warn)
	require.NoError(t, err)
	chat, ok := decoded.GameMsg.(*gamemsg.SvChat)
	require.True(t, ok)
	assert.Equal(t, gamemsg.ChatModeWhisper, chat.Mode)
	assert.Equal(t, int32(2), chat.TargetID)
}

func TestDecodeUUIDExtension(t *testing.T) {
	id := msgid.UUIDOf(sysmsg.UUIDPingEx)
	w := packer.NewWriter()
	msgid.Write(w, id)
	(&sysmsg.PingEx{ID: sysmsg.UUIDPingEx}).Encode(w)

	u := packer.NewUnpacker(w.Bytes())
	var warn protoerr.Warnings
	decoded, err := Decode(DDNet, u, &warn)
	require.NoError(t, err)
	_, ok := decoded.SystemMsg.(*sysmsg.PingEx)
	assert.True(t, ok)
}
