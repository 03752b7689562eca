package serverbrowse

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttnetgo/internal/packer"
)

func buildInfoV7(t *testing.T) []byte {
	t.Helper()
	w := packer.NewWriter()
	w.WriteInt(1) // token
	w.WriteString([]byte("0.7.5"))
	w.WriteString([]byte("my server"))
	w.WriteString([]byte("my.host"))
	w.WriteString([]byte("dm1"))
	w.WriteString([]byte("dm"))
	w.WriteInt(0) // flags
	w.WriteInt(8) // skill_level
	w.WriteInt(1) // num_players
	w.WriteInt(2) // max_players
	w.WriteInt(1) // num_clients
	w.WriteInt(2) // max_clients
	// one client
	w.WriteString([]byte("alice"))
	w.WriteString([]byte("clan"))
	w.WriteInt(-1) // country
	w.WriteInt(42) // score
	w.WriteInt(1)  // is_player
	return w.Bytes()
}

func TestParseInfo6V7(t *testing.T) {
	data := buildInfoV7(t)
	info, ok := ParseInfo6(data, false)
	require.True(t, ok)
	assert.Equal(t, V7, info.InfoVersion)
	assert.Equal(t, int32(1), info.Token)
	assert.Equal(t, "0.7.5", info.Version)
	assert.Equal(t, "my server", info.Name)
	require.NotNil(t, info.Hostname)
	assert.Equal(t, "my.host", *info.Hostname)
	assert.Equal(t, "dm1", info.Map)
	require.Len(t, info.Clients, 1)
	assert.Equal(t, "alice", info.Clients[0].Name)
	assert.Equal(t, int32(42), info.Clients[0].Score)
}

func buildInfoV5(t *testing.T) []byte {
	t.Helper()
	w := packer.NewWriter()
	w.WriteString([]byte(fmt.Sprintf("%d", 7))) // token
	w.WriteString([]byte("0.5.0"))
	w.WriteString([]byte("legacy server"))
	w.WriteString([]byte("dm1"))
	w.WriteString([]byte("dm"))
	w.WriteString([]byte(fmt.Sprintf("%d", 0))) // flags
	w.WriteString([]byte(fmt.Sprintf("%d", 3))) // progression
	w.WriteString([]byte(fmt.Sprintf("%d", 1))) // num_players
	w.WriteString([]byte(fmt.Sprintf("%d", 8))) // max_players
	w.WriteString([]byte("bob"))
	w.WriteString([]byte(fmt.Sprintf("%d", 5))) // score
	return w.Bytes()
}

func TestParseInfo5(t *testing.T) {
	data := buildInfoV5(t)
	info, ok := ParseInfo5(data)
	require.True(t, ok)
	assert.Equal(t, V5, info.InfoVersion)
	assert.Equal(t, int32(7), info.Token)
	assert.Nil(t, info.Hostname)
	require.NotNil(t, info.Progression)
	assert.Equal(t, int32(3), *info.Progression)
	require.Len(t, info.Clients, 1)
	assert.Equal(t, "bob", info.Clients[0].Name)
	assert.Equal(t, int32(-1), info.Clients[0].Country)
	assert.True(t, info.Clients[0].IsPlayer)
}

func TestParseResponseDispatch(t *testing.T) {
	data := append(append([]byte{}, Count[:]...), 0x01, 0x02)
	resp, ok := ParseResponse(data)
	require.True(t, ok)
	require.NotNil(t, resp.Count)
	assert.Equal(t, uint16(0x0102), *resp.Count)
}

func TestParseResponseShortPacket(t *testing.T) {
	_, ok := ParseResponse([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestBuildRequestInfo(t *testing.T) {
	req := BuildRequestInfo(RequestInfo6, 0x5)
	require.Len(t, req, HeaderLen+1)
	assert.Equal(t, byte(0x5), req[HeaderLen])
}

func TestSortClients(t *testing.T) {
	s := &ServerInfo{Clients: []PlayerInfo{{Name: "zoe"}, {Name: "alice"}}}
	s.SortClients()
	assert.Equal(t, "alice", s.Clients[0].Name)
	assert.Equal(t, "zoe", s.Clients[1].Name)
}
