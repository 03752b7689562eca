package netio

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenSendRecvLoopback(t *testing.T) {
	server, err := Listen("127.0.0.1:0", 0)
	require.NoError(t, err)
	defer server.Close()

	client, err := Listen("127.0.0.1:0", 0)
	require.NoError(t, err)
	defer client.Close()

	sent, err := client.Send([]byte("hello"), server.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	assert.True(t, sent)

	pkt, err := server.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pkt.Data))
	assert.Equal(t, client.LocalAddr().String(), pkt.Addr.String())
}

func TestSendAlwaysDropsAtFullLossRate(t *testing.T) {
	sock, err := Listen("127.0.0.1:0", 1)
	require.NoError(t, err)
	defer sock.Close()

	other, err := Listen("127.0.0.1:0", 0)
	require.NoError(t, err)
	defer other.Close()

	for i := 0; i < 20; i++ {
		sent, err := sock.Send([]byte("x"), other.LocalAddr().(*net.UDPAddr))
		require.NoError(t, err)
		assert.False(t, sent)
	}
}

func TestSendNeverDropsAtZeroLossRate(t *testing.T) {
	sock, err := Listen("127.0.0.1:0", 0)
	require.NoError(t, err)
	defer sock.Close()

	other, err := Listen("127.0.0.1:0", 0)
	require.NoError(t, err)
	defer other.Close()

	for i := 0; i < 20; i++ {
		sent, err := sock.Send([]byte("x"), other.LocalAddr().(*net.UDPAddr))
		require.NoError(t, err)
		assert.True(t, sent)
	}
}
