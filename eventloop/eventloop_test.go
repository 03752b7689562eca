package eventloop

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttnetgo/pkg/config"
	"ttnetgo/pkg/metrics"
	"ttnetgo/protocol/dialect"
	"ttnetgo/protocol/packet"
	"ttnetgo/protocol/sysmsg"
	"ttnetgo/protoerr"
	"ttnetgo/session"
)

// fakeServer opens a plain loopback UDP socket. The test answers the
// connect handshake through it directly with WriteControl, bypassing
// netio so the test only exercises Loop's own dispatch.
func fakeServer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRunCompletesHandshakeAndReturnsOnClose(t *testing.T) {
	server := fakeServer(t)
	target := server.LocalAddr().(*net.UDPAddr)

	loop, err := New("127.0.0.1:0", []*net.UDPAddr{target}, config.Default(), []byte("0.6 +ddnet"), t.TempDir(), t.TempDir(), nil)
	require.NoError(t, err)
	defer loop.Close()

	done := make(chan error, 1)
	go func() { done <- loop.Run(time.Now().Add(2 * time.Second)) }()

	buf := make([]byte, packet.MaxPacketSize)
	server.SetReadDeadline(time.Now().Add(time.Second))
	n, clientAddr, err := server.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	_, err = server.WriteToUDP(packet.WriteControl(0, packet.TokenNone, packet.ControlAccept, nil), clientAddr)
	require.NoError(t, err)

	server.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = server.ReadFromUDP(buf)
	require.NoError(t, err)

	_, err = server.WriteToUDP(packet.WriteControl(0, packet.TokenNone, packet.ControlClose, []byte("bye")), clientAddr)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after server closed the only peer")
	}
}

func TestRecordResyncsReportsDeltaOnlyOnce(t *testing.T) {
	s := session.New(dialect.DDNet, []byte("0.6 +ddnet"), t.TempDir(), t.TempDir())
	s.Ready(time.Now())
	s.TakeOutbound()

	var warn protoerr.Warnings
	fatal := s.HandleMessage(time.Now(), dialect.Decoded{SystemMsg: &sysmsg.SnapEmpty{Tick: 100, DeltaTick: 50}}, &warn)
	require.False(t, fatal)
	require.Equal(t, uint64(1), s.ResyncCount())

	mc := metrics.New(nil)
	l := &Loop{metrics: mc}
	p := &peer{addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}, session: s}

	l.recordResyncs(p)
	l.recordResyncs(p)

	assert.Equal(t, uint64(1), p.lastResyncCount)
}

func TestRandomTokenNeverReturnsTokenNone(t *testing.T) {
	for i := 0; i < 1000; i++ {
		tok := randomToken()
		require.NotEqual(t, packet.TokenNone, tok)
	}
}
