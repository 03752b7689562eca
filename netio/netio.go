// Package netio is the thin UDP socket adapter spec.md §1 places out
// of CORE scope but still names as a required external collaborator
// (component J): bind, send, receive, with optional fake packet loss
// for testing the chunk layer's resend behavior, and a one-time
// receive-buffer bump at bind time.
//
// Grounded on the teacher's server.go Start/listen (net.ListenUDP then
// a ReadFromUDP loop copying into a fresh buffer per datagram) and
// runZeroInc-sockstats/pkg/exporter's use of github.com/higebu/netfd
// to reach the raw fd of a net.Conn.
package netio

import (
	"math/rand"
	"net"
	"syscall"

	"github.com/higebu/netfd"
)

// MaxDatagram is the single receive scratch buffer size, per spec.md
// §5's "one 4 KiB scratch" buffer budget.
const MaxDatagram = 4096

// rcvBufBytes is the SO_RCVBUF target raised once at bind time so a
// burst of snapshot parts doesn't overflow the kernel's default queue.
const rcvBufBytes = 1 << 20

// Packet is one received datagram: its payload (valid only until the
// next Recv call reuses the scratch buffer) and sender address.
type Packet struct {
	Data []byte
	Addr *net.UDPAddr
}

// Socket wraps a bound UDP connection with fake-loss injection.
type Socket struct {
	conn     *net.UDPConn
	lossRate float64
	scratch  [MaxDatagram]byte
}

// Listen binds addr (e.g. ":8303") and raises SO_RCVBUF once via the
// raw fd netfd exposes. lossRate in [0,1] drops that fraction of
// outbound sends, simulating network loss for resend-path testing;
// it never drops inbound traffic, since that's the kernel's call, not
// this adapter's.
func Listen(addr string, lossRate float64) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	fd := netfd.GetFdFromConn(conn)
	if fd >= 0 {
		_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, rcvBufBytes)
	}
	return &Socket{conn: conn, lossRate: lossRate}, nil
}

// LocalAddr reports the bound local address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Recv blocks for the next datagram. The returned Packet.Data aliases
// the socket's scratch buffer and must be copied before the next Recv
// call if it needs to outlive it.
func (s *Socket) Recv() (Packet, error) {
	n, addr, err := s.conn.ReadFromUDP(s.scratch[:])
	if err != nil {
		return Packet{}, err
	}
	return Packet{Data: s.scratch[:n], Addr: addr}, nil
}

// Send writes data to addr, silently dropping it when the fake-loss
// roll fires. The boolean return reports whether the datagram was
// actually written, for metrics bookkeeping.
func (s *Socket) Send(data []byte, addr *net.UDPAddr) (bool, error) {
	if s.lossRate > 0 && rand.Float64() < s.lossRate {
		return false, nil
	}
	_, err := s.conn.WriteToUDP(data, addr)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the underlying socket.
func (s *Socket) Close() error { return s.conn.Close() }
