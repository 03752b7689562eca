// Package eventloop is the single-threaded cooperative loop of
// spec.md §5: it polls the socket adapter with a bounded sleep,
// drives per-peer ticks, feeds inbound datagrams through the chunk
// layer and message catalog into each peer's session FSM, and
// flushes queued outbound traffic after every ingress cycle.
//
// Grounded on original_source/downloader/src/main.rs's Main::run
// (tick-then-receive-then-flush loop), generalized from its
// generic-library Net/Peers types to a flat map of *peer values — this
// module owns connection-establishment and chunk/reliability wiring
// directly rather than through a separate net crate, per spec.md §9's
// "session polymorphism" note applied one level up: no subclassing,
// a single peer struct covers every connection stage.
package eventloop

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"ttnetgo/internal/packer"
	"ttnetgo/netio"
	"ttnetgo/pkg/config"
	"ttnetgo/pkg/logger"
	"ttnetgo/pkg/metrics"
	"ttnetgo/protocol/chunk"
	"ttnetgo/protocol/dialect"
	"ttnetgo/protocol/packet"
	"ttnetgo/protoerr"
	"ttnetgo/session"
)

// peerStage tracks the connect handshake separately from the session
// FSM: a peer isn't handed to Session.Ready until the transport
// actually reports it connected, per spec.md §4.I's first transition.
type peerStage int

const (
	stageConnecting peerStage = iota
	stageConnected
)

type peer struct {
	addr    *net.UDPAddr
	token   packet.Token
	stage   peerStage
	reli    *chunk.Reliability
	session *session.Session
	dialect dialect.Dialect

	lastConnectSent time.Time
	lastResyncCount uint64
}

// Loop drives every configured peer to completion (session disconnect
// or local error) and then returns; it owns the socket for its entire
// lifetime.
type Loop struct {
	sock    *netio.Socket
	cfg     config.Config
	metrics *metrics.Collector
	version []byte
	mapsDir, downloadingDir string

	peers map[string]*peer
}

// New builds a Loop bound to addr ("" picks an ephemeral local port,
// the usual case for an outbound-only client) with one peer entry per
// target server address.
func New(addr string, targets []*net.UDPAddr, cfg config.Config, version []byte, mapsDir, downloadingDir string, mc *metrics.Collector) (*Loop, error) {
	sock, err := netio.Listen(addr, cfg.NetworkLossRate)
	if err != nil {
		return nil, err
	}
	l := &Loop{
		sock:            sock,
		cfg:             cfg,
		metrics:         mc,
		version:         version,
		mapsDir:         mapsDir,
		downloadingDir:  downloadingDir,
		peers:           make(map[string]*peer, len(targets)),
	}
	for _, t := range targets {
		l.peers[t.String()] = &peer{
			addr:  t,
			token: randomToken(),
			reli:  chunk.NewReliability(time.Now()),
		}
	}
	return l, nil
}

func randomToken() packet.Token {
	var t packet.Token
	for i := range t {
		t[i] = byte(rand.Intn(256))
	}
	if t == packet.TokenNone {
		t[0] = 1
	}
	return t
}

// Close releases the underlying socket.
func (l *Loop) Close() error { return l.sock.Close() }

// Run polls until every peer has disconnected or the caller-supplied
// deadline (zero means no deadline) is reached.
func (l *Loop) Run(deadline time.Time) error {
	decompressBuf := make([]byte, packet.MaxPacketSize)

	for len(l.peers) > 0 {
		now := time.Now()
		if !deadline.IsZero() && !now.Before(deadline) {
			return fmt.Errorf("eventloop: deadline exceeded with %d peer(s) still connected", len(l.peers))
		}

		for key, p := range l.peers {
			if l.tickPeer(now, p) {
				l.disconnect(key, p, "timeout or protocol violation")
			}
		}

		l.sendHandshakes(now)

		pkt, err := l.recvWithTimeout(50 * time.Millisecond)
		if err != nil {
			return err
		}
		if pkt.Data != nil {
			l.handleDatagram(now, pkt, decompressBuf)
		}
	}
	return nil
}

// recvWithTimeout polls the blocking socket read against a deadline by
// racing it on a goroutine; this is the bounded-sleep poll point of
// spec.md §5 given netio.Socket has no built-in read deadline.
func (l *Loop) recvWithTimeout(d time.Duration) (netio.Packet, error) {
	type result struct {
		pkt netio.Packet
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pkt, err := l.sock.Recv()
		ch <- result{pkt, err}
	}()
	select {
	case r := <-ch:
		return r.pkt, r.err
	case <-time.After(d):
		return netio.Packet{}, nil
	}
}

func (l *Loop) tickPeer(now time.Time, p *peer) (disconnect bool) {
	if p.stage != stageConnected || p.session == nil {
		return false
	}
	if p.reli.TimedOut(now, l.cfg.ConnectionTimeout) {
		return true
	}
	if p.session.Tick(now) {
		return true
	}
	if p.reli.NeedsKeepalive(now, l.cfg.KeepaliveInterval) {
		l.sendPacket(p, packet.WriteControl(p.reli.AckRx(), p.token, packet.ControlKeepAlive, nil))
	}
	l.flush(p)
	return false
}

func (l *Loop) sendHandshakes(now time.Time) {
	for _, p := range l.peers {
		if p.stage != stageConnecting {
			continue
		}
		if now.Sub(p.lastConnectSent) < time.Second {
			continue
		}
		p.lastConnectSent = now
		l.sendPacket(p, packet.WriteControl(0, packet.TokenNone, packet.ControlConnect, p.token[:]))
	}
}

func (l *Loop) handleDatagram(now time.Time, dgram netio.Packet, decompressBuf []byte) {
	key := dgram.Addr.String()
	p, ok := l.peers[key]
	if !ok {
		return
	}
	if l.metrics != nil {
		l.metrics.RecordIn(key, len(dgram.Data))
	}
	p.reli.Touch(now, false)

	var warn protoerr.Warnings
	res, err := packet.Read(&warn, dgram.Data, decompressBuf)
	if err != nil {
		logger.Warn("packet read error from %s: %v", key, err)
		return
	}
	if res.IsConnless {
		return
	}

	switch res.Connected.Type {
	case packet.TypeControl:
		l.handleControl(key, p, res.Connected)
	case packet.TypeChunks:
		l.handleChunks(now, p, res.Connected)
	}
}

func (l *Loop) handleControl(key string, p *peer, c packet.Connected) {
	switch c.Control.Kind {
	case packet.ControlAccept:
		if p.stage != stageConnecting {
			return
		}
		p.stage = stageConnected
		p.dialect = dialect.Select(l.version)
		p.session = session.New(p.dialect, l.version, l.mapsDir, l.downloadingDir)
		p.session.Ready(time.Now())
		logger.Info("connected to %s", key)
	case packet.ControlClose:
		logger.Info("%s closed: %s", key, string(c.Control.Reason))
		delete(l.peers, key)
	}
}

func (l *Loop) handleChunks(now time.Time, p *peer, c packet.Connected) {
	if p.stage != stageConnected || p.session == nil {
		return
	}
	p.reli.Ack(c.Ack)
	if c.RequestResend {
		for _, data := range p.reli.Resend() {
			l.sendPacket(p, data)
			if l.metrics != nil {
				l.metrics.RecordResend(p.addr.String())
			}
		}
	}

	var disconnect bool
	var chunksWarn protoerr.Warnings
	chunk.Iterate(&chunksWarn, c.Payload, c.NumChunks, func(ch chunk.Chunk) {
		if disconnect {
			return
		}
		if ch.Vital && !p.reli.Accept(ch.Seq) {
			return
		}
		var warn protoerr.Warnings
		u := packer.NewUnpacker(ch.Data)
		decoded, err := dialect.Decode(p.dialect, u, &warn)
		if err != nil {
			logger.Warn("message decode error: %v", err)
			return
		}
		if p.session.HandleMessage(now, decoded, &warn) {
			disconnect = true
		}
	})
	for _, w := range chunksWarn.Items() {
		logger.Debug("chunk warning: %s", w.String())
	}
	if disconnect {
		l.disconnect(p.addr.String(), p, "session FSM fatal")
		return
	}
	l.recordResyncs(p)
	l.flush(p)
}

// recordResyncs diffs the session's lifetime resync counter against the
// last value observed for p and reports the delta, so a resync the
// session FSM requested during this ingress cycle shows up in metrics
// exactly once.
func (l *Loop) recordResyncs(p *peer) {
	if l.metrics == nil {
		return
	}
	count := p.session.ResyncCount()
	for ; p.lastResyncCount < count; p.lastResyncCount++ {
		l.metrics.RecordResync(p.addr.String())
	}
}

// flush drains the session's queued outbound messages into vital
// chunks, packs them into as many packets as needed, and sends them,
// per spec.md §5's "outbound flush per peer after every ingress" rule.
func (l *Loop) flush(p *peer) {
	msgs := p.session.TakeOutbound()
	if len(msgs) == 0 {
		return
	}
	var payload []byte
	n := 0
	for _, m := range msgs {
		seq := p.reli.QueueVital(m)
		payload = chunk.WriteChunk(payload, m, true, seq, false)
		n++
		if n >= l.cfg.MaxChunksPerPacket {
			l.sendChunkPacket(p, payload, n)
			payload = nil
			n = 0
		}
	}
	if n > 0 {
		l.sendChunkPacket(p, payload, n)
	}
}

func (l *Loop) sendChunkPacket(p *peer, payload []byte, numChunks int) {
	h := packet.Header{Ack: p.reli.AckRx(), NumChunks: uint8(numChunks), Token: p.token}
	l.sendPacket(p, packet.WriteHeader(h, payload))
}

func (l *Loop) sendPacket(p *peer, data []byte) {
	sent, err := l.sock.Send(data, p.addr)
	if err != nil {
		logger.Warn("send to %s failed: %v", p.addr, err)
		return
	}
	if sent {
		p.reli.Touch(time.Now(), true)
		if l.metrics != nil {
			l.metrics.RecordOut(p.addr.String(), len(data))
		}
	}
}

func (l *Loop) disconnect(key string, p *peer, reason string) {
	l.sendPacket(p, packet.WriteControl(p.reli.AckRx(), p.token, packet.ControlClose, []byte("downloader")))
	if l.metrics != nil {
		l.metrics.RecordDisconnect(key, reason)
	}
	logger.Warn("disconnecting %s: %s", key, reason)
	delete(l.peers, key)
}
