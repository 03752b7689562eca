// Package metrics exposes a prometheus.Collector over the event loop's
// per-peer traffic counters, grounded on
// runZeroInc-sockstats/pkg/exporter.TCPInfoCollector's Describe/Collect
// pair over a mutex-guarded map — here keyed by peer address rather
// than net.Conn, since ttnetgo's peers are UDP sessions, not
// long-lived connections with an fd to poll.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// peerStats accumulates one peer's counters between Collect scrapes.
type peerStats struct {
	packetsIn, packetsOut uint64
	bytesIn, bytesOut     uint64
	chunksResent          uint64
	snapshotsResynced     uint64
	disconnectReason      string
	disconnected          bool
}

// Collector is a passive tap the event loop feeds after every
// ingress/egress cycle; it never blocks or mutates loop state.
type Collector struct {
	mu    sync.Mutex
	peers map[string]*peerStats

	packetsIn         *prometheus.Desc
	packetsOut        *prometheus.Desc
	bytesIn           *prometheus.Desc
	bytesOut          *prometheus.Desc
	chunksResent      *prometheus.Desc
	snapshotsResynced *prometheus.Desc
	disconnects       *prometheus.Desc
}

// New builds a Collector with the given constant labels (e.g.
// instance/build metadata) applied to every metric.
func New(constLabels prometheus.Labels) *Collector {
	const ns = "ttnetgo"
	labels := []string{"peer"}
	return &Collector{
		peers: make(map[string]*peerStats),
		packetsIn: prometheus.NewDesc(ns+"_packets_in_total",
			"UDP datagrams received from a peer.", labels, constLabels),
		packetsOut: prometheus.NewDesc(ns+"_packets_out_total",
			"UDP datagrams sent to a peer.", labels, constLabels),
		bytesIn: prometheus.NewDesc(ns+"_bytes_in_total",
			"Bytes received from a peer.", labels, constLabels),
		bytesOut: prometheus.NewDesc(ns+"_bytes_out_total",
			"Bytes sent to a peer.", labels, constLabels),
		chunksResent: prometheus.NewDesc(ns+"_chunks_resent_total",
			"Vital chunks retransmitted to a peer.", labels, constLabels),
		snapshotsResynced: prometheus.NewDesc(ns+"_snapshots_resynced_total",
			"Times a peer's snapshot manager requested a resync.", labels, constLabels),
		disconnects: prometheus.NewDesc(ns+"_disconnects_total",
			"Peer disconnects, labeled by reason.", []string{"peer", "reason"}, constLabels),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.packetsIn
	descs <- c.packetsOut
	descs <- c.bytesIn
	descs <- c.bytesOut
	descs <- c.chunksResent
	descs <- c.snapshotsResynced
	descs <- c.disconnects
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for peer, s := range c.peers {
		ch <- prometheus.MustNewConstMetric(c.packetsIn, prometheus.CounterValue, float64(s.packetsIn), peer)
		ch <- prometheus.MustNewConstMetric(c.packetsOut, prometheus.CounterValue, float64(s.packetsOut), peer)
		ch <- prometheus.MustNewConstMetric(c.bytesIn, prometheus.CounterValue, float64(s.bytesIn), peer)
		ch <- prometheus.MustNewConstMetric(c.bytesOut, prometheus.CounterValue, float64(s.bytesOut), peer)
		ch <- prometheus.MustNewConstMetric(c.chunksResent, prometheus.CounterValue, float64(s.chunksResent), peer)
		ch <- prometheus.MustNewConstMetric(c.snapshotsResynced, prometheus.CounterValue, float64(s.snapshotsResynced), peer)
		if s.disconnected {
			ch <- prometheus.MustNewConstMetric(c.disconnects, prometheus.CounterValue, 1, peer, s.disconnectReason)
		}
	}
}

func (c *Collector) stats(peer string) *peerStats {
	s, ok := c.peers[peer]
	if !ok {
		s = &peerStats{}
		c.peers[peer] = s
	}
	return s
}

// RecordIn accounts one inbound datagram of n bytes from peer.
func (c *Collector) RecordIn(peer string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats(peer)
	s.packetsIn++
	s.bytesIn += uint64(n)
}

// RecordOut accounts one outbound datagram of n bytes to peer.
func (c *Collector) RecordOut(peer string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats(peer)
	s.packetsOut++
	s.bytesOut += uint64(n)
}

// RecordResend counts a vital chunk retransmission to peer.
func (c *Collector) RecordResend(peer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats(peer).chunksResent++
}

// RecordResync counts a snapshot manager resync request for peer.
func (c *Collector) RecordResync(peer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats(peer).snapshotsResynced++
}

// RecordDisconnect marks peer disconnected with reason. Its counters
// stay in every Collect scrape until Remove drops them.
func (c *Collector) RecordDisconnect(peer, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats(peer)
	s.disconnected = true
	s.disconnectReason = reason
}

// Remove drops peer's counters entirely, once its final disconnect
// metric has been scraped.
func (c *Collector) Remove(peer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.peers, peer)
}
