package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordInOutAccumulatesPerPeer(t *testing.T) {
	c := New(nil)
	c.RecordIn("1.2.3.4:8303", 100)
	c.RecordIn("1.2.3.4:8303", 50)
	c.RecordOut("1.2.3.4:8303", 20)

	assert.Equal(t, 1, testutil.CollectAndCount(c, "ttnetgo_packets_in_total"))
	s := c.peers["1.2.3.4:8303"]
	require.NotNil(t, s)
	assert.Equal(t, uint64(2), s.packetsIn)
	assert.Equal(t, uint64(150), s.bytesIn)
	assert.Equal(t, uint64(1), s.packetsOut)
	assert.Equal(t, uint64(20), s.bytesOut)
}

func TestDescribeEmitsEveryMetric(t *testing.T) {
	c := New(prometheus.Labels{"build": "test"})
	descs := make(chan *prometheus.Desc, 16)
	c.Describe(descs)
	close(descs)

	n := 0
	for range descs {
		n++
	}
	assert.Equal(t, 7, n)
}

func TestRecordDisconnectSurfacesReasonLabel(t *testing.T) {
	c := New(nil)
	c.RecordDisconnect("peer", "timeout")

	require.Contains(t, c.peers, "peer")
	assert.True(t, c.peers["peer"].disconnected)
	assert.Equal(t, "timeout", c.peers["peer"].disconnectReason)
}

func TestRecordResendAndResyncAccumulatePerPeer(t *testing.T) {
	c := New(nil)
	c.RecordResend("1.2.3.4:8303")
	c.RecordResend("1.2.3.4:8303")
	c.RecordResync("1.2.3.4:8303")

	s := c.peers["1.2.3.4:8303"]
	require.NotNil(t, s)
	assert.Equal(t, uint64(2), s.chunksResent)
	assert.Equal(t, uint64(1), s.snapshotsResynced)
	assert.Equal(t, 1, testutil.CollectAndCount(c, "ttnetgo_chunks_resent_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "ttnetgo_snapshots_resynced_total"))
}

func TestRemoveDropsPeerCounters(t *testing.T) {
	c := New(nil)
	c.RecordIn("peer", 1)
	c.Remove("peer")

	_, ok := c.peers["peer"]
	assert.False(t, ok)
}
