package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	d := Default()
	assert.Equal(t, 0.0, d.NetworkLossRate)
	assert.Equal(t, 120*time.Second, d.ProgressTimeout)
	assert.Equal(t, 10*time.Second, d.ConnectionTimeout)
	assert.Equal(t, 5*time.Second, d.KeepaliveInterval)
	assert.Equal(t, 32, d.SnapshotRetention)
	assert.Equal(t, 1400, d.NetworkMTU)
	assert.Equal(t, 256, d.MaxChunksPerPacket)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("TTNETGO_NETWORK_LOSS_RATE", "0.25")
	t.Setenv("TTNETGO_SNAPSHOT_RETENTION", "64")
	t.Setenv("TTNETGO_PROGRESS_TIMEOUT", "30")

	c := Load()
	assert.Equal(t, 0.25, c.NetworkLossRate)
	assert.Equal(t, 64, c.SnapshotRetention)
	assert.Equal(t, 30*time.Second, c.ProgressTimeout)
	assert.Equal(t, Default().NetworkMTU, c.NetworkMTU)
}

func TestLoadKeepsDefaultOnUnparsableValue(t *testing.T) {
	t.Setenv("TTNETGO_NETWORK_MTU", "not-a-number")

	c := Load()
	assert.Equal(t, Default().NetworkMTU, c.NetworkMTU)
}
