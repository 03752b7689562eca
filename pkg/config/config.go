// Package config loads the recognized option set of spec.md §6 from
// environment variables, in the flat-struct-with-defaults style of the
// teacher's core/main.go loadConfig.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the event loop and session FSM consult.
type Config struct {
	NetworkLossRate    float64
	ProgressTimeout    time.Duration
	ConnectionTimeout  time.Duration
	KeepaliveInterval  time.Duration
	SnapshotRetention  int
	NetworkMTU         int
	MaxChunksPerPacket int
	VoteSetTimeout     time.Duration
	VoteEndTimeout     time.Duration
}

// Load reads TTNETGO_-prefixed environment variables over the
// documented defaults; any variable that's absent or unparsable keeps
// its default rather than failing the load.
func Load() Config {
	c := Default()
	c.NetworkLossRate = envFloat("TTNETGO_NETWORK_LOSS_RATE", c.NetworkLossRate)
	c.ProgressTimeout = envSeconds("TTNETGO_PROGRESS_TIMEOUT", c.ProgressTimeout)
	c.ConnectionTimeout = envSeconds("TTNETGO_CONNECTION_TIMEOUT", c.ConnectionTimeout)
	c.KeepaliveInterval = envSeconds("TTNETGO_KEEPALIVE_INTERVAL", c.KeepaliveInterval)
	c.SnapshotRetention = envInt("TTNETGO_SNAPSHOT_RETENTION", c.SnapshotRetention)
	c.NetworkMTU = envInt("TTNETGO_NETWORK_MTU", c.NetworkMTU)
	c.MaxChunksPerPacket = envInt("TTNETGO_MAX_CHUNKS_PER_PACKET", c.MaxChunksPerPacket)
	c.VoteSetTimeout = envSeconds("TTNETGO_VOTE_SET_TIMEOUT", c.VoteSetTimeout)
	c.VoteEndTimeout = envSeconds("TTNETGO_VOTE_END_TIMEOUT", c.VoteEndTimeout)
	return c
}

// Default returns the option set with spec.md §6's documented defaults.
func Default() Config {
	return Config{
		NetworkLossRate:    0.0,
		ProgressTimeout:    120 * time.Second,
		ConnectionTimeout:  10 * time.Second,
		KeepaliveInterval:  5 * time.Second,
		SnapshotRetention:  32,
		NetworkMTU:         1400,
		MaxChunksPerPacket: 256,
		VoteSetTimeout:     5 * time.Second,
		VoteEndTimeout:     3 * time.Second,
	}
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envSeconds(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}
