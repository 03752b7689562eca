// Manager ties the reassembly buffer, the retention ring, and delta
// application together into the per-tick algorithm of spec.md §4.F.
// Grounded on the reference's per-peer snapshot handling in
// original_source/snapshot/src/format.rs plus the Session mutex-guarded
// state pattern already used by protocol/chunk's Reliability.
package snapshot

import (
	"sync"

	"ttnetgo/protoerr"
)

// Retention is the retention window in ticks, per spec.md §6's
// snapshot_retention default: seal evicts sealed snapshots more than
// Retention ticks older than the latest sealed tick (the tick-0 seed
// is kept).
const Retention = 32

// pending accumulates one tick's Snap fragments until num_parts are all
// present.
type pending struct {
	tick     int32
	deltaTick int32
	numParts int32
	crc      int32
	parts    [][]byte
	have     int
}

// Manager is the per-peer snapshot state: the in-flight reassembly
// buffer and a ring of recently sealed snapshots.
type Manager struct {
	mu sync.Mutex

	schema TypeSchema

	cur *pending
	ring map[int32]*Snapshot

	ackTick int32
}

// NewManager builds a Manager seeded with an empty snapshot at tick 0,
// so a delta whose base tick (tick - delta_tick) is 0 resolves to an
// empty base. A keyframe (delta_tick == 0) whose tick is not in the
// ring is likewise applied against an empty snapshot.
func NewManager(schema TypeSchema) *Manager {
	m := &Manager{
		schema:  schema,
		ring:    make(map[int32]*Snapshot, Retention+1),
		ackTick: 0,
	}
	m.ring[0] = Empty()
	return m
}

// Resync is returned by FeedPart, FeedSingle and FeedEmpty when the
// base snapshot is missing, reassembly cannot proceed and the
// caller must ask the peer for a fresh keyframe.
type Resync struct {
	// AckTick is the last tick the manager can still vouch for.
	AckTick int32
}

// FeedPart accumulates one Snap fragment (step 1). tick identifies the
// in-progress reassembly; part/numParts/crc/deltaTick come from the
// wire message. Returns (nil, nil, nil) while still waiting for more
// parts.
func (m *Manager) FeedPart(tick, deltaTick, numParts, part, crc int32, data []byte, warn *protoerr.Warnings) (*Snapshot, *Resync, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tick < m.ackTick-Retention {
		warn.Warn("StaleTick", "")
		return nil, nil, nil
	}

	if m.cur == nil || m.cur.tick != tick {
		m.cur = &pending{
			tick:      tick,
			deltaTick: deltaTick,
			numParts:  numParts,
			crc:       crc,
			parts:     make([][]byte, numParts),
		}
	}
	if part < 0 || part >= m.cur.numParts {
		warn.Warn("ChunksUnknownData", "")
		return nil, nil, nil
	}
	if m.cur.parts[part] != nil {
		warn.Warn("DuplicatePart", "")
		return nil, nil, nil
	}
	m.cur.parts[part] = data
	m.cur.have++
	if m.cur.have < int(m.cur.numParts) {
		return nil, nil, nil
	}

	raw := make([]byte, 0, len(data)*int(m.cur.numParts))
	for _, p := range m.cur.parts {
		raw = append(raw, p...)
	}
	deltaTick = m.cur.deltaTick
	crc = m.cur.crc
	finishedTick := m.cur.tick
	m.cur = nil

	return m.applyDelta(finishedTick, deltaTick, crc, raw, warn)
}

// FeedSingle handles a one-part SnapSingle (step 1-2 skipped: the
// payload already arrived whole). SnapEmpty goes through FeedEmpty.
func (m *Manager) FeedSingle(tick, deltaTick, crc int32, data []byte, warn *protoerr.Warnings) (*Snapshot, *Resync, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyDelta(tick, deltaTick, crc, data, warn)
}

// FeedEmpty handles SnapEmpty: no state change, the snapshot at tick is
// a verbatim copy of the base.
func (m *Manager) FeedEmpty(tick, deltaTick int32, warn *protoerr.Warnings) (*Snapshot, *Resync, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if deltaTick > tick {
		return nil, nil, protoerr.New(protoerr.KindState, "snapshot_feed", protoerr.ErrMalformedDelta)
	}
	baseTick := tick - deltaTick
	base, ok := m.ring[baseTick]
	if !ok {
		if deltaTick != 0 {
			return nil, &Resync{AckTick: m.ackTick}, nil
		}
		base = Empty()
	}
	m.seal(tick, base)
	return base, nil, nil
}

// applyDelta runs steps 3-6 once a tick's raw delta bytes are fully
// assembled, regardless of whether they arrived in one part or many.
func (m *Manager) applyDelta(tick, deltaTick, crc int32, raw []byte, warn *protoerr.Warnings) (*Snapshot, *Resync, error) {
	if deltaTick > tick {
		return nil, nil, protoerr.New(protoerr.KindState, "snapshot_feed", protoerr.ErrMalformedDelta)
	}
	baseTick := tick - deltaTick
	base, ok := m.ring[baseTick]
	if !ok {
		if deltaTick != 0 {
			return nil, &Resync{AckTick: m.ackTick}, nil
		}
		base = Empty()
	}

	delta, err := DecodeDelta(raw, m.schema, warn)
	if err != nil {
		return nil, nil, err
	}

	next := Apply(base, delta, warn)
	if got := xorChecksum(next); got != crc {
		warn.Warn("CrcMismatch", "")
	}

	m.seal(tick, next)
	return next, nil, nil
}

// seal inserts snapshot under tick, advances ack_tick, and evicts
// entries fallen out of the retention window.
func (m *Manager) seal(tick int32, snap *Snapshot) {
	m.ring[tick] = snap
	if tick > m.ackTick {
		m.ackTick = tick
	}
	for t := range m.ring {
		if t != 0 && t < m.ackTick-Retention {
			delete(m.ring, t)
		}
	}
}

// AckTick reports the last successfully sealed tick.
func (m *Manager) AckTick() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ackTick
}

// At returns the sealed snapshot for tick, if still within the
// retention window.
func (m *Manager) At(tick int32) (*Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.ring[tick]
	return s, ok
}

// xorChecksum reproduces the reference's component-wise xor over every
// item's payload ints, in ascending key order.
func xorChecksum(s *Snapshot) int32 {
	var crc int32
	for _, it := range s.Items() {
		for _, v := range it.Data {
			crc ^= v
		}
	}
	return crc
}
