package chunk

import (
	"sync"
	"time"
)

// pending is one outbound vital chunk waiting for its sequence to be
// acked, mirroring the teacher's EncapsulatedPacket held in SendQueue
// until the peer's ack catches up to it.
type pending struct {
	seq  uint16
	data []byte
}

// Reliability tracks one peer's vital-chunk sequence state: the next
// sequence to assign on send, the highest ack observed from the peer,
// the next sequence expected on receive, and the resend buffer for
// chunks the peer hasn't acked yet. Grounded on the teacher's Session
// struct (MessageIndex/SequenceNumber counters, SendQueue/RecoveryQueue,
// mutex-guarded access).
type Reliability struct {
	mu sync.Mutex

	seqTx   uint16 // next vital sequence to assign on send
	ackRx   uint16 // highest sequence the peer has acked
	seqRx   uint16 // next vital sequence expected on receive
	pending []pending

	requestResend bool

	lastSend time.Time
	lastRecv time.Time
}

// NewReliability returns a fresh reliability tracker for a newly
// connected peer.
func NewReliability(now time.Time) *Reliability {
	return &Reliability{lastSend: now, lastRecv: now}
}

// QueueVital assigns the next sequence number to data and stores it in
// the resend buffer, returning the assigned sequence.
func (r *Reliability) QueueVital(data []byte) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.seqTx
	r.seqTx = (r.seqTx + 1) % SequenceModulus
	cp := make([]byte, len(data))
	copy(cp, data)
	r.pending = append(r.pending, pending{seq: seq, data: cp})
	return seq
}

// Ack records the peer's acked sequence and drops any resend entries
// at or before it.
func (r *Reliability) Ack(ack uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ackRx = ack
	kept := r.pending[:0]
	for _, p := range r.pending {
		if SeqLess(p.seq, ack) || p.seq == ack {
			continue
		}
		kept = append(kept, p)
	}
	r.pending = kept
}

// Resend returns the stored payload of every still-unacked vital chunk
// (the queued slices themselves, not copies), for re-inclusion in the
// next outbound packet.
func (r *Reliability) Resend() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]byte, len(r.pending))
	for i, p := range r.pending {
		out[i] = p.data
	}
	return out
}

// Accept processes one inbound vital sequence against seq_rx: it
// returns deliver=true and advances seq_rx if seq is exactly the
// expected next value; returns deliver=false (duplicate, silently
// dropped) if seq is behind; and sets RequestResend and returns
// deliver=false if seq is ahead of what's expected.
func (r *Reliability) Accept(seq uint16) (deliver bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case seq == r.seqRx:
		r.seqRx = (r.seqRx + 1) % SequenceModulus
		return true
	case SeqLess(seq, r.seqRx):
		return false
	default:
		r.requestResend = true
		return false
	}
}

// AckRx returns the current ack value to stamp on the next outbound
// packet header: the last vital sequence this peer has successfully
// delivered, i.e. one behind seq_rx.
func (r *Reliability) AckRx() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seqRx == 0 {
		return SequenceModulus - 1
	}
	return r.seqRx - 1
}

// TakeRequestResend returns and clears the pending request-resend flag.
func (r *Reliability) TakeRequestResend() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.requestResend
	r.requestResend = false
	return v
}

// Touch records that traffic (inbound or outbound) just occurred, for
// keepalive/timeout bookkeeping.
func (r *Reliability) Touch(now time.Time, outbound bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if outbound {
		r.lastSend = now
	} else {
		r.lastRecv = now
	}
}

// NeedsKeepalive reports whether it has been at least interval since
// the last outbound traffic.
func (r *Reliability) NeedsKeepalive(now time.Time, interval time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.Sub(r.lastSend) >= interval
}

// TimedOut reports whether it has been at least timeout since the last
// inbound traffic.
func (r *Reliability) TimedOut(now time.Time, timeout time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.Sub(r.lastRecv) >= timeout
}
