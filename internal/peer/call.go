// Package peer implements the remote peer (inbound PDU queue and worker)
// and the call context (sequence numbers, established state) bound to it
// for the lifetime of one call.
package peer

import (
	"sync"

	"github.com/IrtazaS/kryptofon/internal/clock"
)

// CallContext tracks per-call sequencing and lifecycle state. There is at
// most one CallContext per process at a time.
type CallContext struct {
	mu sync.Mutex

	outSeq uint8
	inSeq  uint8

	startTimestamp uint32
	established    bool
	firstVoiceSeen bool
}

// NewCallContext creates a call context whose timeline starts at the
// given clock time, expressed as the millisecond timestamp convention
// used throughout the audio pipeline.
func NewCallContext(clk clock.Clock) *CallContext {
	return &CallContext{startTimestamp: uint32(clk.Now().UnixMilli())}
}

// NextOutSeq returns the next outbound sequence number and advances the
// counter, wrapping mod 256.
func (c *CallContext) NextOutSeq() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.outSeq
	c.outSeq++
	return seq
}

// CurrentInSeq returns the inbound sequence number this call currently
// expects next, for stamping into outgoing PDU headers.
func (c *CallContext) CurrentInSeq() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inSeq
}

// AcceptInbound reports whether a received PDU's outbound sequence number
// matches what this call expects, advancing the expectation if so.
// Frames that do not match are dropped by the caller.
func (c *CallContext) AcceptInbound(receivedOutSeq uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if receivedOutSeq != c.inSeq {
		return false
	}
	c.inSeq++
	return true
}

// SetEstablished transitions the call's established flag.
func (c *CallContext) SetEstablished(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.established = v
}

// Established reports whether the call has completed signaling and is
// exchanging media.
func (c *CallContext) Established() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.established
}

// MarkFirstVoiceReceived records that a voice PDU has arrived on this
// call and reports whether this is the first one seen (used to stop
// local ringback on first inbound audio).
func (c *CallContext) MarkFirstVoiceReceived() (wasFirst bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firstVoiceSeen {
		return false
	}
	c.firstVoiceSeen = true
	return true
}

// StartTimestamp returns the millisecond timestamp this call began at.
func (c *CallContext) StartTimestamp() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTimestamp
}
