package peer

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/IrtazaS/kryptofon/internal/clock"
	"github.com/IrtazaS/kryptofon/internal/pdu"
)

// inboxCapacity bounds the remote peer's inbound PDU queue. At 20ms
// frames this holds one full second of backlog before the worker is
// considered stuck.
const inboxCapacity = 50

// RemotePeer is the single active remote party: its network address, an
// inbound-PDU queue drained by a dedicated worker task, and at most one
// bound call context.
type RemotePeer struct {
	addr        *net.UDPAddr
	displayName string
	clk         clock.Clock

	mu          sync.RWMutex
	call        *CallContext
	lastReceive time.Time

	inbox chan pdu.PDU
}

// New creates a remote peer for addr, known to the user as displayName.
func New(addr *net.UDPAddr, displayName string, clk clock.Clock) *RemotePeer {
	return &RemotePeer{
		addr:        addr,
		displayName: displayName,
		clk:         clk,
		lastReceive: clk.Now(),
		inbox:       make(chan pdu.PDU, inboxCapacity),
	}
}

// Addr returns the peer's UDP address.
func (p *RemotePeer) Addr() *net.UDPAddr { return p.addr }

// DisplayName returns the peer's signaling user id.
func (p *RemotePeer) DisplayName() string { return p.displayName }

// BindCall attaches a call context to this peer, replacing any previous
// one. A peer owns at most one call at a time.
func (p *RemotePeer) BindCall(call *CallContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.call = call
}

// Call returns the peer's currently bound call context, or nil.
func (p *RemotePeer) Call() *CallContext {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.call
}

// Enqueue hands a parsed PDU to the peer's inbound worker and marks the
// peer as recently seen. If the worker has fallen behind and the queue is
// full, the PDU is dropped (treated as a transient I/O condition).
func (p *RemotePeer) Enqueue(frame pdu.PDU) {
	p.mu.Lock()
	p.lastReceive = p.clk.Now()
	p.mu.Unlock()

	select {
	case p.inbox <- frame:
	default:
	}
}

// IdleFor returns how long it has been since the last datagram was
// received from this peer.
func (p *RemotePeer) IdleFor() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clk.Now().Sub(p.lastReceive)
}

// IsDead reports whether the peer has been silent for longer than
// maxIdle.
func (p *RemotePeer) IsDead(maxIdle time.Duration) bool {
	return p.IdleFor() > maxIdle
}

// Run drains the inbound queue until ctx is cancelled, dispatching each
// PDU whose call numbers match this endpoint's fixed pair to onVoicePDU
// after the call context's sequence filter accepts it. Mismatched call
// numbers and frames outside the expected sequence are dropped silently.
func (p *RemotePeer) Run(ctx context.Context, onVoicePDU func(frame pdu.PDU)) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-p.inbox:
			if !frame.MatchesLocalCall() {
				continue
			}
			call := p.Call()
			if call == nil {
				continue
			}
			if !call.AcceptInbound(frame.OutSeq) {
				continue
			}
			if frame.Type == pdu.Voice {
				onVoicePDU(frame)
			}
		}
	}
}
