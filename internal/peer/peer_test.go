package peer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/IrtazaS/kryptofon/internal/clock"
	"github.com/IrtazaS/kryptofon/internal/pdu"
)

func TestSequenceFilterDropsOutOfOrder(t *testing.T) {
	call := NewCallContext(clock.Real())

	if !call.AcceptInbound(0) {
		t.Fatal("expected seq 0 to be accepted first")
	}
	if call.AcceptInbound(0) {
		t.Fatal("expected repeated seq 0 to be rejected")
	}
	if !call.AcceptInbound(1) {
		t.Fatal("expected seq 1 to be accepted next")
	}
	if call.AcceptInbound(3) {
		t.Fatal("expected out-of-order seq 3 to be rejected")
	}
}

func TestRunDispatchesMatchingVoicePDUs(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}
	p := New(addr, "alice", clock.Real())
	call := NewCallContext(clock.Real())
	p.BindCall(call)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan pdu.PDU, 1)
	go p.Run(ctx, func(frame pdu.PDU) { received <- frame })

	good := pdu.PDU{SourceCall: pdu.SourceCallNumber, DestCall: pdu.DestCallNumber, Type: pdu.Voice, OutSeq: 0, Payload: []byte("x")}
	p.Enqueue(good)

	select {
	case got := <-received:
		if string(got.Payload) != "x" {
			t.Fatalf("payload = %q", got.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched PDU")
	}

	bad := pdu.PDU{SourceCall: 0x9999, DestCall: pdu.DestCallNumber, Type: pdu.Voice, OutSeq: 1, Payload: []byte("y")}
	p.Enqueue(bad)

	select {
	case got := <-received:
		t.Fatalf("unexpected dispatch of mismatched PDU: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIsDead(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}
	p := New(addr, "bob", fake)

	if p.IsDead(2500 * time.Millisecond) {
		t.Fatal("freshly created peer should not be dead")
	}
	fake.Advance(3 * time.Second)
	if !p.IsDead(2500 * time.Millisecond) {
		t.Fatal("peer silent for 3s should be dead at 2500ms threshold")
	}
}
