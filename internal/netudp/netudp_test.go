package netudp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/IrtazaS/kryptofon/internal/pdu"
	"github.com/IrtazaS/kryptofon/internal/symmetric"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	cipher, err := symmetric.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer cipher.Close()

	a, err := Bind("127.0.0.1", 42000, 42050, nil)
	if err != nil {
		t.Fatalf("Bind a: %v", err)
	}
	defer a.Close()
	a.SetCipher(cipher)

	b, err := Bind("127.0.0.1", 42000, 42050, nil)
	if err != nil {
		t.Fatalf("Bind b: %v", err)
	}
	defer b.Close()
	b.SetCipher(cipher)

	received := make(chan pdu.PDU, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx, func(src *net.UDPAddr, frame pdu.PDU) {
		received <- frame
	})

	frame := pdu.PDU{
		SourceCall: pdu.SourceCallNumber,
		DestCall:   pdu.DestCallNumber,
		Timestamp:  12345,
		OutSeq:     1,
		InSeq:      0,
		Type:       pdu.Voice,
		Subclass:   pdu.SubclassALAW,
		Payload:    []byte("some encoded samples"),
	}
	if err := a.Send(b.LocalAddr(), frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if got.Timestamp != frame.Timestamp || got.OutSeq != frame.OutSeq || string(got.Payload) != string(frame.Payload) {
			t.Fatalf("received frame = %+v, want %+v", got, frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestSendReceiveRoundTripWithoutCipher(t *testing.T) {
	a, err := Bind("127.0.0.1", 42200, 42250, nil)
	if err != nil {
		t.Fatalf("Bind a: %v", err)
	}
	defer a.Close()

	b, err := Bind("127.0.0.1", 42200, 42250, nil)
	if err != nil {
		t.Fatalf("Bind b: %v", err)
	}
	defer b.Close()

	received := make(chan pdu.PDU, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx, func(src *net.UDPAddr, frame pdu.PDU) {
		received <- frame
	})

	frame := pdu.PDU{
		SourceCall: pdu.SourceCallNumber,
		DestCall:   pdu.DestCallNumber,
		Timestamp:  999,
		Type:       pdu.Voice,
		Subclass:   pdu.SubclassALAW,
		Payload:    []byte("plain samples"),
	}
	if err := a.Send(b.LocalAddr(), frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if string(got.Payload) != string(frame.Payload) {
			t.Fatalf("received frame = %+v, want %+v", got, frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for plaintext datagram")
	}
}

func TestRunDropsUndecryptableDatagrams(t *testing.T) {
	cipherA, err := symmetric.Generate()
	if err != nil {
		t.Fatalf("Generate A: %v", err)
	}
	defer cipherA.Close()
	cipherB, err := symmetric.Generate()
	if err != nil {
		t.Fatalf("Generate B: %v", err)
	}
	defer cipherB.Close()

	a, err := Bind("127.0.0.1", 42100, 42150, nil)
	if err != nil {
		t.Fatalf("Bind a: %v", err)
	}
	defer a.Close()
	a.SetCipher(cipherA)

	b, err := Bind("127.0.0.1", 42100, 42150, nil)
	if err != nil {
		t.Fatalf("Bind b: %v", err)
	}
	defer b.Close()
	b.SetCipher(cipherB)

	received := make(chan pdu.PDU, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx, func(src *net.UDPAddr, frame pdu.PDU) {
		received <- frame
	})

	frame := pdu.PDU{SourceCall: pdu.SourceCallNumber, DestCall: pdu.DestCallNumber, Payload: []byte("x")}
	if err := a.Send(b.LocalAddr(), frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		t.Fatalf("expected datagram to be dropped, got %+v", got)
	case <-time.After(300 * time.Millisecond):
	}
}
