// Package pdu implements the 12-byte protocol data unit header used to
// frame real-time voice media over the datagram channel.
package pdu

import (
	"fmt"

	"github.com/IrtazaS/kryptofon/internal/octet"
)

// Type identifies the PDU's payload kind.
type Type uint8

// Voice is the only PDU type this implementation emits or parses; other
// values are accepted (so a peer running a superset protocol does not
// desync the connection) but never dispatched.
const Voice Type = 0x02

// Subclass identifies the audio codec carried by a Voice PDU.
type Subclass uint8

const (
	SubclassLIN16 Subclass = 0x01
	SubclassALAW  Subclass = 0x02
	SubclassULAW  Subclass = 0x03
)

// SourceCallNumber and DestCallNumber are the fixed call numbers used by
// every PDU this implementation sends — the protocol supports at most one
// call per peer, so a single constant pair suffices.
const (
	SourceCallNumber uint16 = 0x3141
	DestCallNumber   uint16 = 0x5926
)

const (
	headerSize = 12
	fBit       = uint16(0x8000)
	rBit       = uint16(0x8000)
)

// PDU is a parsed protocol data unit.
type PDU struct {
	SourceCall uint16
	DestCall   uint16
	Timestamp  uint32
	OutSeq     uint8
	InSeq      uint8
	Type       Type
	Subclass   Subclass
	Payload    []byte
}

// Encode serializes a PDU to its 12-byte-header-plus-payload wire form.
// The F bit is set on the source call number; the R bit is left clear on
// the destination call number, matching the original's send convention.
func Encode(p PDU) []byte {
	buf := octet.Allocate(headerSize + len(p.Payload))
	buf.WriteUint16(p.SourceCall | fBit)
	buf.WriteUint16(p.DestCall &^ rBit)
	buf.WriteUint32(p.Timestamp)
	buf.WriteUint8(p.OutSeq)
	buf.WriteUint8(p.InSeq)
	buf.WriteUint8(uint8(p.Type))
	buf.WriteUint8(uint8(p.Subclass))
	buf.WriteBytes(p.Payload)
	return buf.Bytes()
}

// Parse decodes a received datagram's plaintext into a PDU, stripping the
// F/R flag bits from the call numbers.
func Parse(data []byte) (PDU, error) {
	if len(data) < headerSize {
		return PDU{}, fmt.Errorf("pdu: short frame: %d bytes, need at least %d", len(data), headerSize)
	}

	buf := octet.Wrap(data)
	srcRaw, _ := buf.ReadUint16()
	dstRaw, _ := buf.ReadUint16()
	ts, _ := buf.ReadUint32()
	outSeq, _ := buf.ReadUint8()
	inSeq, _ := buf.ReadUint8()
	typ, _ := buf.ReadUint8()
	subclass, _ := buf.ReadUint8()
	payload, err := buf.ReadBytes(buf.Remaining())
	if err != nil {
		return PDU{}, fmt.Errorf("pdu: read payload: %w", err)
	}

	return PDU{
		SourceCall: srcRaw &^ fBit,
		DestCall:   dstRaw &^ rBit,
		Timestamp:  ts,
		OutSeq:     outSeq,
		InSeq:      inSeq,
		Type:       Type(typ),
		Subclass:   subclass2(subclass),
		Payload:    payload,
	}, nil
}

func subclass2(v uint8) Subclass { return Subclass(v) }

// MatchesLocalCall reports whether the PDU's call numbers are the fixed
// pair this endpoint uses (source=SourceCallNumber,
// dest=DestCallNumber).
//
// A PDU this endpoint sends stamps SourceCall=SourceCallNumber,
// DestCall=DestCallNumber. The peer receiving it sees those same values
// on the wire (the call numbers are not swapped per-direction in this
// single-call-per-peer protocol) — so an inbound PDU is accepted iff its
// source/dest match exactly what this endpoint itself sends.
func (p PDU) MatchesLocalCall() bool {
	return p.SourceCall == SourceCallNumber && p.DestCall == DestCallNumber
}
