// Package audiocodec implements the sample codecs used between the
// 16-bit linear PCM audio device and the wire: A-law, µ-law (ITU-T G.711
// companding), and a LIN16 passthrough.
package audiocodec

import "github.com/IrtazaS/kryptofon/internal/pdu"

// Codec converts between 16-bit little-endian linear PCM and a one-byte-
// per-sample wire encoding.
type Codec interface {
	// Subclass identifies this codec in the PDU header.
	Subclass() pdu.Subclass

	// EncodeFromPCM converts a 16-bit LE PCM buffer into the wire
	// encoding, returning one output byte per input sample (two PCM
	// bytes).
	EncodeFromPCM(pcm []byte) []byte

	// DecodeToPCM converts wire-encoded samples back into 16-bit LE PCM,
	// two PCM bytes per input byte.
	DecodeToPCM(wire []byte) []byte
}

// ForSubclass returns the Codec implementing the given PDU subclass.
func ForSubclass(s pdu.Subclass) Codec {
	switch s {
	case pdu.SubclassALAW:
		return ALaw{}
	case pdu.SubclassULAW:
		return ULaw{}
	default:
		return LIN16{}
	}
}

// LIN16 is the identity codec: the wire encoding is the PCM bytes
// themselves, unchanged.
type LIN16 struct{}

func (LIN16) Subclass() pdu.Subclass { return pdu.SubclassLIN16 }

func (LIN16) EncodeFromPCM(pcm []byte) []byte {
	out := make([]byte, len(pcm))
	copy(out, pcm)
	return out
}

func (LIN16) DecodeToPCM(wire []byte) []byte {
	out := make([]byte, len(wire))
	copy(out, wire)
	return out
}

func pcmSampleAt(pcm []byte, i int) int16 {
	return int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
}

func putPCMSample(pcm []byte, i int, sample int16) {
	pcm[2*i] = byte(uint16(sample))
	pcm[2*i+1] = byte(uint16(sample) >> 8)
}
