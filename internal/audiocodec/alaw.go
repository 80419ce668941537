package audiocodec

import "github.com/IrtazaS/kryptofon/internal/pdu"

// ALaw implements ITU-T G.711 A-law companding between 16-bit linear PCM
// and an 8-bit logarithmic wire encoding.
type ALaw struct{}

func (ALaw) Subclass() pdu.Subclass { return pdu.SubclassALAW }

func (ALaw) EncodeFromPCM(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = linearToALaw(pcmSampleAt(pcm, i))
	}
	return out
}

func (ALaw) DecodeToPCM(wire []byte) []byte {
	out := make([]byte, len(wire)*2)
	for i, b := range wire {
		putPCMSample(out, i, alawToLinear(b))
	}
	return out
}

var alawSegmentEnd = [8]int32{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

func linearToALaw(sample int16) byte {
	v := int32(sample) >> 3

	var mask byte
	if v >= 0 {
		mask = 0xD5
	} else {
		mask = 0x55
		v = -v - 1
	}

	seg := 8
	for i, end := range alawSegmentEnd {
		if v <= end {
			seg = i
			break
		}
	}

	if seg >= 8 {
		return 0x7F ^ mask
	}

	aval := byte(seg << 4)
	if seg < 2 {
		aval |= byte((v >> 1) & 0x0F)
	} else {
		aval |= byte((v >> uint(seg)) & 0x0F)
	}
	return aval ^ mask
}

func alawToLinear(b byte) int16 {
	a := b ^ 0x55
	t := int32(a&0x0F) << 4
	seg := (a & 0x70) >> 4

	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= uint(seg - 1)
	}

	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}
