package audiocodec

import "github.com/IrtazaS/kryptofon/internal/pdu"

// ULaw implements ITU-T G.711 µ-law companding between 16-bit linear PCM
// and an 8-bit logarithmic wire encoding.
type ULaw struct{}

func (ULaw) Subclass() pdu.Subclass { return pdu.SubclassULAW }

func (ULaw) EncodeFromPCM(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = linearToULaw(pcmSampleAt(pcm, i))
	}
	return out
}

func (ULaw) DecodeToPCM(wire []byte) []byte {
	out := make([]byte, len(wire)*2)
	for i, b := range wire {
		putPCMSample(out, i, ulawToLinear(b))
	}
	return out
}

const (
	ulawBias = 0x84
	ulawClip = 8159
)

var ulawSegmentEnd = [8]int32{0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF}

func linearToULaw(sample int16) byte {
	v := int32(sample) >> 2

	var mask byte
	if v < 0 {
		v = -v
		mask = 0x7F
	} else {
		mask = 0xFF
	}
	if v > ulawClip {
		v = ulawClip
	}
	v += ulawBias >> 2

	seg := 8
	for i, end := range ulawSegmentEnd {
		if v <= end {
			seg = i
			break
		}
	}

	if seg >= 8 {
		return 0x7F ^ mask
	}
	uval := byte(seg<<4) | byte((v>>(uint(seg)+1))&0x0F)
	return uval ^ mask
}

func ulawToLinear(b byte) int16 {
	u := ^b
	t := (int32(u&0x0F) << 3) + ulawBias
	t <<= uint(u&0x70) >> 4
	if u&0x80 != 0 {
		return int16(ulawBias - t)
	}
	return int16(t - ulawBias)
}
