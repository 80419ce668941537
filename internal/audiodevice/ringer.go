package audiodevice

import (
	"context"
	"math"
	"time"
)

// ringEnvelopeHz and ringToneHz compose the local ring indication: a
// 420Hz tone amplitude-modulated by a 25Hz envelope, at -12 dBFS.
// ringOnFrames of every ringPeriodFrames are voiced; the rest are
// silence, giving the familiar ring/pause cadence.
const (
	ringEnvelopeHz   = 25.0
	ringToneHz       = 420.0
	ringAmplitude    = math.MaxInt16 / 4 // -12 dBFS
	ringOnFrames     = 40
	ringPeriodFrames = 120
)

// StartRinging begins writing the local ring tone directly to the output
// device, bypassing the de-jitter ring, until StopRinging is called or
// ctx is cancelled.
func (d *Device) StartRinging(ctx context.Context) {
	d.ringing.Lock()
	d.ringEnabled = true
	d.ringing.Unlock()

	go func() {
		t := d.clk.NewTicker(FrameIntervalMS * time.Millisecond)
		defer t.Stop()

		var sampleIndex, frameIndex int
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				d.ringing.Lock()
				enabled := d.ringEnabled
				d.ringing.Unlock()
				if !enabled {
					return
				}
				var frame []byte
				if frameIndex%ringPeriodFrames < ringOnFrames {
					frame = ringToneFrame(sampleIndex)
				} else {
					frame = make([]byte, FrameBytes)
				}
				sampleIndex += samplesPerFrame
				frameIndex++
				if err := d.WriteDirectly(frame); err != nil {
					d.logger.Warn("audiodevice: ring tone write failed", "error", err)
					return
				}
			}
		}
	}()
}

// StopRinging halts the ring-tone generator.
func (d *Device) StopRinging() {
	d.ringing.Lock()
	d.ringEnabled = false
	d.ringing.Unlock()
}

func ringToneFrame(startSample int) []byte {
	out := make([]byte, FrameBytes)
	for i := 0; i < samplesPerFrame; i++ {
		t := float64(startSample+i) / SampleRate
		envelope := math.Sin(2 * math.Pi * ringEnvelopeHz * t)
		tone := math.Sin(2 * math.Pi * ringToneHz * t)
		v := envelope * tone * ringAmplitude
		putPCMSampleLocal(out, i, int16(v))
	}
	return out
}

func putPCMSampleLocal(pcm []byte, i int, sample int16) {
	pcm[2*i] = byte(uint16(sample))
	pcm[2*i+1] = byte(uint16(sample) >> 8)
}
