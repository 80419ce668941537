package main

import (
	"context"
	"time"

	"github.com/IrtazaS/kryptofon/internal/audiodevice"
)

// silentHardware is a placeholder audiodevice.Hardware backend: it
// generates silence on capture, paced at the real frame interval, and
// discards every frame handed to playback. The actual PCM hardware/driver
// layer is out of scope (see internal/audiodevice's package doc); a real
// deployment swaps this for a concrete sound backend behind the same
// interface.
type silentHardware struct {
	seq uint32
}

func newSilentHardware() *silentHardware {
	return &silentHardware{}
}

func (h *silentHardware) ReadFrame(ctx context.Context) ([]byte, uint32, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-time.After(audiodevice.FrameIntervalMS * time.Millisecond):
	}
	h.seq++
	return make([]byte, audiodevice.FrameBytes), h.seq * audiodevice.FrameIntervalMS, nil
}

func (h *silentHardware) WriteFrame(pcm []byte) error {
	return nil
}

func (h *silentHardware) Close() error {
	return nil
}
