// Package audiodevice implements the real-time audio pipeline: capture,
// playback, the de-jitter ring, clock-skew compensation, packet-loss
// concealment, and the local ring-tone generator.
//
// The actual PCM hardware/driver layer is out of scope; Hardware is the abstraction boundary a concrete sound
// backend implements.
package audiodevice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IrtazaS/kryptofon/internal/clock"
)

// SampleRate is the fixed audio sample rate, 8kHz.
const SampleRate = 8000

// FrameIntervalMS is the duration of one audio frame in milliseconds.
const FrameIntervalMS = 20

// samplesPerFrame is the number of 16-bit samples in one FrameIntervalMS
// frame at SampleRate.
const samplesPerFrame = SampleRate * FrameIntervalMS / 1000

// FrameBytes is the size in bytes of one 16-bit mono PCM frame.
const FrameBytes = samplesPerFrame * 2

// FrameCount is the capture ring's depth.
const FrameCount = 10

// LLBS (low-latency buffer size) is the low-water mark used by the
// skew-compensation and concealment decisions.
const LLBS = 6

// playbackRingSize is the playback (de-jitter) ring's depth.
const playbackRingSize = 2 * FrameCount

// Hardware is the PCM device boundary: a concrete backend reads
// microphone frames and writes speaker frames. ReadFrame blocks until one
// FrameBytes-sized frame is available and returns it with the local
// device-clock timestamp (milliseconds) it was captured at. WriteFrame
// blocks until the frame has been accepted by the output device.
type Hardware interface {
	ReadFrame(ctx context.Context) (pcm []byte, timestampMS uint32, err error)
	WriteFrame(pcm []byte) error
	Close() error
}

type ringSlot struct {
	data    []byte
	ts      uint32
	written bool
}

type captureFrame struct {
	data []byte
	ts   uint32
}

// Device drives one call's audio pipeline: a capture path feeding the
// voice sender, and a playback path fed by inbound voice PDUs.
type Device struct {
	hw     Hardware
	clk    clock.Clock
	logger *slog.Logger

	captureQueue chan captureFrame
	lastCaptureTs struct {
		sync.Mutex
		value uint32
		set   bool
	}
	lastOutTs uint32 // last captured-frame timestamp handed out of ReadWithTimestamp

	playMu      sync.Mutex
	playRing    [playbackRingSize]ringSlot
	jitBufPut   int
	jitBufGet   int
	havePrev    bool
	prevFrame   []byte
	primed      bool
	haveDelta0  bool
	delta0      int64
	skewAccumMS int64

	ringing     sync.Mutex
	ringEnabled bool
}

// silenceFrame is returned by ReadWithTimestamp when the capture ring has
// not yet filled past its half-full gate.
var silenceFrame = make([]byte, FrameBytes)

// New creates a Device driving hw.
func New(hw Hardware, clk clock.Clock, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		hw:           hw,
		clk:          clk,
		logger:       logger,
		captureQueue: make(chan captureFrame, FrameCount),
	}
}

// RunCapture reads frames from the hardware and feeds the capture ring
// until ctx is cancelled. Frames whose timestamp does not advance
// relative to the previous one are dropped.
func (d *Device) RunCapture(ctx context.Context) {
	var lastTs uint32
	haveLast := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pcm, ts, err := d.hw.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("audiodevice: capture read failed", "error", err)
			continue
		}

		if haveLast && ts <= lastTs {
			continue
		}
		lastTs = ts
		haveLast = true

		d.lastCaptureTs.Lock()
		d.lastCaptureTs.value = ts
		d.lastCaptureTs.set = true
		d.lastCaptureTs.Unlock()

		select {
		case d.captureQueue <- captureFrame{data: pcm, ts: ts}:
		default:
			// Ring full: drop this newest frame and keep the queued
			// ones (a transient I/O hiccup rather than a structural error).
		}
	}
}

// ReadWithTimestamp returns the next captured frame and its timestamp.
// If the capture ring has not filled past its half-full gate, it returns
// a frame of silence stamped at the current clock time instead, so the
// send cadence never stalls waiting on the microphone.
func (d *Device) ReadWithTimestamp() ([]byte, uint32) {
	if len(d.captureQueue) >= FrameCount/2 {
		frame := <-d.captureQueue
		d.lastOutTs = frame.ts
		return frame.data, frame.ts
	}
	return silenceFrame, uint32(d.clk.Now().UnixMilli())
}

// LastCaptureTimestamp returns the most recent local microphone capture
// timestamp, used by the playback loop's clock-skew computation. The
// second return value is false if no frame has been captured yet.
func (d *Device) LastCaptureTimestamp() (uint32, bool) {
	d.lastCaptureTs.Lock()
	defer d.lastCaptureTs.Unlock()
	return d.lastCaptureTs.value, d.lastCaptureTs.set
}

// WriteBuffered enqueues a decoded inbound voice frame into the playback
// ring at the slot its timestamp maps to. If the write cursor has run too
// far ahead of the read cursor to stay within the ring — the read cursor
// starting at zero against a wall-clock-scale first timestamp being the
// extreme case — the read cursor is forced to catch up, dropping history
// rather than crawling across the gap one frame at a time forever.
func (d *Device) WriteBuffered(pcm []byte, ts uint32) {
	d.playMu.Lock()
	defer d.playMu.Unlock()

	top := int(ts / FrameIntervalMS)
	slotIndex := top % playbackRingSize
	d.playRing[slotIndex] = ringSlot{data: pcm, ts: ts, written: true}
	d.jitBufPut = top

	if top-d.jitBufGet > playbackRingSize {
		if d.jitBufGet == 0 {
			d.jitBufGet = top
		} else {
			d.jitBufGet = top - playbackRingSize/2
		}
	}
}

// WriteDirectly bypasses the de-jitter ring and writes pcm straight to
// the output device. Used by the ring-tone generator.
func (d *Device) WriteDirectly(pcm []byte) error {
	return d.hw.WriteFrame(pcm)
}

// ringFillLocked returns the distance from jitBufGet to jitBufPut,
// clamped to [0, playbackRingSize]. The caller holds d.playMu.
func (d *Device) ringFillLocked() int {
	fill := d.jitBufPut - d.jitBufGet
	if fill < 0 {
		fill = 0
	}
	if fill > playbackRingSize {
		fill = playbackRingSize
	}
	return fill
}

// RunPlayback drains the de-jitter ring to the output device until ctx is
// cancelled, applying the startup primer, concealment, and clock-skew
// compensation.
func (d *Device) RunPlayback(ctx context.Context) {
	t := d.clk.NewTicker(FrameIntervalMS * time.Millisecond)
	defer t.Stop()

	for !d.playbackPrimed() {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.playbackStep()
		}
	}
}

func (d *Device) playbackPrimed() bool {
	d.playMu.Lock()
	defer d.playMu.Unlock()
	if d.primed {
		return true
	}
	if ReadyToStartPlayback(d.ringFillLocked()) {
		d.primed = true
		return true
	}
	return false
}

func (d *Device) playbackStep() {
	d.playMu.Lock()
	slotIndex := d.jitBufGet % playbackRingSize
	slot := d.playRing[slotIndex]
	fill := d.ringFillLocked()
	d.playMu.Unlock()

	if !slot.written {
		if !ShouldConceal(fill, fill, playbackRingSize, d.havePrev) {
			return // wait for this slot on a later tick
		}
		if d.havePrev {
			concealed := ConcealFrame(d.prevFrame, d.prevFrame)
			d.hw.WriteFrame(concealed)
		}
		d.playMu.Lock()
		d.jitBufGet++
		d.playMu.Unlock()
		return
	}

	dropExtra, duplicate := 0, false
	if localTs, ok := d.LastCaptureTimestamp(); ok {
		delta := int64(slot.ts) - int64(localTs)
		d.playMu.Lock()
		if !d.haveDelta0 {
			d.delta0 = delta
			d.haveDelta0 = true
		}
		d.playMu.Unlock()
		dropExtra, duplicate = SkewAction(delta, d.delta0)
	}

	if err := d.hw.WriteFrame(slot.data); err != nil {
		d.logger.Warn("audiodevice: playback write failed", "error", err)
	}
	d.havePrev = true
	d.prevFrame = slot.data

	d.playMu.Lock()
	advance := 1 + dropExtra
	if duplicate {
		advance = 0
	}
	d.jitBufGet += advance
	d.playMu.Unlock()
}

func init() {
	if FrameBytes <= 0 {
		panic(fmt.Sprintf("audiodevice: invalid FrameBytes %d", FrameBytes))
	}
}
