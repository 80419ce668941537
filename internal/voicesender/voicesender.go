// Package voicesender drives the outbound half of a call: a fixed 20ms
// tick that captures one audio frame, encodes it with the call's chosen
// codec, and sends it over the datagram channel to the remote peer.
package voicesender

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/IrtazaS/kryptofon/internal/audiocodec"
	"github.com/IrtazaS/kryptofon/internal/audiodevice"
	"github.com/IrtazaS/kryptofon/internal/clock"
	"github.com/IrtazaS/kryptofon/internal/peer"
	"github.com/IrtazaS/kryptofon/internal/pdu"
)

// Datagram is the minimal send surface voicesender needs from the
// network layer, satisfied by *netudp.Channel.
type Datagram interface {
	Send(dest *net.UDPAddr, frame pdu.PDU) error
}

// Sender captures local audio and ships it to one remote peer for the
// lifetime of a call.
type Sender struct {
	device *audiodevice.Device
	codec  audiocodec.Codec
	net    Datagram
	clk    clock.Clock
	logger *slog.Logger

	call *peer.CallContext
	dest *net.UDPAddr
}

// New creates a Sender for one call, encoding with codec and sending to
// dest over net.
func New(device *audiodevice.Device, codec audiocodec.Codec, dg Datagram, dest *net.UDPAddr, call *peer.CallContext, clk clock.Clock, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{device: device, codec: codec, net: dg, dest: dest, call: call, clk: clk, logger: logger}
}

// Run captures, encodes, and sends one audio frame every 20ms until ctx
// is cancelled.
func (s *Sender) Run(ctx context.Context) {
	t := s.clk.NewTicker(audiodevice.FrameIntervalMS * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sendOneFrame()
		}
	}
}

func (s *Sender) sendOneFrame() {
	pcm, ts := s.device.ReadWithTimestamp()
	encoded := s.codec.EncodeFromPCM(pcm)

	frame := pdu.PDU{
		SourceCall: pdu.SourceCallNumber,
		DestCall:   pdu.DestCallNumber,
		Timestamp:  ts,
		OutSeq:     s.call.NextOutSeq(),
		InSeq:      s.call.CurrentInSeq(),
		Type:       pdu.Voice,
		Subclass:   s.codec.Subclass(),
		Payload:    encoded,
	}

	if err := s.net.Send(s.dest, frame); err != nil {
		s.logger.Warn("voicesender: send failed", "error", err)
	}
}
