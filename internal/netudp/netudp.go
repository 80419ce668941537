// Package netudp implements the voice datagram channel: a UDP socket
// bound within a configured port range, symmetric-cipher encryption on
// every outbound PDU, and decryption on every inbound one. The cipher
// carries no integrity check: an inbound datagram is dropped only when it
// fails to decrypt or parse, so an altered datagram that still decrypts
// and parses is delivered.
package netudp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/IrtazaS/kryptofon/internal/pdu"
	"github.com/IrtazaS/kryptofon/internal/symmetric"
)

// ErrNoPortAvailable is returned when every port in the configured range
// is already bound.
var ErrNoPortAvailable = errors.New("netudp: no port available in range")

// Channel is a UDP socket carrying voice PDUs to and from one remote peer
// address. The channel is bound once at startup, before any call exists;
// the session cipher is installed and cleared per call via SetCipher, and
// a channel with no cipher installed sends and receives plaintext PDUs —
// a plain (unencrypted) call never has one.
type Channel struct {
	conn   *net.UDPConn
	logger *slog.Logger

	mu     sync.RWMutex
	cipher *symmetric.Cipher
}

// Bind opens a UDP socket on the first available port in [low, high]
// (inclusive) on the given host (empty host binds all interfaces). The
// channel starts with no cipher installed.
func Bind(host string, low, high int, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if low > high {
		return nil, fmt.Errorf("netudp: invalid port range [%d, %d]", low, high)
	}

	var lastErr error
	for port := low; port <= high; port++ {
		addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
		conn, err := net.ListenUDP("udp", addr)
		if err == nil {
			return &Channel{conn: conn, logger: logger}, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPortAvailable, lastErr)
	}
	return nil, ErrNoPortAvailable
}

// LocalAddr returns the socket's bound local address.
func (c *Channel) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the underlying socket.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// SetCipher installs the current call's session cipher, or clears it
// (nil) when a call ends or was never encrypted.
func (c *Channel) SetCipher(cipher *symmetric.Cipher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cipher = cipher
}

func (c *Channel) currentCipher() *symmetric.Cipher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cipher
}

// Send sends frame to dest, encrypting it if a cipher is installed and
// sending it as plaintext otherwise.
func (c *Channel) Send(dest *net.UDPAddr, frame pdu.PDU) error {
	encoded := pdu.Encode(frame)

	out := encoded
	if cipher := c.currentCipher(); cipher != nil {
		ciphertext, err := cipher.EncryptPDU(encoded)
		if err != nil {
			return fmt.Errorf("netudp: encrypt PDU: %w", err)
		}
		out = ciphertext
	}

	if _, err := c.conn.WriteToUDP(out, dest); err != nil {
		return fmt.Errorf("netudp: send to %s: %w", dest, err)
	}
	return nil
}

// maxDatagramSize is large enough for one voice PDU's worst-case
// ciphertext (header, compressed-codec payload, PKCS5 padding, and the
// fixed preamble).
const maxDatagramSize = 2048

// Run reads inbound datagrams until ctx is cancelled, decrypts and
// parses each one, and invokes onFrame with the sender's address.
// Datagrams that fail to decrypt (for example under the wrong session
// key) or fail to parse are dropped and logged, never passed to onFrame.
func (c *Channel) Run(ctx context.Context, onFrame func(src *net.UDPAddr, frame pdu.PDU)) {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Warn("netudp: read failed", "error", err)
			continue
		}

		plaintext := buf[:n]
		if cipher := c.currentCipher(); cipher != nil {
			decrypted, err := cipher.DecryptPDU(plaintext)
			if err != nil {
				c.logger.Debug("netudp: dropped undecryptable datagram", "source", src, "error", err)
				continue
			}
			plaintext = decrypted
		}

		frame, err := pdu.Parse(plaintext)
		if err != nil {
			c.logger.Debug("netudp: dropped unparseable datagram", "source", src, "error", err)
			continue
		}

		onFrame(src, frame)
	}
}
