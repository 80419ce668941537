package rendezvous

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/IrtazaS/kryptofon/internal/clock"
)

// reconnectDelay and maxReconnectAttempts implement the relay's
// reconnect policy: retry every 2s, up to three times, before going
// dormant until user intervention.
const (
	reconnectDelay      = 2 * time.Second
	maxReconnectAttempts = 3
)

// Client is a connection to the broadcast chat relay.
type Client struct {
	address  string
	localUser string
	clk      clock.Clock
	logger   *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

// New creates a rendezvous client for the relay at address, identifying
// as localUser for routing/self-echo suppression.
func New(address, localUser string, clk clock.Clock, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{address: address, localUser: normalizeUserID(localUser), clk: clk, logger: logger}
}

// Run dials the relay, dispatches parsed lines to onLine, and reconnects
// on disconnect per the relay's backoff policy. Returns when ctx is
// cancelled or reconnection is exhausted.
func (c *Client) Run(ctx context.Context, onLine func(Line)) error {
	for {
		if err := c.runOnce(ctx, onLine); err != nil {
			c.logger.Warn("rendezvous: connection lost", "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempts := 0
		for attempts < maxReconnectAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.clk.After(reconnectDelay):
			}
			attempts++
			if err := c.dial(); err == nil {
				c.logger.Info("rendezvous: reconnected", "attempt", attempts)
				break
			} else if attempts == maxReconnectAttempts {
				return fmt.Errorf("rendezvous: gave up reconnecting after %d attempts: %w", attempts, err)
			}
		}
	}
}

func (c *Client) dial() error {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return fmt.Errorf("rendezvous: dial %s: %w", c.address, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Client) runOnce(ctx context.Context, onLine func(Line)) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		if err := c.dial(); err != nil {
			return err
		}
		c.mu.Lock()
	}
	conn := c.conn
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := ParseLine(scanner.Text())
		if line.IsControl {
			if !c.shouldDeliver(line) {
				continue
			}
		}
		onLine(line)
	}

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	return scanner.Err()
}

// shouldDeliver applies routing and self-echo suppression: directed
// verbs are dropped when they echo this endpoint's own user id or when
// LocalName does not match it; every other line, LIST and ALIVE
// included, is delivered.
func (c *Client) shouldDeliver(line Line) bool {
	if !IsDirected(line.Control.Verb) {
		return true
	}
	if line.User == c.localUser {
		return false
	}
	return normalizeUserID(line.Control.LocalName) == c.localUser
}

// LocalAddr returns the local IP address of the connection to the relay,
// as it would be seen by a peer dialing back to this endpoint — the
// address advertised in outgoing INVITE/RING/ACCEPT messages. Returns ""
// if not currently connected.
func (c *Client) LocalAddr() string {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return ""
	}
	return host
}

// Send emits a control message to the relay.
func (c *Client) Send(ctrl Control) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("rendezvous: not connected")
	}
	_, err := fmt.Fprintf(conn, "%s\n", Format(ctrl))
	return err
}

// SendText emits a plain (non-control) broadcast line, visible to every
// user on the relay — the unencrypted counterpart to a directed IMSG.
func (c *Client) SendText(text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("rendezvous: not connected")
	}
	_, err := fmt.Fprintf(conn, "%s :: %s\n", c.localUser, text)
	return err
}

// RespondAlive answers a LIST query if its regex matches this client's
// user id (or is absent).
func (c *Client) RespondAlive(list Control) error {
	if !MatchesListQuery(list.Regex, c.localUser) {
		return nil
	}
	return c.Send(Control{Verb: VerbAlive})
}
