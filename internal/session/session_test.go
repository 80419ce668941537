package session

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IrtazaS/kryptofon/internal/audiodevice"
	"github.com/IrtazaS/kryptofon/internal/clock"
	"github.com/IrtazaS/kryptofon/internal/identity"
	"github.com/IrtazaS/kryptofon/internal/netudp"
	"github.com/IrtazaS/kryptofon/internal/rendezvous"
	"github.com/IrtazaS/kryptofon/internal/trust"
)

// fakeHardware is an audiodevice.Hardware that generates silence on
// capture and records every frame written to playback.
type fakeHardware struct {
	mu      sync.Mutex
	seq     uint32
	written [][]byte
}

func (h *fakeHardware) ReadFrame(ctx context.Context) ([]byte, uint32, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-time.After(audiodevice.FrameIntervalMS * time.Millisecond):
	}
	h.mu.Lock()
	h.seq++
	ts := h.seq * audiodevice.FrameIntervalMS
	h.mu.Unlock()
	return make([]byte, audiodevice.FrameBytes), ts, nil
}

func (h *fakeHardware) WriteFrame(pcm []byte) error {
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	h.mu.Lock()
	h.written = append(h.written, cp)
	h.mu.Unlock()
	return nil
}

func (h *fakeHardware) Close() error { return nil }

func (h *fakeHardware) frameCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.written)
}

// fakeNotifier records every narration and instant message the
// controller produces, for polling assertions.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	texts    []string
}

func (n *fakeNotifier) Notify(msg string) {
	n.mu.Lock()
	n.messages = append(n.messages, msg)
	n.mu.Unlock()
}

func (n *fakeNotifier) NotifyMessage(from, msg string) {
	n.mu.Lock()
	n.texts = append(n.texts, from+": "+msg)
	n.mu.Unlock()
}

func (n *fakeNotifier) contains(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func (n *fakeNotifier) textContains(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.texts {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

// startBroadcastRelay is a minimal stand-in for the chat relay: it
// accepts connections, tags each connection with the name from names in
// accept order, and rebroadcasts every line received (prefixed with its
// sender's name) to every connected peer, mirroring the real relay's
// "user :: body" framing.
func startBroadcastRelay(t *testing.T, names []string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	var mu sync.Mutex
	var conns []net.Conn
	idx := 0

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			name := "anonymous"
			if idx < len(names) {
				name = names[idx]
			}
			idx++
			conns = append(conns, conn)
			mu.Unlock()

			go func(self net.Conn, senderName string) {
				scanner := bufio.NewScanner(self)
				for scanner.Scan() {
					line := fmt.Sprintf("%s :: %s\n", senderName, scanner.Text())
					mu.Lock()
					for _, c := range conns {
						c.Write([]byte(line))
					}
					mu.Unlock()
				}
				self.Close()
			}(conn, name)
		}
	}()

	return ln.Addr().String()
}

type testEndpoint struct {
	ctrl     *Controller
	notifier *fakeNotifier
	id       *identity.Identity
	trust    *trust.Store
	trustPath string
	udp      *netudp.Channel
	hw       *fakeHardware
	dir      string
}

func newTestEndpoint(t *testing.T, name, relayAddr string, udpLow, udpHigh int, autoAnswer bool) *testEndpoint {
	t.Helper()
	clk := clock.Real()

	id, err := identity.New(time.Now())
	if err != nil {
		t.Fatalf("identity.New(%s): %v", name, err)
	}
	t.Cleanup(func() { id.Close() })

	dir := t.TempDir()
	trustPath := filepath.Join(dir, "authorized-keys.txt")
	if err := os.WriteFile(trustPath, nil, 0o600); err != nil {
		t.Fatalf("write trust file: %v", err)
	}
	trustStore, err := trust.LoadStore(trustPath, nil)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}

	udp, err := netudp.Bind("127.0.0.1", udpLow, udpHigh, nil)
	if err != nil {
		t.Fatalf("netudp.Bind(%s): %v", name, err)
	}
	t.Cleanup(func() { udp.Close() })

	hw := &fakeHardware{}
	device := audiodevice.New(hw, clk, nil)
	rendez := rendezvous.New(relayAddr, name, clk, nil)
	notifier := &fakeNotifier{}

	ctrl := New(Config{AutoAnswer: autoAnswer, IdentityDir: dir}, id, trustStore, rendez, udp, device, nil, clk, notifier, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ctrl.Run(ctx)

	return &testEndpoint{ctrl: ctrl, notifier: notifier, id: id, trust: trustStore, trustPath: trustPath, udp: udp, hw: hw, dir: dir}
}

// trustPeer appends trusted's identity to truster's authorized-keys file
// (and reloads it), one direction at a time.
func trustPeer(t *testing.T, truster *testEndpoint, trusted *testEndpoint) {
	t.Helper()
	if err := trust.AppendEntry(truster.trustPath, trusted.id.PublicKey(), trusted.id.Comment(), trusted.id.Comment()); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	if err := truster.trust.Reload(truster.trustPath); err != nil {
		t.Fatalf("Reload: %v", err)
	}
}

func TestPlainVoiceCall(t *testing.T) {
	relay := startBroadcastRelay(t, []string{"alice", "bob"})
	alice := newTestEndpoint(t, "alice", relay, 45000, 45050, false)
	time.Sleep(100 * time.Millisecond)
	bob := newTestEndpoint(t, "bob", relay, 45100, 45150, false)
	time.Sleep(100 * time.Millisecond)

	ctx := context.Background()
	if err := alice.ctrl.Invite(ctx, "bob", false); err != nil {
		t.Fatalf("Invite: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		_, ok := bob.ctrl.PendingInviteFrom()
		return ok
	})
	if err := bob.ctrl.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		inCall, _, _ := alice.ctrl.Status()
		return inCall
	})
	waitUntil(t, 2*time.Second, func() bool {
		inCall, _, _ := bob.ctrl.Status()
		return inCall
	})

	if sec := alice.ctrl.Security(); sec != Unsecured {
		t.Fatalf("alice security = %v, want Unsecured", sec)
	}

	// Wait until bob's output hardware has been handed at least one
	// frame; give the 20ms loops a few ticks.
	waitUntil(t, 2*time.Second, func() bool { return bob.hw.frameCount() > 0 })

	if err := alice.ctrl.Bye(); err != nil {
		t.Fatalf("Bye: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		inCall, _, _ := alice.ctrl.Status()
		return !inCall
	})
	waitUntil(t, 2*time.Second, func() bool {
		inCall, _, _ := bob.ctrl.Status()
		return !inCall
	})
}

func TestVerifiedSecureCall(t *testing.T) {
	relay := startBroadcastRelay(t, []string{"alice", "bob"})
	alice := newTestEndpoint(t, "alice", relay, 45200, 45250, false)
	time.Sleep(100 * time.Millisecond)
	bob := newTestEndpoint(t, "bob", relay, 45300, 45350, false)
	time.Sleep(100 * time.Millisecond)

	trustPeer(t, alice, bob) // alice trusts bob: lets alice verify bob's session-key envelope
	trustPeer(t, bob, alice) // bob trusts alice: lets bob report alice's invite key as verified

	ctx := context.Background()
	if err := alice.ctrl.Invite(ctx, "bob", true); err != nil {
		t.Fatalf("Invite: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		_, ok := bob.ctrl.PendingInviteFrom()
		return ok
	})
	if err := bob.ctrl.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		inCall, _, _ := alice.ctrl.Status()
		return inCall
	})

	if sec := alice.ctrl.Security(); sec != Verified {
		t.Fatalf("alice security = %v, want Verified", sec)
	}
	if !bob.notifier.contains("authenticated with public key") {
		t.Fatalf("bob notifier = %+v, want an authentication message", bob.notifier.messages)
	}
}

func TestUnverifiedSecureCall(t *testing.T) {
	relay := startBroadcastRelay(t, []string{"alice", "bob"})
	alice := newTestEndpoint(t, "alice", relay, 45400, 45450, false)
	time.Sleep(100 * time.Millisecond)
	bob := newTestEndpoint(t, "bob", relay, 45500, 45550, false)
	time.Sleep(100 * time.Millisecond)

	// Neither side trusts the other's key.
	ctx := context.Background()
	if err := alice.ctrl.Invite(ctx, "bob", true); err != nil {
		t.Fatalf("Invite: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		_, ok := bob.ctrl.PendingInviteFrom()
		return ok
	})
	if err := bob.ctrl.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		inCall, _, _ := alice.ctrl.Status()
		return inCall
	})

	if sec := alice.ctrl.Security(); sec != Unverified {
		t.Fatalf("alice security = %v, want Unverified", sec)
	}
	inCall, _, _ := alice.ctrl.Status()
	if !inCall {
		t.Fatal("call should still be established despite being unverified")
	}
}

func TestRejectedInvite(t *testing.T) {
	relay := startBroadcastRelay(t, []string{"alice"})
	alice := newTestEndpoint(t, "alice", relay, 45600, 45650, false)
	time.Sleep(100 * time.Millisecond)

	ctx := context.Background()
	if err := alice.ctrl.Invite(ctx, "ghost", false); err != nil {
		t.Fatalf("Invite: %v", err)
	}

	waitUntil(t, 5*time.Second, func() bool {
		return alice.notifier.contains("timed out")
	})
	inCall, _, _ := alice.ctrl.Status()
	if inCall {
		t.Fatal("should not be in a call after a rejected invite")
	}
}

func TestLivenessLoss(t *testing.T) {
	relay := startBroadcastRelay(t, []string{"alice", "bob"})
	alice := newTestEndpoint(t, "alice", relay, 45700, 45750, false)
	time.Sleep(100 * time.Millisecond)
	bob := newTestEndpoint(t, "bob", relay, 45800, 45850, false)
	time.Sleep(100 * time.Millisecond)

	ctx := context.Background()
	if err := alice.ctrl.Invite(ctx, "bob", false); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		_, ok := bob.ctrl.PendingInviteFrom()
		return ok
	})
	if err := bob.ctrl.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		inCall, _, _ := alice.ctrl.Status()
		return inCall
	})

	// Simulate bob going silent: close its datagram socket so no further
	// voice PDUs reach alice, without touching either side's signaling
	// state.
	bob.udp.Close()

	waitUntil(t, 4*time.Second, func() bool {
		return alice.notifier.contains("not receiving voice")
	})

	inCall, _, _ := alice.ctrl.Status()
	if !inCall {
		t.Fatal("liveness loss must warn, not tear down the call")
	}
}

func TestEncryptedInstantMessage(t *testing.T) {
	relay := startBroadcastRelay(t, []string{"alice", "bob"})
	alice := newTestEndpoint(t, "alice", relay, 45900, 45950, false)
	time.Sleep(100 * time.Millisecond)
	bob := newTestEndpoint(t, "bob", relay, 46000, 46050, false)
	time.Sleep(100 * time.Millisecond)

	trustPeer(t, alice, bob)
	trustPeer(t, bob, alice)

	ctx := context.Background()
	if err := alice.ctrl.Invite(ctx, "bob", true); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		_, ok := bob.ctrl.PendingInviteFrom()
		return ok
	})
	if err := bob.ctrl.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		inCall, _, _ := alice.ctrl.Status()
		return inCall
	})

	if err := alice.ctrl.SendText("hello", false); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return bob.notifier.textContains("hello")
	})
}

// TestTamperedInstantMessageIsDropped exercises the decrypt-failure path
// directly: a single byte flipped in the ciphertext must cause a
// silent drop, never a delivered (possibly garbled) message.
func TestTamperedInstantMessageIsDropped(t *testing.T) {
	relay := startBroadcastRelay(t, []string{"alice", "bob"})
	alice := newTestEndpoint(t, "alice", relay, 46100, 46150, false)
	time.Sleep(100 * time.Millisecond)
	bob := newTestEndpoint(t, "bob", relay, 46200, 46250, false)
	time.Sleep(100 * time.Millisecond)

	trustPeer(t, alice, bob)
	trustPeer(t, bob, alice)

	ctx := context.Background()
	if err := alice.ctrl.Invite(ctx, "bob", true); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		_, ok := bob.ctrl.PendingInviteFrom()
		return ok
	})
	if err := bob.ctrl.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		inCall, _, _ := alice.ctrl.Status()
		return inCall
	})

	bob.ctrl.mu.Lock()
	cipher := bob.ctrl.cipher
	bob.ctrl.mu.Unlock()
	if cipher == nil {
		t.Fatal("expected bob's call to have a session cipher installed")
	}

	ciphertext, err := cipher.EncryptMessage([]byte("hello"))
	if err != nil {
		t.Fatalf("EncryptMessage: %v", err)
	}
	ciphertext[0] ^= 0xFF // tamper one byte

	bob.ctrl.handleIMsg("alice", rendezvous.Control{
		Verb:      rendezvous.VerbIMsg,
		LocalName: "bob",
		Payload:   base64.StdEncoding.EncodeToString(ciphertext),
	})

	time.Sleep(100 * time.Millisecond)
	if bob.notifier.textContains("hello") {
		t.Fatal("tampered message must not be delivered")
	}
}
