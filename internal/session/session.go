// Package session implements the signaling state machine: the
// IDLE/DIALING/ALERTING/ESTABLISHED transitions driven by INVITE, RING,
// ACCEPT, BYE, and IMSG control messages, plus the invite-timeout and
// liveness supervision that run alongside them. It wires together the
// rendezvous client, the datagram channel, the audio device, and the
// identity and trust stores into one active call at a time.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/IrtazaS/kryptofon/internal/audiocodec"
	"github.com/IrtazaS/kryptofon/internal/audiodevice"
	"github.com/IrtazaS/kryptofon/internal/calllog"
	"github.com/IrtazaS/kryptofon/internal/clock"
	"github.com/IrtazaS/kryptofon/internal/identity"
	"github.com/IrtazaS/kryptofon/internal/netudp"
	"github.com/IrtazaS/kryptofon/internal/pdu"
	"github.com/IrtazaS/kryptofon/internal/peer"
	"github.com/IrtazaS/kryptofon/internal/rendezvous"
	"github.com/IrtazaS/kryptofon/internal/reputation"
	"github.com/IrtazaS/kryptofon/internal/symmetric"
	"github.com/IrtazaS/kryptofon/internal/trust"
	"github.com/IrtazaS/kryptofon/internal/voicesender"
)

// inviteTimeout is how long an outstanding INVITE waits for a RING before
// the controller gives up and returns to IDLE.
const inviteTimeout = 3 * time.Second

// livenessPeriod is how often an established call checks the peer for
// voice silence.
const livenessPeriod = 1 * time.Second

// peerDeadAfter is the silence duration that triggers a liveness warning.
// Exceeding it does not tear the call down; this is a notification only.
const peerDeadAfter = 2500 * time.Millisecond

// SecurityState reports the cryptographic state of the active (or most
// recently negotiated) call, for display to the user.
type SecurityState int

const (
	Unsecured SecurityState = iota
	Verified
	Unverified
)

func (s SecurityState) String() string {
	switch s {
	case Verified:
		return "verified"
	case Unverified:
		return "unverified"
	default:
		return "unsecured"
	}
}

// Notifier receives human-readable narration of signaling events. There
// is no GUI shell in scope; a CLI front end implements this to print to
// the terminal.
type Notifier interface {
	Notify(message string)
	NotifyMessage(from, message string)
}

// pendingInboundInvite is an INVITE awaiting the user's accept or bye.
type pendingInboundInvite struct {
	from string
	ctrl rendezvous.Control
}

// Config holds the session-level policy knobs the controller needs.
type Config struct {
	AutoAnswer  bool
	IdentityDir string
}

// Controller is the signaling state machine. It owns the rendezvous
// connection, the datagram channel, the audio device, and the identity
// and trust stores, and drives the IDLE/DIALING/ALERTING/ESTABLISHED
// transitions. There is at most one active call at a time.
type Controller struct {
	cfg    Config
	id     *identity.Identity
	trust  *trust.Store
	rendez *rendezvous.Client
	udp    *netudp.Channel
	device *audiodevice.Device
	rep    *reputation.Store
	clk    clock.Clock
	notify Notifier
	logger *slog.Logger

	mu sync.Mutex

	peerObj         *peer.RemotePeer
	call            *peer.CallContext
	callCancel      context.CancelFunc
	cipher          *symmetric.Cipher
	security        SecurityState
	callPeerName    string
	callStartedAt   time.Time
	callEncrypted   bool
	callVerificator string
	livenessWarned  bool

	outboundInviteTarget string
	inviteTimer          *clock.Timer

	ringCancel context.CancelFunc

	pendingInbound *pendingInboundInvite
}

// New creates a Controller wiring the given subsystems together. rep may
// be nil to run without peer-reputation tracking.
func New(cfg Config, id *identity.Identity, trustStore *trust.Store, rendez *rendezvous.Client, udp *netudp.Channel, device *audiodevice.Device, rep *reputation.Store, clk clock.Clock, notify Notifier, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		id:     id,
		trust:  trustStore,
		rendez: rendez,
		udp:    udp,
		device: device,
		rep:    rep,
		clk:    clk,
		notify: notify,
		logger: logger,
	}
}

// Run starts the UDP receive loop, the 1Hz liveness supervisor, and the
// rendezvous connection, and blocks until ctx is cancelled or the
// rendezvous connection gives up reconnecting.
func (c *Controller) Run(ctx context.Context) error {
	go c.udp.Run(ctx, c.onUDPFrame)
	go c.runLiveness(ctx)
	return c.rendez.Run(ctx, func(line rendezvous.Line) { c.onLine(ctx, line) })
}

func (c *Controller) onUDPFrame(src *net.UDPAddr, frame pdu.PDU) {
	c.mu.Lock()
	p := c.peerObj
	c.mu.Unlock()
	if p == nil || p.Addr().String() != src.String() {
		return
	}
	p.Enqueue(frame)
}

func (c *Controller) onLine(ctx context.Context, line rendezvous.Line) {
	if !line.IsControl {
		c.notify.NotifyMessage(line.User, line.Text)
		return
	}

	switch line.Control.Verb {
	case rendezvous.VerbInvite:
		c.handleInvite(ctx, line.User, line.Control)
	case rendezvous.VerbRing:
		c.handleRing(ctx, line.User, line.Control)
	case rendezvous.VerbAccept:
		c.handleAccept(ctx, line.User, line.Control)
	case rendezvous.VerbBye:
		c.handleBye(line.User, line.Control)
	case rendezvous.VerbIMsg:
		c.handleIMsg(line.User, line.Control)
	case rendezvous.VerbList:
		c.recordSeen(ctx, line.User)
		if err := c.rendez.RespondAlive(line.Control); err != nil {
			c.logger.Warn("session: answering list query", "error", err)
		}
	case rendezvous.VerbAlive:
		c.recordSeen(ctx, line.User)
	}
}

func (c *Controller) recordSeen(ctx context.Context, userID string) {
	if c.rep == nil {
		return
	}
	if err := c.rep.RecordSeen(ctx, userID, c.clk.Now()); err != nil {
		c.logger.Warn("session: record peer seen", "error", err)
	}
}

// --- Outbound: inviting a peer ---

// Invite places an outbound call to targetUser. If encrypt is true, this
// endpoint's signed public key is attached, inviting the peer to
// negotiate a session key in its RING/ACCEPT replies.
func (c *Controller) Invite(ctx context.Context, targetUser string, encrypt bool) error {
	c.mu.Lock()
	inCall := c.peerObj != nil
	alreadyDialing := c.outboundInviteTarget != ""
	c.mu.Unlock()
	if inCall || alreadyDialing {
		return fmt.Errorf("session: a call is already in progress")
	}

	payload := ""
	if encrypt {
		signed, err := c.id.SignedPublicKeyBase64()
		if err != nil {
			return fmt.Errorf("session: sign public key: %w", err)
		}
		payload = signed
	}

	ctrl := rendezvous.Control{
		Verb:          rendezvous.VerbInvite,
		LocalName:     targetUser,
		RemoteAddr:    c.rendez.LocalAddr(),
		RemoteUDPPort: c.udp.LocalAddr().Port,
		Payload:       payload,
	}
	if err := c.rendez.Send(ctrl); err != nil {
		return fmt.Errorf("session: send invite: %w", err)
	}

	c.mu.Lock()
	c.outboundInviteTarget = targetUser
	c.inviteTimer = c.clk.AfterFunc(inviteTimeout, func() { c.onInviteTimeout(targetUser) })
	c.mu.Unlock()

	c.notify.Notify(fmt.Sprintf("Inviting %s...", targetUser))
	return nil
}

func (c *Controller) onInviteTimeout(targetUser string) {
	c.mu.Lock()
	matches := c.outboundInviteTarget == targetUser && c.peerObj == nil
	if matches {
		c.outboundInviteTarget = ""
		c.inviteTimer = nil
	}
	c.mu.Unlock()
	if !matches {
		return
	}
	c.stopRinging()
	c.notify.Notify(fmt.Sprintf("Invite to %s timed out; no answer.", targetUser))
}

// handleRing processes a RING reply to an outstanding outbound invite:
// it confirms the target matches, cancels the invite timeout (the
// invite target is kept so a following ACCEPT is still recognized),
// checks the callee's public key if one was attached, and starts local
// ringback.
func (c *Controller) handleRing(ctx context.Context, peerID string, ctrl rendezvous.Control) {
	if ctrl.RemoteUDPPort < 1 || ctrl.RemoteUDPPort > 65535 {
		return
	}

	c.mu.Lock()
	inCall := c.peerObj != nil
	target := c.outboundInviteTarget
	c.mu.Unlock()
	if inCall || target == "" || !strings.EqualFold(target, peerID) {
		return
	}

	if ctrl.Payload != "" {
		enc, err := trust.NewPublicEncryptor(ctrl.Payload, c.trust)
		if err != nil {
			c.logger.Warn("session: parse ring public key", "error", err)
		} else if enc.Verified() {
			c.setSecurity(Verified)
			c.notify.Notify(fmt.Sprintf("Reply from %s authenticated with public key '%s'", peerID, enc.Verificator()))
		} else {
			c.setSecurity(Unverified)
			c.notify.Notify(fmt.Sprintf("Reply from %s could not be authenticated.", peerID))
		}
	}

	c.notify.Notify(fmt.Sprintf("User %s is alerted...", peerID))

	c.mu.Lock()
	if c.inviteTimer != nil {
		c.inviteTimer.Stop()
		c.inviteTimer = nil
	}
	c.mu.Unlock()

	c.startRinging(ctx)
}

// handleAccept processes an ACCEPT reply to an outstanding outbound
// invite: it resolves the peer address, unwraps the encrypted session
// key if one was attached, installs the cipher on the datagram channel,
// and transitions the call to ESTABLISHED.
func (c *Controller) handleAccept(ctx context.Context, peerID string, ctrl rendezvous.Control) {
	if ctrl.RemoteUDPPort < 1 || ctrl.RemoteUDPPort > 65535 {
		return
	}

	c.mu.Lock()
	inCall := c.peerObj != nil
	target := c.outboundInviteTarget
	c.mu.Unlock()
	if inCall || target == "" || !strings.EqualFold(target, peerID) {
		return
	}

	addr, err := resolveUDPAddr(ctrl.RemoteAddr, ctrl.RemoteUDPPort)
	if err != nil {
		c.notify.Notify(fmt.Sprintf("Unknown remote host %q; clearing the call...", ctrl.RemoteAddr))
		c.teardownCall()
		return
	}

	var cipher *symmetric.Cipher
	security := Unsecured
	verificator := ""
	if ctrl.Payload != "" {
		cipher, err = c.id.UnwrapSessionKey(ctrl.Payload, c.trust)
		if err != nil {
			c.logger.Warn("session: unwrap session key", "error", err)
			cipher = nil
		} else {
			verificator = cipher.Verificator()
			if cipher.Verified() {
				security = Verified
			} else {
				security = Unverified
			}
		}
	}

	c.notify.Notify(fmt.Sprintf("User %s has accepted our invite", peerID))
	if cipher != nil {
		if security == Verified {
			c.notify.Notify(fmt.Sprintf("Secret key from %s authenticated with public key '%s'", peerID, verificator))
		} else {
			c.notify.Notify(fmt.Sprintf("Secret key from %s could not be authenticated.", peerID))
		}
		c.notify.Notify("***** Encrypted call established *****")
	} else {
		c.notify.Notify("***** Un-encrypted call established *****")
	}

	remotePeer := peer.New(addr, peerID, c.clk)
	call := peer.NewCallContext(c.clk)
	remotePeer.BindCall(call)

	c.udp.SetCipher(cipher)
	c.setSecurity(security)

	callCtx, cancel := context.WithCancel(ctx)
	c.establishCall(callCtx, cancel, remotePeer, call, peerID, cipher, verificator)
}

// --- Inbound: receiving an invite ---

// handleInvite processes an inbound INVITE: it rejects with BYE if a
// call is already in progress, otherwise stores the pending invite,
// starts local ringing, replies with RING (attaching a signed public key
// if the invite carried one), reports the inviter's trust status, and
// either auto-answers or waits for the user.
func (c *Controller) handleInvite(ctx context.Context, inviterID string, ctrl rendezvous.Control) {
	if ctrl.RemoteUDPPort < 1 || ctrl.RemoteUDPPort > 65535 {
		return
	}

	c.mu.Lock()
	inCall := c.peerObj != nil
	c.mu.Unlock()
	if inCall {
		c.sendBye(inviterID, "0.0.0.0", 0)
		return
	}

	c.mu.Lock()
	c.pendingInbound = &pendingInboundInvite{from: inviterID, ctrl: ctrl}
	c.mu.Unlock()

	kind := "plain"
	if ctrl.Payload != "" {
		kind = "encrypted"
	}
	c.notify.Notify(fmt.Sprintf("User %s is inviting us to a %s call...", inviterID, kind))

	c.startRinging(ctx)
	c.verifyInboundKey(inviterID, ctrl.Payload)

	signedPub := ""
	if ctrl.Payload != "" {
		signed, err := c.id.SignedPublicKeyBase64()
		if err != nil {
			c.logger.Warn("session: sign public key for ring", "error", err)
		} else {
			signedPub = signed
		}
	}
	ring := rendezvous.Control{
		Verb:          rendezvous.VerbRing,
		LocalName:     inviterID,
		RemoteAddr:    c.rendez.LocalAddr(),
		RemoteUDPPort: c.udp.LocalAddr().Port,
		Payload:       signedPub,
	}
	if err := c.rendez.Send(ring); err != nil {
		c.logger.Warn("session: send ring", "error", err)
	}

	if c.cfg.AutoAnswer {
		c.notify.Notify("Auto-answering the call...")
		if err := c.Accept(ctx); err != nil {
			c.logger.Warn("session: auto-answer failed", "error", err)
		}
		return
	}
	c.notify.Notify("Respond with accept to answer the call, or bye to reject it.")
}

func (c *Controller) verifyInboundKey(fromUser, payload string) {
	if payload == "" {
		c.setSecurity(Unsecured)
		c.notify.Notify("The call will be without encryption.")
		return
	}
	enc, err := trust.NewPublicEncryptor(payload, c.trust)
	if err != nil {
		c.logger.Warn("session: parse inviter public key", "error", err)
		return
	}
	if enc.Verified() {
		c.setSecurity(Verified)
		c.notify.Notify(fmt.Sprintf("Invite from %s authenticated with public key '%s'", fromUser, enc.Verificator()))
	} else {
		c.setSecurity(Unverified)
		c.notify.Notify(fmt.Sprintf("Invite from %s could not be authenticated.", fromUser))
	}
}

// Accept answers the currently pending inbound invite, if any: it
// generates a fresh session key when the invite was encrypted, signs and
// encrypts it under the inviter's public key, replies with ACCEPT, and
// transitions the call to ESTABLISHED.
func (c *Controller) Accept(ctx context.Context) error {
	c.mu.Lock()
	pending := c.pendingInbound
	inCall := c.peerObj != nil
	c.mu.Unlock()

	if inCall {
		return fmt.Errorf("session: a call is already in progress")
	}
	if pending == nil {
		return fmt.Errorf("session: no pending invite to accept")
	}

	addr, err := resolveUDPAddr(pending.ctrl.RemoteAddr, pending.ctrl.RemoteUDPPort)
	if err != nil {
		return fmt.Errorf("session: resolve inviter address: %w", err)
	}

	var cipher *symmetric.Cipher
	payload := ""
	security := Unsecured
	verificator := ""
	if pending.ctrl.Payload != "" {
		enc, err := trust.NewPublicEncryptor(pending.ctrl.Payload, c.trust)
		if err != nil {
			return fmt.Errorf("session: parse inviter public key: %w", err)
		}
		cipher, err = symmetric.Generate()
		if err != nil {
			return fmt.Errorf("session: generate session key: %w", err)
		}
		payload, err = c.id.SignedSessionKeyFor(enc, cipher)
		if err != nil {
			cipher.Close()
			return fmt.Errorf("session: wrap session key: %w", err)
		}
		verificator = enc.Verificator()
		if enc.Verified() {
			security = Verified
		} else {
			security = Unverified
		}
	}

	ctrl := rendezvous.Control{
		Verb:          rendezvous.VerbAccept,
		LocalName:     pending.from,
		RemoteAddr:    c.rendez.LocalAddr(),
		RemoteUDPPort: c.udp.LocalAddr().Port,
		Payload:       payload,
	}
	if err := c.rendez.Send(ctrl); err != nil {
		if cipher != nil {
			cipher.Close()
		}
		return fmt.Errorf("session: send accept: %w", err)
	}

	if cipher != nil {
		c.notify.Notify("***** Encrypted call established *****")
	} else {
		c.notify.Notify("***** Un-encrypted call established *****")
	}

	remotePeer := peer.New(addr, pending.from, c.clk)
	call := peer.NewCallContext(c.clk)
	remotePeer.BindCall(call)

	c.udp.SetCipher(cipher)
	c.setSecurity(security)

	callCtx, cancel := context.WithCancel(ctx)
	c.establishCall(callCtx, cancel, remotePeer, call, pending.from, cipher, verificator)

	if c.rep != nil {
		if err := c.rep.RecordOutcome(ctx, pending.from, c.clk.Now(), true); err != nil {
			c.logger.Warn("session: record accept outcome", "error", err)
		}
	}
	return nil
}

// Reject declines the currently pending inbound invite without
// answering it.
func (c *Controller) Reject() error {
	c.mu.Lock()
	pending := c.pendingInbound
	c.pendingInbound = nil
	c.mu.Unlock()
	if pending == nil {
		return fmt.Errorf("session: no pending invite to reject")
	}

	c.stopRinging()
	if c.rep != nil {
		_ = c.rep.RecordOutcome(context.Background(), pending.from, c.clk.Now(), false)
	}
	c.sendBye(pending.from, "", 0)
	return nil
}

// establishCall wires the audio pipeline to the new peer and call,
// starts the capture, playback, send, and receive-dispatch tasks, and
// records the call's state.
func (c *Controller) establishCall(ctx context.Context, cancel context.CancelFunc, p *peer.RemotePeer, call *peer.CallContext, peerName string, cipher *symmetric.Cipher, verificator string) {
	c.stopRinging()

	codec := audiocodec.ALaw{}
	sender := voicesender.New(c.device, codec, c.udp, p.Addr(), call, c.clk, c.logger)

	call.SetEstablished(true)

	go c.device.RunCapture(ctx)
	go c.device.RunPlayback(ctx)
	go sender.Run(ctx)
	go p.Run(ctx, func(frame pdu.PDU) {
		if call.MarkFirstVoiceReceived() {
			c.stopRinging()
		}
		pcm := codec.DecodeToPCM(frame.Payload)
		c.device.WriteBuffered(pcm, frame.Timestamp)
	})

	c.mu.Lock()
	c.peerObj = p
	c.call = call
	c.callCancel = cancel
	c.cipher = cipher
	c.callPeerName = peerName
	c.callStartedAt = c.clk.Now()
	c.callEncrypted = cipher != nil
	c.callVerificator = verificator
	c.livenessWarned = false
	c.pendingInbound = nil
	c.outboundInviteTarget = ""
	if c.inviteTimer != nil {
		c.inviteTimer.Stop()
		c.inviteTimer = nil
	}
	c.mu.Unlock()
}

// --- Ending a call ---

func (c *Controller) handleBye(peerID string, ctrl rendezvous.Control) {
	c.mu.Lock()
	hasCall := c.peerObj != nil
	wasInviting := c.outboundInviteTarget != ""
	c.mu.Unlock()

	c.teardownCall()

	switch {
	case hasCall:
		c.notify.Notify(fmt.Sprintf("User %s is clearing the call", peerID))
		c.notify.Notify("***** Call Ended *****")
	case wasInviting:
		c.notify.Notify(fmt.Sprintf("User %s rejected our invite", peerID))
	}
}

// Bye hangs up the active call, or cancels an outstanding outbound
// invite, or rejects a pending inbound one — whichever applies.
func (c *Controller) Bye() error {
	c.mu.Lock()
	p := c.peerObj
	target := c.outboundInviteTarget
	pending := c.pendingInbound
	c.mu.Unlock()

	switch {
	case p != nil:
		c.sendBye(p.DisplayName(), "", 0)
		c.teardownCall()
		c.notify.Notify("***** Call Ended *****")
	case target != "":
		c.sendBye(target, "", 0)
		c.mu.Lock()
		c.outboundInviteTarget = ""
		if c.inviteTimer != nil {
			c.inviteTimer.Stop()
			c.inviteTimer = nil
		}
		c.mu.Unlock()
		c.stopRinging()
	case pending != nil:
		return c.Reject()
	default:
		return fmt.Errorf("session: no call in progress")
	}
	return nil
}

func (c *Controller) sendBye(targetUser, addr string, port int) {
	ctrl := rendezvous.Control{Verb: rendezvous.VerbBye, LocalName: targetUser, RemoteAddr: addr, RemoteUDPPort: port}
	if err := c.rendez.Send(ctrl); err != nil {
		c.logger.Warn("session: send bye", "error", err)
	}
}

// teardownCall clears all call state, stops ringing and media tasks,
// removes the session cipher from the datagram channel, and appends a
// record to the call history if a call had actually been established.
func (c *Controller) teardownCall() {
	c.stopRinging()

	c.mu.Lock()
	cancel := c.callCancel
	peerName := c.callPeerName
	startedAt := c.callStartedAt
	encrypted := c.callEncrypted
	verificator := c.callVerificator
	cipher := c.cipher
	hadCall := c.peerObj != nil
	c.peerObj = nil
	c.call = nil
	c.callCancel = nil
	c.cipher = nil
	c.pendingInbound = nil
	c.outboundInviteTarget = ""
	if c.inviteTimer != nil {
		c.inviteTimer.Stop()
		c.inviteTimer = nil
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.udp.SetCipher(nil)
	if cipher != nil {
		cipher.Close()
	}
	c.setSecurity(Unsecured)

	if hadCall && c.cfg.IdentityDir != "" {
		record := calllog.Record{Peer: peerName, StartedAt: startedAt, EndedAt: c.clk.Now(), Verificator: verificator, Encrypted: encrypted}
		if err := calllog.Append(c.cfg.IdentityDir, record); err != nil {
			c.logger.Warn("session: append call history", "error", err)
		}
	}
}

// --- Text messaging ---

func (c *Controller) handleIMsg(peerID string, ctrl rendezvous.Control) {
	c.mu.Lock()
	cipher := c.cipher
	c.mu.Unlock()
	if cipher == nil {
		return
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ctrl.Payload)
	if err != nil {
		c.logger.Debug("session: dropped malformed instant message", "error", err)
		return
	}
	plaintext, err := cipher.DecryptMessage(ciphertext)
	if err != nil {
		c.logger.Debug("session: dropped undecryptable instant message", "error", err)
		return
	}
	c.notify.NotifyMessage(peerID, string(plaintext))
}

// SendText sends message to the active call's peer, encrypted with the
// session cipher if one is installed, unless forceUnencrypted is set —
// in which case (or if there is no active call) it is broadcast as a
// plain chat line instead.
func (c *Controller) SendText(message string, forceUnencrypted bool) error {
	c.mu.Lock()
	p := c.peerObj
	cipher := c.cipher
	c.mu.Unlock()

	if forceUnencrypted || p == nil || cipher == nil {
		return c.rendez.SendText(message)
	}

	ciphertext, err := cipher.EncryptMessage([]byte(message))
	if err != nil {
		return fmt.Errorf("session: encrypt message: %w", err)
	}
	ctrl := rendezvous.Control{
		Verb:      rendezvous.VerbIMsg,
		LocalName: p.DisplayName(),
		Payload:   base64.StdEncoding.EncodeToString(ciphertext),
	}
	return c.rendez.Send(ctrl)
}

// ListPeers queries the relay for users currently present, optionally
// filtered by regex ("" matches everyone).
func (c *Controller) ListPeers(regex string) error {
	return c.rendez.Send(rendezvous.Control{Verb: rendezvous.VerbList, Regex: regex})
}

// --- Liveness supervision ---

func (c *Controller) runLiveness(ctx context.Context) {
	t := c.clk.NewTicker(livenessPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.checkLiveness()
		}
	}
}

func (c *Controller) checkLiveness() {
	c.mu.Lock()
	p := c.peerObj
	warned := c.livenessWarned
	c.mu.Unlock()
	if p == nil {
		return
	}

	if !p.IsDead(peerDeadAfter) {
		if warned {
			c.mu.Lock()
			c.livenessWarned = false
			c.mu.Unlock()
		}
		return
	}
	if warned {
		return
	}

	c.mu.Lock()
	c.livenessWarned = true
	c.mu.Unlock()
	c.notify.Notify(fmt.Sprintf("Warning: not receiving voice from %s; maybe it's dead?", p.DisplayName()))
}

// --- Ringing ---

func (c *Controller) startRinging(ctx context.Context) {
	c.mu.Lock()
	if c.ringCancel != nil {
		c.mu.Unlock()
		return
	}
	ringCtx, cancel := context.WithCancel(ctx)
	c.ringCancel = cancel
	c.mu.Unlock()
	c.device.StartRinging(ringCtx)
}

func (c *Controller) stopRinging() {
	c.mu.Lock()
	cancel := c.ringCancel
	c.ringCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.device.StopRinging()
}

func (c *Controller) setSecurity(s SecurityState) {
	c.mu.Lock()
	c.security = s
	c.mu.Unlock()
}

// Security returns the current (or most recent) call's cryptographic
// state.
func (c *Controller) Security() SecurityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.security
}

// Status reports whether a call is currently active, who with, and its
// security state.
func (c *Controller) Status() (inCall bool, peerName string, security SecurityState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerObj != nil, c.callPeerName, c.security
}

// PendingInviteFrom returns the sender of the currently pending inbound
// invite, if any.
func (c *Controller) PendingInviteFrom() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingInbound == nil {
		return "", false
	}
	return c.pendingInbound.from, true
}

func resolveUDPAddr(host string, port int) (*net.UDPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}
	resolved, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, fmt.Errorf("session: resolve host %q: %w", host, err)
	}
	return &net.UDPAddr{IP: resolved.IP, Port: port}, nil
}
