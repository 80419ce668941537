// kryptofon is a peer-to-peer secure voice and text telephony endpoint:
// it dials and answers calls over a broadcast signaling relay, negotiates
// an encrypted session key when both sides trust each other's identity,
// and exchanges voice over a plain UDP datagram channel.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/IrtazaS/kryptofon/internal/audiodevice"
	"github.com/IrtazaS/kryptofon/internal/clock"
	"github.com/IrtazaS/kryptofon/internal/config"
	"github.com/IrtazaS/kryptofon/internal/identity"
	"github.com/IrtazaS/kryptofon/internal/netudp"
	"github.com/IrtazaS/kryptofon/internal/rendezvous"
	"github.com/IrtazaS/kryptofon/internal/reputation"
	"github.com/IrtazaS/kryptofon/internal/session"
	"github.com/IrtazaS/kryptofon/internal/trust"
)

const versionString = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "[kryptofon] fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath     string
		rendezvousHost string
		rendezvousPort int
		userID         string
		autoAnswer     bool
		identityDir    string
		udpPortLow     int
		udpPortHigh    int
		showVersion    bool
	)

	flagSet := pflag.NewFlagSet("kryptofon", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a kryptofon.yaml configuration file")
	flagSet.StringVar(&rendezvousHost, "rendezvous-host", "", "signaling relay host (overrides config)")
	flagSet.IntVar(&rendezvousPort, "rendezvous-port", 0, "signaling relay port (overrides config)")
	flagSet.StringVar(&userID, "user-id", "", "this endpoint's signaling user id (overrides config)")
	flagSet.BoolVar(&autoAnswer, "auto-answer", false, "accept inbound invites without prompting (overrides config)")
	flagSet.StringVar(&identityDir, "mykf-dir", "", "identity and call-history directory (default ~/.mykf)")
	flagSet.IntVar(&udpPortLow, "udp-port-low", 0, "lowest UDP port to try binding (overrides config)")
	flagSet.IntVar(&udpPortHigh, "udp-port-high", 0, "highest UDP port to try binding (overrides config)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.PrintDefaults()
		return nil
	}
	if showVersion {
		fmt.Printf("kryptofon %s\n", versionString)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if rendezvousHost != "" {
		cfg.RendezvousHost = rendezvousHost
	}
	if rendezvousPort != 0 {
		cfg.RendezvousPort = rendezvousPort
	}
	if userID != "" {
		cfg.UserID = userID
	}
	if autoAnswer {
		cfg.AutoAnswer = true
	}
	if identityDir != "" {
		cfg.IdentityDir = identityDir
	}
	if udpPortLow != 0 {
		cfg.UDPPortLow = udpPortLow
	}
	if udpPortHigh != 0 {
		cfg.UDPPortHigh = udpPortHigh
	}

	dir, err := cfg.ResolvedIdentityDir()
	if err != nil {
		return fmt.Errorf("resolving identity directory: %w", err)
	}

	id, err := identity.LoadOrCreate(dir, time.Now(), cfg.SealRecipients)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	defer id.Close()

	trustPath := filepath.Join(dir, identity.AuthorizedKeysFileName)
	if _, err := os.Stat(trustPath); os.IsNotExist(err) {
		if err := os.WriteFile(trustPath, nil, 0o600); err != nil {
			return fmt.Errorf("creating authorized-keys file: %w", err)
		}
	}
	trustStore, err := trust.LoadStore(trustPath, nil)
	if err != nil {
		return fmt.Errorf("loading trust store: %w", err)
	}

	rep, err := reputation.Open(dir)
	if err != nil {
		return fmt.Errorf("opening reputation store: %w", err)
	}
	defer rep.Close()

	clk := clock.Real()

	relayAddr := fmt.Sprintf("%s:%d", cfg.RendezvousHost, cfg.RendezvousPort)
	rendez := rendezvous.New(relayAddr, cfg.UserID, clk, nil)

	udp, err := netudp.Bind("", cfg.UDPPortLow, cfg.UDPPortHigh, nil)
	if err != nil {
		return fmt.Errorf("binding voice channel: %w", err)
	}
	defer udp.Close()

	device := audiodevice.New(newSilentHardware(), clk, nil)

	notifier := newConsoleNotifier()
	ctrl := session.New(
		session.Config{AutoAnswer: cfg.AutoAnswer, IdentityDir: dir},
		id, trustStore, rendez, udp, device, rep, clk, notifier, nil,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Run(ctx) }()

	fmt.Printf("[kryptofon] %s connecting to %s as %q\n", versionString, relayAddr, cfg.UserID)
	fmt.Println("[kryptofon] type 'help' for a list of commands")

	go runREPL(ctx, ctrl)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("signaling connection: %w", err)
		}
		return nil
	}
}

// runREPL reads commands from stdin until ctx is cancelled or stdin closes.
func runREPL(ctx context.Context, ctrl *session.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		dispatchCommand(ctx, ctrl, strings.TrimSpace(scanner.Text()))
	}
}

func dispatchCommand(ctx context.Context, ctrl *session.Controller, line string) {
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "help":
		printHelp()
	case "call":
		handleCall(ctx, ctrl, args)
	case "accept":
		if err := ctrl.Accept(ctx); err != nil {
			fmt.Printf("[kryptofon] %v\n", err)
		}
	case "reject":
		if err := ctrl.Reject(); err != nil {
			fmt.Printf("[kryptofon] %v\n", err)
		}
	case "bye", "hangup":
		if err := ctrl.Bye(); err != nil {
			fmt.Printf("[kryptofon] %v\n", err)
		}
	case "msg":
		handleMsg(ctrl, args)
	case "list":
		regex := ""
		if len(args) > 0 {
			regex = args[0]
		}
		if err := ctrl.ListPeers(regex); err != nil {
			fmt.Printf("[kryptofon] %v\n", err)
		}
	case "status":
		inCall, peerName, security := ctrl.Status()
		if inCall {
			fmt.Printf("[kryptofon] in call with %s (%s)\n", peerName, security)
		} else {
			fmt.Println("[kryptofon] idle")
		}
	default:
		fmt.Printf("[kryptofon] unknown command %q; type 'help'\n", cmd)
	}
}

func handleCall(ctx context.Context, ctrl *session.Controller, args []string) {
	if len(args) == 0 {
		fmt.Println("[kryptofon] usage: call <user> [--encrypt]")
		return
	}
	target := args[0]
	encrypt := len(args) > 1 && args[1] == "--encrypt"
	if err := ctrl.Invite(ctx, target, encrypt); err != nil {
		fmt.Printf("[kryptofon] %v\n", err)
	}
}

func handleMsg(ctrl *session.Controller, args []string) {
	if len(args) == 0 {
		fmt.Println("[kryptofon] usage: msg <text>")
		return
	}
	text := strings.Join(args, " ")
	if err := ctrl.SendText(text, false); err != nil {
		fmt.Printf("[kryptofon] %v\n", err)
	}
}

func printHelp() {
	fmt.Print(`commands:
  call <user> [--encrypt]   place an outbound call, optionally encrypted
  accept                    accept the pending inbound invite
  reject                    reject the pending inbound invite
  bye                       hang up the active call or cancel an invite
  msg <text>                send a text message to the active peer
  list [regex]              query the relay for present users
  status                    show current call status
  help                      show this message
`)
}
