package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.RendezvousPort != 7000 {
		t.Fatalf("RendezvousPort = %d, want 7000", cfg.RendezvousPort)
	}
	if cfg.UDPPortLow != 33000 || cfg.UDPPortHigh != 33100 {
		t.Fatalf("UDP port range = [%d,%d], want [33000,33100]", cfg.UDPPortLow, cfg.UDPPortHigh)
	}
	if cfg.AutoAnswer {
		t.Fatal("AutoAnswer should default to false")
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RendezvousHost != "localhost" {
		t.Fatalf("RendezvousHost = %q, want default", cfg.RendezvousHost)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kryptofon.yaml")
	contents := "rendezvous_host: relay.example.com\nrendezvous_port: 9000\nuser_id: alice\nauto_answer: true\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RendezvousHost != "relay.example.com" || cfg.RendezvousPort != 9000 {
		t.Fatalf("cfg = %+v, want overridden host/port", cfg)
	}
	if cfg.UserID != "alice" || !cfg.AutoAnswer {
		t.Fatalf("cfg = %+v, want alice/auto-answer", cfg)
	}
	// Fields left unset in the file keep their defaults.
	if cfg.UDPPortLow != 33000 {
		t.Fatalf("UDPPortLow = %d, want default 33000", cfg.UDPPortLow)
	}
}

func TestResolvedIdentityDirOverride(t *testing.T) {
	cfg := Default()
	cfg.IdentityDir = "/tmp/custom-mykf"
	dir, err := cfg.ResolvedIdentityDir()
	if err != nil {
		t.Fatalf("ResolvedIdentityDir: %v", err)
	}
	if dir != "/tmp/custom-mykf" {
		t.Fatalf("dir = %q, want override", dir)
	}
}

func TestLoadPeerMetaMissingFileReturnsEmpty(t *testing.T) {
	meta, err := LoadPeerMeta(t.TempDir())
	if err != nil {
		t.Fatalf("LoadPeerMeta: %v", err)
	}
	if len(meta) != 0 {
		t.Fatalf("meta = %+v, want empty", meta)
	}
}

func TestLoadPeerMetaParsesJSONCWithComments(t *testing.T) {
	dir := t.TempDir()
	contents := `{
		// alice's laptop key
		"alice-laptop": {"display_name": "Alice", "notes": "verified in person"},
		"bob-phone": {"display_name": "Bob"},
	}`
	if err := os.WriteFile(filepath.Join(dir, PeerMetaFileName), []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	meta, err := LoadPeerMeta(dir)
	if err != nil {
		t.Fatalf("LoadPeerMeta: %v", err)
	}
	if meta["alice-laptop"].DisplayName != "Alice" || meta["alice-laptop"].Notes != "verified in person" {
		t.Fatalf("alice-laptop meta = %+v", meta["alice-laptop"])
	}
	if meta["bob-phone"].DisplayName != "Bob" {
		t.Fatalf("bob-phone meta = %+v", meta["bob-phone"])
	}
}
