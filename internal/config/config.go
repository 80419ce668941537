// Package config loads the endpoint's optional YAML configuration file
// (rendezvous host/port defaults, local user id, auto-answer policy) and
// the optional JSONC authorized-keys display-metadata sidecar.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the endpoint's file-based configuration. Every field has a
// sensible default from Default(); the file only needs to override what
// differs from it.
type Config struct {
	// RendezvousHost and RendezvousPort address the signaling relay.
	RendezvousHost string `yaml:"rendezvous_host"`
	RendezvousPort int    `yaml:"rendezvous_port"`

	// UserID is this endpoint's signaling user id on the rendezvous
	// channel.
	UserID string `yaml:"user_id"`

	// AutoAnswer accepts inbound INVITEs without prompting.
	AutoAnswer bool `yaml:"auto_answer"`

	// IdentityDir overrides the default identity directory (~/.mykf).
	IdentityDir string `yaml:"identity_dir,omitempty"`

	// UDPPortLow and UDPPortHigh bound the voice datagram channel's bind
	// range.
	UDPPortLow  int `yaml:"udp_port_low"`
	UDPPortHigh int `yaml:"udp_port_high"`

	// SealRecipients lists age recipients the identity's private key is
	// sealed to at rest. Empty means file-permission-only protection.
	SealRecipients []string `yaml:"seal_recipients,omitempty"`
}

// Default returns the configuration used when no file is supplied or a
// field is left unset.
func Default() *Config {
	return &Config{
		RendezvousHost: "localhost",
		RendezvousPort: 7000,
		UserID:         defaultUserID(),
		AutoAnswer:     false,
		UDPPortLow:     33000,
		UDPPortHigh:    33100,
	}
}

func defaultUserID() string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "anonymous"
}

// Load reads configuration from path, merging onto Default(). A path
// that does not exist is not an error — Default() is returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// ResolvedIdentityDir returns the configured identity directory, or the
// default "~/.mykf" if IdentityDir is unset.
func (c *Config) ResolvedIdentityDir() (string, error) {
	if c.IdentityDir != "" {
		return c.IdentityDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".mykf"), nil
}
