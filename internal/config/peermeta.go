package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// PeerMetaFileName is the authorized-keys display-metadata sidecar's
// name under the identity directory. It carries presentation details —
// a friendly display name and free-text notes — keyed by the key
// comment embedded in each authorized public key, since the
// authorized-keys file itself is a plain trust list and has no room for
// this. It is optional and never consulted for trust decisions.
const PeerMetaFileName = "peers.jsonc"

// PeerMeta is one authorized key's display metadata.
type PeerMeta struct {
	DisplayName string `json:"display_name,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// LoadPeerMeta reads the peers.jsonc sidecar from dir, keyed by key
// comment. A missing file returns an empty map, not an error. Comments
// and trailing commas in the file are stripped before JSON parsing.
func LoadPeerMeta(dir string) (map[string]PeerMeta, error) {
	path := filepath.Join(dir, PeerMetaFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]PeerMeta{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	stripped := jsonc.ToJSON(data)
	meta := make(map[string]PeerMeta)
	if err := json.Unmarshal(stripped, &meta); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return meta, nil
}
