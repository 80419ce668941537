// Package trust implements the authorized-keys store and the per-peer
// public encryptor built from a signed public key received over
// signaling.
package trust

import (
	"bufio"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/IrtazaS/kryptofon/internal/envelope"
	"github.com/IrtazaS/kryptofon/internal/rsacbc"
)

// Entry is one trusted public key: the key itself, the comment embedded
// in its NamedPublicKey encoding (assigned at key-generation time by its
// owner), and the free-text trust label assigned by the local operator
// when adding it to the authorized-keys file. Verify reports the trust
// label as the verificator name.
type Entry struct {
	PublicKey    *rsa.PublicKey
	KeyComment   string
	TrustComment string
}

// Store is an immutable-per-reload set of authorized public keys. Reload
// atomically replaces the entry set; concurrent Verify calls always see a
// consistent snapshot.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	logger  *slog.Logger
}

// NewStore returns an empty store. Use Reload to populate it from a file.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// LoadStore reads an authorized-keys file and returns a populated Store.
func LoadStore(path string, logger *slog.Logger) (*Store, error) {
	s := NewStore(logger)
	if err := s.Reload(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads path and atomically replaces the store's entry set.
// Malformed lines are logged and skipped rather than failing the whole
// load.
func (s *Store) Reload(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("trust: open authorized keys file: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		keyB64 := fields[0]
		trustComment := ""
		if len(fields) == 2 {
			trustComment = strings.TrimSpace(fields[1])
		}

		der, err := base64.StdEncoding.DecodeString(keyB64)
		if err != nil {
			s.logger.Warn("trust: skipping malformed authorized-keys line", "line", lineNo, "error", err)
			continue
		}
		pub, keyComment, err := envelope.DecodeNamedPublicKey(der)
		if err != nil {
			s.logger.Warn("trust: skipping malformed authorized-keys line", "line", lineNo, "error", err)
			continue
		}

		entries = append(entries, Entry{PublicKey: pub, KeyComment: keyComment, TrustComment: trustComment})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("trust: scan authorized keys file: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// Verify checks signature over payload against every authorized key and
// returns the trust comment of the first key that validates it. ok is
// false if no authorized key matches.
func (s *Store) Verify(payload, signature []byte) (verificator string, ok bool) {
	s.mu.RLock()
	entries := s.entries
	s.mu.RUnlock()

	for _, e := range entries {
		if rsacbc.Verify(e.PublicKey, payload, signature) {
			return e.TrustComment, true
		}
	}
	return "", false
}

// Len returns the number of authorized keys currently loaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// AppendEntry adds one authorized key to the file at path, in the format
// Reload expects. Used by operator tooling, not the signaling path.
func AppendEntry(path string, pub *rsa.PublicKey, keyComment, trustComment string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("trust: open authorized keys file for append: %w", err)
	}
	defer f.Close()

	encoded := base64.StdEncoding.EncodeToString(envelope.EncodeNamedPublicKey(pub, keyComment))
	line := fmt.Sprintf("%s %s\n", encoded, trustComment)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("trust: append authorized keys entry: %w", err)
	}
	return nil
}
