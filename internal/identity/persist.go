package identity

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/IrtazaS/kryptofon/internal/envelope"
	"github.com/IrtazaS/kryptofon/internal/secretmem"
)

// LoadOrCreate loads the identity persisted under dir, or generates and
// persists a new one if dir has no identity yet. If sealRecipients is
// non-empty, a newly generated identity's private-key file is sealed to
// those age recipients instead of relying on file permissions alone.
func LoadOrCreate(dir string, now time.Time, sealRecipients []string) (*Identity, error) {
	id, err := Load(dir, nil)
	if err == nil {
		return id, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	id, err = New(now)
	if err != nil {
		return nil, fmt.Errorf("identity: generate new identity: %w", err)
	}
	if err := id.Save(dir, sealRecipients); err != nil {
		id.Close()
		return nil, err
	}
	return id, nil
}

// Load reads the identity persisted under dir. If the stored file was
// sealed to an age recipient, operatorPrivateKey must be the matching
// identity key; pass nil for unsealed (permission-only-protected) files.
//
// Returns an error satisfying os.IsNotExist if no identity file exists at
// dir yet.
func Load(dir string, operatorPrivateKey *secretmem.Buffer) (*Identity, error) {
	path := filepath.Join(dir, PrivateKeyFileName)
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []byte
	if isSealedFile(contents) {
		if operatorPrivateKey == nil {
			return nil, fmt.Errorf("identity: %s is sealed but no operator key was supplied", path)
		}
		ciphertext, err := unwrapSealed(contents)
		if err != nil {
			return nil, err
		}
		plaintext, err := unsealBytes(ciphertext, operatorPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("identity: unseal %s: %w", path, err)
		}
		raw, err = base64.StdEncoding.DecodeString(string(plaintext))
		if err != nil {
			return nil, fmt.Errorf("identity: decode unsealed %s: %w", path, err)
		}
	} else {
		raw, err = base64.StdEncoding.DecodeString(string(contents))
		if err != nil {
			return nil, fmt.Errorf("identity: decode %s: %w", path, err)
		}
	}

	priv, comment, err := envelope.DecodeNamedKeyPair(raw)
	if err != nil {
		return nil, fmt.Errorf("identity: parse %s: %w", path, err)
	}

	return fromPrivateKey(priv, comment)
}

// Save persists the identity's private key under dir (creating it with
// owner-only permissions if it does not exist) and writes the matching
// public-key file. If sealRecipients is non-empty, the private-key file
// is age-sealed to those recipients; otherwise it relies on the
// directory/file mode alone.
func (id *Identity) Save(dir string, sealRecipients []string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("identity: create %s: %w", dir, err)
	}

	priv, err := id.privateKey()
	if err != nil {
		return err
	}
	der := envelope.EncodeNamedKeyPair(priv, id.comment)
	encoded := []byte(base64.StdEncoding.EncodeToString(der))

	var fileContents []byte
	if len(sealRecipients) > 0 {
		sealed, err := sealBytes(encoded, sealRecipients)
		if err != nil {
			return fmt.Errorf("identity: seal private key: %w", err)
		}
		fileContents = wrapSealed(sealed)
	} else {
		fileContents = encoded
	}

	privPath := filepath.Join(dir, PrivateKeyFileName)
	if err := os.WriteFile(privPath, fileContents, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", privPath, err)
	}

	pubDER := envelope.EncodeNamedPublicKey(id.pub, id.comment)
	pubEncoded := base64.StdEncoding.EncodeToString(pubDER) + " " + id.comment + "\n"
	pubPath := filepath.Join(dir, PublicKeyFileName)
	if err := os.WriteFile(pubPath, []byte(pubEncoded), 0o644); err != nil {
		return fmt.Errorf("identity: write %s: %w", pubPath, err)
	}

	return nil
}
