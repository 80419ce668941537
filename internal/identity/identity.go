// Package identity implements the long-lived asymmetric identity: an
// RSA-1024 key pair, persisted under the user's private directory, used
// to sign outgoing signaling payloads and to unwrap session keys sent by
// peers.
package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/IrtazaS/kryptofon/internal/envelope"
	"github.com/IrtazaS/kryptofon/internal/rsacbc"
	"github.com/IrtazaS/kryptofon/internal/secretmem"
	"github.com/IrtazaS/kryptofon/internal/symmetric"
	"github.com/IrtazaS/kryptofon/internal/trust"
)

// KeyBits is the RSA modulus size used for every identity. Fixed at 1024
// to match the original wire format's CBC-over-RSA block-size assumptions.
const KeyBits = 1024

// DefaultDirName is the directory name created under the user's home
// directory to hold identity and authorized-keys files.
const DefaultDirName = ".mykf"

// PrivateKeyFileName is the file holding the local NamedKeyPair.
const PrivateKeyFileName = "mykf-private-key.txt"

// PublicKeyFileName is the file holding the local NamedPublicKey, ready
// to hand to a peer or append to another identity's authorized-keys file.
const PublicKeyFileName = "mykf-public-key.txt"

// AuthorizedKeysFileName is the local trust store file (see internal/trust).
const AuthorizedKeysFileName = "mykf-authorized-keys.txt"

// sanityCheckSize is the amount of random data encrypted and decrypted at
// construction time to validate the key pair end to end.
const sanityCheckSize = 2048

// Identity is a process's long-lived asymmetric identity. The private
// key's DER encoding is held in locked, zero-on-close memory; parsed
// working copies are short-lived and collected normally by the Go
// garbage collector.
type Identity struct {
	privDER *secretmem.Buffer
	pub     *rsa.PublicKey
	comment string
}

// Dir returns the default identity directory, $HOME/.mykf.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("identity: resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultDirName), nil
}

// New generates a fresh RSA-1024 key pair, assigns it a comment of the
// form "rsa-key-<timestamp>-<blake3 fingerprint>", and validates it with
// an encrypt/decrypt sanity check.
func New(now time.Time) (*Identity, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return fromPrivateKey(priv, commentFor(&priv.PublicKey, now))
}

func commentFor(pub *rsa.PublicKey, now time.Time) string {
	der := envelope.EncodeNamedPublicKey(pub, "")
	fingerprint := blake3.Sum256(der)
	return fmt.Sprintf("rsa-key-%s%03d-%x", now.Format("2006-01-02-150405"), now.Nanosecond()/int(time.Millisecond), fingerprint[:6])
}

func fromPrivateKey(priv *rsa.PrivateKey, comment string) (*Identity, error) {
	if rsacbc.EncryptBlockSize(&priv.PublicKey) <= 0 {
		return nil, fmt.Errorf("identity: key too small: encrypt block size is non-positive")
	}
	if rsacbc.DecryptBlockSize(priv) <= 0 {
		return nil, fmt.Errorf("identity: key too small: decrypt block size is non-positive")
	}

	der := envelope.EncodeNamedKeyPair(priv, comment)
	buf, err := secretmem.NewFromBytes(der)
	if err != nil {
		return nil, fmt.Errorf("identity: protect private key: %w", err)
	}

	id := &Identity{privDER: buf, pub: &priv.PublicKey, comment: comment}
	if err := id.sanityCheck(); err != nil {
		id.Close()
		return nil, err
	}
	return id, nil
}

func (id *Identity) privateKey() (*rsa.PrivateKey, error) {
	priv, _, err := envelope.DecodeNamedKeyPair(id.privDER.Bytes())
	if err != nil {
		return nil, fmt.Errorf("identity: parse private key: %w", err)
	}
	return priv, nil
}

func (id *Identity) sanityCheck() error {
	probe := make([]byte, sanityCheckSize)
	if _, err := rand.Read(probe); err != nil {
		return fmt.Errorf("identity: sanity check: generate probe: %w", err)
	}

	ciphertext, err := rsacbc.Encrypt(id.pub, probe)
	if err != nil {
		return fmt.Errorf("identity: sanity check: encrypt: %w", err)
	}

	priv, err := id.privateKey()
	if err != nil {
		return err
	}
	plaintext, err := rsacbc.Decrypt(priv, ciphertext)
	if err != nil {
		return fmt.Errorf("identity: sanity check: decrypt: %w", err)
	}
	if len(plaintext) != len(probe) {
		return fmt.Errorf("identity: sanity check: round trip length mismatch")
	}
	for i := range probe {
		if probe[i] != plaintext[i] {
			return fmt.Errorf("identity: sanity check: round trip content mismatch")
		}
	}
	return nil
}

// PublicKey returns the identity's public key.
func (id *Identity) PublicKey() *rsa.PublicKey { return id.pub }

// Comment returns the identity's comment (embedded in the NamedKeyPair /
// NamedPublicKey on disk and over the wire).
func (id *Identity) Comment() string { return id.comment }

// Sign produces a SHA1withRSA signature over payload.
func (id *Identity) Sign(payload []byte) ([]byte, error) {
	priv, err := id.privateKey()
	if err != nil {
		return nil, err
	}
	return rsacbc.Sign(priv, payload)
}

// SignedPublicKeyBase64 returns this identity's NamedPublicKey, signed by
// itself (self-signed) and base64-encoded, ready for the "secret" field
// of an INVITE or RING signaling message. The signature is over the
// NamedPublicKey encoding, verifiable against this identity's own public
// key once it is in the recipient's authorized-keys store.
func (id *Identity) SignedPublicKeyBase64() (string, error) {
	payload := envelope.EncodeNamedPublicKey(id.pub, id.comment)
	sig, err := id.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("identity: sign public key: %w", err)
	}
	env := envelope.Envelope{Payload: payload, Signature: sig}
	return base64.StdEncoding.EncodeToString(env.Encode()), nil
}

// UnwrapSessionKey decrypts a base64 session-key envelope received in an
// ACCEPT message's "secret" field: base64 decode, software-CBC-over-RSA
// decrypt, parse the inner signed envelope, verify against store (if
// non-nil), and wrap the key bytes as a symmetric.Cipher.
func (id *Identity) UnwrapSessionKey(envelopeB64 string, store *trust.Store) (*symmetric.Cipher, error) {
	raw, err := base64.StdEncoding.DecodeString(envelopeB64)
	if err != nil {
		return nil, fmt.Errorf("identity: decode session key envelope: %w", err)
	}

	priv, err := id.privateKey()
	if err != nil {
		return nil, err
	}
	decrypted, err := rsacbc.Decrypt(priv, raw)
	if err != nil {
		return nil, fmt.Errorf("identity: decrypt session key envelope: %w", err)
	}

	env, err := envelope.Decode(decrypted)
	if err != nil {
		return nil, fmt.Errorf("identity: decode inner envelope: %w", err)
	}

	verificator := ""
	if store != nil {
		if v, ok := store.Verify(env.Payload, env.Signature); ok {
			verificator = v
		}
	}

	return symmetric.Wrap(env.Payload, verificator)
}

// SignedSessionKeyFor encrypts a freshly signed session key envelope for
// peer, to be placed in the "secret" field of an ACCEPT message: sign the
// raw key bytes with this identity, then encrypt the resulting envelope
// under the peer's public key.
func (id *Identity) SignedSessionKeyFor(peer interface{ Encrypt([]byte) ([]byte, error) }, cipher *symmetric.Cipher) (string, error) {
	sig, err := id.Sign(cipher.KeyBytes())
	if err != nil {
		return "", fmt.Errorf("identity: sign session key: %w", err)
	}
	env := envelope.Envelope{Payload: cipher.KeyBytes(), Signature: sig}
	ciphertext, err := peer.Encrypt(env.Encode())
	if err != nil {
		return "", fmt.Errorf("identity: encrypt session key for peer: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Close releases the identity's protected private-key memory.
func (id *Identity) Close() error { return id.privDER.Close() }
