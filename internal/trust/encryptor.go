package trust

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/IrtazaS/kryptofon/internal/envelope"
	"github.com/IrtazaS/kryptofon/internal/rsacbc"
)

// PublicEncryptor wraps a peer's public key, received as a signed
// envelope inside an INVITE/RING signaling payload, and verified against
// the local authorized-keys store.
type PublicEncryptor struct {
	pub         *rsa.PublicKey
	keyComment  string
	verificator string
	verified    bool
}

// NewPublicEncryptor parses a base64-encoded signed envelope carrying a
// NamedPublicKey, as sent in the "secret" field of INVITE/RING. If store
// is non-nil, the envelope's signature is checked against it; the result
// is recorded but is not itself an error — an unverified peer key still
// produces a usable (if untrusted) encryptor, so a call can proceed
// securely even when the peer's identity is not in the trust store.
func NewPublicEncryptor(signedB64 string, store *Store) (*PublicEncryptor, error) {
	raw, err := base64.StdEncoding.DecodeString(signedB64)
	if err != nil {
		return nil, fmt.Errorf("trust: decode signed public key: %w", err)
	}

	env, err := envelope.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("trust: decode envelope: %w", err)
	}

	pub, keyComment, err := envelope.DecodeNamedPublicKey(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("trust: decode named public key: %w", err)
	}

	pe := &PublicEncryptor{pub: pub, keyComment: keyComment}
	if store != nil {
		if verificator, ok := store.Verify(env.Payload, env.Signature); ok {
			pe.verificator = verificator
			pe.verified = true
		}
	}
	return pe, nil
}

// Encrypt encrypts plaintext under the peer's public key using the
// software CBC-over-RSA scheme.
func (pe *PublicEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	return rsacbc.Encrypt(pe.pub, plaintext)
}

// Verified reports whether the envelope this key arrived in was signed
// by a key in the local authorized-keys store.
func (pe *PublicEncryptor) Verified() bool { return pe.verified }

// Verificator returns the trust comment of the authorized key that
// verified this peer's key, or "" if unverified.
func (pe *PublicEncryptor) Verificator() string { return pe.verificator }

// KeyComment returns the comment embedded in the peer's NamedPublicKey.
func (pe *PublicEncryptor) KeyComment() string { return pe.keyComment }

// PublicKey returns the peer's raw RSA public key.
func (pe *PublicEncryptor) PublicKey() *rsa.PublicKey { return pe.pub }
