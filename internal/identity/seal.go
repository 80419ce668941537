package identity

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/IrtazaS/kryptofon/internal/secretmem"
)

// Age-based at-rest sealing of the persisted private-key file. This is an
// enrichment beyond the original, which relied solely on restrictive file
// permissions: an operator who supplies an age
// recipient has the private-key file sealed to it; the bare permission
// restriction remains the default when no recipient is configured.

// GenerateOperatorKeypair creates a fresh age x25519 keypair an operator
// can use as the recipient/identity pair for sealing an identity file.
// The private key is returned in locked, zero-on-close memory.
func GenerateOperatorKeypair() (private *secretmem.Buffer, publicKey string, err error) {
	ageIdentity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, "", fmt.Errorf("identity: generate age keypair: %w", err)
	}

	raw := []byte(ageIdentity.String())
	buf, err := secretmem.NewFromBytes(raw)
	if err != nil {
		return nil, "", fmt.Errorf("identity: protect age private key: %w", err)
	}
	return buf, ageIdentity.Recipient().String(), nil
}

// sealBytes encrypts data to one or more age recipients.
func sealBytes(data []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("identity: at least one seal recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("identity: parse seal recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var out bytes.Buffer
	writer, err := age.Encrypt(&out, recipients...)
	if err != nil {
		return nil, fmt.Errorf("identity: create age encryptor: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("identity: write sealed identity: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("identity: finalize seal: %w", err)
	}
	return out.Bytes(), nil
}

// unsealBytes decrypts data sealed by sealBytes using the operator's
// private key.
func unsealBytes(data []byte, operatorPrivateKey *secretmem.Buffer) ([]byte, error) {
	ageIdentity, err := age.ParseX25519Identity(string(operatorPrivateKey.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("identity: parse operator private key: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(data), ageIdentity)
	if err != nil {
		return nil, fmt.Errorf("identity: decrypt sealed identity: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("identity: read unsealed identity: %w", err)
	}
	return plaintext, nil
}

// sealedFilePrefix identifies a sealed identity file at rest so Load can
// distinguish it from a bare (permission-only-protected) one without an
// operator key being passed in by mistake.
const sealedFilePrefix = "kryptofon-sealed-identity-v1\n"

func isSealedFile(contents []byte) bool {
	return bytes.HasPrefix(contents, []byte(sealedFilePrefix))
}

func wrapSealed(ciphertext []byte) []byte {
	prefixed := make([]byte, 0, len(sealedFilePrefix)+base64.StdEncoding.EncodedLen(len(ciphertext)))
	prefixed = append(prefixed, sealedFilePrefix...)
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(ciphertext)))
	base64.StdEncoding.Encode(encoded, ciphertext)
	return append(prefixed, encoded...)
}

func unwrapSealed(contents []byte) ([]byte, error) {
	body := contents[len(sealedFilePrefix):]
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(decoded, body)
	if err != nil {
		return nil, fmt.Errorf("identity: decode sealed identity file: %w", err)
	}
	return decoded[:n], nil
}
