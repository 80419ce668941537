// Package symmetric implements the per-call session cipher: Blowfish in
// CBC/PKCS5Padding mode, with a random preamble prepended to the plaintext
// before encryption so that repeated frames differ in ciphertext after the
// first block even though the initialization vector is fixed. The first
// ciphertext block is the same for every frame under one key (see the
// security note on zeroIV below).
package symmetric

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blowfish"

	"github.com/IrtazaS/kryptofon/internal/secretmem"
)

// KeySize is the session key size in bytes. The original implementation
// starts Blowfish at a 32-bit key; this is weak by modern standards but is
// kept for wire compatibility with the signaling envelope format.
const KeySize = 4

// PDUPreambleSize is the random preamble length prepended to voice PDU
// plaintext before encryption.
const PDUPreambleSize = 8

// MessagePreambleSize is the random preamble length prepended to text
// message plaintext before encryption.
const MessagePreambleSize = 256

// beginMarker prefixes text-message plaintext so the receiver can tell a
// successful decrypt from a decrypt that merely produced garbage.
const beginMarker = "[BEGIN]"

// zeroIV is the initialization vector used for every CBC operation in this
// package.
//
// Security note: reusing a fixed (zero) IV across every frame of a session
// is a known weakness — it lets an attacker who sees two ciphertexts under
// the same key detect repeated plaintext prefixes. The session key itself
// is fresh per call, which bounds the exposure to a single call, but this
// is still weaker than a per-frame random IV. Kept as-is for bit
// compatibility with the original wire format; the random preamble
// prepended to every plaintext is what actually decorrelates ciphertexts
// frame to frame.
var zeroIV = make([]byte, blowfish.BlockSize)

// Cipher is a session symmetric cipher bound to one call. The key is held
// in locked, zero-on-close memory.
type Cipher struct {
	key         *secretmem.Buffer
	verificator string
}

// Generate creates a fresh local session key with no verificator (the
// caller of Generate is the party originating the key, not verifying one
// received from a peer).
func Generate() (*Cipher, error) {
	raw := make([]byte, KeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("symmetric: generate key: %w", err)
	}
	buf, err := secretmem.NewFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("symmetric: protect key: %w", err)
	}
	return &Cipher{key: buf}, nil
}

// Wrap constructs a Cipher from key bytes received from a peer (after
// asymmetric unwrap), tagging it with the verificator name established
// during signature verification of the enclosing envelope ("" if
// unverified).
func Wrap(keyBytes []byte, verificator string) (*Cipher, error) {
	raw := make([]byte, len(keyBytes))
	copy(raw, keyBytes)
	buf, err := secretmem.NewFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("symmetric: protect key: %w", err)
	}
	return &Cipher{key: buf, verificator: verificator}, nil
}

// KeyBytes returns the raw session key bytes, for inclusion in the signed
// envelope sent to a peer. Callers must not retain the returned slice.
func (c *Cipher) KeyBytes() []byte { return c.key.Bytes() }

// Verificator returns the name of the authorized key that verified the
// envelope this session key arrived in, or "" if the call is encrypted but
// unverified.
func (c *Cipher) Verificator() string { return c.verificator }

// Verified reports whether the session key's enclosing envelope was
// signed by a key in the local authorized-keys store.
func (c *Cipher) Verified() bool { return c.verificator != "" }

// Close releases the session key's protected memory.
func (c *Cipher) Close() error { return c.key.Close() }

func pkcs5Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs5Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("symmetric: cannot unpad empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > blowfish.BlockSize {
		return nil, fmt.Errorf("symmetric: invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("symmetric: malformed padding")
		}
	}
	return data[:len(data)-padLen], nil
}

func (c *Cipher) blockCipher() (cipher.Block, error) {
	block, err := blowfish.NewCipher(c.key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("symmetric: init blowfish: %w", err)
	}
	return block, nil
}

// prefixLen is the combined length of the leading IV bytes and the random
// preamble that every plaintext is padded with before encryption: the
// plaintext block is IV || random_preamble || data, per the wire format.
func prefixLen(preambleSize int) int {
	return len(zeroIV) + preambleSize
}

func (c *Cipher) encrypt(plaintext []byte, preambleSize int) ([]byte, error) {
	preamble := make([]byte, preambleSize)
	if _, err := rand.Read(preamble); err != nil {
		return nil, fmt.Errorf("symmetric: generate preamble: %w", err)
	}

	full := make([]byte, 0, prefixLen(preambleSize)+len(plaintext))
	full = append(full, zeroIV...)
	full = append(full, preamble...)
	full = append(full, plaintext...)

	block, err := c.blockCipher()
	if err != nil {
		return nil, err
	}
	padded := pkcs5Pad(full, blowfish.BlockSize)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(out, padded)
	return out, nil
}

func (c *Cipher) decrypt(ciphertext []byte, preambleSize int) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%blowfish.BlockSize != 0 {
		return nil, fmt.Errorf("symmetric: ciphertext length %d is not a multiple of block size", len(ciphertext))
	}

	block, err := c.blockCipher()
	if err != nil {
		return nil, err
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(padded, ciphertext)

	full, err := pkcs5Unpad(padded)
	if err != nil {
		return nil, err
	}
	skip := prefixLen(preambleSize)
	if len(full) < skip {
		return nil, fmt.Errorf("symmetric: decrypted payload shorter than IV and preamble")
	}
	return full[skip:], nil
}

// EncryptPDU encrypts a voice PDU's plaintext bytes for transmission.
func (c *Cipher) EncryptPDU(plaintext []byte) ([]byte, error) {
	return c.encrypt(plaintext, PDUPreambleSize)
}

// DecryptPDU decrypts a received voice PDU's ciphertext. A non-nil error
// means the caller should silently drop the datagram — decrypt failures
// cannot distinguish an attacker from ordinary packet corruption.
func (c *Cipher) DecryptPDU(ciphertext []byte) ([]byte, error) {
	return c.decrypt(ciphertext, PDUPreambleSize)
}

// EncryptMessage encrypts a text message, prefixing the begin marker so
// the receiver can distinguish a genuine decrypt from noise.
func (c *Cipher) EncryptMessage(plaintext []byte) ([]byte, error) {
	marked := make([]byte, 0, len(beginMarker)+len(plaintext))
	marked = append(marked, beginMarker...)
	marked = append(marked, plaintext...)
	return c.encrypt(marked, MessagePreambleSize)
}

// DecryptMessage decrypts a received text message's ciphertext and
// verifies the begin marker. Returns an error if the marker is missing,
// which the caller should treat as a dropped/corrupt message.
func (c *Cipher) DecryptMessage(ciphertext []byte) ([]byte, error) {
	marked, err := c.decrypt(ciphertext, MessagePreambleSize)
	if err != nil {
		return nil, err
	}
	if len(marked) < len(beginMarker) || string(marked[:len(beginMarker)]) != beginMarker {
		return nil, fmt.Errorf("symmetric: missing begin marker")
	}
	return marked[len(beginMarker):], nil
}
