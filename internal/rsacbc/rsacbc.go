// Package rsacbc emulates CBC chaining over RSA/ECB/PKCS1Padding.
//
// Most crypto libraries, including the Go standard library, expose only
// ECB-mode RSA (one PKCS#1 v1.5 block in, one block out). The original
// protocol chains successive RSA blocks the way CBC chains successive
// cipher blocks: each plaintext block is XORed with the previous
// ciphertext block before encryption, and the first block is XORed with
// an all-zero initial vector. This package reproduces that scheme so the
// session-key envelope format matches exactly.
package rsacbc

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"fmt"
)

// EncryptBlockSize returns the plaintext block size used when encrypting
// under pub: the PKCS#1 v1.5 maximum message size for this key (modulus
// size minus 11 bytes of padding overhead).
func EncryptBlockSize(pub *rsa.PublicKey) int {
	return pub.Size() - 11
}

// DecryptBlockSize returns the ciphertext block size used when decrypting
// under priv: one RSA block is exactly the modulus size in bytes.
func DecryptBlockSize(priv *rsa.PrivateKey) int {
	return priv.Size()
}

// Encrypt encrypts plaintext under pub using the software CBC-over-RSA
// scheme: each plaintext block (at most EncryptBlockSize(pub) bytes) is
// XORed with the previous block's ciphertext (zero for the first block),
// then RSA/PKCS1v15-encrypted. Blocks are concatenated in order.
func Encrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	blockSize := EncryptBlockSize(pub)
	if blockSize <= 0 {
		return nil, fmt.Errorf("rsacbc: key too small for PKCS1 padding (modulus %d bytes)", pub.Size())
	}

	out := make([]byte, 0, (len(plaintext)/blockSize+1)*pub.Size())
	chain := make([]byte, blockSize)

	for offset := 0; offset < len(plaintext); offset += blockSize {
		end := offset + blockSize
		if end > len(plaintext) {
			end = len(plaintext)
		}
		block := plaintext[offset:end]

		xored := make([]byte, len(block))
		for i := range block {
			xored[i] = block[i] ^ chain[i]
		}

		cipherBlock, err := rsa.EncryptPKCS1v15(rand.Reader, pub, xored)
		if err != nil {
			return nil, fmt.Errorf("rsacbc: encrypt block at offset %d: %w", offset, err)
		}
		out = append(out, cipherBlock...)

		chain = cipherBlock
	}
	return out, nil
}

// Decrypt decrypts ciphertext (produced by Encrypt) under priv, reversing
// the software CBC-over-RSA scheme block by block.
func Decrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	blockSize := DecryptBlockSize(priv)
	if blockSize <= 0 {
		return nil, fmt.Errorf("rsacbc: invalid key, modulus size %d", blockSize)
	}
	if len(ciphertext)%blockSize != 0 {
		return nil, fmt.Errorf("rsacbc: ciphertext length %d is not a multiple of block size %d", len(ciphertext), blockSize)
	}

	var out []byte
	chain := make([]byte, blockSize)

	for offset := 0; offset < len(ciphertext); offset += blockSize {
		cipherBlock := ciphertext[offset : offset+blockSize]

		plainBlock, err := rsa.DecryptPKCS1v15(rand.Reader, priv, cipherBlock)
		if err != nil {
			return nil, fmt.Errorf("rsacbc: decrypt block at offset %d: %w", offset, err)
		}

		unxored := make([]byte, len(plainBlock))
		for i := range plainBlock {
			unxored[i] = plainBlock[i] ^ chain[i]
		}
		out = append(out, unxored...)

		chain = cipherBlock
	}
	return out, nil
}

// Sign produces a SHA1withRSA signature over payload.
func Sign(priv *rsa.PrivateKey, payload []byte) ([]byte, error) {
	digest := sha1.Sum(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA1, digest[:])
	if err != nil {
		return nil, fmt.Errorf("rsacbc: sign: %w", err)
	}
	return sig, nil
}

// Verify checks a SHA1withRSA signature over payload against pub.
func Verify(pub *rsa.PublicKey, payload, signature []byte) bool {
	digest := sha1.Sum(payload)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], signature) == nil
}
