package rsacbc

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return priv
}

func TestRoundTripVariousLengths(t *testing.T) {
	priv := testKey(t)

	for _, n := range []int{1, 16, 100, 113, 114, 115, 500, 2048, 4096} {
		plaintext := make([]byte, n)
		if _, err := rand.Read(plaintext); err != nil {
			t.Fatal(err)
		}

		ciphertext, err := Encrypt(&priv.PublicKey, plaintext)
		if err != nil {
			t.Fatalf("Encrypt(len=%d): %v", n, err)
		}
		got, err := Decrypt(priv, ciphertext)
		if err != nil {
			t.Fatalf("Decrypt(len=%d): %v", n, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip mismatch at len=%d", n)
		}
	}
}

func TestSignVerify(t *testing.T) {
	priv := testKey(t)
	payload := []byte("invite from alice to bob")

	sig, err := Sign(priv, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(&priv.PublicKey, payload, sig) {
		t.Fatal("Verify failed for valid signature")
	}

	other := testKey(t)
	if Verify(&other.PublicKey, payload, sig) {
		t.Fatal("Verify succeeded against wrong key")
	}

	tampered := append([]byte(nil), payload...)
	tampered[0] ^= 0xFF
	if Verify(&priv.PublicKey, tampered, sig) {
		t.Fatal("Verify succeeded for tampered payload")
	}
}

func TestBlockSizeInvariant(t *testing.T) {
	priv := testKey(t)
	if EncryptBlockSize(&priv.PublicKey) <= 0 {
		t.Fatal("EncryptBlockSize must be positive for a usable key")
	}
	if DecryptBlockSize(priv) <= 0 {
		t.Fatal("DecryptBlockSize must be positive for a usable key")
	}
}
