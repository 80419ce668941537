package trust

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/IrtazaS/kryptofon/internal/envelope"
	"github.com/IrtazaS/kryptofon/internal/rsacbc"
)

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return priv
}

func signedPublicKeyB64(t *testing.T, signer *rsa.PrivateKey, subject *rsa.PublicKey, keyComment string) string {
	t.Helper()
	payload := envelope.EncodeNamedPublicKey(subject, keyComment)
	sig, err := rsacbc.Sign(signer, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	env := envelope.Envelope{Payload: payload, Signature: sig}
	return base64.StdEncoding.EncodeToString(env.Encode())
}

func TestVerifyMatchesAuthorizedKey(t *testing.T) {
	alice := genKey(t)
	bob := genKey(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "authorized-keys.txt")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := AppendEntry(path, &alice.PublicKey, "rsa-key-alice", "alice"); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	store, err := LoadStore(path, nil)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("Len = %d, want 1", store.Len())
	}

	// Alice signs her own public key and sends it; bob's store has alice's key.
	signed := signedPublicKeyB64(t, alice, &alice.PublicKey, "rsa-key-alice")
	enc, err := NewPublicEncryptor(signed, store)
	if err != nil {
		t.Fatalf("NewPublicEncryptor: %v", err)
	}
	if !enc.Verified() || enc.Verificator() != "alice" {
		t.Fatalf("verified=%v verificator=%q", enc.Verified(), enc.Verificator())
	}

	ciphertext, err := enc.Encrypt([]byte("session key material"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plaintext, err := rsacbc.Decrypt(alice, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(plaintext) != "session key material" {
		t.Fatalf("got %q", plaintext)
	}

	// Unknown signer produces an unverified but still usable encryptor.
	signedByOther := signedPublicKeyB64(t, bob, &bob.PublicKey, "rsa-key-bob")
	unverified, err := NewPublicEncryptor(signedByOther, store)
	if err != nil {
		t.Fatalf("NewPublicEncryptor: %v", err)
	}
	if unverified.Verified() {
		t.Fatal("expected unverified encryptor for untrusted signer")
	}
}

func TestReloadIsAtomic(t *testing.T) {
	alice := genKey(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "authorized-keys.txt")
	os.WriteFile(path, nil, 0o600)

	store, err := LoadStore(path, nil)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("Len = %d, want 0", store.Len())
	}

	if err := AppendEntry(path, &alice.PublicKey, "rsa-key-alice", "alice"); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("Len after reload = %d, want 1", store.Len())
	}
}
