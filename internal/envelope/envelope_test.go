package envelope

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	e := Envelope{Payload: []byte("session key bytes"), Signature: []byte("a-signature")}
	got, err := Decode(e.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got.Payload, e.Payload) || !bytes.Equal(got.Signature, e.Signature) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestNamedPublicKeyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	encoded := EncodeNamedPublicKey(&priv.PublicKey, "rsa-key-2026-01-01-000000000")
	pub, comment, err := DecodeNamedPublicKey(encoded)
	if err != nil {
		t.Fatalf("DecodeNamedPublicKey: %v", err)
	}
	if comment != "rsa-key-2026-01-01-000000000" {
		t.Fatalf("comment = %q", comment)
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 || pub.E != priv.PublicKey.E {
		t.Fatal("public key mismatch after round trip")
	}
}
