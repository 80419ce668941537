package symmetric

import (
	"bytes"
	"testing"
)

func TestPDURoundTrip(t *testing.T) {
	c, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer c.Close()

	plaintext := []byte("twenty-ms-of-alaw-samples-here!")
	ciphertext, err := c.EncryptPDU(plaintext)
	if err != nil {
		t.Fatalf("EncryptPDU: %v", err)
	}
	got, err := c.DecryptPDU(ciphertext)
	if err != nil {
		t.Fatalf("DecryptPDU: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip = %q, want %q", got, plaintext)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	c, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer c.Close()

	for _, msg := range []string{"", "hello", "a longer text message across blocks"} {
		ciphertext, err := c.EncryptMessage([]byte(msg))
		if err != nil {
			t.Fatalf("EncryptMessage(%q): %v", msg, err)
		}
		got, err := c.DecryptMessage(ciphertext)
		if err != nil {
			t.Fatalf("DecryptMessage(%q): %v", msg, err)
		}
		if string(got) != msg {
			t.Fatalf("round trip = %q, want %q", got, msg)
		}
	}
}

func TestTamperedCiphertextDropped(t *testing.T) {
	c, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer c.Close()

	ciphertext, err := c.EncryptMessage([]byte("hello"))
	if err != nil {
		t.Fatalf("EncryptMessage: %v", err)
	}
	ciphertext[0] ^= 0xFF

	if _, err := c.DecryptMessage(ciphertext); err == nil {
		t.Fatal("expected decrypt of tampered ciphertext to fail")
	}
}

func TestWrapAndVerificator(t *testing.T) {
	original, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer original.Close()

	wrapped, err := Wrap(original.KeyBytes(), "alice")
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	defer wrapped.Close()

	if !wrapped.Verified() || wrapped.Verificator() != "alice" {
		t.Fatalf("wrapped cipher verificator = %q, verified = %v", wrapped.Verificator(), wrapped.Verified())
	}

	ciphertext, err := original.EncryptPDU([]byte("payload"))
	if err != nil {
		t.Fatalf("EncryptPDU: %v", err)
	}
	got, err := wrapped.DecryptPDU(ciphertext)
	if err != nil {
		t.Fatalf("DecryptPDU with wrapped key: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q", got)
	}
}
