package secretmem

import "testing"

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("super-secret-session-key")
	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	for i, b := range source {
		if b != 0 {
			t.Fatalf("source[%d] = %d, want 0 after NewFromBytes", i, b)
		}
	}
	if got := string(buffer.Bytes()); got != "super-secret-session-key" {
		t.Fatalf("buffer.Bytes() = %q", got)
	}
}

func TestCloseZeroesAndPanicsOnReuse(t *testing.T) {
	buffer, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	copy(buffer.Bytes(), []byte("0123456789abcdef"))

	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("Bytes() after Close did not panic")
		}
	}()
	buffer.Bytes()
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("New(0) succeeded, want error")
	}
	if _, err := NewFromBytes(nil); err == nil {
		t.Fatal("NewFromBytes(nil) succeeded, want error")
	}
}
