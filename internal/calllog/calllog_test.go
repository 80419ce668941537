package calllog

import (
	"testing"
	"time"
)

func TestAppendLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	records := []Record{
		{Peer: "alice", StartedAt: time.Unix(1000, 0), EndedAt: time.Unix(1060, 0), Verificator: "alice-key", Encrypted: true},
		{Peer: "bob", StartedAt: time.Unix(2000, 0), EndedAt: time.Unix(2010, 0), Encrypted: false},
	}
	for _, r := range records {
		if err := Append(dir, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("loaded %d records, want %d", len(got), len(records))
	}
	for i, want := range records {
		if got[i].Peer != want.Peer || got[i].Encrypted != want.Encrypted {
			t.Fatalf("record %d = %+v, want %+v", i, got[i], want)
		}
		if got[i].Duration() != want.Duration() {
			t.Fatalf("record %d duration = %v, want %v", i, got[i].Duration(), want.Duration())
		}
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	got, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no records, got %d", len(got))
	}
}
