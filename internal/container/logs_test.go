package container

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLogRingAppendAndTailOrdersOldestToNewest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c1.log")
	ring, err := NewLogRing(path, 4)
	if err != nil {
		t.Fatalf("NewLogRing: %v", err)
	}
	defer ring.Close()

	base := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		entry := LogEntry{Timestamp: base.Add(time.Duration(i) * time.Second), Stream: "stdout", Line: string(rune('a' + i))}
		if err := ring.Append(entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got := ring.Tail(time.Time{}, 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Line != "a" || got[2].Line != "c" {
		t.Errorf("unexpected ordering: %+v", got)
	}
}

func TestLogRingWrapsAtCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c1.log")
	ring, err := NewLogRing(path, 2)
	if err != nil {
		t.Fatalf("NewLogRing: %v", err)
	}
	defer ring.Close()

	base := time.Unix(2000, 0)
	for i := 0; i < 3; i++ {
		_ = ring.Append(LogEntry{Timestamp: base.Add(time.Duration(i) * time.Second), Line: string(rune('a' + i))})
	}

	got := ring.Tail(time.Time{}, 0)
	if len(got) != 2 {
		t.Fatalf("expected ring capped at 2 entries, got %d", len(got))
	}
	if got[0].Line != "b" || got[1].Line != "c" {
		t.Errorf("expected oldest entry to be evicted, got %+v", got)
	}
}

func TestLogRingTailFiltersBySince(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c1.log")
	ring, err := NewLogRing(path, 8)
	if err != nil {
		t.Fatalf("NewLogRing: %v", err)
	}
	defer ring.Close()

	base := time.Unix(3000, 0)
	for i := 0; i < 4; i++ {
		_ = ring.Append(LogEntry{Timestamp: base.Add(time.Duration(i) * time.Second), Line: string(rune('a' + i))})
	}

	got := ring.Tail(base.Add(2*time.Second), 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries since cutoff, got %d: %+v", len(got), got)
	}
}

func TestLogRingTailTrimsToN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c1.log")
	ring, err := NewLogRing(path, 8)
	if err != nil {
		t.Fatalf("NewLogRing: %v", err)
	}
	defer ring.Close()

	base := time.Unix(4000, 0)
	for i := 0; i < 5; i++ {
		_ = ring.Append(LogEntry{Timestamp: base.Add(time.Duration(i) * time.Second), Line: string(rune('a' + i))})
	}

	got := ring.Tail(time.Time{}, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Line != "d" || got[1].Line != "e" {
		t.Errorf("expected last 2 entries, got %+v", got)
	}
}

func TestReplayFromFileReconstructsRing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c1.log")
	ring, err := NewLogRing(path, 8)
	if err != nil {
		t.Fatalf("NewLogRing: %v", err)
	}
	base := time.Unix(5000, 0)
	for i := 0; i < 3; i++ {
		_ = ring.Append(LogEntry{Timestamp: base.Add(time.Duration(i) * time.Second), Line: string(rune('a' + i))})
	}
	if err := ring.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	replayed, err := ReplayFromFile(path, 8)
	if err != nil {
		t.Fatalf("ReplayFromFile: %v", err)
	}
	defer replayed.Close()

	got := replayed.Tail(time.Time{}, 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 replayed entries, got %d", len(got))
	}
}

func TestReplayFromFileMissingFileReturnsEmptyRing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.log")
	ring, err := ReplayFromFile(path, 4)
	if err != nil {
		t.Fatalf("ReplayFromFile: %v", err)
	}
	defer ring.Close()
	if got := ring.Tail(time.Time{}, 0); len(got) != 0 {
		t.Errorf("expected empty ring, got %+v", got)
	}
}
