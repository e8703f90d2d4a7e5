package container

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nexuscore/core/internal/errtag"
)

// LogEntry is one line of a container's captured stdout/stderr, matching
// the teacher's "local cache" logging layer described in pkg/worker/doc.go:
// an append-only on-disk file plus an in-memory ring for fast recent reads.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"` // "stdout" or "stderr"
	Line      string    `json:"line"`
}

// LogRing is a bounded in-memory ring of the most recent log entries for one
// container, backed by an append-only JSON-lines file under
// {data_root}/logs/{id}.log for anything older than the ring holds.
type LogRing struct {
	mu       sync.Mutex
	capacity int
	entries  []LogEntry
	next     int
	filled   bool
	file     *os.File
}

// NewLogRing opens (creating if needed) the append-only log file at path and
// returns a ring buffering the most recent capacity entries in memory.
func NewLogRing(path string, capacity int) (*LogRing, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errtag.New(errtag.IO, errtag.Medium, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errtag.New(errtag.IO, errtag.Medium, err)
	}
	return &LogRing{capacity: capacity, entries: make([]LogEntry, capacity), file: f}, nil
}

// Append writes entry to the backing file and the in-memory ring.
func (r *LogRing) Append(entry LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = entry
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.filled = true
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return errtag.New(errtag.Serialization, errtag.Low, err)
	}
	if _, err := fmt.Fprintln(r.file, string(raw)); err != nil {
		return errtag.New(errtag.IO, errtag.Medium, err)
	}
	return nil
}

// Tail returns entries from the in-memory ring filtered by since (zero means
// no lower bound) and trimmed to the last n (n<=0 means no trim), per
// spec.md §4.9: "logs(since?, tail?): returns entries from the append-only
// log buffer, filtered by timestamp and trimmed to the last N."
func (r *LogRing) Tail(since time.Time, n int) []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ordered []LogEntry
	if r.filled {
		ordered = append(ordered, r.entries[r.next:]...)
	}
	ordered = append(ordered, r.entries[:r.next]...)

	var filtered []LogEntry
	for _, e := range ordered {
		if e.Line == "" && e.Timestamp.IsZero() {
			continue // unwritten ring slot
		}
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		filtered = append(filtered, e)
	}

	if n > 0 && len(filtered) > n {
		filtered = filtered[len(filtered)-n:]
	}
	return filtered
}

// Close closes the backing file.
func (r *LogRing) Close() error {
	return r.file.Close()
}

// ReplayFromFile reads every JSON-lines entry back from the append-only log
// file at path, used to reconstruct the in-memory ring across a daemon
// restart.
func ReplayFromFile(path string, capacity int) (*LogRing, error) {
	ring, err := NewLogRing(path, capacity)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ring, nil
		}
		return nil, errtag.New(errtag.IO, errtag.Medium, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		ring.mu.Lock()
		ring.entries[ring.next] = entry
		ring.next = (ring.next + 1) % ring.capacity
		if ring.next == 0 {
			ring.filled = true
		}
		ring.mu.Unlock()
	}
	return ring, nil
}
