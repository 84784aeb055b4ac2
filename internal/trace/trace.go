// Package trace persists every policy decision to an append-only
// JSONL file, optionally sealed into a tamper-evident hash chain.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/promptpilot/promptpilot/internal/policy"
)

// Entry is one recorded decision. RecordedAt is when the trace saw
// it, which can lag the decision under load.
type Entry struct {
	policy.Decision
	RecordedAt time.Time `json:"recorded_at"`
}

// Trace is an append-only decision log. Writes are serialized; a
// write failure is the caller's to log and swallow, because a full
// disk must never stop a prompt from being actioned.
type Trace struct {
	mu   sync.Mutex
	path string
}

// New creates a trace writer at path, creating parent directories.
func New(path string) (*Trace, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	return &Trace{path: path}, nil
}

// Record appends one decision.
func (t *Trace) Record(d policy.Decision) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := Entry{Decision: d, RecordedAt: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal trace entry: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write trace entry: %w", err)
	}
	return nil
}

// Path returns the trace file path.
func (t *Trace) Path() string {
	return t.path
}

// All returns every entry, oldest first.
func (t *Trace) All() ([]Entry, error) {
	return t.Tail(0)
}

// Tail returns the last n entries, oldest first; n <= 0 means all.
// Malformed lines are skipped: a trace survives a partial write at
// the end of a crashed run.
func (t *Trace) Tail(n int) ([]Entry, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read trace: %w", err)
	}

	lines := splitLines(data)
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
