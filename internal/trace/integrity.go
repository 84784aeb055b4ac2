package trace

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const genesisInput = "promptpilot-trace-genesis"

// EntryV2 is a chained trace entry. Each entry links to its
// predecessor by hash, so deleting, reordering, or editing any entry
// breaks every later link.
type EntryV2 struct {
	TraceVersion  string `json:"trace_version"`
	PromptID      string `json:"prompt_id"`
	SessionID     string `json:"session_id"`
	Timestamp     string `json:"timestamp"`
	PolicyHash    string `json:"policy_hash"`
	MatchedRuleID string `json:"matched_rule_id,omitempty"`
	RiskLevel     string `json:"risk_level"`
	ActionTaken   string `json:"action_taken"`
	PreviousHash  string `json:"previous_hash"`
	CurrentHash   string `json:"current_hash"`
}

// ComputeHash digests the entry with CurrentHash empty. Field order
// is fixed by the struct, so the serialization is canonical.
func ComputeHash(e EntryV2) string {
	e.CurrentHash = ""
	data, _ := json.Marshal(e)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}

// Seal links the entry to prev and stamps its own hash. Mutating any
// field afterwards invalidates CurrentHash.
func (e *EntryV2) Seal(prev string) {
	e.TraceVersion = "2"
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	e.PreviousHash = prev
	e.CurrentHash = ComputeHash(*e)
}

func genesisHash() string {
	h := sha256.Sum256([]byte(genesisInput))
	return fmt.Sprintf("%x", h)
}

// Chain appends sealed entries to a JSONL file, resuming the hash
// chain from the last v2 entry already on disk.
type Chain struct {
	mu       sync.Mutex
	path     string
	prevHash string
}

// NewChain opens or creates a chained trace at path.
func NewChain(path string) (*Chain, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	c := &Chain{path: path, prevHash: genesisHash()}

	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		for _, line := range splitLines(data) {
			var e EntryV2
			if err := json.Unmarshal(line, &e); err != nil || e.TraceVersion != "2" {
				continue
			}
			c.prevHash = e.CurrentHash
		}
	}
	return c, nil
}

// Append seals e onto the chain and writes it.
func (c *Chain) Append(e EntryV2) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.Seal(c.prevHash)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal trace entry: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write trace entry: %w", err)
	}
	c.prevHash = e.CurrentHash
	return nil
}

// Path returns the chain file path.
func (c *Chain) Path() string {
	return c.path
}

// Report is the outcome of a chain verification. FirstBrokenAt is
// the zero-based index of the first bad entry among the v2 entries,
// or -1 when the chain is intact.
type Report struct {
	Valid          bool `json:"valid"`
	EntriesChecked int  `json:"entries_checked"`
	FirstBrokenAt  int  `json:"first_broken_at"`
}

// VerifyChain walks the chain at path. Lines that are not v2 entries
// (legacy decisions, partial writes) are skipped, not failed: chains
// are expected to share a file with an unsealed history. A missing or
// empty file is trivially valid.
func VerifyChain(path string) (Report, error) {
	rep := Report{Valid: true, FirstBrokenAt: -1}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rep, nil
		}
		return Report{}, fmt.Errorf("read trace: %w", err)
	}

	prev := genesisHash()
	for _, line := range splitLines(data) {
		var e EntryV2
		if err := json.Unmarshal(line, &e); err != nil || e.TraceVersion != "2" {
			continue
		}
		if e.PreviousHash != prev || e.CurrentHash != ComputeHash(e) {
			rep.Valid = false
			rep.FirstBrokenAt = rep.EntriesChecked
			return rep, nil
		}
		prev = e.CurrentHash
		rep.EntriesChecked++
	}
	return rep, nil
}
