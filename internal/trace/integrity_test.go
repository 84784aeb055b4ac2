package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func sealN(t *testing.T, path string, n int) {
	t.Helper()
	c, err := NewChain(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		e := EntryV2{
			PromptID:    fmt.Sprintf("p%d", i),
			SessionID:   "s1",
			PolicyHash:  "deadbeefdeadbeef",
			RiskLevel:   "low",
			ActionTaken: "auto_reply",
		}
		if err := c.Append(e); err != nil {
			t.Fatal(err)
		}
	}
}

func TestVerifyIntactChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	sealN(t, path, 5)

	rep, err := VerifyChain(path)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Valid || rep.EntriesChecked != 5 || rep.FirstBrokenAt != -1 {
		t.Errorf("report = %+v, want valid with 5 entries", rep)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	sealN(t, path, 5)

	// Mutate one field of entry 2.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := splitLines(data)
	var e EntryV2
	if err := json.Unmarshal(lines[2], &e); err != nil {
		t.Fatal(err)
	}
	e.ActionTaken = "deny"
	tampered, _ := json.Marshal(e)
	lines[2] = tampered

	out := []byte{}
	for _, l := range lines {
		out = append(out, l...)
		out = append(out, '\n')
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		t.Fatal(err)
	}

	rep, err := VerifyChain(path)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Valid {
		t.Fatal("tampered chain reported valid")
	}
	if rep.FirstBrokenAt != 2 {
		t.Errorf("first_broken_at = %d, want 2", rep.FirstBrokenAt)
	}
}

func TestVerifyDetectsRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	sealN(t, path, 4)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := splitLines(data)
	out := []byte{}
	for i, l := range lines {
		if i == 1 {
			continue
		}
		out = append(out, l...)
		out = append(out, '\n')
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		t.Fatal(err)
	}

	rep, err := VerifyChain(path)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Valid {
		t.Error("chain with a removed entry reported valid")
	}
	if rep.FirstBrokenAt != 1 {
		t.Errorf("first_broken_at = %d, want 1", rep.FirstBrokenAt)
	}
}

func TestVerifySkipsLegacyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	if err := os.WriteFile(path, []byte(`{"prompt_id":"old","action":{"type":"auto_reply"}}`+"\n"+"not json at all\n"), 0600); err != nil {
		t.Fatal(err)
	}
	sealN(t, path, 2)

	rep, err := VerifyChain(path)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Valid || rep.EntriesChecked != 2 {
		t.Errorf("report = %+v, want 2 v2 entries checked", rep)
	}
}

func TestVerifyEmptyAndAbsent(t *testing.T) {
	dir := t.TempDir()

	rep, err := VerifyChain(filepath.Join(dir, "absent.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Valid || rep.EntriesChecked != 0 {
		t.Errorf("absent file: %+v", rep)
	}

	empty := filepath.Join(dir, "empty.jsonl")
	if err := os.WriteFile(empty, nil, 0600); err != nil {
		t.Fatal(err)
	}
	rep, err = VerifyChain(empty)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Valid || rep.EntriesChecked != 0 {
		t.Errorf("empty file: %+v", rep)
	}
}

func TestChainResumesAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	sealN(t, path, 3)
	sealN(t, path, 2) // reopens and resumes from the last entry

	rep, err := VerifyChain(path)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Valid || rep.EntriesChecked != 5 {
		t.Errorf("report = %+v, want a single 5-entry chain", rep)
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	e := EntryV2{TraceVersion: "2", PromptID: "p1", RiskLevel: "high", ActionTaken: "deny"}
	if ComputeHash(e) != ComputeHash(e) {
		t.Error("hash not deterministic")
	}
	e2 := e
	e2.RiskLevel = "low"
	if ComputeHash(e) == ComputeHash(e2) {
		t.Error("hash should depend on every field")
	}
	// CurrentHash is excluded from its own digest.
	e3 := e
	e3.CurrentHash = "whatever"
	if ComputeHash(e) != ComputeHash(e3) {
		t.Error("current_hash must not affect the digest")
	}
}
