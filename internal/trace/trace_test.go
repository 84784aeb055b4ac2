package trace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/promptpilot/promptpilot/internal/policy"
)

func testDecision(promptID string) policy.Decision {
	return policy.Decision{
		PromptID:   promptID,
		SessionID:  "s1",
		PolicyHash: "deadbeefdeadbeef",
		Action:     policy.AutoReply("y"),
		Confidence: "high",
		PromptType: "yes_no",
		Autonomy:   policy.ModeFull,
	}
}

func TestRecordAndTail(t *testing.T) {
	tr, err := New(filepath.Join(t.TempDir(), "decisions.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		if err := tr.Record(testDecision(id)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := tr.Tail(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("tail(2) returned %d entries", len(entries))
	}
	if entries[0].PromptID != "p2" || entries[1].PromptID != "p3" {
		t.Errorf("tail returned wrong entries: %v", entries)
	}
	if entries[0].RecordedAt.IsZero() {
		t.Error("recorded_at not stamped")
	}
}

func TestTailMissingFile(t *testing.T) {
	tr, err := New(filepath.Join(t.TempDir(), "never-written.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	entries, err := tr.Tail(10)
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Errorf("missing file should yield no entries, got %v", entries)
	}
}

func TestTailSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	tr, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Record(testDecision("p1")); err != nil {
		t.Fatal(err)
	}
	// Simulate a torn write at the end of a crashed run.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"prompt_id": "p2", "trunc`)
	f.Close()

	entries, err := tr.Tail(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].PromptID != "p1" {
		t.Errorf("malformed line should be skipped: %v", entries)
	}
}

func TestRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.jsonl")
	tr, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		if err := tr.Record(testDecision("p")); err != nil {
			t.Fatal(err)
		}
	}

	archive, err := Rotate(path, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if archive == "" {
		t.Fatal("expected a rotation")
	}
	if _, err := os.Stat(archive); err != nil {
		t.Errorf("archive missing: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("live file should be gone until the next write")
	}
	if !strings.HasPrefix(filepath.Base(archive), "decisions.jsonl.") {
		t.Errorf("unexpected archive name %s", archive)
	}

	// Under the threshold: no rotation.
	if err := tr.Record(testDecision("p")); err != nil {
		t.Fatal(err)
	}
	archive, err = Rotate(path, 1<<20, 10)
	if err != nil {
		t.Fatal(err)
	}
	if archive != "" {
		t.Error("small file should not rotate")
	}
}

func TestRotatePrunesOldArchives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.jsonl")
	for i := 0; i < 4; i++ {
		if err := os.WriteFile(path, []byte("data\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := Rotate(path, 1, 2); err != nil {
			t.Fatal(err)
		}
	}
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Errorf("archive count = %d, want 2", len(matches))
	}
}
