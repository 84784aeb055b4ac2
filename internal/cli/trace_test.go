package cli

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/promptpilot/promptpilot/internal/config"
	"github.com/promptpilot/promptpilot/internal/trace"
)

func TestDefaultVerifyPathFollowsChainedConfig(t *testing.T) {
	old := cfg
	defer func() { cfg = old }()

	cfg = &config.Config{Trace: config.TraceConfig{Path: "/data/decisions.jsonl"}}
	if got := defaultVerifyPath(); got != "/data/decisions.jsonl" {
		t.Errorf("unchained default = %q, want the plain trace", got)
	}
	cfg.Trace.Chained = true
	if got := defaultVerifyPath(); got != "/data/decisions.jsonl.chain" {
		t.Errorf("chained default = %q, want the chain file", got)
	}
}

func TestTraceVerifyChecksTheChainFile(t *testing.T) {
	old := cfg
	defer func() { cfg = old }()

	tracePath := filepath.Join(t.TempDir(), "decisions.jsonl")
	cfg = &config.Config{Trace: config.TraceConfig{Path: tracePath, Chained: true}}

	chain, err := trace.NewChain(chainPath(tracePath))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := chain.Append(trace.EntryV2{PromptID: fmt.Sprintf("p%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	traceVerifyCmd.SetOut(&out)
	if err := traceVerifyCmd.RunE(traceVerifyCmd, nil); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, chainPath(tracePath)) {
		t.Errorf("output should name the chain file: %q", got)
	}
	if !strings.Contains(got, "3 entries checked") {
		t.Errorf("output should count the sealed entries, not the plain trace: %q", got)
	}
}
