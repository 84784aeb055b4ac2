// Copyright 2026 The promptpilot Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"strings"
)

// Explain renders a per-rule account of how in would be decided:
// every criterion evaluated for each rule until the first full match,
// then the remaining rules marked as not evaluated. The returned text
// is for humans; Evaluate remains the source of truth.
func Explain(p Policy, in Input) string {
	d, traces := evaluate(p, in)

	var b strings.Builder
	fmt.Fprintf(&b, "policy %q (v%s, %s mode, hash %s)\n", p.PolicyName(), p.Version(), p.AutonomyMode(), d.PolicyHash)
	fmt.Fprintf(&b, "prompt %q type=%s confidence=%s tool=%s\n\n", truncate(in.Text, 60), in.Type, in.Confidence, in.ToolID)

	matched := false
	for _, tr := range traces {
		switch {
		case tr.Matched:
			fmt.Fprintf(&b, "[MATCH] %s\n", tr.RuleID)
			matched = true
		default:
			fmt.Fprintf(&b, "[skip]  %s\n", tr.RuleID)
		}
		for _, reason := range tr.Reasons {
			fmt.Fprintf(&b, "        %s\n", reason)
		}
	}
	if matched {
		remaining := ruleCount(p) - len(traces)
		if remaining > 0 {
			fmt.Fprintf(&b, "(%d later rules not evaluated)\n", remaining)
		}
	} else {
		fmt.Fprintf(&b, "(no rule matched)\n")
	}
	fmt.Fprintf(&b, "\ndecision: %s", d.Action.Type)
	if d.Action.Value != "" {
		fmt.Fprintf(&b, " value=%q", d.Action.Value)
	}
	fmt.Fprintf(&b, "\n%s\n", d.Explanation)
	return b.String()
}

// ExplainDecision renders a single already-made decision, for trace
// inspection where the policy is no longer at hand.
func ExplainDecision(d Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "prompt %s (session %s, type=%s confidence=%s)\n", d.PromptID, d.SessionID, d.PromptType, d.Confidence)
	fmt.Fprintf(&b, "policy hash %s, %s mode\n", d.PolicyHash, d.Autonomy)
	if d.MatchedRuleID != "" {
		fmt.Fprintf(&b, "rule: %s\n", d.MatchedRuleID)
	} else {
		fmt.Fprintf(&b, "rule: <default>\n")
	}
	fmt.Fprintf(&b, "decision: %s", d.Action.Type)
	if d.Action.Value != "" {
		fmt.Fprintf(&b, " value=%q", d.Action.Value)
	}
	fmt.Fprintf(&b, "\n%s\n", d.Explanation)
	return b.String()
}

func ruleCount(p Policy) int {
	switch pp := p.(type) {
	case *PolicyV0:
		return len(pp.Rules)
	case *PolicyV1:
		return len(pp.Rules)
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
