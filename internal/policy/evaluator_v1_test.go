package policy

import (
	"strings"
	"testing"

	"github.com/promptpilot/promptpilot/internal/event"
)

func TestEvaluateV1AnyOf(t *testing.T) {
	p := mustParse(t, `
policy_version: "1"
name: any-of
rules:
  - id: either
    match:
      any_of:
        - prompt_type: [yes_no]
        - contains: "press enter"
    action: {type: auto_reply, value: "y"}
`)
	d := Evaluate(p, Input{Text: "ok?", Type: event.YesNo, Confidence: event.High})
	if d.MatchedRuleID != "either" {
		t.Error("first any_of branch should match")
	}
	d = Evaluate(p, Input{Text: "Press Enter to continue", Type: event.ConfirmEnter, Confidence: event.High})
	if d.MatchedRuleID != "either" {
		t.Error("second any_of branch should match")
	}
	d = Evaluate(p, Input{Text: "pick one", Type: event.MultipleChoice, Confidence: event.High})
	if d.MatchedRuleID != "" {
		t.Error("no any_of branch should match")
	}
}

func TestEvaluateV1NoneOfExclusion(t *testing.T) {
	p := mustParse(t, `
policy_version: "1"
name: exclusion
rules:
  - id: auto-yes
    match:
      prompt_type: [yes_no]
      none_of:
        - contains: "destroy"
    action: {type: auto_reply, value: "y"}
  - id: fallback
    match:
      prompt_type: [yes_no]
    action: {type: require_human, message: looks risky}
`)
	d := Evaluate(p, Input{Text: "Destroy all data? [y/n]", Type: event.YesNo, Confidence: event.High})
	if d.MatchedRuleID != "fallback" {
		t.Errorf("excluded rule was selected: %q (%s)", d.MatchedRuleID, d.Explanation)
	}
	d = Evaluate(p, Input{Text: "Save the file? [y/n]", Type: event.YesNo, Confidence: event.High})
	if d.MatchedRuleID != "auto-yes" {
		t.Errorf("benign prompt should pass the exclusion, got %q", d.MatchedRuleID)
	}
}

func TestEvaluateV1NoneOfSkippedWhenPrimaryFails(t *testing.T) {
	p := mustParse(t, `
policy_version: "1"
name: exclusion-order
rules:
  - id: r1
    match:
      prompt_type: [yes_no]
      none_of:
        - contains: "destroy"
    action: {type: auto_reply, value: "y"}
`)
	_, traces := evaluate(p, Input{Text: "destroy it", Type: event.FreeText, Confidence: event.High})
	joined := strings.Join(traces[0].Reasons, "\n")
	if strings.Contains(joined, "none_of") {
		t.Errorf("none_of must not be evaluated when the primary match fails:\n%s", joined)
	}
}

func TestEvaluateV1SessionTag(t *testing.T) {
	p := mustParse(t, `
policy_version: "1"
name: tagged
rules:
  - id: ci-only
    match:
      session_tag: ci
    action: {type: auto_reply, value: "y"}
`)
	d := Evaluate(p, Input{Text: "ok?", Confidence: event.High, SessionTag: "ci"})
	if d.MatchedRuleID != "ci-only" {
		t.Error("matching tag should match")
	}
	d = Evaluate(p, Input{Text: "ok?", Confidence: event.High, SessionTag: ""})
	if d.MatchedRuleID != "" {
		t.Error("untagged session must not match a tagged rule")
	}
}

func TestEvaluateV1UntaggedRuleMatchesAnySession(t *testing.T) {
	p := mustParse(t, minimalV1)
	d := Evaluate(p, Input{Text: "ok?", Type: event.YesNo, Confidence: event.High, SessionTag: "anything"})
	if d.MatchedRuleID != "auto-yes" {
		t.Error("rule without session_tag should match any session")
	}
}

func TestEvaluateV1ConfidenceBand(t *testing.T) {
	p := mustParse(t, `
policy_version: "1"
name: band
rules:
  - id: mid-band
    match:
      min_confidence: medium
      max_confidence: medium
    action: {type: auto_reply, value: "y"}
`)
	for _, tt := range []struct {
		conf  event.Confidence
		match bool
	}{
		{event.Low, false},
		{event.Medium, true},
		{event.High, false},
	} {
		d := Evaluate(p, Input{Text: "ok?", Confidence: tt.conf})
		if got := d.MatchedRuleID != ""; got != tt.match {
			t.Errorf("confidence %s: matched=%t, want %t", tt.conf, got, tt.match)
		}
	}
}

func TestEvaluateV1InvalidRegexDegradesToNonMatch(t *testing.T) {
	// Validation rejects bad regexes at parse time, so construct the
	// policy directly to exercise the evaluation-time guard.
	bad := "([unclosed"
	p := &PolicyV1{
		PolicyVersion: "1",
		Name:          "degenerate",
		Rules: []RuleV1{{
			ID:     "bad-regex",
			Match:  MatchV1{Contains: &bad, ContainsRegex: true},
			Action: AutoReply("y"),
		}},
	}
	d := Evaluate(p, Input{Text: "anything", Confidence: event.High})
	if d.MatchedRuleID != "" {
		t.Error("invalid regex must degrade to non-match")
	}
	if d.Action.Type != ActionRequireHuman {
		t.Errorf("fallback = %q, want require_human", d.Action.Type)
	}
}
