package policy

import (
	"strings"
	"testing"

	"github.com/promptpilot/promptpilot/internal/event"
)

func TestExplainStopsAtFirstMatch(t *testing.T) {
	p := mustParse(t, `
policy_version: "0"
name: explain
rules:
  - id: miss
    match: {prompt_type: [free_text]}
    action: {type: require_human}
  - id: hit
    match: {prompt_type: [yes_no]}
    action: {type: auto_reply, value: "y"}
  - id: never
    match: {prompt_type: [yes_no]}
    action: {type: deny, reason: unreachable}
`)
	out := Explain(p, Input{Text: "ok? [y/n]", Type: event.YesNo, Confidence: event.High})

	if !strings.Contains(out, "[skip]  miss") {
		t.Errorf("missing skip line:\n%s", out)
	}
	if !strings.Contains(out, "[MATCH] hit") {
		t.Errorf("missing match line:\n%s", out)
	}
	if strings.Contains(out, "never") && !strings.Contains(out, "not evaluated") {
		t.Errorf("rules after the match must be reported as not evaluated:\n%s", out)
	}
	if !strings.Contains(out, "1 later rules not evaluated") {
		t.Errorf("missing not-evaluated summary:\n%s", out)
	}
	if !strings.Contains(out, "decision: auto_reply") {
		t.Errorf("missing decision line:\n%s", out)
	}
}

func TestExplainDecision(t *testing.T) {
	p := mustParse(t, `
policy_version: "0"
name: explain
rules:
  - id: auto-yes
    match: {prompt_type: [yes_no]}
    action: {type: auto_reply, value: "y"}
`)
	d := Evaluate(p, Input{PromptID: "p1", SessionID: "s1", Type: event.YesNo, Confidence: event.High})
	out := ExplainDecision(d)

	for _, want := range []string{"prompt p1", "rule: auto-yes", "decision: auto_reply", `value="y"`, d.PolicyHash} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q:\n%s", want, out)
		}
	}

	fallback := Evaluate(p, Input{PromptID: "p2", Type: event.FreeText, Confidence: event.High})
	if out := ExplainDecision(fallback); !strings.Contains(out, "rule: <default>") {
		t.Errorf("fallback should render <default>:\n%s", out)
	}
}

func TestExplainNoMatch(t *testing.T) {
	p := mustParse(t, minimalV0)
	out := Explain(p, Input{Text: "describe your approach", Type: event.FreeText, Confidence: event.High})
	if !strings.Contains(out, "(no rule matched)") {
		t.Errorf("missing no-match line:\n%s", out)
	}
	if !strings.Contains(out, "decision: require_human") {
		t.Errorf("missing fallback decision:\n%s", out)
	}
}
