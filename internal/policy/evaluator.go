// Copyright 2026 The promptpilot Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/promptpilot/promptpilot/internal/event"
)

// regexTimeout bounds a single contains-regex match. Go's regexp is
// linear-time, but the wall-clock cutoff stands as the contract: a
// match that hasn't answered by then is a non-match.
const regexTimeout = 100 * time.Millisecond

// ruleTrace records how one rule fared against one input, criterion
// by criterion, for explain output.
type ruleTrace struct {
	RuleID  string
	Matched bool
	Reasons []string
}

// Evaluate runs the first-match-wins algorithm for p against in. It
// is a pure function: no I/O, no mutation of p, and the same input
// always produces the same decision.
func Evaluate(p Policy, in Input) Decision {
	d, _ := evaluate(p, in)
	return d
}

func evaluate(p Policy, in Input) (Decision, []ruleTrace) {
	if in.ToolID == "" {
		in.ToolID = "*"
	}
	switch pp := p.(type) {
	case *PolicyV0:
		return evaluateV0(pp, in)
	case *PolicyV1:
		return evaluateV1(pp, in)
	default:
		// Unreachable: Policy is sealed to the two types above.
		panic(fmt.Sprintf("policy: unknown policy type %T", p))
	}
}

func evaluateV0(p *PolicyV0, in Input) (Decision, []ruleTrace) {
	hash := p.ContentHash()
	traces := make([]ruleTrace, 0, len(p.Rules))
	for _, r := range p.Rules {
		tr := matchRule(r.Match, in)
		tr.RuleID = r.ID
		traces = append(traces, tr)
		if tr.Matched {
			return decisionFor(p, in, hash, r.ID, r.Action, tr), traces
		}
	}
	return defaultDecision(p.Defaults, p.AutonomyMode(), in, hash), traces
}

func evaluateV1(p *PolicyV1, in Input) (Decision, []ruleTrace) {
	hash := p.ContentHash()
	traces := make([]ruleTrace, 0, len(p.Rules))
	for _, r := range p.Rules {
		tr := matchRuleV1(r.Match, in)
		tr.RuleID = r.ID
		traces = append(traces, tr)
		if tr.Matched {
			return decisionFor(p, in, hash, r.ID, r.Action, tr), traces
		}
	}
	return defaultDecision(p.Defaults, p.AutonomyMode(), in, hash), traces
}

func decisionFor(p Policy, in Input, hash, ruleID string, a Action, tr ruleTrace) Decision {
	reasons := strings.Join(tr.Reasons, "; ")
	if reasons == "" {
		reasons = "no constraints"
	}
	return Decision{
		PromptID:       in.PromptID,
		SessionID:      in.SessionID,
		PolicyHash:     hash,
		MatchedRuleID:  ruleID,
		Action:         a,
		Explanation:    fmt.Sprintf("rule %s matched: %s", ruleID, reasons),
		Confidence:     in.Confidence,
		PromptType:     in.Type,
		Autonomy:       p.AutonomyMode(),
		IdempotencyKey: idempotencyKey(in.PromptID, in.SessionID, hash, ruleID, a),
	}
}

// defaultDecision applies the fallback when no rule matched. The
// fallback can only escalate or refuse: an auto-reply is structurally
// impossible here.
func defaultDecision(d Defaults, mode AutonomyMode, in Input, hash string) Decision {
	which := d.noMatchAction()
	why := "no rule matched"
	if in.Confidence.Level() == 0 {
		which = d.lowConfidenceAction()
		why = "no rule matched (low confidence)"
	}

	var a Action
	if which == ActionDeny {
		a = Deny("No policy rule matched (default: deny)")
	} else {
		a = RequireHuman("No policy rule matched; human input required")
	}
	return Decision{
		PromptID:       in.PromptID,
		SessionID:      in.SessionID,
		PolicyHash:     hash,
		Action:         a,
		Explanation:    fmt.Sprintf("%s; default: %s", why, a.Type),
		Confidence:     in.Confidence,
		PromptType:     in.Type,
		Autonomy:       mode,
		IdempotencyKey: idempotencyKey(in.PromptID, in.SessionID, hash, "", a),
	}
}

// matchRule evaluates flat v0 criteria in a fixed order, stopping at
// the first failure. Passed criteria stay in the trace so explain
// output shows how far the rule got.
func matchRule(m Match, in Input) ruleTrace {
	var tr ruleTrace
	checks := []func() (bool, string){
		func() (bool, string) { return checkTool(m.ToolID, in.ToolID) },
		func() (bool, string) { return checkRepo(m.Repo, in.Repo) },
		func() (bool, string) { return checkPromptType(m.PromptType, in.Type) },
		func() (bool, string) { return checkMinConfidence(m.MinConfidence, in.Confidence) },
		func() (bool, string) { return checkContains(m.Contains, m.ContainsRegex, in.Text) },
	}
	for _, check := range checks {
		ok, reason := check()
		if reason != "" {
			tr.Reasons = append(tr.Reasons, reason)
		}
		if !ok {
			return tr
		}
	}
	tr.Matched = true
	return tr
}

// matchRuleV1 evaluates a v1 criteria block: flat criteria or any_of
// first, then none_of exclusions only once the primary part passed. A
// rule that fails its primary criteria is reported as a plain skip
// without evaluating none_of; first-failure short-circuiting applies
// to exclusions the same as everything else.
func matchRuleV1(m MatchV1, in Input) ruleTrace {
	var tr ruleTrace

	if len(m.AnyOf) > 0 {
		matched := false
		for i, sub := range m.AnyOf {
			st := matchRuleV1(sub, in)
			if st.Matched {
				tr.Reasons = append(tr.Reasons, fmt.Sprintf("✓ any_of[%d]: %s", i, strings.Join(st.Reasons, "; ")))
				matched = true
				break
			}
			tr.Reasons = append(tr.Reasons, fmt.Sprintf("✗ any_of[%d]: %s", i, strings.Join(st.Reasons, "; ")))
		}
		if !matched {
			return tr
		}
	} else {
		checks := []func() (bool, string){
			func() (bool, string) { return checkTool(m.ToolID, in.ToolID) },
			func() (bool, string) { return checkRepo(m.Repo, in.Repo) },
			func() (bool, string) { return checkPromptType(m.PromptType, in.Type) },
			func() (bool, string) { return checkMinConfidence(m.MinConfidence, in.Confidence) },
			func() (bool, string) { return checkMaxConfidence(m.MaxConfidence, in.Confidence) },
			func() (bool, string) { return checkSessionTag(m.SessionTag, in.SessionTag) },
			func() (bool, string) { return checkContains(m.Contains, m.ContainsRegex, in.Text) },
		}
		for _, check := range checks {
			ok, reason := check()
			if reason != "" {
				tr.Reasons = append(tr.Reasons, reason)
			}
			if !ok {
				return tr
			}
		}
	}

	for i, sub := range m.NoneOf {
		st := matchRuleV1(sub, in)
		if st.Matched {
			tr.Reasons = append(tr.Reasons, fmt.Sprintf("✗ none_of[%d] matched: %s", i, strings.Join(st.Reasons, "; ")))
			return tr
		}
	}
	if len(m.NoneOf) > 0 {
		tr.Reasons = append(tr.Reasons, "✓ none_of: no exclusion matched")
	}

	tr.Matched = true
	return tr
}

func checkTool(want, got string) (bool, string) {
	if want == "" || want == "*" {
		return true, ""
	}
	if want == got {
		return true, fmt.Sprintf("✓ tool_id %q", got)
	}
	return false, fmt.Sprintf("✗ tool_id %q != %q", got, want)
}

func checkRepo(want, got string) (bool, string) {
	if want == "" {
		return true, ""
	}
	if strings.HasPrefix(got, want) {
		return true, fmt.Sprintf("✓ repo %q under %q", got, want)
	}
	return false, fmt.Sprintf("✗ repo %q not under %q", got, want)
}

func checkPromptType(want []string, got event.PromptType) (bool, string) {
	if len(want) == 0 {
		return true, ""
	}
	for _, w := range want {
		if w == "*" || event.PromptType(w) == got {
			return true, fmt.Sprintf("✓ prompt_type %q", got)
		}
	}
	return false, fmt.Sprintf("✗ prompt_type %q not in [%s]", got, strings.Join(want, ", "))
}

func checkMinConfidence(min event.Confidence, got event.Confidence) (bool, string) {
	if min == "" {
		return true, ""
	}
	if got.AtLeast(min) {
		return true, fmt.Sprintf("✓ confidence %s >= %s", got, min)
	}
	return false, fmt.Sprintf("✗ confidence %s < %s", got, min)
}

func checkMaxConfidence(max event.Confidence, got event.Confidence) (bool, string) {
	if max == "" {
		return true, ""
	}
	if got.Level() <= max.Level() {
		return true, fmt.Sprintf("✓ confidence %s <= %s", got, max)
	}
	return false, fmt.Sprintf("✗ confidence %s > %s", got, max)
}

func checkSessionTag(want *string, got string) (bool, string) {
	if want == nil {
		return true, ""
	}
	if *want == got {
		return true, fmt.Sprintf("✓ session_tag %q", got)
	}
	return false, fmt.Sprintf("✗ session_tag %q != %q", got, *want)
}

// checkContains tests the prompt text, case-insensitively. A regex
// that fails to compile or to answer within the deadline degrades to
// a non-match with a recorded reason; it never stops evaluation.
func checkContains(pattern *string, isRegex bool, text string) (bool, string) {
	if pattern == nil {
		return true, ""
	}
	if !isRegex {
		if strings.Contains(strings.ToLower(text), strings.ToLower(*pattern)) {
			return true, fmt.Sprintf("✓ contains %q", *pattern)
		}
		return false, fmt.Sprintf("✗ text does not contain %q", *pattern)
	}

	re, err := regexp.Compile("(?is)" + *pattern)
	if err != nil {
		slog.Warn("policy: contains regex failed to compile, treating as non-match",
			"pattern", *pattern, "error", err)
		return false, fmt.Sprintf("✗ regex %q invalid: %v", *pattern, err)
	}
	matched, timedOut := matchWithDeadline(re, text)
	if timedOut {
		slog.Warn("policy: contains regex timed out, treating as non-match",
			"pattern", *pattern, "timeout", regexTimeout)
		return false, fmt.Sprintf("✗ regex %q timed out after %s", *pattern, regexTimeout)
	}
	if matched {
		return true, fmt.Sprintf("✓ regex %q matched", *pattern)
	}
	return false, fmt.Sprintf("✗ regex %q did not match", *pattern)
}

// matchWithDeadline runs the match on a worker goroutine and abandons
// it at the deadline. The worker always terminates shortly after (RE2
// has no pathological inputs), so the leak window is bounded.
func matchWithDeadline(re *regexp.Regexp, text string) (matched, timedOut bool) {
	done := make(chan bool, 1)
	go func() { done <- re.MatchString(text) }()

	timer := time.NewTimer(regexTimeout)
	defer timer.Stop()
	select {
	case m := <-done:
		return m, false
	case <-timer.C:
		return false, true
	}
}
