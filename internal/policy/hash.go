// Copyright 2026 The promptpilot Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ContentHash digests the rule set into 16 hex characters. The digest
// is order-sensitive: reordering rules changes routing behaviour, so
// it must change the hash. Defaults and autonomy mode are included
// for the same reason.
func (p *PolicyV0) ContentHash() string {
	var b strings.Builder
	fmt.Fprintf(&b, "v0|%s|%s|%s\n", p.AutonomyMode(), p.Defaults.noMatchAction(), p.Defaults.lowConfidenceAction())
	for _, r := range p.Rules {
		writeRuleDigest(&b, r.ID, digestMatch(r.Match), r.Action, r.MaxAutoReplies)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}

func (p *PolicyV1) ContentHash() string {
	var b strings.Builder
	fmt.Fprintf(&b, "v1|%s|%s|%s\n", p.AutonomyMode(), p.Defaults.noMatchAction(), p.Defaults.lowConfidenceAction())
	for _, r := range p.Rules {
		writeRuleDigest(&b, r.ID, digestMatchV1(r.Match), r.Action, r.MaxAutoReplies)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}

func writeRuleDigest(b *strings.Builder, id, match string, a Action, limit *int) {
	n := -1
	if limit != nil {
		n = *limit
	}
	fmt.Fprintf(b, "%s|%s|%s|%s|%s|%s|%d\n", id, match, a.Type, a.Value, a.Message, a.Reason, n)
}

func digestMatch(m Match) string {
	return fmt.Sprintf("tool=%s repo=%s types=%s conf>=%s contains=%s regex=%t",
		m.ToolID, m.Repo, strings.Join(m.PromptType, ","), m.MinConfidence,
		strDeref(m.Contains), m.ContainsRegex)
}

func digestMatchV1(m MatchV1) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tool=%s repo=%s types=%s conf>=%s conf<=%s tag=%s contains=%s regex=%t",
		m.ToolID, m.Repo, strings.Join(m.PromptType, ","), m.MinConfidence, m.MaxConfidence,
		strDeref(m.SessionTag), strDeref(m.Contains), m.ContainsRegex)
	for _, sub := range m.AnyOf {
		fmt.Fprintf(&b, " any_of(%s)", digestMatchV1(sub))
	}
	for _, sub := range m.NoneOf {
		fmt.Fprintf(&b, " none_of(%s)", digestMatchV1(sub))
	}
	return b.String()
}

func strDeref(s *string) string {
	if s == nil {
		return "<unset>"
	}
	return *s
}
