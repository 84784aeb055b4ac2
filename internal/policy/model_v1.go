// Copyright 2026 The promptpilot Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"

	"github.com/promptpilot/promptpilot/internal/event"
)

// MatchV1 extends the flat v0 criteria with confidence bands, session
// tags, and composition. A block is either flat (any of the scalar
// criteria) or compositional (any_of); mixing the two in one block is
// rejected at parse time. SessionTag is a pointer: nil matches every
// session, a set value (even an unusual empty one) must match the
// incoming tag exactly.
type MatchV1 struct {
	ToolID        string           `yaml:"tool_id,omitempty"`
	Repo          string           `yaml:"repo,omitempty"`
	PromptType    []string         `yaml:"prompt_type,omitempty"`
	MinConfidence event.Confidence `yaml:"min_confidence,omitempty"`
	MaxConfidence event.Confidence `yaml:"max_confidence,omitempty"`
	SessionTag    *string          `yaml:"session_tag,omitempty"`
	Contains      *string          `yaml:"contains,omitempty"`
	ContainsRegex bool             `yaml:"contains_is_regex,omitempty"`

	// AnyOf matches when at least one sub-block matches. Mutually
	// exclusive with the flat criteria above.
	AnyOf []MatchV1 `yaml:"any_of,omitempty"`
	// NoneOf vetoes a primary match: if any sub-block matches, the
	// rule does not. Checked only after the primary criteria pass.
	NoneOf []MatchV1 `yaml:"none_of,omitempty"`
}

// hasFlat reports whether any flat criterion is set on the block.
func (m MatchV1) hasFlat() bool {
	return m.ToolID != "" || m.Repo != "" || len(m.PromptType) > 0 ||
		m.MinConfidence != "" || m.MaxConfidence != "" ||
		m.SessionTag != nil || m.Contains != nil
}

// RuleV1 is one v1 policy rule.
type RuleV1 struct {
	ID             string  `yaml:"id"`
	Description    string  `yaml:"description,omitempty"`
	Match          MatchV1 `yaml:"match"`
	Action         Action  `yaml:"action"`
	MaxAutoReplies *int    `yaml:"max_auto_replies,omitempty"`
}

// PolicyV1 is the current policy document. It adds inheritance via
// Extends and the richer MatchV1 criteria.
type PolicyV1 struct {
	PolicyVersion string       `yaml:"policy_version"`
	Name          string       `yaml:"name"`
	Extends       string       `yaml:"extends,omitempty"`
	Mode          AutonomyMode `yaml:"autonomy_mode,omitempty"`
	Rules         []RuleV1     `yaml:"rules"`
	Defaults      Defaults     `yaml:"defaults,omitempty"`
}

func (*PolicyV1) isPolicy() {}

func (p *PolicyV1) Version() string    { return "1" }
func (p *PolicyV1) PolicyName() string { return p.Name }

func (p *PolicyV1) AutonomyMode() AutonomyMode {
	if p.Mode == "" {
		return ModeAssist
	}
	return p.Mode
}

func (p *PolicyV1) RuleCap(ruleID string) (int, bool) {
	for _, r := range p.Rules {
		if r.ID == ruleID && r.MaxAutoReplies != nil {
			return *r.MaxAutoReplies, true
		}
	}
	return 0, false
}

func (p *PolicyV1) validate(source string) error {
	var fields []FieldError
	if p.Name == "" {
		fields = append(fields, FieldError{"name", "is required"})
	}
	switch p.Mode {
	case "", ModeAssist, ModeFull:
	default:
		fields = append(fields, FieldError{"autonomy_mode", fmt.Sprintf("invalid mode %q (want assist or full)", p.Mode)})
	}
	fields = append(fields, validateDefaults(p.Defaults)...)

	seen := make(map[string]bool, len(p.Rules))
	for i, r := range p.Rules {
		prefix := fmt.Sprintf("rules[%d]", i)
		fields = append(fields, validateRuleID(prefix, r.ID, seen)...)
		fields = append(fields, validateMatchV1(prefix+".match", r.Match, true)...)
		fields = append(fields, validateAction(prefix+".action", r.Action)...)
		fields = append(fields, validateCap(prefix, r.MaxAutoReplies)...)
	}
	if len(fields) > 0 {
		return &ParseError{Source: source, Fields: fields}
	}
	return nil
}

// validateMatchV1 checks one criteria block. Only the top-level block
// of a rule may carry none_of; nested blocks are primary-only.
func validateMatchV1(prefix string, m MatchV1, top bool) []FieldError {
	var fields []FieldError
	if len(m.AnyOf) > 0 && m.hasFlat() {
		fields = append(fields, FieldError{prefix, "any_of is mutually exclusive with flat criteria"})
	}
	for j, pt := range m.PromptType {
		if pt == "*" {
			continue
		}
		switch event.PromptType(pt) {
		case event.YesNo, event.ConfirmEnter, event.MultipleChoice, event.FreeText:
		default:
			fields = append(fields, FieldError{
				fmt.Sprintf("%s.prompt_type[%d]", prefix, j),
				fmt.Sprintf("unknown prompt type %q", pt),
			})
		}
	}
	if m.MinConfidence != "" {
		fields = append(fields, validateConfidence(prefix+".min_confidence", m.MinConfidence)...)
	}
	if m.MaxConfidence != "" {
		fields = append(fields, validateConfidence(prefix+".max_confidence", m.MaxConfidence)...)
	}
	if m.MinConfidence != "" && m.MaxConfidence != "" &&
		m.MinConfidence.Level() > m.MaxConfidence.Level() {
		fields = append(fields, FieldError{prefix, fmt.Sprintf("min_confidence %q exceeds max_confidence %q", m.MinConfidence, m.MaxConfidence)})
	}
	fields = append(fields, validateContains(prefix, m.Contains, m.ContainsRegex)...)

	for j, sub := range m.AnyOf {
		sp := fmt.Sprintf("%s.any_of[%d]", prefix, j)
		if len(sub.NoneOf) > 0 {
			fields = append(fields, FieldError{sp, "none_of is not allowed in a nested block"})
		}
		fields = append(fields, validateMatchV1(sp, sub, false)...)
	}
	for j, sub := range m.NoneOf {
		sp := fmt.Sprintf("%s.none_of[%d]", prefix, j)
		if !top {
			fields = append(fields, FieldError{sp, "none_of is not allowed in a nested block"})
		}
		if len(sub.NoneOf) > 0 {
			fields = append(fields, FieldError{sp, "none_of is not allowed in a nested block"})
		}
		fields = append(fields, validateMatchV1(sp, sub, false)...)
	}
	return fields
}
