// Copyright 2026 The promptpilot Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy defines the rule model for autonomous prompt
// handling, its YAML parser, and the first-match-wins evaluator.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/promptpilot/promptpilot/internal/event"
)

// AutonomyMode controls how much the engine may do without a human.
type AutonomyMode string

const (
	// ModeAssist evaluates rules and explains what would happen, but
	// every prompt still goes to a human.
	ModeAssist AutonomyMode = "assist"
	// ModeFull executes matched actions without waiting for a human.
	ModeFull AutonomyMode = "full"
)

// ActionType discriminates the Action union.
type ActionType string

const (
	ActionAutoReply    ActionType = "auto_reply"
	ActionRequireHuman ActionType = "require_human"
	ActionDeny         ActionType = "deny"
	ActionNotifyOnly   ActionType = "notify_only"
)

// Action is what a matched rule does. Exactly one variant applies,
// selected by Type; the other fields are meaningful only for the
// variants that carry them.
type Action struct {
	Type    ActionType `yaml:"type" json:"type"`
	Value   string     `yaml:"value,omitempty" json:"value,omitempty"`     // auto_reply: the reply to inject
	Message string     `yaml:"message,omitempty" json:"message,omitempty"` // require_human, notify_only
	Reason  string     `yaml:"reason,omitempty" json:"reason,omitempty"`   // deny
}

// AutoReply builds an auto_reply action injecting value.
func AutoReply(value string) Action { return Action{Type: ActionAutoReply, Value: value} }

// RequireHuman builds a require_human action with an operator message.
func RequireHuman(message string) Action {
	return Action{Type: ActionRequireHuman, Message: message}
}

// Deny builds a deny action with a reason.
func Deny(reason string) Action { return Action{Type: ActionDeny, Reason: reason} }

// NotifyOnly builds a notify_only action with an operator message.
func NotifyOnly(message string) Action { return Action{Type: ActionNotifyOnly, Message: message} }

// Match holds the flat criteria a v0 rule tests against a prompt.
// Zero values mean "not constrained": an empty ToolID matches any
// tool, a nil Contains skips the text check, and so on. Contains is a
// pointer so that an explicit empty string (always an authoring
// mistake) is distinguishable from an absent key.
type Match struct {
	ToolID        string           `yaml:"tool_id,omitempty"`
	Repo          string           `yaml:"repo,omitempty"`
	PromptType    []string         `yaml:"prompt_type,omitempty"`
	MinConfidence event.Confidence `yaml:"min_confidence,omitempty"`
	Contains      *string          `yaml:"contains,omitempty"`
	ContainsRegex bool             `yaml:"contains_is_regex,omitempty"`
}

// Rule is one v0 policy rule.
type Rule struct {
	ID             string `yaml:"id"`
	Description    string `yaml:"description,omitempty"`
	Match          Match  `yaml:"match"`
	Action         Action `yaml:"action"`
	MaxAutoReplies *int   `yaml:"max_auto_replies,omitempty"`
}

// Defaults selects the fallback action when no rule matches, or when
// a rule matches a low-confidence prompt. Only require_human and deny
// are permitted: the fallback path can never inject a reply.
type Defaults struct {
	NoMatch       ActionType `yaml:"no_match,omitempty"`
	LowConfidence ActionType `yaml:"low_confidence,omitempty"`
}

// PolicyV0 is the original flat policy document.
type PolicyV0 struct {
	PolicyVersion string       `yaml:"policy_version"`
	Name          string       `yaml:"name"`
	Mode          AutonomyMode `yaml:"autonomy_mode,omitempty"`
	Rules         []Rule       `yaml:"rules"`
	Defaults      Defaults     `yaml:"defaults,omitempty"`
}

// Policy is either a *PolicyV0 or a *PolicyV1. Callers that need
// version-specific behaviour type-switch on the concrete type.
type Policy interface {
	Version() string
	PolicyName() string
	AutonomyMode() AutonomyMode
	// ContentHash is a 16-hex-char digest of the rule set. Any change
	// to any rule, or to rule order, produces a different hash.
	ContentHash() string
	// RuleCap returns a rule's max_auto_replies budget, if it has one.
	RuleCap(ruleID string) (int, bool)

	isPolicy()
}

func (*PolicyV0) isPolicy() {}

func (p *PolicyV0) Version() string    { return "0" }
func (p *PolicyV0) PolicyName() string { return p.Name }

func (p *PolicyV0) AutonomyMode() AutonomyMode {
	if p.Mode == "" {
		return ModeAssist
	}
	return p.Mode
}

func (p *PolicyV0) RuleCap(ruleID string) (int, bool) {
	for _, r := range p.Rules {
		if r.ID == ruleID && r.MaxAutoReplies != nil {
			return *r.MaxAutoReplies, true
		}
	}
	return 0, false
}

var ruleIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FieldError is a single validation failure, addressed by a dotted
// path into the document (e.g. "rules[2].match.contains").
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) String() string { return e.Path + ": " + e.Message }

// ParseError reports every validation failure in a policy document at
// once, so an author can fix a file in one pass.
type ParseError struct {
	Source string // file path, or "<input>" for in-memory text
	Fields []FieldError
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid policy %s:", e.Source)
	for _, f := range e.Fields {
		b.WriteString("\n  ")
		b.WriteString(f.String())
	}
	return b.String()
}

func parseErrorf(source, path, format string, args ...any) *ParseError {
	return &ParseError{Source: source, Fields: []FieldError{{Path: path, Message: fmt.Sprintf(format, args...)}}}
}

// validate checks structural rules shared by every version: id shape,
// uniqueness, action well-formedness, and criterion sanity.
func (p *PolicyV0) validate(source string) error {
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
		fields = append(fields, validateMatch(prefix+".match", r.Match)...)
		fields = append(fields, validateAction(prefix+".action", r.Action)...)
		fields = append(fields, validateCap(prefix, r.MaxAutoReplies)...)
	}
	if len(fields) > 0 {
		return &ParseError{Source: source, Fields: fields}
	}
	return nil
}

func validateRuleID(prefix, id string, seen map[string]bool) []FieldError {
	if id == "" {
		return []FieldError{{prefix + ".id", "is required"}}
	}
	if !ruleIDPattern.MatchString(id) {
		return []FieldError{{prefix + ".id", fmt.Sprintf("invalid rule id %q (want [A-Za-z0-9_-]+)", id)}}
	}
	if seen[id] {
		return []FieldError{{prefix + ".id", fmt.Sprintf("duplicate rule id %q", id)}}
	}
	seen[id] = true
	return nil
}

func validateMatch(prefix string, m Match) []FieldError {
	var fields []FieldError
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
	fields = append(fields, validateContains(prefix, m.Contains, m.ContainsRegex)...)
	return fields
}

// validateContains rejects an explicit empty contains (it would match
// every prompt, which is never what the author meant) and a regex
// that does not compile.
func validateContains(prefix string, contains *string, isRegex bool) []FieldError {
	if contains == nil {
		return nil
	}
	if *contains == "" {
		return []FieldError{{prefix + ".contains", "contains must not be empty"}}
	}
	if isRegex {
		if _, err := regexp.Compile("(?is)" + *contains); err != nil {
			return []FieldError{{prefix + ".contains", fmt.Sprintf("invalid regex: %v", err)}}
		}
	}
	return nil
}

func validateConfidence(path string, c event.Confidence) []FieldError {
	switch c {
	case event.Low, event.Medium, event.High:
		return nil
	default:
		return []FieldError{{path, fmt.Sprintf("invalid confidence %q (want low, medium, or high)", c)}}
	}
}

func validateAction(prefix string, a Action) []FieldError {
	switch a.Type {
	case ActionAutoReply:
		if a.Value == "" {
			return []FieldError{{prefix + ".value", "auto_reply requires a value"}}
		}
	case ActionRequireHuman, ActionDeny, ActionNotifyOnly:
	case "":
		return []FieldError{{prefix + ".type", "is required"}}
	default:
		return []FieldError{{prefix + ".type", fmt.Sprintf("unknown action type %q", a.Type)}}
	}
	return nil
}

func validateCap(prefix string, limit *int) []FieldError {
	if limit != nil && *limit < 1 {
		return []FieldError{{prefix + ".max_auto_replies", fmt.Sprintf("must be >= 1, got %d", *limit)}}
	}
	return nil
}

// validateDefaults enforces the standing safety rule: the fallback
// path may escalate or refuse, never reply on its own.
func validateDefaults(d Defaults) []FieldError {
	var fields []FieldError
	for _, f := range []struct {
		path string
		val  ActionType
	}{
		{"defaults.no_match", d.NoMatch},
		{"defaults.low_confidence", d.LowConfidence},
	} {
		switch f.val {
		case "", ActionRequireHuman, ActionDeny:
		default:
			fields = append(fields, FieldError{f.path, fmt.Sprintf("must be require_human or deny, got %q", f.val)})
		}
	}
	return fields
}

// noMatchAction resolves the fallback for unmatched prompts.
func (d Defaults) noMatchAction() ActionType {
	if d.NoMatch == "" {
		return ActionRequireHuman
	}
	return d.NoMatch
}

// lowConfidenceAction resolves the fallback for low-confidence prompts.
func (d Defaults) lowConfidenceAction() ActionType {
	if d.LowConfidence == "" {
		return ActionRequireHuman
	}
	return d.LowConfidence
}
