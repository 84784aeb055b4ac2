// Package risk classifies decisions with a fixed lookup table. No
// heuristics and no history: the same input always yields the same
// level, which is what makes the levels auditable.
package risk

import (
	"strings"

	"github.com/promptpilot/promptpilot/internal/event"
	"github.com/promptpilot/promptpilot/internal/policy"
)

// Level orders risk from benign to critical.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Input is the context a decision is classified against. Branch and
// CIStatus come from the session's working copy and may be empty when
// unknown.
type Input struct {
	PromptType event.PromptType
	ActionType policy.ActionType
	Confidence event.Confidence
	Branch     string
	CIStatus   string
}

// Assessment is the classification outcome with the reasons that
// produced it.
type Assessment struct {
	Level   Level    `json:"level"`
	Reasons []string `json:"reasons"`
}

var protectedBranches = map[string]bool{
	"main":       true,
	"master":     true,
	"release":    true,
	"production": true,
	"prod":       true,
}

// ProtectedBranch reports whether branch is one an unattended reply
// could do real damage on. Matching is case-insensitive after
// trimming; release/* branches count.
func ProtectedBranch(branch string) bool {
	b := strings.ToLower(strings.TrimSpace(branch))
	return protectedBranches[b] || strings.HasPrefix(b, "release/")
}

// Classify applies the decision table, highest severity first. Only
// auto-replies carry risk above low: every other action type keeps a
// human (or a refusal) in the loop by construction.
func Classify(in Input) Assessment {
	if in.ActionType != policy.ActionAutoReply {
		return Assessment{Level: LevelLow, Reasons: []string{"action keeps a human in the loop"}}
	}

	protected := ProtectedBranch(in.Branch)
	failing := strings.EqualFold(strings.TrimSpace(in.CIStatus), "failing")

	switch {
	case protected && failing:
		return Assessment{Level: LevelCritical, Reasons: []string{
			"auto-reply on protected branch " + strings.TrimSpace(in.Branch),
			"CI is failing",
		}}
	case in.PromptType == event.FreeText:
		return Assessment{Level: LevelHigh, Reasons: []string{"auto-reply to a free-text prompt"}}
	case in.Confidence.Level() == 0:
		return Assessment{Level: LevelHigh, Reasons: []string{"auto-reply at low confidence"}}
	case protected:
		return Assessment{Level: LevelMedium, Reasons: []string{"auto-reply on protected branch " + strings.TrimSpace(in.Branch)}}
	case in.Confidence == event.Medium:
		return Assessment{Level: LevelMedium, Reasons: []string{"auto-reply at medium confidence"}}
	default:
		return Assessment{Level: LevelLow, Reasons: []string{"auto-reply at high confidence on an unprotected branch"}}
	}
}
