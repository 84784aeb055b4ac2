// Package event defines the prompt events that flow from an agent
// session into policy evaluation.
package event

import "time"

// PromptType classifies the interaction an agent is blocked on.
type PromptType string

const (
	YesNo          PromptType = "yes_no"
	ConfirmEnter   PromptType = "confirm_enter"
	MultipleChoice PromptType = "multiple_choice"
	FreeText       PromptType = "free_text"
)

// Confidence is the detector's certainty that a prompt was correctly
// classified. Levels are ordered: Low < Medium < High.
type Confidence string

const (
	Low    Confidence = "low"
	Medium Confidence = "medium"
	High   Confidence = "high"
)

// Level returns the ordinal rank of c. Unknown values rank as Low so
// that a garbled confidence never satisfies a threshold it shouldn't.
func (c Confidence) Level() int {
	switch c {
	case Medium:
		return 1
	case High:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether c meets the threshold min.
func (c Confidence) AtLeast(min Confidence) bool {
	return c.Level() >= min.Level()
}

// PromptEvent is a single detected prompt awaiting a decision.
type PromptEvent struct {
	PromptID   string     `json:"prompt_id"`
	SessionID  string     `json:"session_id"`
	Type       PromptType `json:"type"`
	Confidence Confidence `json:"confidence"`
	Text       string     `json:"text"`
	Choices    []string   `json:"choices,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at,omitzero"`

	// Session context carried alongside the prompt itself.
	ToolID     string `json:"tool_id,omitempty"`
	Repo       string `json:"repo,omitempty"`
	SessionTag string `json:"session_tag,omitempty"`
}
