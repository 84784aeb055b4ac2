// Copyright 2026 The promptpilot Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/promptpilot/promptpilot/internal/event"
)

// Input is everything the evaluator sees about one prompt. Building
// an Input and calling Evaluate is side-effect free, so callers may
// replay the same input to reproduce a decision exactly.
type Input struct {
	PromptID   string
	SessionID  string
	Text       string
	Type       event.PromptType
	Confidence event.Confidence
	ToolID     string
	Repo       string
	SessionTag string
}

// InputFromEvent projects a prompt event into evaluator input.
func InputFromEvent(ev event.PromptEvent) Input {
	return Input{
		PromptID:   ev.PromptID,
		SessionID:  ev.SessionID,
		Text:       ev.Text,
		Type:       ev.Type,
		Confidence: ev.Confidence,
		ToolID:     ev.ToolID,
		Repo:       ev.Repo,
		SessionTag: ev.SessionTag,
	}
}

// Decision is the evaluator's verdict on one prompt. MatchedRuleID is
// empty when the defaults produced the action.
type Decision struct {
	PromptID       string           `json:"prompt_id"`
	SessionID      string           `json:"session_id"`
	PolicyHash     string           `json:"policy_hash"`
	MatchedRuleID  string           `json:"matched_rule_id,omitempty"`
	Action         Action           `json:"action"`
	Explanation    string           `json:"explanation"`
	Confidence     event.Confidence `json:"confidence"`
	PromptType     event.PromptType `json:"prompt_type"`
	Autonomy       AutonomyMode     `json:"autonomy_mode"`
	IdempotencyKey string           `json:"idempotency_key"`
}

// idempotencyKey derives a stable 16-hex-char key for deduplicating a
// decision across retries of the same prompt under the same policy.
func idempotencyKey(promptID, sessionID, policyHash, ruleID string, a Action) string {
	s := fmt.Sprintf("%s|%s|%s|%s|%s|%s", promptID, sessionID, policyHash, ruleID, a.Type, a.Value)
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}
