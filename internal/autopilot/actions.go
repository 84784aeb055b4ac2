// Copyright 2026 The promptpilot Authors
// SPDX-License-Identifier: Apache-2.0

// Package autopilot executes policy decisions against an agent
// session and bounds how much it may do without a human.
package autopilot

import (
	"context"
	"log/slog"

	"github.com/promptpilot/promptpilot/internal/event"
	"github.com/promptpilot/promptpilot/internal/policy"
)

// InjectFunc writes a reply into the agent's PTY.
type InjectFunc func(ctx context.Context, value string) error

// RouteFunc forwards a prompt to a human through the notification
// channel.
type RouteFunc func(ctx context.Context, ev event.PromptEvent) error

// NotifyFunc sends a one-way notice to the operator.
type NotifyFunc func(ctx context.Context, message string) error

// ActionResult reports what actually happened when a decision was
// executed. A callback failure lands in Error; the decision itself is
// never retried or reversed.
type ActionResult struct {
	ActionType    policy.ActionType `json:"action_type"`
	Injected      bool              `json:"injected,omitempty"`
	InjectedValue string            `json:"injected_value,omitempty"`
	RoutedToHuman bool              `json:"routed_to_human,omitempty"`
	Denied        bool              `json:"denied,omitempty"`
	Notified      bool              `json:"notified,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// ExecuteAction carries out one decision through the injected
// callbacks. The action executed is d.Action, which the engine may
// have overridden relative to what the evaluator produced. Errors
// from the callbacks are captured, not propagated: by the time an
// action runs, the decision is already final.
func ExecuteAction(ctx context.Context, d policy.Decision, ev event.PromptEvent,
	inject InjectFunc, route RouteFunc, notify NotifyFunc, logger *slog.Logger) ActionResult {

	a := d.Action
	res := ActionResult{ActionType: a.Type}

	switch a.Type {
	case policy.ActionAutoReply:
		if err := inject(ctx, a.Value); err != nil {
			res.Error = err.Error()
			logger.Error("autopilot: inject failed", "prompt_id", ev.PromptID, "error", err)
			break
		}
		res.Injected = true
		res.InjectedValue = a.Value

	case policy.ActionRequireHuman:
		if err := route(ctx, ev); err != nil {
			res.Error = err.Error()
			logger.Error("autopilot: route to human failed", "prompt_id", ev.PromptID, "error", err)
			break
		}
		res.RoutedToHuman = true

	case policy.ActionDeny:
		// The denial stands even if the operator notice fails.
		res.Denied = true
		reason := a.Reason
		if reason == "" {
			reason = "Prompt denied by policy."
		}
		if err := notify(ctx, "[DENY] "+reason); err != nil {
			res.Error = err.Error()
			logger.Error("autopilot: deny notice failed", "prompt_id", ev.PromptID, "error", err)
		}

	case policy.ActionNotifyOnly:
		msg := a.Message
		if msg == "" {
			msg = d.Explanation
		}
		if err := notify(ctx, msg); err != nil {
			res.Error = err.Error()
			logger.Error("autopilot: notify failed", "prompt_id", ev.PromptID, "error", err)
			break
		}
		res.Notified = true

	default:
		// Unknown action types route to a human rather than guessing.
		logger.Warn("autopilot: unknown action type, routing to human", "action_type", a.Type)
		res.RoutedToHuman = true
		if err := route(ctx, ev); err != nil {
			res.Error = err.Error()
		}
	}
	return res
}
