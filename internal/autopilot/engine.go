// Copyright 2026 The promptpilot Authors
// SPDX-License-Identifier: Apache-2.0

package autopilot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/promptpilot/promptpilot/internal/event"
	"github.com/promptpilot/promptpilot/internal/guard"
	"github.com/promptpilot/promptpilot/internal/metrics"
	"github.com/promptpilot/promptpilot/internal/pin"
	"github.com/promptpilot/promptpilot/internal/policy"
	"github.com/promptpilot/promptpilot/internal/risk"
	"github.com/promptpilot/promptpilot/internal/trace"
)

// State is the engine's run state. Stopped is terminal.
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Transition is one recorded state change.
type Transition struct {
	FromState   string `json:"from_state"`
	ToState     string `json:"to_state"`
	Timestamp   string `json:"timestamp"`
	TriggeredBy string `json:"triggered_by"`
}

// Options wires an Engine. Policy, Inject, Route, and Notify are
// required; everything else degrades gracefully when absent.
type Options struct {
	Policy policy.Policy
	Inject InjectFunc
	Route  RouteFunc
	Notify NotifyFunc

	Trace       *trace.Trace     // decision log
	Chain       *trace.Chain     // sealed trace, when integrity is required
	HistoryPath string           // state-transition JSONL
	Pins        *pin.Manager     // per-session policy pinning
	Guards      *guard.Set       // reply screening before injection
	Metrics     *metrics.Metrics // nil disables counters
	Logger      *slog.Logger

	// Session context consulted by the risk classifier.
	Branch   string
	CIStatus string
}

type counterKey struct {
	ruleID    string
	sessionID string
}

// Engine holds the active policy and everything stateful about
// autonomous prompt handling: run state, per-(rule,session) reply
// counters, and the transition history.
type Engine struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	counters map[counterKey]int
}

// New builds an engine in the running state.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		opts:     opts,
		logger:   logger,
		state:    StateRunning,
		counters: make(map[counterKey]int),
	}
}

// State returns the current run state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pause suspends autonomous handling. Prompts received while paused
// are routed to a human and consume no auto-reply budget.
func (e *Engine) Pause(triggeredBy string) error {
	return e.transition(StatePaused, triggeredBy, StateRunning)
}

// Resume returns a paused engine to running.
func (e *Engine) Resume(triggeredBy string) error {
	return e.transition(StateRunning, triggeredBy, StatePaused)
}

// Stop ends autonomous handling permanently for this engine.
func (e *Engine) Stop(triggeredBy string) error {
	return e.transition(StateStopped, triggeredBy, StateRunning, StatePaused)
}

// transition records and applies a state change. The history entry is
// written before the state mutates: a transition that cannot be
// recorded does not happen.
func (e *Engine) transition(to State, triggeredBy string, validFrom ...State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok := false
	for _, s := range validFrom {
		if e.state == s {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("cannot transition from %s to %s", e.state, to)
	}

	if e.opts.HistoryPath != "" {
		t := Transition{
			FromState:   string(e.state),
			ToState:     string(to),
			Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
			TriggeredBy: triggeredBy,
		}
		if err := appendJSONL(e.opts.HistoryPath, t); err != nil {
			return fmt.Errorf("record transition: %w", err)
		}
	}

	e.logger.Info("autopilot: state change", "from", e.state, "to", to, "by", triggeredBy)
	e.state = to
	return nil
}

// ResetSession clears the auto-reply counters for one session,
// typically when the underlying agent session ends.
func (e *Engine) ResetSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.counters {
		if k.sessionID == sessionID {
			delete(e.counters, k)
		}
	}
	if e.opts.Pins != nil {
		e.opts.Pins.Unpin(sessionID)
	}
}

// HandlePrompt runs the full decision path for one prompt: evaluate,
// bound by the rate limiter, execute, record. Failures along the way
// are captured in the result; a prompt is always answered with
// something, even if that something is an error.
func (e *Engine) HandlePrompt(ctx context.Context, ev event.PromptEvent) ActionResult {
	switch e.State() {
	case StateStopped:
		e.logger.Warn("autopilot: prompt received while stopped", "prompt_id", ev.PromptID)
		return ActionResult{Error: "autopilot is stopped"}
	case StatePaused:
		paused := policy.Decision{
			PromptID:  ev.PromptID,
			SessionID: ev.SessionID,
			Action:    policy.RequireHuman("Autopilot is paused; human input required"),
		}
		return ExecuteAction(ctx, paused, ev, e.opts.Inject, e.opts.Route, e.opts.Notify, e.logger)
	}

	drift, pinnedHash := e.pinSession(ev.SessionID)

	decision := policy.Evaluate(e.opts.Policy, policy.InputFromEvent(ev))
	if drift {
		decision.Explanation += fmt.Sprintf(" [policy changed mid-session; session pinned %s]", pinnedHash)
	}

	executed, reserved := e.resolveAction(decision, ev)
	exec := decision
	exec.Action = executed
	res := ExecuteAction(ctx, exec, ev, e.opts.Inject, e.opts.Route, e.opts.Notify, e.logger)
	if reserved && !res.Injected {
		e.releaseBudget(decision.MatchedRuleID, ev.SessionID)
	}

	e.record(decision, ev, res)
	return res
}

// resolveAction turns the evaluator's verdict into the action that
// actually runs, applying assist-mode downgrades, reply guards, and the
// per-rule budget. A granted budget slot is reserved under the lock, so
// two concurrent prompts cannot both squeeze under the cap; the caller
// releases the slot if the inject fails.
func (e *Engine) resolveAction(d policy.Decision, ev event.PromptEvent) (a policy.Action, reserved bool) {
	sessionID := ev.SessionID
	if d.Action.Type != policy.ActionAutoReply {
		return d.Action, false
	}

	if d.Autonomy != policy.ModeFull {
		e.logger.Info("autopilot: assist mode, suggesting instead of replying",
			"prompt_id", d.PromptID, "rule", d.MatchedRuleID, "suggested", d.Action.Value)
		return policy.RequireHuman(fmt.Sprintf("Assist mode; policy suggests replying %q", d.Action.Value)), false
	}

	if e.opts.Guards != nil {
		if err := e.opts.Guards.Check(ev, d.Action.Value); err != nil {
			e.logger.Warn("autopilot: reply blocked by guard, escalating",
				"prompt_id", d.PromptID, "rule", d.MatchedRuleID, "error", err)
			if e.opts.Metrics != nil {
				e.opts.Metrics.Escalations.Inc()
			}
			return policy.RequireHuman(fmt.Sprintf("Auto-reply blocked: %v; human input required", err)), false
		}
	}

	limit, ok := e.opts.Policy.RuleCap(d.MatchedRuleID)
	if !ok {
		return d.Action, false
	}

	e.mu.Lock()
	key := counterKey{d.MatchedRuleID, sessionID}
	if e.counters[key] >= limit {
		e.mu.Unlock()
		e.logger.Warn("autopilot: auto-reply budget exhausted, escalating",
			"rule", d.MatchedRuleID, "session", sessionID, "limit", limit)
		if e.opts.Metrics != nil {
			e.opts.Metrics.Escalations.Inc()
		}
		return policy.RequireHuman(fmt.Sprintf(
			"Auto-reply limit (%d) reached for rule %s; human input required", limit, d.MatchedRuleID)), false
	}
	e.counters[key]++
	e.mu.Unlock()
	return d.Action, true
}

func (e *Engine) releaseBudget(ruleID, sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := counterKey{ruleID, sessionID}
	if e.counters[key] > 0 {
		e.counters[key]--
	}
}

// pinSession pins a new session to the active policy hash. When the
// session is already pinned to a different hash, the drift and the
// pinned hash are reported so the caller can surface them in the
// decision's explanation.
func (e *Engine) pinSession(sessionID string) (drift bool, pinnedHash string) {
	if e.opts.Pins == nil {
		return false, ""
	}
	hash := e.opts.Policy.ContentHash()
	if matched, pinned := e.opts.Pins.Check(sessionID, hash); pinned {
		if matched {
			return false, ""
		}
		p, _ := e.opts.Pins.Get(sessionID)
		e.logger.Warn("autopilot: active policy differs from the session's pinned policy",
			"session", sessionID, "policy_hash", hash, "pinned_hash", p.PolicyHash)
		return true, p.PolicyHash
	}
	e.opts.Pins.Pin(sessionID, hash, e.opts.Policy.Version())
	return false, ""
}

// record persists the original decision and, when a chain is
// configured, a sealed entry carrying what was actually done. Trace
// failures are logged and swallowed: recording must never block a
// prompt from being actioned.
func (e *Engine) record(d policy.Decision, ev event.PromptEvent, res ActionResult) {
	assessment := risk.Classify(risk.Input{
		PromptType: ev.Type,
		ActionType: res.ActionType,
		Confidence: ev.Confidence,
		Branch:     e.opts.Branch,
		CIStatus:   e.opts.CIStatus,
	})

	if e.opts.Metrics != nil {
		e.opts.Metrics.Decisions.WithLabelValues(string(res.ActionType)).Inc()
		e.opts.Metrics.Risk.WithLabelValues(string(assessment.Level)).Inc()
	}

	if e.opts.Trace != nil {
		if err := e.opts.Trace.Record(d); err != nil {
			e.logger.Error("autopilot: trace write failed", "prompt_id", d.PromptID, "error", err)
			if e.opts.Metrics != nil {
				e.opts.Metrics.TraceErrors.Inc()
			}
		}
	}
	if e.opts.Chain != nil {
		entry := trace.EntryV2{
			PromptID:      d.PromptID,
			SessionID:     d.SessionID,
			PolicyHash:    d.PolicyHash,
			MatchedRuleID: d.MatchedRuleID,
			RiskLevel:     string(assessment.Level),
			ActionTaken:   string(res.ActionType),
		}
		if err := e.opts.Chain.Append(entry); err != nil {
			e.logger.Error("autopilot: chain write failed", "prompt_id", d.PromptID, "error", err)
			if e.opts.Metrics != nil {
				e.opts.Metrics.TraceErrors.Inc()
			}
		}
	}
}

func appendJSONL(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}
