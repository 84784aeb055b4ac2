// Package guard screens reply values before they are injected into an
// agent session. Guards are a last line of defense behind the policy:
// a rule may say "reply y", but no rule can make the engine type
// something a guard rejects.
package guard

import (
	"github.com/promptpilot/promptpilot/internal/event"
)

// CheckFunc inspects a reply value about to be injected for the given
// prompt. Returns a non-nil error to block the injection.
type CheckFunc func(ev event.PromptEvent, value string) error

// Set holds an ordered list of reply guards. Hardcoded guards run first
// and cannot be removed. Config guards are appended after.
type Set struct {
	hardcoded []CheckFunc
	config    []CheckFunc
}

// NewSet creates a Set with the given hardcoded guards.
func NewSet(hardcoded ...CheckFunc) *Set {
	return &Set{hardcoded: hardcoded}
}

// AddConfig appends a config-driven guard.
func (s *Set) AddConfig(fn CheckFunc) {
	s.config = append(s.config, fn)
}

// Check runs all guards against the given prompt and reply value.
// Hardcoded guards always run first.
func (s *Set) Check(ev event.PromptEvent, value string) error {
	for _, fn := range s.hardcoded {
		if err := fn(ev, value); err != nil {
			return err
		}
	}
	for _, fn := range s.config {
		if err := fn(ev, value); err != nil {
			return err
		}
	}
	return nil
}
