package guard

import (
	"fmt"
	"strconv"

	"github.com/promptpilot/promptpilot/internal/event"
)

// maxReplyBytes bounds a single injected reply. Real prompt answers are
// a handful of keystrokes; anything near this limit is a policy bug.
const maxReplyBytes = 256

// Hardcoded returns the built-in guards that are always enforced
// regardless of configuration. They keep an auto-reply from ever
// injecting something the terminal would interpret as more than one
// answer.
func Hardcoded() []CheckFunc {
	return []CheckFunc{
		checkControlChars,
		checkLength,
		checkChoiceMembership,
	}
}

// checkControlChars blocks control characters. The injector supplies
// its own terminating Enter, so a newline inside a reply value would
// smuggle a second keystroke sequence past the policy.
func checkControlChars(_ event.PromptEvent, value string) error {
	for _, r := range value {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("reply contains control character %q", r)
		}
	}
	return nil
}

func checkLength(_ event.PromptEvent, value string) error {
	if len(value) > maxReplyBytes {
		return fmt.Errorf("reply is %d bytes, limit is %d", len(value), maxReplyBytes)
	}
	return nil
}

// checkChoiceMembership requires that a reply to a multiple-choice
// prompt names one of the offered choices, either verbatim or as a
// 1-based index.
func checkChoiceMembership(ev event.PromptEvent, value string) error {
	if ev.Type != event.MultipleChoice || len(ev.Choices) == 0 {
		return nil
	}
	for _, c := range ev.Choices {
		if value == c {
			return nil
		}
	}
	if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= len(ev.Choices) {
		return nil
	}
	return fmt.Errorf("reply %q is not one of the %d offered choices", value, len(ev.Choices))
}
