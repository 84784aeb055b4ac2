package guard

import (
	"fmt"
	"strings"

	"github.com/promptpilot/promptpilot/internal/event"
)

// DenySubstrings compiles a configured denylist into a guard. Matching
// is case-insensitive; empty entries are ignored.
func DenySubstrings(subs []string) CheckFunc {
	lowered := make([]string, len(subs))
	for i, s := range subs {
		lowered[i] = strings.ToLower(s)
	}
	return func(_ event.PromptEvent, value string) error {
		lv := strings.ToLower(value)
		for i, s := range lowered {
			if s != "" && strings.Contains(lv, s) {
				return fmt.Errorf("reply matches denied substring %q", subs[i])
			}
		}
		return nil
	}
}
