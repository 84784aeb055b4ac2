package risk

import (
	"reflect"
	"testing"

	"github.com/promptpilot/promptpilot/internal/event"
	"github.com/promptpilot/promptpilot/internal/policy"
)

func TestClassifyTable(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Level
	}{
		{
			name: "critical on protected branch with failing ci",
			in:   Input{PromptType: event.YesNo, ActionType: policy.ActionAutoReply, Confidence: event.High, Branch: "main", CIStatus: "failing"},
			want: LevelCritical,
		},
		{
			name: "free text auto reply is high regardless of branch",
			in:   Input{PromptType: event.FreeText, ActionType: policy.ActionAutoReply, Confidence: event.High},
			want: LevelHigh,
		},
		{
			name: "low confidence auto reply is high",
			in:   Input{PromptType: event.YesNo, ActionType: policy.ActionAutoReply, Confidence: event.Low},
			want: LevelHigh,
		},
		{
			name: "protected branch with passing ci is medium",
			in:   Input{PromptType: event.YesNo, ActionType: policy.ActionAutoReply, Confidence: event.High, Branch: "Release/2.3", CIStatus: "passing"},
			want: LevelMedium,
		},
		{
			name: "medium confidence is medium",
			in:   Input{PromptType: event.YesNo, ActionType: policy.ActionAutoReply, Confidence: event.Medium, Branch: "feature/x"},
			want: LevelMedium,
		},
		{
			name: "high confidence on feature branch is low",
			in:   Input{PromptType: event.YesNo, ActionType: policy.ActionAutoReply, Confidence: event.High, Branch: "feature/x"},
			want: LevelLow,
		},
		{
			name: "non auto reply is always low",
			in:   Input{PromptType: event.FreeText, ActionType: policy.ActionDeny, Confidence: event.Low, Branch: "main", CIStatus: "failing"},
			want: LevelLow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			if got.Level != tt.want {
				t.Errorf("Classify(%+v).Level = %s, want %s (reasons: %v)", tt.in, got.Level, tt.want, got.Reasons)
			}
			if len(got.Reasons) == 0 {
				t.Error("classification must carry at least one reason")
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	in := Input{PromptType: event.YesNo, ActionType: policy.ActionAutoReply, Confidence: event.Medium, Branch: " MAIN ", CIStatus: "failing"}
	first := Classify(in)
	for i := 0; i < 5; i++ {
		if got := Classify(in); !reflect.DeepEqual(got, first) {
			t.Fatalf("classification changed between calls: %+v vs %+v", first, got)
		}
	}
	if first.Level != LevelCritical {
		t.Errorf("branch matching should trim and ignore case, got %s", first.Level)
	}
}

func TestProtectedBranch(t *testing.T) {
	for branch, want := range map[string]bool{
		"main":        true,
		"MASTER":      true,
		" prod ":      true,
		"release/1.0": true,
		"release":     true,
		"feature/x":   false,
		"released":    false,
		"":            false,
	} {
		if got := ProtectedBranch(branch); got != want {
			t.Errorf("ProtectedBranch(%q) = %t, want %t", branch, got, want)
		}
	}
}
