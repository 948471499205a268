package engine

import "testing"

func TestEvaluateAction(t *testing.T) {
	const threshold, floor = 0.95, 0.40

	tests := []struct {
		name       string
		confidence float64
		safe       bool
		optIn      bool
		want       ExecutionAction
	}{
		{"high confidence, safe, opted in", 0.96, true, true, ActionExecute},
		{"high confidence but unsafe", 0.96, false, true, ActionAsk},
		{"high confidence but no opt-in", 0.96, true, false, ActionAsk},
		{"exactly at threshold", 0.95, true, true, ActionExecute},
		{"medium band asks", 0.50, true, true, ActionAsk},
		{"exactly at ask floor", 0.40, false, false, ActionAsk},
		{"below floor suggests", 0.30, true, true, ActionSuggest},
		{"zero confidence", 0, true, true, ActionSuggest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateAction(tt.confidence, tt.safe, tt.optIn, threshold, floor)
			if got != tt.want {
				t.Errorf("EvaluateAction(%v, %v, %v) = %v, want %v",
					tt.confidence, tt.safe, tt.optIn, got, tt.want)
			}
		})
	}
}

func TestExecutionActionString(t *testing.T) {
	if ActionExecute.String() != "execute" {
		t.Errorf("execute = %q", ActionExecute.String())
	}
	if ActionAsk.String() != "ask" {
		t.Errorf("ask = %q", ActionAsk.String())
	}
	if ActionSuggest.String() != "suggest" {
		t.Errorf("suggest = %q", ActionSuggest.String())
	}
}
