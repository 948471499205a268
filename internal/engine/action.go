package engine

// ExecutionAction is the decision for a matured prediction.
type ExecutionAction int

const (
	// ActionSuggest records the prediction without interrupting anyone.
	ActionSuggest ExecutionAction = iota
	// ActionAsk asks the person before acting.
	ActionAsk
	// ActionExecute carries the action out automatically.
	ActionExecute
)

func (a ExecutionAction) String() string {
	switch a {
	case ActionExecute:
		return "execute"
	case ActionAsk:
		return "ask"
	default:
		return "suggest"
	}
}

// EvaluateAction maps confidence plus safety and user opt-in to a decision.
// Execute requires all three: confidence at or above the execute threshold,
// the action marked safe, and the user's opt-in. The medium band [askFloor,
// threshold) asks; everything else suggests. Pure and deterministic, safe to
// call speculatively.
func EvaluateAction(confidence float64, safeToAutoExecute, userAllowsAutoExecute bool, executeThreshold, askFloor float64) ExecutionAction {
	if confidence >= executeThreshold && safeToAutoExecute && userAllowsAutoExecute {
		return ActionExecute
	}
	if confidence >= askFloor {
		return ActionAsk
	}
	return ActionSuggest
}
