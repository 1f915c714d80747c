package plan

import "fmt"

// UnknownStepError reports an update that targeted a step id not
// present in the plan. This is a programming error and is never
// silently ignored.
type UnknownStepError struct {
	StepID string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step %q", e.StepID)
}

// InvalidTransitionError reports a status change that violates the
// monotone ordering pending -> in_progress -> terminal.
type InvalidTransitionError struct {
	StepID string
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for step %q: %s -> %s", e.StepID, e.From, e.To)
}
