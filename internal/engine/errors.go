package engine

import "fmt"

// EscalationError ends a session after a human rejected an escalation
// or no approver was available to resolve one.
type EscalationError struct {
	SessionID string
	Reason    string
	Feedback  string
}

func (e *EscalationError) Error() string {
	if e.Feedback != "" {
		return fmt.Sprintf("session %s escalation rejected (%s): %s", e.SessionID, e.Reason, e.Feedback)
	}
	return fmt.Sprintf("session %s escalation rejected: %s", e.SessionID, e.Reason)
}
