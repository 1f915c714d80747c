package plan

import "time"

// Status represents the lifecycle state of a step.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// statusRank orders statuses along the monotone transition chain
// pending -> in_progress -> {completed, failed, cancelled}.
func statusRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return statusRank(s) >= 0
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return statusRank(s) == 2
}

// Step is one unit of work assigned to one agent. Steps are value
// types: a status change produces a new Step inside a new Plan, the
// prior value is never mutated.
type Step struct {
	ID         string    `json:"id"`
	Agent      string    `json:"agent"`
	Task       string    `json:"task"`
	Status     Status    `json:"status"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}
