package bid

import "time"

type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
	StatusLost       Status = "lost"
	StatusWon        Status = "won"
	StatusWithdrawn  Status = "withdrawn"
)

// Bid is an agent's offered price for a task. At most one bid per
// (task, agent) pair is ever active; a newer bid supersedes the older one.
// SubmittedAt comes from the database clock and is the tie-break ordering.
type Bid struct {
	ID          string
	TaskID      string
	AgentID     string
	Amount      int64
	Currency    string
	Status      Status
	SubmittedAt time.Time
}
