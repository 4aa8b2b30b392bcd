package auction

import "time"

type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// Assignment binds a task to its winning agent. Exactly one exists per task,
// created only by the closer on the open→assigned transition; the schema
// enforces this with a unique index on task_id.
type Assignment struct {
	ID        string
	TaskID    string
	AgentID   string
	Status    AssignmentStatus
	CreatedAt time.Time
}

// Result is the outcome of closing one auction.
type Result struct {
	TaskID        string
	Cancelled     bool
	AssignmentID  string
	WinnerID      string
	WinningAmount int64
	Currency      string
}
