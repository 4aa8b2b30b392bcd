package dispute

import "time"

// Status represents the lifecycle of a dispute record.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Outcome is the binding decision a resolution records.
type Outcome string

const (
	OutcomeRelease Outcome = "release"
	OutcomeRefund  Outcome = "refund"
	OutcomeSplit   Outcome = "split"
)

// RaisedByRole identifies which side of the assignment contested it.
type RaisedByRole string

const (
	RaisedByBuyer RaisedByRole = "buyer"
	RaisedByAgent RaisedByRole = "agent"
)

// Record mirrors the disputes table. Raising a dispute freezes the escrow;
// resolution is terminal and moves the funds exactly once. At most one open
// dispute exists per assignment.
type Record struct {
	ID               string
	AssignmentID     string
	RaisedByRole     RaisedByRole
	RaisedByID       string
	Reason           string
	Evidence         []string
	Status           Status
	Outcome          *Outcome
	SplitAgentAmount *int64
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

// Resolution is the admin decision applied to an open dispute.
type Resolution struct {
	Outcome Outcome
	// AgentAmount applies to OutcomeSplit only: the portion of the held
	// amount paid to the agent, the remainder refunding to the buyer.
	AgentAmount int64
}
