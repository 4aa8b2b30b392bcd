package escrow

import "time"

type Status string

const (
	StatusHeld     Status = "held"
	StatusReleased Status = "released"
	StatusRefunded Status = "refunded"
	StatusDisputed Status = "disputed"
	StatusResolved Status = "resolved"
)

// Escrow holds buyer funds against a task from funding time until a terminal
// transition. The lifecycle is strictly monotonic: released, refunded, and
// resolved are terminal.
type Escrow struct {
	ID                string
	TaskID            string
	Amount            int64
	Currency          string
	Status            Status
	SettledExternally bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Transfer records a movement of held funds to a recipient. A plain release
// writes one row; a dispute SPLIT writes two rows summing to the held amount.
// Superseded marks a payout that was reversed when a dispute froze the escrow
// before external settlement; non-superseded transfers per escrow never sum
// past the held amount.
type Transfer struct {
	ID            string
	EscrowID      string
	RecipientKind string // "agent" or "buyer"
	RecipientID   string
	Amount        int64
	Superseded    bool
	CreatedAt     time.Time
}

// AgentStats mirrors the per-agent revenue counters bumped on release.
type AgentStats struct {
	AgentID       string
	JobsCompleted int64
	RevenueTotal  int64
	UpdatedAt     time.Time
}

func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusRefunded || s == StatusResolved
}
