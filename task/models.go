package task

import "time"

type Status string

const (
	StatusOpen       Status = "open"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDisputed   Status = "disputed"
	StatusCancelled  Status = "cancelled"
)

type AuctionType string

const (
	AuctionSealedBid  AuctionType = "sealed_bid"
	AuctionEnglish    AuctionType = "english"
	AuctionFixedPrice AuctionType = "fixed_price"
)

// Requirements is the buyer-declared bar an agent must clear to bid.
// MinTrustScore is nil when the buyer does not care about reputation.
type Requirements struct {
	Skills        []string
	DataClass     string
	Region        string
	MinTrustScore *float64
	MinStake      int64
}

// Task is the domain representation of a posted unit of work. Status is the
// single source of truth for which operations are legal; amounts are minor
// units (cents).
type Task struct {
	ID             string
	BuyerID        string
	Title          string
	Status         Status
	BudgetAmount   int64
	BudgetCurrency string
	Requirements   Requirements
	AuctionType    AuctionType
	AuctionEndsAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func ValidAuctionType(t AuctionType) bool {
	switch t {
	case AuctionSealedBid, AuctionEnglish, AuctionFixedPrice:
		return true
	default:
		return false
	}
}
