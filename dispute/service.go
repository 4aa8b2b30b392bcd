package dispute

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrForbidden signals the caller lacks the role for the operation;
	// resolution is admin-only.
	ErrForbidden = errors.New("dispute: forbidden")
	// ErrInvalidSplit rejects split resolutions whose agent portion falls
	// outside the held amount.
	ErrInvalidSplit = errors.New("dispute: invalid split amount")
)

// Resolver abstracts the repository for the service and its tests.
type Resolver interface {
	Raise(ctx context.Context, params RaiseParams) (Record, error)
	Resolve(ctx context.Context, disputeID string, res Resolution) (Record, error)
	GetByID(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, assignmentID string) ([]Record, error)
}

type Service struct {
	repo Resolver
}

func NewService(repo Resolver) *Service {
	return &Service{repo: repo}
}

// Raise opens a dispute on an assignment and freezes its escrow.
func (s *Service) Raise(ctx context.Context, params RaiseParams) (Record, error) {
	if params.AssignmentID == "" {
		return Record{}, fmt.Errorf("dispute: assignment id required")
	}
	if params.RaisedByRole != RaisedByBuyer && params.RaisedByRole != RaisedByAgent {
		return Record{}, fmt.Errorf("dispute: raised-by must be buyer or agent")
	}
	if params.Reason == "" {
		return Record{}, fmt.Errorf("dispute: reason required")
	}
	return s.repo.Raise(ctx, params)
}

// Resolve applies a binding resolution. Admin-only; the actor role is
// whatever the authentication layer established for the caller.
func (s *Service) Resolve(ctx context.Context, actorRole, disputeID string, res Resolution) (Record, error) {
	if actorRole != "admin" {
		return Record{}, ErrForbidden
	}
	switch res.Outcome {
	case OutcomeRelease, OutcomeRefund:
	case OutcomeSplit:
		if res.AgentAmount < 0 {
			return Record{}, ErrInvalidSplit
		}
	default:
		return Record{}, fmt.Errorf("dispute: unknown outcome %q", res.Outcome)
	}
	return s.repo.Resolve(ctx, disputeID, res)
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, assignmentID string) ([]Record, error) {
	return s.repo.List(ctx, assignmentID)
}
