package bid

import (
	"context"
	"errors"
	"fmt"

	"taskbroker/eligibility"
	"taskbroker/task"
)

var (
	// ErrInvalidAmount rejects zero and negative bids.
	ErrInvalidAmount = errors.New("bid: amount must be positive")
	// ErrNotEligible signals the agent failed the eligibility filter.
	ErrNotEligible = errors.New("bid: agent not eligible for this task")
)

// Ledger is the write surface the service needs from the repository.
type Ledger interface {
	Submit(ctx context.Context, taskID, agentID string, amount int64, currency string) (Bid, error)
	ListByTask(ctx context.Context, taskID string) ([]Bid, error)
}

// TaskReader resolves the task whose requirements gate the bid.
type TaskReader interface {
	GetByID(ctx context.Context, id string) (task.Task, error)
}

// ProfileSource assembles candidate agent profiles from the external
// registry and reputation collaborators.
type ProfileSource interface {
	CandidateProfiles(ctx context.Context) ([]eligibility.AgentProfile, error)
}

// Service validates and screens bid submissions before handing them to the
// ledger. It has no side effects beyond the ledger write; notification of
// outbid agents is deliberately not its concern.
type Service struct {
	repo     Ledger
	tasks    TaskReader
	profiles ProfileSource
}

func NewService(repo Ledger, tasks TaskReader, profiles ProfileSource) *Service {
	return &Service{repo: repo, tasks: tasks, profiles: profiles}
}

type SubmitParams struct {
	TaskID   string
	AgentID  string
	Amount   int64
	Currency string
}

func (s *Service) Submit(ctx context.Context, params SubmitParams) (Bid, error) {
	if params.TaskID == "" || params.AgentID == "" {
		return Bid{}, fmt.Errorf("bid: task id and agent id required")
	}
	if params.Amount <= 0 {
		return Bid{}, ErrInvalidAmount
	}
	if params.Currency == "" {
		return Bid{}, fmt.Errorf("bid: currency required")
	}

	t, err := s.tasks.GetByID(ctx, params.TaskID)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return Bid{}, ErrTaskNotFound
		}
		return Bid{}, err
	}

	profiles, err := s.profiles.CandidateProfiles(ctx)
	if err != nil {
		// Without a registry answer there is no pool to screen against;
		// fail closed rather than letting unscreened agents in.
		return Bid{}, fmt.Errorf("%w: %v", ErrNotEligible, err)
	}
	decision, found := screen(t.Requirements, profiles, params.AgentID)
	if !found || !decision.Eligible {
		return Bid{}, ErrNotEligible
	}

	return s.repo.Submit(ctx, params.TaskID, params.AgentID, params.Amount, params.Currency)
}

func (s *Service) ListByTask(ctx context.Context, taskID string) ([]Bid, error) {
	return s.repo.ListByTask(ctx, taskID)
}

func screen(req task.Requirements, profiles []eligibility.AgentProfile, agentID string) (eligibility.Decision, bool) {
	for _, p := range profiles {
		if p.ID == agentID {
			return eligibility.Evaluate(req, p), true
		}
	}
	return eligibility.Decision{}, false
}
