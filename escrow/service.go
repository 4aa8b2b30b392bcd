package escrow

import "context"

// Ledger abstracts the repository operations the service exposes upward.
type Ledger interface {
	GetByID(ctx context.Context, id string) (Escrow, error)
	GetByTaskID(ctx context.Context, taskID string) (Escrow, error)
	Release(ctx context.Context, escrowID, toAgentID string) (Escrow, error)
	Refund(ctx context.Context, escrowID string) (Escrow, error)
	MarkSettled(ctx context.Context, escrowID string) (Escrow, error)
	AgentStats(ctx context.Context, agentID string) (AgentStats, error)
}

// Service exposes business-level escrow operations.
type Service struct {
	repo Ledger
}

func NewService(repo Ledger) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id string) (Escrow, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByTask(ctx context.Context, taskID string) (Escrow, error) {
	return s.repo.GetByTaskID(ctx, taskID)
}

// Release pays the held amount to the assignment's winning agent. Idempotent
// in the money sense: a repeat returns ErrAlreadyReleased without a second
// credit.
func (s *Service) Release(ctx context.Context, escrowID, toAgentID string) (Escrow, error) {
	return s.repo.Release(ctx, escrowID, toAgentID)
}

// Refund returns the held amount to the buyer.
func (s *Service) Refund(ctx context.Context, escrowID string) (Escrow, error) {
	return s.repo.Refund(ctx, escrowID)
}

// MarkSettled confirms external settlement of a released payout, closing the
// window in which a dispute can still claw the funds back.
func (s *Service) MarkSettled(ctx context.Context, escrowID string) (Escrow, error) {
	return s.repo.MarkSettled(ctx, escrowID)
}

func (s *Service) AgentStats(ctx context.Context, agentID string) (AgentStats, error) {
	return s.repo.AgentStats(ctx, agentID)
}
