package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskbroker/escrow"
)

// ErrFundingUnavailable signals the payment gateway could not take the
// deposit. Unlike post-commit side effects this one is fatal: an auction
// never opens unfunded.
var ErrFundingUnavailable = errors.New("task: payment gateway unavailable")

// PaymentGateway is the external funding collaborator. Deposit returns the
// gateway's reference for the captured funds.
type PaymentGateway interface {
	Deposit(ctx context.Context, buyerID string, amount int64, currency string) (string, error)
}

// EscrowHolder opens the hold inside the funding transaction.
type EscrowHolder interface {
	CreateHold(ctx context.Context, tx pgx.Tx, taskID string, amount int64, currency string) (escrow.Escrow, error)
}

// OutboxWriter appends the audit event in the funding transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service owns the buyer-facing funding flow: capture the deposit, then
// land the task and its escrow hold in one commit.
type Service struct {
	pool     *pgxpool.Pool
	repo     Repository
	escrows  EscrowHolder
	payments PaymentGateway
	outbox   OutboxWriter
	idGen    func() string
	now      func() time.Time
}

func NewService(pool *pgxpool.Pool, repo Repository, escrows EscrowHolder, payments PaymentGateway, outbox OutboxWriter) *Service {
	if repo == nil {
		repo = NewRepository(pool)
	}
	return &Service{
		pool:     pool,
		repo:     repo,
		escrows:  escrows,
		payments: payments,
		outbox:   outbox,
		idGen:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateParams struct {
	// TaskID is optional; when the surrounding catalog already minted an
	// identifier the auction reuses it.
	TaskID          string
	BuyerID         string
	Title           string
	BudgetAmount    int64
	BudgetCurrency  string
	Requirements    Requirements
	AuctionType     AuctionType
	DurationMinutes int
}

// Create funds and opens an auction.
func (s *Service) Create(ctx context.Context, params CreateParams) (Task, error) {
	if params.BuyerID == "" {
		return Task{}, fmt.Errorf("task: buyer id required")
	}
	if params.BudgetAmount <= 0 {
		return Task{}, fmt.Errorf("task: budget must be positive")
	}
	if params.BudgetCurrency == "" {
		return Task{}, fmt.Errorf("task: budget currency required")
	}
	if params.DurationMinutes <= 0 {
		return Task{}, fmt.Errorf("task: auction duration must be positive")
	}
	if !ValidAuctionType(params.AuctionType) {
		return Task{}, fmt.Errorf("task: invalid auction type %q", params.AuctionType)
	}

	depositRef, err := s.payments.Deposit(ctx, params.BuyerID, params.BudgetAmount, params.BudgetCurrency)
	if err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrFundingUnavailable, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Task{}, fmt.Errorf("task: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id := params.TaskID
	if id == "" {
		id = s.idGen()
	}

	t := Task{
		ID:             id,
		BuyerID:        params.BuyerID,
		Title:          params.Title,
		Status:         StatusOpen,
		BudgetAmount:   params.BudgetAmount,
		BudgetCurrency: params.BudgetCurrency,
		Requirements:   params.Requirements,
		AuctionType:    params.AuctionType,
		AuctionEndsAt:  s.now().Add(time.Duration(params.DurationMinutes) * time.Minute),
	}

	created, err := s.repo.Create(ctx, tx, t)
	if err != nil {
		return Task{}, err
	}

	held, err := s.escrows.CreateHold(ctx, tx, created.ID, created.BudgetAmount, created.BudgetCurrency)
	if err != nil {
		return Task{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"task_id":     created.ID,
			"escrow_id":   held.ID,
			"deposit_ref": depositRef,
			"ends_at":     created.AuctionEndsAt.UTC(),
		}
		if err := s.outbox.Enqueue(ctx, tx, "auction.created", payload); err != nil {
			return Task{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Task{}, fmt.Errorf("task: commit: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Task, error) {
	return s.repo.GetByID(ctx, id)
}
