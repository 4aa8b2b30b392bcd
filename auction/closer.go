package auction

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskbroker/bid"
	"taskbroker/escrow"
)

var (
	ErrTaskNotFound       = errors.New("auction: task not found")
	ErrAssignmentNotFound = errors.New("auction: assignment not found")
	// ErrAlreadyClosed is what every loser of the close race observes. The
	// caller that sees it performs no further work; that is the whole
	// exactly-once guarantee.
	ErrAlreadyClosed = errors.New("auction: already closed")
)

// BidLedger is the slice of the bid repository the closer drives inside its
// transaction.
type BidLedger interface {
	ActiveByTask(ctx context.Context, tx pgx.Tx, taskID string) ([]bid.Bid, error)
	SettleOutcome(ctx context.Context, tx pgx.Tx, taskID, winningBidID string) error
}

// EscrowLedger refunds the hold when an auction cancels with no bids.
type EscrowLedger interface {
	RefundByTask(ctx context.Context, tx pgx.Tx, taskID string) (escrow.Escrow, error)
}

// TrustSource resolves trust scores for tie-breaking, best-effort: an
// unreachable reputation collaborator yields an empty map and the tie falls
// through to agent id ordering.
type TrustSource interface {
	TrustScores(ctx context.Context, agentIDs []string) map[string]float64
}

// OutboxWriter appends the audit/notification event in the close
// transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Closer ends auctions. All state it touches moves in a single transaction
// whose terminal write is conditional on status still being open, so a
// manual close and the periodic sweep can race freely on the same task.
type Closer struct {
	pool    *pgxpool.Pool
	bids    BidLedger
	escrows EscrowLedger
	trust   TrustSource
	outbox  OutboxWriter
}

func NewCloser(pool *pgxpool.Pool, bids BidLedger, escrows EscrowLedger, trust TrustSource, outbox OutboxWriter) *Closer {
	return &Closer{pool: pool, bids: bids, escrows: escrows, trust: trust, outbox: outbox}
}

// Close ends the auction for one task: open→assigned when a winner exists,
// open→cancelled (with the escrow refunded) when no active bids remain.
func (c *Closer) Close(ctx context.Context, taskID string) (Result, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("auction: begin close tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The row lock serializes racing closers; whoever arrives second blocks
	// here and then sees a non-open status.
	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Result{}, ErrTaskNotFound
		}
		return Result{}, fmt.Errorf("auction: lock task: %w", err)
	}
	if status != "open" {
		return Result{}, ErrAlreadyClosed
	}

	bids, err := c.bids.ActiveByTask(ctx, tx, taskID)
	if err != nil {
		return Result{}, err
	}

	if len(bids) == 0 {
		return c.cancel(ctx, tx, taskID)
	}

	winner := selectWinner(ctx, bids, c.trust)

	var assignmentID string
	const assignSQL = `
		INSERT INTO assignments (task_id, agent_id, status)
		VALUES ($1, $2, 'active')
		RETURNING id
	`
	if err := tx.QueryRow(ctx, assignSQL, taskID, winner.AgentID).Scan(&assignmentID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Result{}, ErrAlreadyClosed
		}
		return Result{}, fmt.Errorf("auction: insert assignment: %w", err)
	}

	if err := c.settle(ctx, tx, taskID, "assigned"); err != nil {
		return Result{}, err
	}
	if err := c.bids.SettleOutcome(ctx, tx, taskID, winner.ID); err != nil {
		return Result{}, err
	}

	if c.outbox != nil {
		payload := map[string]any{
			"task_id":       taskID,
			"assignment_id": assignmentID,
			"winner_id":     winner.AgentID,
			"amount":        winner.Amount,
			"currency":      winner.Currency,
		}
		if err := c.outbox.Enqueue(ctx, tx, "auction.assigned", payload); err != nil {
			return Result{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("auction: commit close: %w", err)
	}

	return Result{
		TaskID:        taskID,
		AssignmentID:  assignmentID,
		WinnerID:      winner.AgentID,
		WinningAmount: winner.Amount,
		Currency:      winner.Currency,
	}, nil
}

func (c *Closer) cancel(ctx context.Context, tx pgx.Tx, taskID string) (Result, error) {
	if err := c.settle(ctx, tx, taskID, "cancelled"); err != nil {
		return Result{}, err
	}
	if _, err := c.escrows.RefundByTask(ctx, tx, taskID); err != nil {
		// A task funded but already refunded would be a broken invariant
		// upstream; surface it rather than committing a half cancel.
		return Result{}, fmt.Errorf("auction: refund on cancel: %w", err)
	}
	if c.outbox != nil {
		payload := map[string]any{"task_id": taskID, "reason": "no_active_bids"}
		if err := c.outbox.Enqueue(ctx, tx, "auction.cancelled", payload); err != nil {
			return Result{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("auction: commit cancel: %w", err)
	}
	return Result{TaskID: taskID, Cancelled: true}, nil
}

// settle is the conditional terminal write. Zero affected rows means another
// closer won after our lock attempt, which cannot happen under FOR UPDATE
// but stays guarded anyway: the transition itself is never a blind write.
func (c *Closer) settle(ctx context.Context, tx pgx.Tx, taskID, next string) error {
	tag, err := tx.Exec(ctx, `UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1 AND status = 'open'`, taskID, next)
	if err != nil {
		return fmt.Errorf("auction: settle status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyClosed
	}
	return nil
}

// selectWinner picks the cheapest bid; ties break by earliest submission,
// then higher trust score, then agent id. The ledger already orders by
// amount, submission time, and agent id, so only the trust pass needs work
// here.
func selectWinner(ctx context.Context, bids []bid.Bid, trust TrustSource) bid.Bid {
	leader := bids[0]

	tied := []bid.Bid{leader}
	for _, b := range bids[1:] {
		if b.Amount == leader.Amount && b.SubmittedAt.Equal(leader.SubmittedAt) {
			tied = append(tied, b)
		}
	}
	if len(tied) == 1 || trust == nil {
		return leader
	}

	ids := make([]string, 0, len(tied))
	for _, b := range tied {
		ids = append(ids, b.AgentID)
	}
	scores := trust.TrustScores(ctx, ids)

	best := tied[0]
	for _, b := range tied[1:] {
		switch {
		case scores[b.AgentID] > scores[best.AgentID]:
			best = b
		case scores[b.AgentID] == scores[best.AgentID] && b.AgentID < best.AgentID:
			best = b
		}
	}
	return best
}

// GetAssignment loads an assignment by id.
func GetAssignment(ctx context.Context, pool *pgxpool.Pool, id string) (Assignment, error) {
	const query = `SELECT id, task_id, agent_id, status, created_at FROM assignments WHERE id = $1`
	var a Assignment
	err := pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.TaskID, &a.AgentID, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrAssignmentNotFound
		}
		return Assignment{}, fmt.Errorf("auction: get assignment: %w", err)
	}
	return a, nil
}

// AssignmentByTask loads the assignment created for a task, if any.
func AssignmentByTask(ctx context.Context, pool *pgxpool.Pool, taskID string) (Assignment, error) {
	const query = `SELECT id, task_id, agent_id, status, created_at FROM assignments WHERE task_id = $1`
	var a Assignment
	err := pool.QueryRow(ctx, query, taskID).Scan(&a.ID, &a.TaskID, &a.AgentID, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrAssignmentNotFound
		}
		return Assignment{}, fmt.Errorf("auction: assignment by task: %w", err)
	}
	return a, nil
}
