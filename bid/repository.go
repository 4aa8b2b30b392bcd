package bid

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrTaskNotFound = errors.New("bid: task not found")
	// ErrNotOpen signals the auction is closed, cancelled, or past deadline.
	ErrNotOpen = errors.New("bid: auction not open for bidding")
	// ErrCurrencyMismatch signals the bid currency differs from the budget.
	ErrCurrencyMismatch = errors.New("bid: currency does not match task budget")
)

const bidColumns = `id, task_id, agent_id, amount, currency, status, submitted_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Submit records a new active bid, superseding any prior active bid by the
// same agent. The task row lock serializes concurrent bidders on one task,
// so "latest active bid per agent" cannot race; a partial unique index on
// (task_id, agent_id) WHERE status='active' backs the same invariant in the
// schema.
func (r *Repository) Submit(ctx context.Context, taskID, agentID string, amount int64, currency string) (Bid, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Bid{}, fmt.Errorf("bid: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		status       string
		budgetCcy    string
		pastDeadline bool
	)
	const taskSQL = `
		SELECT status, budget_currency, now() >= auction_ends_at
		FROM tasks
		WHERE id = $1
		FOR UPDATE
	`
	if err := tx.QueryRow(ctx, taskSQL, taskID).Scan(&status, &budgetCcy, &pastDeadline); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bid{}, ErrTaskNotFound
		}
		return Bid{}, fmt.Errorf("bid: lock task: %w", err)
	}
	if status != "open" || pastDeadline {
		return Bid{}, ErrNotOpen
	}
	if currency != budgetCcy {
		return Bid{}, ErrCurrencyMismatch
	}

	const supersedeSQL = `
		UPDATE bids
		SET status = 'superseded'
		WHERE task_id = $1 AND agent_id = $2 AND status = 'active'
	`
	if _, err := tx.Exec(ctx, supersedeSQL, taskID, agentID); err != nil {
		return Bid{}, fmt.Errorf("bid: supersede prior: %w", err)
	}

	const insertSQL = `
		INSERT INTO bids (task_id, agent_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, 'active')
		RETURNING ` + bidColumns

	b, err := scanBid(tx.QueryRow(ctx, insertSQL, taskID, agentID, amount, currency))
	if err != nil {
		return Bid{}, fmt.Errorf("bid: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Bid{}, fmt.Errorf("bid: commit: %w", err)
	}
	return b, nil
}

// ActiveByTask lists active bids inside the caller's transaction, ordered
// the way the closer ranks them: cheapest first, earliest submission on
// ties, agent id as the final deterministic key.
func (r *Repository) ActiveByTask(ctx context.Context, tx pgx.Tx, taskID string) ([]Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE task_id = $1 AND status = 'active'
		ORDER BY amount ASC, submitted_at ASC, agent_id ASC
	`
	rows, err := tx.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("bid: list active: %w", err)
	}
	defer rows.Close()

	out := make([]Bid, 0, 8)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("bid: scan active: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bid: iterate active: %w", err)
	}
	return out, nil
}

// SettleOutcome marks the winning bid won and every other active bid lost,
// inside the caller's close transaction.
func (r *Repository) SettleOutcome(ctx context.Context, tx pgx.Tx, taskID, winningBidID string) error {
	if _, err := tx.Exec(ctx, `UPDATE bids SET status = 'won' WHERE id = $1 AND status = 'active'`, winningBidID); err != nil {
		return fmt.Errorf("bid: mark won: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE bids SET status = 'lost' WHERE task_id = $1 AND status = 'active' AND id <> $2`, taskID, winningBidID); err != nil {
		return fmt.Errorf("bid: mark lost: %w", err)
	}
	return nil
}

// ListByTask returns every bid for a task, newest first. Used by the status
// snapshot.
func (r *Repository) ListByTask(ctx context.Context, taskID string) ([]Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE task_id = $1
		ORDER BY submitted_at DESC
	`
	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("bid: list by task: %w", err)
	}
	defer rows.Close()

	out := make([]Bid, 0, 8)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("bid: scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bid: iterate: %w", err)
	}
	return out, nil
}

func scanBid(row pgx.Row) (Bid, error) {
	var b Bid
	return b, row.Scan(
		&b.ID,
		&b.TaskID,
		&b.AgentID,
		&b.Amount,
		&b.Currency,
		&b.Status,
		&b.SubmittedAt,
	)
}
