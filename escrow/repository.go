package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("escrow: not found")
	// ErrNotHeld signals a release/refund/dispute attempt against an escrow
	// that already left the held state.
	ErrNotHeld = errors.New("escrow: not held")
	// ErrAlreadyReleased signals an idempotent repeat of a release. The funds
	// moved exactly once; nothing was re-credited.
	ErrAlreadyReleased = errors.New("escrow: already released")
	ErrAlreadyRefunded = errors.New("escrow: already refunded")
	// ErrRecipientMismatch signals that the requested payee is not the
	// assignment's winning agent.
	ErrRecipientMismatch = errors.New("escrow: recipient is not the winning agent")
	// ErrNotDisputed signals a dispute-resolution transfer against an escrow
	// that is not frozen.
	ErrNotDisputed = errors.New("escrow: not disputed")
	// ErrSplitOutOfRange rejects a split whose agent portion falls outside
	// the held amount.
	ErrSplitOutOfRange = errors.New("escrow: split amount outside held amount")
	// ErrNotReleased signals a settlement confirmation against an escrow
	// whose payout has not been released.
	ErrNotReleased = errors.New("escrow: not released")
)

const escrowColumns = `id, task_id, amount, currency, status, settled_externally, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateHold inserts a held escrow inside the caller's transaction, so the
// hold lands atomically with the funded task row.
func (r *Repository) CreateHold(ctx context.Context, tx pgx.Tx, taskID string, amount int64, currency string) (Escrow, error) {
	const query = `
		INSERT INTO escrows (task_id, amount, currency, status)
		VALUES ($1, $2, $3, 'held')
		RETURNING ` + escrowColumns

	e, err := scanEscrow(tx.QueryRow(ctx, query, taskID, amount, currency))
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: insert hold: %w", err)
	}
	return e, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`
	e, err := scanEscrow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotFound
		}
		return Escrow{}, fmt.Errorf("escrow: get by id: %w", err)
	}
	return e, nil
}

func (r *Repository) GetByTaskID(ctx context.Context, taskID string) (Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE task_id = $1`
	e, err := scanEscrow(r.pool.QueryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotFound
		}
		return Escrow{}, fmt.Errorf("escrow: get by task: %w", err)
	}
	return e, nil
}

// Release moves a held escrow to released and credits the winning agent's
// revenue counters, all in one transaction. The terminal transition is a
// single conditional write, so a concurrent or repeated release observes
// zero affected rows and is mapped to a precise sentinel instead of moving
// money twice.
func (r *Repository) Release(ctx context.Context, escrowID, toAgentID string) (Escrow, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: begin release tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var winnerID string
	const winnerSQL = `
		SELECT a.agent_id
		FROM assignments a
		JOIN escrows e ON e.task_id = a.task_id
		WHERE e.id = $1
	`
	if err := tx.QueryRow(ctx, winnerSQL, escrowID).Scan(&winnerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No assignment yet, or no such escrow. Disambiguate below.
			return Escrow{}, r.classify(ctx, escrowID, ErrRecipientMismatch)
		}
		return Escrow{}, fmt.Errorf("escrow: load winner: %w", err)
	}
	if winnerID != toAgentID {
		return Escrow{}, ErrRecipientMismatch
	}

	const releaseSQL = `
		UPDATE escrows
		SET status = 'released', updated_at = now()
		WHERE id = $1 AND status = 'held'
		RETURNING ` + escrowColumns

	e, err := scanEscrow(tx.QueryRow(ctx, releaseSQL, escrowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, r.classify(ctx, escrowID, ErrNotHeld)
		}
		return Escrow{}, fmt.Errorf("escrow: release: %w", err)
	}

	if err := insertTransfer(ctx, tx, e.ID, "agent", toAgentID, e.Amount); err != nil {
		return Escrow{}, err
	}
	if err := creditAgent(ctx, tx, toAgentID, e.Amount); err != nil {
		return Escrow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Escrow{}, fmt.Errorf("escrow: commit release: %w", err)
	}
	return e, nil
}

// Refund returns a held escrow to the buyer. Symmetric to Release.
func (r *Repository) Refund(ctx context.Context, escrowID string) (Escrow, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: begin refund tx: %w", err)
	}
	defer tx.Rollback(ctx)

	e, err := r.refundHeld(ctx, tx, `e.id = $1`, escrowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, r.classify(ctx, escrowID, ErrNotHeld)
		}
		return Escrow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Escrow{}, fmt.Errorf("escrow: commit refund: %w", err)
	}
	return e, nil
}

// RefundByTask refunds a held escrow inside the caller's transaction. The
// auction closer uses this so a zero-bid cancellation and its refund commit
// as one unit.
func (r *Repository) RefundByTask(ctx context.Context, tx pgx.Tx, taskID string) (Escrow, error) {
	e, err := r.refundHeld(ctx, tx, `e.task_id = $1`, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotHeld
		}
		return Escrow{}, err
	}
	return e, nil
}

func (r *Repository) refundHeld(ctx context.Context, tx pgx.Tx, cond, arg string) (Escrow, error) {
	refundSQL := `
		UPDATE escrows e
		SET status = 'refunded', updated_at = now()
		WHERE ` + cond + ` AND e.status = 'held'
		RETURNING ` + escrowColumns

	e, err := scanEscrow(tx.QueryRow(ctx, refundSQL, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, err
		}
		return Escrow{}, fmt.Errorf("escrow: refund: %w", err)
	}

	buyerID, err := buyerOf(ctx, tx, e.TaskID)
	if err != nil {
		return Escrow{}, err
	}
	if err := insertTransfer(ctx, tx, e.ID, "buyer", buyerID, e.Amount); err != nil {
		return Escrow{}, err
	}
	return e, nil
}

// MarkSettled records the payment rail's confirmation that a released payout
// cleared externally. A settled escrow can no longer be frozen by a dispute.
// Idempotent: confirming twice leaves the row settled.
func (r *Repository) MarkSettled(ctx context.Context, escrowID string) (Escrow, error) {
	const query = `
		UPDATE escrows
		SET settled_externally = true, updated_at = now()
		WHERE id = $1 AND status = 'released'
		RETURNING ` + escrowColumns

	e, err := scanEscrow(r.pool.QueryRow(ctx, query, escrowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, r.classify(ctx, escrowID, ErrNotReleased)
		}
		return Escrow{}, fmt.Errorf("escrow: mark settled: %w", err)
	}
	return e, nil
}

// MarkDisputed freezes the escrow pending dispute resolution. Legal from
// held, or from released while the payout has not settled externally.
func (r *Repository) MarkDisputed(ctx context.Context, tx pgx.Tx, taskID string) (Escrow, error) {
	const query = `
		UPDATE escrows
		SET status = 'disputed', updated_at = now()
		WHERE task_id = $1
		  AND (status = 'held' OR (status = 'released' AND settled_externally = false))
		RETURNING ` + escrowColumns

	e, err := scanEscrow(tx.QueryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotHeld
		}
		return Escrow{}, fmt.Errorf("escrow: mark disputed: %w", err)
	}

	// Freezing a released-but-unsettled escrow reverses the pending payout:
	// the resolution transfers replace it, never stack on top of it.
	if err := supersedeTransfers(ctx, tx, e.ID); err != nil {
		return Escrow{}, err
	}
	return e, nil
}

func supersedeTransfers(ctx context.Context, tx pgx.Tx, escrowID string) error {
	const query = `
		UPDATE escrow_transfers
		SET superseded = true
		WHERE escrow_id = $1 AND superseded = false
		RETURNING recipient_kind, recipient_id, amount
	`
	rows, err := tx.Query(ctx, query, escrowID)
	if err != nil {
		return fmt.Errorf("escrow: supersede transfers: %w", err)
	}
	defer rows.Close()

	type reversal struct {
		agentID string
		amount  int64
	}
	var reversals []reversal
	for rows.Next() {
		var (
			kind, recipient string
			amount          int64
		)
		if err := rows.Scan(&kind, &recipient, &amount); err != nil {
			return fmt.Errorf("escrow: scan superseded transfer: %w", err)
		}
		if kind == "agent" {
			reversals = append(reversals, reversal{agentID: recipient, amount: amount})
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("escrow: iterate superseded transfers: %w", err)
	}
	rows.Close()

	const debitSQL = `
		UPDATE agent_stats
		SET jobs_completed = jobs_completed - 1,
		    revenue_total = revenue_total - $2,
		    updated_at = now()
		WHERE agent_id = $1
	`
	for _, rev := range reversals {
		if _, err := tx.Exec(ctx, debitSQL, rev.agentID, rev.amount); err != nil {
			return fmt.Errorf("escrow: reverse agent credit: %w", err)
		}
	}
	return nil
}

// ReleaseDisputed pays out a frozen escrow to the winning agent as the
// outcome of a dispute resolution. Caller supplies the transaction so the
// dispute row flips in the same commit.
func (r *Repository) ReleaseDisputed(ctx context.Context, tx pgx.Tx, escrowID, toAgentID string) (Escrow, error) {
	const query = `
		UPDATE escrows
		SET status = 'released', updated_at = now()
		WHERE id = $1 AND status = 'disputed'
		RETURNING ` + escrowColumns

	e, err := scanEscrow(tx.QueryRow(ctx, query, escrowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotDisputed
		}
		return Escrow{}, fmt.Errorf("escrow: release disputed: %w", err)
	}

	if err := insertTransfer(ctx, tx, e.ID, "agent", toAgentID, e.Amount); err != nil {
		return Escrow{}, err
	}
	if err := creditAgent(ctx, tx, toAgentID, e.Amount); err != nil {
		return Escrow{}, err
	}
	return e, nil
}

// RefundDisputed returns a frozen escrow to the buyer.
func (r *Repository) RefundDisputed(ctx context.Context, tx pgx.Tx, escrowID string) (Escrow, error) {
	const query = `
		UPDATE escrows
		SET status = 'refunded', updated_at = now()
		WHERE id = $1 AND status = 'disputed'
		RETURNING ` + escrowColumns

	e, err := scanEscrow(tx.QueryRow(ctx, query, escrowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotDisputed
		}
		return Escrow{}, fmt.Errorf("escrow: refund disputed: %w", err)
	}

	buyerID, err := buyerOf(ctx, tx, e.TaskID)
	if err != nil {
		return Escrow{}, err
	}
	if err := insertTransfer(ctx, tx, e.ID, "buyer", buyerID, e.Amount); err != nil {
		return Escrow{}, err
	}
	return e, nil
}

// SplitDisputed divides a frozen escrow: agentAmount goes to the agent, the
// remainder back to the buyer. The two transfer rows always sum to the held
// amount.
func (r *Repository) SplitDisputed(ctx context.Context, tx pgx.Tx, escrowID, toAgentID string, agentAmount int64) (Escrow, error) {
	const query = `
		UPDATE escrows
		SET status = 'resolved', updated_at = now()
		WHERE id = $1 AND status = 'disputed'
		RETURNING ` + escrowColumns

	e, err := scanEscrow(tx.QueryRow(ctx, query, escrowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotDisputed
		}
		return Escrow{}, fmt.Errorf("escrow: split disputed: %w", err)
	}
	if agentAmount < 0 || agentAmount > e.Amount {
		return Escrow{}, fmt.Errorf("%w: agent share %d of %d", ErrSplitOutOfRange, agentAmount, e.Amount)
	}

	buyerID, err := buyerOf(ctx, tx, e.TaskID)
	if err != nil {
		return Escrow{}, err
	}
	if err := insertTransfer(ctx, tx, e.ID, "agent", toAgentID, agentAmount); err != nil {
		return Escrow{}, err
	}
	if err := insertTransfer(ctx, tx, e.ID, "buyer", buyerID, e.Amount-agentAmount); err != nil {
		return Escrow{}, err
	}
	if agentAmount > 0 {
		if err := creditAgent(ctx, tx, toAgentID, agentAmount); err != nil {
			return Escrow{}, err
		}
	}
	return e, nil
}

// AgentStats returns the revenue counters for an agent, zero-valued when the
// agent has never been paid.
func (r *Repository) AgentStats(ctx context.Context, agentID string) (AgentStats, error) {
	const query = `
		SELECT agent_id, jobs_completed, revenue_total, updated_at
		FROM agent_stats
		WHERE agent_id = $1
	`
	var s AgentStats
	err := r.pool.QueryRow(ctx, query, agentID).Scan(&s.AgentID, &s.JobsCompleted, &s.RevenueTotal, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AgentStats{AgentID: agentID}, nil
		}
		return AgentStats{}, fmt.Errorf("escrow: agent stats: %w", err)
	}
	return s, nil
}

// classify turns a zero-row conditional write into the precise sentinel for
// the caller: the escrow may be missing entirely, already terminal, or in a
// state the operation does not accept.
func (r *Repository) classify(ctx context.Context, escrowID string, fallback error) error {
	var status Status
	err := r.pool.QueryRow(ctx, `SELECT status FROM escrows WHERE id = $1`, escrowID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("escrow: classify: %w", err)
	}
	switch status {
	case StatusReleased:
		return ErrAlreadyReleased
	case StatusRefunded:
		return ErrAlreadyRefunded
	case StatusHeld:
		return fallback
	default:
		return ErrNotHeld
	}
}

func insertTransfer(ctx context.Context, tx pgx.Tx, escrowID, kind, recipientID string, amount int64) error {
	const query = `
		INSERT INTO escrow_transfers (escrow_id, recipient_kind, recipient_id, amount)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, query, escrowID, kind, recipientID, amount); err != nil {
		return fmt.Errorf("escrow: insert transfer: %w", err)
	}
	return nil
}

func creditAgent(ctx context.Context, tx pgx.Tx, agentID string, amount int64) error {
	const query = `
		INSERT INTO agent_stats (agent_id, jobs_completed, revenue_total)
		VALUES ($1, 1, $2)
		ON CONFLICT (agent_id) DO UPDATE
		SET jobs_completed = agent_stats.jobs_completed + 1,
		    revenue_total = agent_stats.revenue_total + EXCLUDED.revenue_total,
		    updated_at = now()
	`
	if _, err := tx.Exec(ctx, query, agentID, amount); err != nil {
		return fmt.Errorf("escrow: credit agent: %w", err)
	}
	return nil
}

func buyerOf(ctx context.Context, tx pgx.Tx, taskID string) (string, error) {
	var buyerID string
	if err := tx.QueryRow(ctx, `SELECT buyer_id FROM tasks WHERE id = $1`, taskID).Scan(&buyerID); err != nil {
		return "", fmt.Errorf("escrow: load buyer: %w", err)
	}
	return buyerID, nil
}

func scanEscrow(row pgx.Row) (Escrow, error) {
	var e Escrow
	return e, row.Scan(
		&e.ID,
		&e.TaskID,
		&e.Amount,
		&e.Currency,
		&e.Status,
		&e.SettledExternally,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
}
