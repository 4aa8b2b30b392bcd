package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskbroker/escrow"
)

var (
	ErrNotFound           = errors.New("dispute: not found")
	ErrAssignmentNotFound = errors.New("dispute: assignment not found")
	// ErrDuplicate signals an open dispute already exists for the assignment.
	ErrDuplicate = errors.New("dispute: open dispute already exists")
	// ErrAlreadyResolved signals a repeated resolve; resolution is terminal.
	ErrAlreadyResolved = errors.New("dispute: already resolved")
)

const disputeColumns = `id, assignment_id, raised_by_role, raised_by_id, reason, evidence,
       status, outcome, split_agent_amount, created_at, resolved_at`

// EscrowLedger is the slice of the escrow repository the resolver drives
// inside its transactions.
type EscrowLedger interface {
	MarkDisputed(ctx context.Context, tx pgx.Tx, taskID string) (escrow.Escrow, error)
	ReleaseDisputed(ctx context.Context, tx pgx.Tx, escrowID, toAgentID string) (escrow.Escrow, error)
	RefundDisputed(ctx context.Context, tx pgx.Tx, escrowID string) (escrow.Escrow, error)
	SplitDisputed(ctx context.Context, tx pgx.Tx, escrowID, toAgentID string, agentAmount int64) (escrow.Escrow, error)
}

// OutboxWriter appends audit/notification events in the same transaction as
// the dispute write.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

type Repository struct {
	pool    *pgxpool.Pool
	escrows EscrowLedger
	outbox  OutboxWriter
}

func NewRepository(pool *pgxpool.Pool, escrows EscrowLedger, outbox OutboxWriter) *Repository {
	return &Repository{pool: pool, escrows: escrows, outbox: outbox}
}

type RaiseParams struct {
	AssignmentID string
	RaisedByRole RaisedByRole
	RaisedByID   string
	Reason       string
	Evidence     []string
}

// Raise opens a dispute and freezes the escrow in one transaction. The
// partial unique index on (assignment_id) WHERE status='open' turns a racing
// duplicate into a clean ErrDuplicate.
func (r *Repository) Raise(ctx context.Context, params RaiseParams) (Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin raise tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var taskID string
	const assignmentSQL = `SELECT task_id FROM assignments WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, assignmentSQL, params.AssignmentID).Scan(&taskID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrAssignmentNotFound
		}
		return Record{}, fmt.Errorf("dispute: lock assignment: %w", err)
	}

	const insertSQL = `
		INSERT INTO disputes (assignment_id, raised_by_role, raised_by_id, reason, evidence, status)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, 'open')
		RETURNING ` + disputeColumns

	rec, err := scanDispute(tx.QueryRow(ctx, insertSQL,
		params.AssignmentID,
		params.RaisedByRole,
		params.RaisedByID,
		params.Reason,
		params.Evidence,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicate
		}
		return Record{}, fmt.Errorf("dispute: insert: %w", err)
	}

	if _, err := r.escrows.MarkDisputed(ctx, tx, taskID); err != nil {
		return Record{}, err
	}

	const taskSQL = `
		UPDATE tasks SET status = 'disputed', updated_at = now()
		WHERE id = $1 AND status IN ('assigned', 'in_progress', 'completed')
	`
	if _, err := tx.Exec(ctx, taskSQL, taskID); err != nil {
		return Record{}, fmt.Errorf("dispute: mark task disputed: %w", err)
	}

	if r.outbox != nil {
		payload := map[string]any{
			"dispute_id":    rec.ID,
			"assignment_id": rec.AssignmentID,
			"raised_by":     string(rec.RaisedByRole),
			"reason":        rec.Reason,
		}
		if err := r.outbox.Enqueue(ctx, tx, "dispute.raised", payload); err != nil {
			return Record{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit raise: %w", err)
	}
	return rec, nil
}

// Resolve applies the binding resolution: flips the dispute via a conditional
// write, moves the frozen funds per the outcome, settles the task and
// assignment, and emits the reputation-impact event. Terminal; a repeat
// observes ErrAlreadyResolved.
func (r *Repository) Resolve(ctx context.Context, disputeID string, res Resolution) (Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin resolve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var splitAmount *int64
	if res.Outcome == OutcomeSplit {
		splitAmount = &res.AgentAmount
	}

	const resolveSQL = `
		UPDATE disputes
		SET status = 'resolved', outcome = $2, split_agent_amount = $3, resolved_at = now()
		WHERE id = $1 AND status = 'open'
		RETURNING ` + disputeColumns

	rec, err := scanDispute(tx.QueryRow(ctx, resolveSQL, disputeID, res.Outcome, splitAmount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, r.classify(ctx, disputeID)
		}
		return Record{}, fmt.Errorf("dispute: resolve: %w", err)
	}

	var (
		taskID  string
		agentID string
	)
	const assignmentSQL = `SELECT task_id, agent_id FROM assignments WHERE id = $1`
	if err := tx.QueryRow(ctx, assignmentSQL, rec.AssignmentID).Scan(&taskID, &agentID); err != nil {
		return Record{}, fmt.Errorf("dispute: load assignment: %w", err)
	}

	var escrowID string
	if err := tx.QueryRow(ctx, `SELECT id FROM escrows WHERE task_id = $1`, taskID).Scan(&escrowID); err != nil {
		return Record{}, fmt.Errorf("dispute: load escrow: %w", err)
	}

	var (
		taskStatus       string
		assignmentStatus string
	)
	switch res.Outcome {
	case OutcomeRelease:
		if _, err := r.escrows.ReleaseDisputed(ctx, tx, escrowID, agentID); err != nil {
			return Record{}, err
		}
		taskStatus, assignmentStatus = "completed", "completed"
	case OutcomeRefund:
		if _, err := r.escrows.RefundDisputed(ctx, tx, escrowID); err != nil {
			return Record{}, err
		}
		taskStatus, assignmentStatus = "cancelled", "cancelled"
	case OutcomeSplit:
		if _, err := r.escrows.SplitDisputed(ctx, tx, escrowID, agentID, res.AgentAmount); err != nil {
			if errors.Is(err, escrow.ErrSplitOutOfRange) {
				return Record{}, fmt.Errorf("%w: %v", ErrInvalidSplit, err)
			}
			return Record{}, err
		}
		taskStatus, assignmentStatus = "completed", "completed"
	default:
		return Record{}, fmt.Errorf("dispute: unknown outcome %q", res.Outcome)
	}

	if _, err := tx.Exec(ctx, `UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1 AND status = 'disputed'`, taskID, taskStatus); err != nil {
		return Record{}, fmt.Errorf("dispute: settle task: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE assignments SET status = $2 WHERE id = $1 AND status = 'active'`, rec.AssignmentID, assignmentStatus); err != nil {
		return Record{}, fmt.Errorf("dispute: settle assignment: %w", err)
	}

	if r.outbox != nil {
		payload := map[string]any{
			"dispute_id":    rec.ID,
			"assignment_id": rec.AssignmentID,
			"outcome":       string(res.Outcome),
		}
		if splitAmount != nil {
			payload["agent_amount"] = *splitAmount
		}
		if err := r.outbox.Enqueue(ctx, tx, "dispute.resolved", payload); err != nil {
			return Record{}, err
		}
		// Reputation impact is a separate downstream consumer.
		impact := map[string]any{
			"agent_id": agentID,
			"outcome":  string(res.Outcome),
		}
		if err := r.outbox.Enqueue(ctx, tx, "reputation.impact", impact); err != nil {
			return Record{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit resolve: %w", err)
	}
	return rec, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (Record, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	rec, err := scanDispute(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get by id: %w", err)
	}
	return rec, nil
}

// List returns disputes filtered by assignment when provided.
func (r *Repository) List(ctx context.Context, assignmentID string) ([]Record, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes`
	args := []any{}
	if assignmentID != "" {
		query += ` WHERE assignment_id = $1`
		args = append(args, assignmentID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) classify(ctx context.Context, disputeID string) error {
	var status Status
	if err := r.pool.QueryRow(ctx, `SELECT status FROM disputes WHERE id = $1`, disputeID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("dispute: classify: %w", err)
	}
	if status == StatusResolved {
		return ErrAlreadyResolved
	}
	return ErrNotFound
}

func scanDispute(row pgx.Row) (Record, error) {
	var (
		rec      Record
		raisedBy *string
	)
	err := row.Scan(
		&rec.ID,
		&rec.AssignmentID,
		&rec.RaisedByRole,
		&raisedBy,
		&rec.Reason,
		&rec.Evidence,
		&rec.Status,
		&rec.Outcome,
		&rec.SplitAgentAmount,
		&rec.CreatedAt,
		&rec.ResolvedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if raisedBy != nil {
		rec.RaisedByID = *raisedBy
	}
	return rec, nil
}
