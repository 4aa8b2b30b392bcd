package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Bidder repeatedly re-bids on one task for one agent: lock the task row,
// supersede the agent's prior active bid, insert the new one. Mirrors the
// production submit path.
func Bidder(ctx context.Context, pool *pgxpool.Pool, taskID, agentID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		err := func() error {
			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)

			var status string
			var pastDeadline bool
			err = tx.QueryRow(ctx, `SELECT status, now() >= auction_ends_at FROM tasks WHERE id=$1 FOR UPDATE`, taskID).Scan(&status, &pastDeadline)
			if err != nil {
				return err
			}
			if status != "open" || pastDeadline {
				return nil
			}

			if _, err := tx.Exec(ctx, `UPDATE bids SET status='superseded' WHERE task_id=$1 AND agent_id=$2 AND status='active'`, taskID, agentID); err != nil {
				return err
			}
			amount := int64(100 + rand.Intn(900))
			if _, err := tx.Exec(ctx, `INSERT INTO bids (task_id, agent_id, amount, currency, status) VALUES ($1,$2,$3,'USD','active')`, taskID, agentID, amount); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err != nil && !recoverable(err) {
			return fmt.Errorf("bidder: %w", err)
		}

		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Closer races to end the auction: row lock, winner selection over active
// bids, assignment insert, conditional status settle. Losing the race shows
// up as a non-open status or a 23505 on the assignment, both expected.
func Closer(ctx context.Context, pool *pgxpool.Pool, taskID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		err := closeOnce(ctx, pool, taskID)
		if err != nil && !recoverable(err) {
			return fmt.Errorf("closer: %w", err)
		}

		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

func closeOnce(ctx context.Context, pool *pgxpool.Pool, taskID string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM tasks WHERE id=$1 FOR UPDATE`, taskID).Scan(&status); err != nil {
		return err
	}
	if status != "open" {
		return nil
	}

	var winnerBid, winnerAgent string
	err = tx.QueryRow(ctx, `SELECT id, agent_id FROM bids WHERE task_id=$1 AND status='active'
	                        ORDER BY amount ASC, submitted_at ASC, agent_id ASC LIMIT 1`, taskID).Scan(&winnerBid, &winnerAgent)
	if errors.Is(err, pgx.ErrNoRows) {
		// Zero bids: cancel and refund in the same commit.
		if _, err := tx.Exec(ctx, `UPDATE tasks SET status='cancelled', updated_at=now() WHERE id=$1 AND status='open'`, taskID); err != nil {
			return err
		}
		var escrowID string
		if err := tx.QueryRow(ctx, `UPDATE escrows SET status='refunded', updated_at=now() WHERE task_id=$1 AND status='held' RETURNING id`, taskID).Scan(&escrowID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO escrow_transfers (escrow_id, recipient_kind, recipient_id, amount)
		                           SELECT e.id, 'buyer', t.buyer_id, e.amount FROM escrows e JOIN tasks t ON t.id = e.task_id WHERE e.id=$1`, escrowID); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO assignments (task_id, agent_id, status) VALUES ($1,$2,'active')`, taskID, winnerAgent); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE tasks SET status='assigned', updated_at=now() WHERE id=$1 AND status='open'`, taskID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE bids SET status='won' WHERE id=$1 AND status='active'`, winnerBid); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE bids SET status='lost' WHERE task_id=$1 AND status='active' AND id <> $2`, taskID, winnerBid); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('auction.assigned', jsonb_build_object('task_id',$1::text))`, taskID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Releaser attempts the payout repeatedly. The conditional write guarantees
// at most one attempt ever moves money; repeats observe zero rows.
func Releaser(ctx context.Context, pool *pgxpool.Pool, taskID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		err := func() error {
			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)

			var agentID string
			err = tx.QueryRow(ctx, `SELECT agent_id FROM assignments WHERE task_id=$1`, taskID).Scan(&agentID)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}

			var escrowID string
			var amount int64
			err = tx.QueryRow(ctx, `UPDATE escrows SET status='released', updated_at=now() WHERE task_id=$1 AND status='held' RETURNING id, amount`, taskID).Scan(&escrowID, &amount)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}

			if _, err := tx.Exec(ctx, `INSERT INTO escrow_transfers (escrow_id, recipient_kind, recipient_id, amount) VALUES ($1,'agent',$2,$3)`, escrowID, agentID, amount); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO agent_stats (agent_id, jobs_completed, revenue_total) VALUES ($1,1,$2)
			                           ON CONFLICT (agent_id) DO UPDATE SET jobs_completed=agent_stats.jobs_completed+1, revenue_total=agent_stats.revenue_total+EXCLUDED.revenue_total, updated_at=now()`, agentID, amount); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err != nil && !recoverable(err) {
			return fmt.Errorf("releaser: %w", err)
		}

		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Disputer races the releaser: freeze a held escrow behind an open dispute,
// then resolve it with a refund. Duplicate open disputes collapse on the
// partial unique index.
func Disputer(ctx context.Context, pool *pgxpool.Pool, taskID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		err := func() error {
			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)

			var assignmentID string
			err = tx.QueryRow(ctx, `SELECT id FROM assignments WHERE task_id=$1 FOR UPDATE`, taskID).Scan(&assignmentID)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}

			var disputeID string
			err = tx.QueryRow(ctx, `INSERT INTO disputes (assignment_id, raised_by_role, reason, status)
			                        VALUES ($1,'buyer','stress contest','open') RETURNING id`, assignmentID).Scan(&disputeID)
			if err != nil {
				return err
			}
			var escrowID string
			err = tx.QueryRow(ctx, `UPDATE escrows SET status='disputed', updated_at=now() WHERE task_id=$1 AND status='held' RETURNING id`, taskID).Scan(&escrowID)
			if errors.Is(err, pgx.ErrNoRows) {
				// Escrow already terminal; drop the dispute attempt.
				return nil
			}
			if err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return err
			}

			// Resolve in a second transaction so the open dispute is visible
			// to concurrent raisers for a while.
			return resolveRefund(ctx, pool, disputeID, taskID, escrowID)
		}()
		if err != nil && !recoverable(err) {
			return fmt.Errorf("disputer: %w", err)
		}

		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

func resolveRefund(ctx context.Context, pool *pgxpool.Pool, disputeID, taskID, escrowID string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE disputes SET status='resolved', outcome='refund', resolved_at=now() WHERE id=$1 AND status='open'`, disputeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	var amount int64
	err = tx.QueryRow(ctx, `UPDATE escrows SET status='refunded', updated_at=now() WHERE id=$1 AND status='disputed' RETURNING amount`, escrowID).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO escrow_transfers (escrow_id, recipient_kind, recipient_id, amount)
	                           SELECT $1, 'buyer', buyer_id, $2 FROM tasks WHERE id=$3`, escrowID, amount, taskID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// OutboxWorker drains pending outbox rows with SKIP LOCKED so several copies
// never double-deliver.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at LIMIT 10 FOR UPDATE SKIP LOCKED`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1, status=CASE WHEN attempts+1 >= 5 THEN 'dead' ELSE 'pending' END WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed', processed_at=now() WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}

// recoverable reports whether an actor error is an expected casualty of
// contention or chaos rather than a bug: unique violations, serialization
// failures, and connections the chaos monkey killed.
func recoverable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01", "57P01", "57014", "08006", "08003":
			return true
		}
	}
	// pgx surfaces killed backends as plain connection errors.
	return pgconn.SafeToRetry(err) || errors.Is(err, pgx.ErrTxClosed)
}
