package escrow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// integrationPool connects to a real PostgreSQL via DATABASE_URL and skips
// the test when it is unset or the schema is missing.
func integrationPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	for _, table := range []string{"tasks", "escrows", "escrow_transfers", "agent_stats", "assignments"} {
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, table).Scan(&exists); err != nil {
			t.Fatalf("check table %s: %v", table, err)
		}
		if !exists {
			t.Skip("database schema missing; apply migrations/ against $DATABASE_URL")
		}
	}
	return pool
}

type escrowFixture struct {
	buyerID  string
	agentID  string
	taskID   string
	escrowID string
}

// seedHeldEscrow creates an assigned task with a held escrow of 500 and
// registers cleanup for everything it inserts.
func seedHeldEscrow(ctx context.Context, t *testing.T, pool *pgxpool.Pool) escrowFixture {
	t.Helper()
	var f escrowFixture
	nonce := time.Now().UnixNano()

	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, role) VALUES ($1, 'Buyer', 'x', 'buyer') RETURNING id`,
		fmt.Sprintf("buyer+%d@example.com", nonce)).Scan(&f.buyerID); err != nil {
		t.Fatalf("seed buyer: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, role) VALUES ($1, 'Agent', 'x', 'agent') RETURNING id`,
		fmt.Sprintf("agent+%d@example.com", nonce)).Scan(&f.agentID); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO tasks (buyer_id, title, status, budget_amount, budget_currency, auction_type, auction_ends_at)
		VALUES ($1, 'integration task', 'assigned', 500, 'USD', 'sealed_bid', now() - interval '1 minute')
		RETURNING id`, f.buyerID).Scan(&f.taskID); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO assignments (task_id, agent_id, status) VALUES ($1, $2, 'active')`, f.taskID, f.agentID); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO escrows (task_id, amount, currency, status) VALUES ($1, 500, 'USD', 'held') RETURNING id`, f.taskID).Scan(&f.escrowID); err != nil {
		t.Fatalf("seed escrow: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool.Exec(ctx2, `DELETE FROM escrow_transfers WHERE escrow_id = $1`, f.escrowID)
		pool.Exec(ctx2, `DELETE FROM agent_stats WHERE agent_id = $1`, f.agentID)
		pool.Exec(ctx2, `DELETE FROM escrows WHERE id = $1`, f.escrowID)
		pool.Exec(ctx2, `DELETE FROM assignments WHERE task_id = $1`, f.taskID)
		pool.Exec(ctx2, `DELETE FROM tasks WHERE id = $1`, f.taskID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2)`, f.buyerID, f.agentID)
	})
	return f
}

// TestRelease_Integration verifies the release path against a live database:
// funds move on the first call, a repeat observes ErrAlreadyReleased, and the
// agent's revenue counters are credited exactly once.
func TestRelease_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := integrationPool(ctx, t)
	f := seedHeldEscrow(ctx, t, pool)
	repo := NewRepository(pool)

	// A payee who is not the winner never moves money.
	if _, err := repo.Release(ctx, f.escrowID, f.buyerID); !errors.Is(err, ErrRecipientMismatch) {
		t.Fatalf("expected ErrRecipientMismatch for wrong payee, got %v", err)
	}

	e, err := repo.Release(ctx, f.escrowID, f.agentID)
	if err != nil {
		t.Fatalf("release (first): %v", err)
	}
	if e.Status != StatusReleased {
		t.Fatalf("expected released, got %s", e.Status)
	}

	stats, err := repo.AgentStats(ctx, f.agentID)
	if err != nil {
		t.Fatalf("agent stats: %v", err)
	}
	if stats.JobsCompleted != 1 || stats.RevenueTotal != 500 {
		t.Fatalf("unexpected stats after release: %+v", stats)
	}

	// The repeat is the exactly-once guarantee: no second credit, no second
	// transfer row.
	if _, err := repo.Release(ctx, f.escrowID, f.agentID); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("expected ErrAlreadyReleased on repeat, got %v", err)
	}

	stats, err = repo.AgentStats(ctx, f.agentID)
	if err != nil {
		t.Fatalf("agent stats (repeat): %v", err)
	}
	if stats.JobsCompleted != 1 || stats.RevenueTotal != 500 {
		t.Fatalf("repeat release re-credited the agent: %+v", stats)
	}

	var transfers int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM escrow_transfers WHERE escrow_id = $1`, f.escrowID).Scan(&transfers); err != nil {
		t.Fatalf("count transfers: %v", err)
	}
	if transfers != 1 {
		t.Fatalf("expected exactly 1 transfer, got %d", transfers)
	}
}

// TestSplitDisputed_Integration freezes a held escrow and verifies the split
// bounds: an agent share past the held amount is rejected with the sentinel,
// and a valid split writes two transfers summing to the held amount.
func TestSplitDisputed_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := integrationPool(ctx, t)
	f := seedHeldEscrow(ctx, t, pool)
	repo := NewRepository(pool)

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin freeze tx: %v", err)
	}
	if _, err := repo.MarkDisputed(ctx, tx, f.taskID); err != nil {
		tx.Rollback(ctx)
		t.Fatalf("mark disputed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit freeze: %v", err)
	}

	// Over-held share rolls back without touching the escrow.
	tx, err = pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin over-split tx: %v", err)
	}
	if _, err := repo.SplitDisputed(ctx, tx, f.escrowID, f.agentID, 501); !errors.Is(err, ErrSplitOutOfRange) {
		tx.Rollback(ctx)
		t.Fatalf("expected ErrSplitOutOfRange for 501 of 500, got %v", err)
	}
	tx.Rollback(ctx)

	e, err := repo.GetByID(ctx, f.escrowID)
	if err != nil {
		t.Fatalf("reload escrow: %v", err)
	}
	if e.Status != StatusDisputed {
		t.Fatalf("rejected split must leave the escrow frozen, got %s", e.Status)
	}

	tx, err = pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin split tx: %v", err)
	}
	if _, err := repo.SplitDisputed(ctx, tx, f.escrowID, f.agentID, 200); err != nil {
		tx.Rollback(ctx)
		t.Fatalf("split disputed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit split: %v", err)
	}

	var count int
	var sum int64
	if err := pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM escrow_transfers WHERE escrow_id = $1 AND superseded = false`, f.escrowID).Scan(&count, &sum); err != nil {
		t.Fatalf("sum transfers: %v", err)
	}
	if count != 2 || sum != 500 {
		t.Fatalf("expected 2 transfers summing to 500, got count=%d sum=%d", count, sum)
	}
}

// TestMarkDisputedAfterRelease_Integration checks the clawback window: a
// dispute freezing a released-but-unsettled escrow supersedes the payout and
// reverses the agent credit, while external settlement closes that window.
func TestMarkDisputedAfterRelease_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := integrationPool(ctx, t)
	f := seedHeldEscrow(ctx, t, pool)
	repo := NewRepository(pool)

	if _, err := repo.Release(ctx, f.escrowID, f.agentID); err != nil {
		t.Fatalf("release: %v", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin freeze tx: %v", err)
	}
	if _, err := repo.MarkDisputed(ctx, tx, f.taskID); err != nil {
		tx.Rollback(ctx)
		t.Fatalf("mark disputed after release: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit freeze: %v", err)
	}

	var superseded int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM escrow_transfers WHERE escrow_id = $1 AND superseded = true`, f.escrowID).Scan(&superseded); err != nil {
		t.Fatalf("count superseded: %v", err)
	}
	if superseded != 1 {
		t.Fatalf("expected the release transfer superseded, got %d", superseded)
	}

	stats, err := repo.AgentStats(ctx, f.agentID)
	if err != nil {
		t.Fatalf("agent stats: %v", err)
	}
	if stats.JobsCompleted != 0 || stats.RevenueTotal != 0 {
		t.Fatalf("expected the credit reversed, got %+v", stats)
	}

	// Refund the frozen escrow, then confirm a settled payout cannot be
	// frozen: MarkSettled requires released, and this one is now refunded.
	tx, err = pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin refund tx: %v", err)
	}
	if _, err := repo.RefundDisputed(ctx, tx, f.escrowID); err != nil {
		tx.Rollback(ctx)
		t.Fatalf("refund disputed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit refund: %v", err)
	}

	if _, err := repo.MarkSettled(ctx, f.escrowID); !errors.Is(err, ErrAlreadyRefunded) {
		t.Fatalf("expected ErrAlreadyRefunded from settle on refunded escrow, got %v", err)
	}
}

// TestMarkSettled_Integration confirms external settlement flips the flag on
// a released escrow and that the settled payout can no longer be frozen.
func TestMarkSettled_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := integrationPool(ctx, t)
	f := seedHeldEscrow(ctx, t, pool)
	repo := NewRepository(pool)

	// Not released yet.
	if _, err := repo.MarkSettled(ctx, f.escrowID); !errors.Is(err, ErrNotReleased) {
		t.Fatalf("expected ErrNotReleased before release, got %v", err)
	}

	if _, err := repo.Release(ctx, f.escrowID, f.agentID); err != nil {
		t.Fatalf("release: %v", err)
	}
	e, err := repo.MarkSettled(ctx, f.escrowID)
	if err != nil {
		t.Fatalf("mark settled: %v", err)
	}
	if !e.SettledExternally {
		t.Fatalf("expected settled_externally set, got %+v", e)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin freeze tx: %v", err)
	}
	_, err = repo.MarkDisputed(ctx, tx, f.taskID)
	tx.Rollback(ctx)
	if !errors.Is(err, ErrNotHeld) {
		t.Fatalf("settled payout must not freeze, got %v", err)
	}
}
