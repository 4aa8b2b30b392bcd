package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"taskbroker/test/actors"
	"taskbroker/test/chaos"
	"taskbroker/test/infra"
	"taskbroker/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestAuctionConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// seed minimal data
	seedData := mustSeed(t, ctx, pool)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// agents battling over the same auction
	for i := 0; i < *flConcurrency; i++ {
		agentID := seedData.agentIDs[i%len(seedData.agentIDs)]
		g.Go(func() error { return actors.Bidder(ctx2, pool, seedData.taskID, agentID, stop) })
	}
	// two closers racing to settle the same auction
	g.Go(func() error { return actors.Closer(ctx2, pool, seedData.taskID, stop) })
	g.Go(func() error { return actors.Closer(ctx2, pool, seedData.taskID, stop) })
	// releaser hammering the payout path
	g.Go(func() error { return actors.Releaser(ctx2, pool, seedData.taskID, stop) })
	// disputer racing the releaser
	g.Go(func() error { return actors.Disputer(ctx2, pool, seedData.taskID, stop) })
	// two outbox workers proving SKIP LOCKED keeps delivery single
	g.Go(func() error { return actors.OutboxWorker(ctx2, pool, stop) })
	g.Go(func() error { return actors.OutboxWorker(ctx2, pool, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, "", stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	buyerID  string
	agentIDs []string
	taskID   string
	escrowID string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	// buyer
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, role) VALUES ($1,'Stress Buyer','x','buyer') RETURNING id`,
		fmt.Sprintf("buyer%d@example.com", rand.Int63())).Scan(&s.buyerID); err != nil {
		t.Fatalf("seed buyer: %v", err)
	}
	// agents
	for i := 0; i < 4; i++ {
		var id string
		if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, role) VALUES ($1,'Stress Agent','x','agent') RETURNING id`,
			fmt.Sprintf("agent%d-%d@example.com", i, rand.Int63())).Scan(&id); err != nil {
			t.Fatalf("seed agent: %v", err)
		}
		s.agentIDs = append(s.agentIDs, id)
	}
	// open task with a live auction window
	if err := pool.QueryRow(ctx, `INSERT INTO tasks (buyer_id, title, status, budget_amount, budget_currency, auction_type, auction_ends_at)
	                              VALUES ($1, 'stress task', 'open', 1000, 'USD', 'sealed_bid', now() + interval '1 hour') RETURNING id`,
		s.buyerID).Scan(&s.taskID); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	// held escrow backing the task
	if err := pool.QueryRow(ctx, `INSERT INTO escrows (task_id, amount, currency, status) VALUES ($1, 1000, 'USD', 'held') RETURNING id`,
		s.taskID).Scan(&s.escrowID); err != nil {
		t.Fatalf("seed escrow: %v", err)
	}
	// pending outbox row so the workers have something from second zero
	_, _ = pool.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('auction.created', jsonb_build_object('task_id',$1::text))`, s.taskID)
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"tasks", `SELECT id, status, auction_ends_at, updated_at FROM tasks ORDER BY updated_at DESC LIMIT 20`},
		{"bids", `SELECT id, task_id, agent_id, amount, status, submitted_at FROM bids ORDER BY submitted_at DESC LIMIT 50`},
		{"assignments", `SELECT id, task_id, agent_id, status, created_at FROM assignments ORDER BY created_at DESC LIMIT 20`},
		{"escrows", `SELECT id, task_id, amount, status, updated_at FROM escrows ORDER BY updated_at DESC LIMIT 20`},
		{"escrow_transfers", `SELECT id, escrow_id, recipient_kind, amount, superseded, created_at FROM escrow_transfers ORDER BY created_at DESC LIMIT 50`},
		{"disputes", `SELECT id, assignment_id, status, outcome, created_at FROM disputes ORDER BY created_at DESC LIMIT 20`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
