package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"taskbroker/logger"
)

// SweepOutcome is one row of the batch report: a task the sweep attempted
// to close and what happened to it.
type SweepOutcome struct {
	TaskID   string  `json:"taskId"`
	Success  bool    `json:"success"`
	WinnerID *string `json:"winnerId,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Sweeper closes auctions whose deadline has passed, a bounded batch at a
// time. Failures are isolated per task: one broken close never aborts the
// rest of the batch.
type Sweeper struct {
	pool      *pgxpool.Pool
	closer    *Closer
	batchSize int
	log       *logger.Logger
}

func NewSweeper(pool *pgxpool.Pool, closer *Closer, batchSize int, log *logger.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 10
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{pool: pool, closer: closer, batchSize: batchSize, log: log}
}

// Sweep closes one batch of expired open auctions and reports per-task
// outcomes. Losing the close race to a manual close counts as handled, not
// failed: the auction did get closed exactly once.
func (s *Sweeper) Sweep(ctx context.Context) ([]SweepOutcome, error) {
	const query = `
		SELECT id FROM tasks
		WHERE status = 'open' AND auction_ends_at <= now()
		ORDER BY auction_ends_at ASC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("auction: sweep select: %w", err)
	}
	defer rows.Close()

	var taskIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("auction: sweep scan: %w", err)
		}
		taskIDs = append(taskIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auction: sweep iterate: %w", err)
	}

	outcomes := make([]SweepOutcome, len(taskIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range taskIDs {
		g.Go(func() error {
			outcome := s.closeOne(gctx, id)
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (s *Sweeper) closeOne(ctx context.Context, taskID string) SweepOutcome {
	res, err := s.closer.Close(ctx, taskID)
	switch {
	case err == nil:
		out := SweepOutcome{TaskID: taskID, Success: true}
		if !res.Cancelled {
			out.WinnerID = &res.WinnerID
		}
		s.log.Infow("auction swept", "task_id", taskID, "cancelled", res.Cancelled, "winner_id", res.WinnerID)
		return out
	case errors.Is(err, ErrAlreadyClosed):
		// A manual close won the race; nothing left to do here.
		return SweepOutcome{TaskID: taskID, Success: true, Error: err.Error()}
	default:
		s.log.Errorw("auction sweep close failed", "task_id", taskID, "error", err)
		return SweepOutcome{TaskID: taskID, Success: false, Error: err.Error()}
	}
}

// Run drives Sweep on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Errorw("auction sweep batch failed", "error", err)
			}
		}
	}
}
