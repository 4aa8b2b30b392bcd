package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"taskbroker/logger"
)

// Dispatcher delivers one message to its downstream consumer (notification
// service, audit sink). Errors trigger a retry on the next pass until the
// message exhausts its attempts and goes dead.
type Dispatcher interface {
	Dispatch(ctx context.Context, topic string, payload []byte) error
}

// Worker drains pending outbox rows. Several workers may run concurrently;
// SKIP LOCKED keeps them from double-delivering.
type Worker struct {
	pool      *pgxpool.Pool
	repo      *Repository
	dispatch  Dispatcher
	batchSize int
	log       *logger.Logger
}

func NewWorker(pool *pgxpool.Pool, repo *Repository, dispatch Dispatcher, batchSize int, log *logger.Logger) *Worker {
	if batchSize <= 0 {
		batchSize = 20
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{pool: pool, repo: repo, dispatch: dispatch, batchSize: batchSize, log: log}
}

// DrainOnce claims and delivers one batch. Returns the number of messages it
// attempted.
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	msgs, err := w.repo.claimPending(ctx, tx, w.batchSize)
	if err != nil {
		return 0, err
	}

	for _, m := range msgs {
		if err := w.dispatch.Dispatch(ctx, m.Topic, m.Payload); err != nil {
			w.log.Warnw("outbox delivery failed", "id", m.ID, "topic", m.Topic, "attempts", m.Attempts+1, "error", err)
			if err := w.repo.markFailed(ctx, tx, m.ID); err != nil {
				return 0, err
			}
			continue
		}
		if err := w.repo.markProcessed(ctx, tx, m.ID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// Run drains on a fixed interval until the context is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.DrainOnce(ctx); err != nil {
				w.log.Errorw("outbox drain failed", "error", err)
			}
		}
	}
}
