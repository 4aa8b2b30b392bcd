// Package chaos injects connection-level failures into stress runs so the
// conditional escrow and auction writes can prove they stay exactly-once
// when a session dies mid-transaction.
package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend periodically kills one random backend of the
// current database. When appLike is non-empty only sessions whose
// application_name matches the pattern are candidates, which keeps the
// killer away from the oracle connections. A killed session rolls its
// open transaction back, so the brokering writes it was holding must
// either commit fully or leave no trace.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, appLike string, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) != 0 {
				continue
			}
			if appLike != "" {
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
					WHERE datname = current_database() AND pid <> pg_backend_pid() AND application_name LIKE $1
					ORDER BY random() LIMIT 1`, appLike)
				continue
			}
			_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
				WHERE datname = current_database() AND pid <> pg_backend_pid()
				ORDER BY random() LIMIT 1`)
		}
	}
}
