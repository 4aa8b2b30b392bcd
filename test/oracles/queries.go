package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_unique_active_bid",
			SQL: `SELECT task_id, agent_id, COUNT(*) FROM bids
                  WHERE status = 'active'
                  GROUP BY task_id, agent_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_unique_assignment",
			SQL: `SELECT task_id, COUNT(*) FROM assignments
                  GROUP BY task_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_no_assignment_while_open",
			SQL: `SELECT a.id FROM assignments a
                  JOIN tasks t ON t.id = a.task_id
                  WHERE t.status = 'open'`,
		},
		{
			Name: "O4_escrow_conservation",
			SQL: `SELECT e.id, e.amount, SUM(tr.amount) FROM escrows e
                  JOIN escrow_transfers tr ON tr.escrow_id = e.id
                  WHERE tr.superseded = false
                  GROUP BY e.id, e.amount HAVING SUM(tr.amount) > e.amount`,
		},
		{
			Name: "O5_terminal_escrow_transfer",
			SQL: `SELECT e.id, e.status FROM escrows e
                  WHERE (e.status = 'released' AND NOT EXISTS (
                            SELECT 1 FROM escrow_transfers tr
                            WHERE tr.escrow_id = e.id AND tr.recipient_kind = 'agent'))
                     OR (e.status = 'refunded' AND NOT EXISTS (
                            SELECT 1 FROM escrow_transfers tr
                            WHERE tr.escrow_id = e.id AND tr.recipient_kind = 'buyer'))`,
		},
		{
			Name: "O6_cancelled_task_refunded",
			SQL: `SELECT t.id FROM tasks t
                  JOIN escrows e ON e.task_id = t.id
                  WHERE t.status = 'cancelled' AND e.status NOT IN ('refunded', 'resolved')`,
		},
		{
			Name: "O7_single_winner_matches_assignment",
			SQL: `SELECT b.task_id FROM bids b
                  WHERE b.status = 'won'
                  GROUP BY b.task_id HAVING COUNT(*) > 1
                  UNION ALL
                  SELECT b.task_id FROM bids b
                  JOIN assignments a ON a.task_id = b.task_id
                  WHERE b.status = 'won' AND b.agent_id <> a.agent_id`,
		},
		{
			Name: "O8_outbox_not_stale",
			SQL: `SELECT id::text FROM outbox
                  WHERE status = 'pending'
                    AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O9_unique_open_dispute",
			SQL: `SELECT assignment_id, COUNT(*) FROM disputes
                  WHERE status = 'open'
                  GROUP BY assignment_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O10_resolved_dispute_escrow_terminal",
			SQL: `SELECT d.id FROM disputes d
                  JOIN assignments a ON a.id = d.assignment_id
                  JOIN escrows e ON e.task_id = a.task_id
                  WHERE d.status = 'resolved' AND e.status IN ('held', 'disputed')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
