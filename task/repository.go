package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("task: not found")
)

const taskColumns = `id, buyer_id, title, status, budget_amount, budget_currency,
       skills, data_class, region, min_trust_score, min_stake,
       auction_type, auction_ends_at, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, t Task) (Task, error)
	GetByID(ctx context.Context, id string) (Task, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts the task inside the caller's transaction so the escrow hold
// lands atomically alongside it.
func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, t Task) (Task, error) {
	const query = `
		INSERT INTO tasks (id, buyer_id, title, status, budget_amount, budget_currency,
			skills, data_class, region, min_trust_score, min_stake,
			auction_type, auction_ends_at)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + taskColumns

	row := tx.QueryRow(ctx, query,
		t.ID,
		t.BuyerID,
		t.Title,
		t.Status,
		t.BudgetAmount,
		t.BudgetCurrency,
		t.Requirements.Skills,
		t.Requirements.DataClass,
		t.Requirements.Region,
		t.Requirements.MinTrustScore,
		t.Requirements.MinStake,
		t.AuctionType,
		t.AuctionEndsAt,
	)
	created, err := scanTask(row)
	if err != nil {
		return Task{}, fmt.Errorf("task: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("task: get by id: %w", err)
	}
	return t, nil
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(
		&t.ID,
		&t.BuyerID,
		&t.Title,
		&t.Status,
		&t.BudgetAmount,
		&t.BudgetCurrency,
		&t.Requirements.Skills,
		&t.Requirements.DataClass,
		&t.Requirements.Region,
		&t.Requirements.MinTrustScore,
		&t.Requirements.MinStake,
		&t.AuctionType,
		&t.AuctionEndsAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}
