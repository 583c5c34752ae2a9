package fulfillment

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort is the persistence surface the service consumes.
type RepositoryPort interface {
	GetPlan(ctx context.Context, id int64) (Plan, error)
	ListPlans(ctx context.Context, filter PlanFilter) ([]Plan, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations. Plan rows feeding a receipt
// are locked FOR UPDATE so racing partial receipts cannot lose updates.
type TxRepository interface {
	InsertPlan(ctx context.Context, p Plan) (int64, error)
	GetPlanForUpdate(ctx context.Context, id int64) (Plan, error)
	UpdatePlan(ctx context.Context, p Plan) error
	PlansByPOLineForUpdate(ctx context.Context, poLineID int64) ([]Plan, error)
}

// PlanFilter narrows plan listings.
type PlanFilter struct {
	SessionID     int64
	RequestLineID int64
	Status        PlanStatus
	Limit         int
}

// Repository persists fulfillment plans in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
