package inventory

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort is the read surface the service and other modules consume.
type RepositoryPort interface {
	GetMovement(ctx context.Context, id int64) (Movement, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	GetBalance(ctx context.Context, locationID, productID int64) (Balance, error)
	SumBalanceAtWarehouse(ctx context.Context, warehouseID, productID int64) (float64, error)
	SumScheduled(ctx context.Context, locationID, productID int64, dir Direction, until time.Time) (float64, error)
	NextOpenInbound(ctx context.Context, locationID, productID int64) (ScheduledQty, bool, error)
	SumCompletedOutboundSince(ctx context.Context, warehouseID, productID int64, since time.Time) (float64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	GetMovementForUpdate(ctx context.Context, id int64) (Movement, error)
	SetMovementState(ctx context.Context, id int64, state MovementState, completedAt time.Time) error
	GetBalanceForUpdate(ctx context.Context, locationID, productID int64) (Balance, error)
	UpsertBalance(ctx context.Context, b Balance) error
	LocationUsage(ctx context.Context, locationID int64) (string, error)
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID  int64
	LocationID int64
	State      MovementState
	RefModule  string
	RefID      string
	Limit      int
}

// Repository persists inventory data in PostgreSQL.
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

// WithTx wraps the callback in a repeatable-read transaction. Balance math
// depends on the rows it read staying put until commit.
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
