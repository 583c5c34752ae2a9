package consolidation

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort is the persistence surface the service consumes.
type RepositoryPort interface {
	GetSession(ctx context.Context, id int64) (Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	GetLine(ctx context.Context, id int64) (ConsolidatedLine, error)
	ListLines(ctx context.Context, sessionID int64) ([]ConsolidatedLine, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations. Session rows are locked
// FOR UPDATE so the two write paths (line-set mutation and plan updates)
// serialize per session.
type TxRepository interface {
	InsertSession(ctx context.Context, s Session) (int64, error)
	GetSessionForUpdate(ctx context.Context, id int64) (Session, error)
	UpdateSession(ctx context.Context, s Session) error
	ListLines(ctx context.Context, sessionID int64) ([]ConsolidatedLine, error)
	GetLineForProduct(ctx context.Context, sessionID, productID int64) (ConsolidatedLine, bool, error)
	InsertLine(ctx context.Context, line ConsolidatedLine) (int64, error)
	UpdateLine(ctx context.Context, line ConsolidatedLine) error
	DeleteLine(ctx context.Context, id int64) error
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	State         SessionState
	WarehouseID   int64
	CompanyID     int64
	ResponsibleID int64
	From          time.Time
	To            time.Time
	Limit         int
}

// Repository persists consolidation data in PostgreSQL.
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

// WithTx wraps the callback in a repeatable-read transaction so a partial
// aggregation or classification failure leaves the session untouched.
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
