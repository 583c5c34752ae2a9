package procurement

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort is the persistence surface the service consumes.
type RepositoryPort interface {
	GetRequest(ctx context.Context, id int64) (PurchaseRequest, []RequestLine, error)
	ListRequestLines(ctx context.Context, filter RequestLineFilter) ([]RequestLine, error)
	GetRequestLines(ctx context.Context, ids []int64) ([]RequestLine, error)
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error)
	GetAgreement(ctx context.Context, id int64) (Agreement, []AgreementLine, error)
	ListAgreements(ctx context.Context, filter AgreementFilter) ([]Agreement, error)
	ActiveAgreementLine(ctx context.Context, productID int64, at time.Time) (AgreementLine, int64, bool, error)
	CheapestQuote(ctx context.Context, productID int64, at time.Time) (VendorQuote, bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertRequest(ctx context.Context, r PurchaseRequest) (int64, error)
	InsertRequestLine(ctx context.Context, line RequestLine) (int64, error)
	SetRequestState(ctx context.Context, id int64, state RequestState) error

	InsertOrder(ctx context.Context, o PurchaseOrder) (int64, error)
	InsertOrderLine(ctx context.Context, line OrderLine) (int64, error)
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	SetOrderState(ctx context.Context, id int64, state OrderState) error
	SetOrderApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time) error
	GetOrderLineForUpdate(ctx context.Context, id int64) (OrderLine, error)
	SetOrderLineReceived(ctx context.Context, id int64, receivedQty float64) error

	InsertQuote(ctx context.Context, q VendorQuote) (int64, error)

	InsertAgreement(ctx context.Context, a Agreement) (int64, error)
	InsertAgreementLine(ctx context.Context, line AgreementLine) (int64, error)
	GetAgreementForUpdate(ctx context.Context, id int64) (Agreement, error)
	SetAgreementState(ctx context.Context, id int64, state AgreementState) error
	ExpireAgreements(ctx context.Context, asOf time.Time) ([]Agreement, error)
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	State     OrderState
	VendorID  int64
	SessionID int64
	CompanyID int64
	Limit     int
}

// AgreementFilter narrows agreement listings.
type AgreementFilter struct {
	State    AgreementState
	VendorID int64
	Limit    int
}

// Repository persists procurement data in PostgreSQL.
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
