package policy

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort is the persistence surface the service consumes.
type RepositoryPort interface {
	Create(ctx context.Context, rule Rule) (int64, error)
	Update(ctx context.Context, rule Rule) error
	Get(ctx context.Context, id int64) (Rule, error)
	List(ctx context.Context, filter ListFilter) ([]Rule, error)
	// FindForProduct returns the most specific active rule for a product,
	// preferring a warehouse-scoped rule over a global one.
	FindForProduct(ctx context.Context, productID, warehouseID int64) (Rule, bool, error)
	FindForCategory(ctx context.Context, categoryID, warehouseID int64) (Rule, bool, error)
	FindDefault(ctx context.Context, warehouseID int64) (Rule, bool, error)
}

// ListFilter narrows rule listings.
type ListFilter struct {
	WarehouseID int64
	ProductID   int64
	CategoryID  int64
	ActiveOnly  bool
	Limit       int
}

// Repository persists stock policy rules in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, name, COALESCE(warehouse_id,0), COALESCE(product_id,0), COALESCE(category_id,0),
	safety_stock, min_qty, reorder_point, max_qty, lead_time_days, priority, active, created_at, updated_at`

func scanRule(row pgx.Row) (Rule, error) {
	var r Rule
	err := row.Scan(&r.ID, &r.Name, &r.WarehouseID, &r.ProductID, &r.CategoryID,
		&r.SafetyStock, &r.MinQty, &r.ReorderPoint, &r.MaxQty, &r.LeadTimeDays,
		&r.Priority, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (r *Repository) Create(ctx context.Context, rule Rule) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO stock_policy_rules
			(name, warehouse_id, product_id, category_id, safety_stock, min_qty,
			 reorder_point, max_qty, lead_time_days, priority, active, created_at, updated_at)
		VALUES ($1,NULLIF($2,0),NULLIF($3,0),NULLIF($4,0),$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
		RETURNING id`,
		rule.Name, rule.WarehouseID, rule.ProductID, rule.CategoryID, rule.SafetyStock,
		rule.MinQty, rule.ReorderPoint, rule.MaxQty, rule.LeadTimeDays, rule.Priority,
		rule.Active).Scan(&id)
	return id, err
}

func (r *Repository) Update(ctx context.Context, rule Rule) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE stock_policy_rules SET
			name=$2, warehouse_id=NULLIF($3,0), product_id=NULLIF($4,0),
			category_id=NULLIF($5,0), safety_stock=$6, min_qty=$7, reorder_point=$8,
			max_qty=$9, lead_time_days=$10, priority=$11, active=$12, updated_at=NOW()
		WHERE id=$1`,
		rule.ID, rule.Name, rule.WarehouseID, rule.ProductID, rule.CategoryID,
		rule.SafetyStock, rule.MinQty, rule.ReorderPoint, rule.MaxQty,
		rule.LeadTimeDays, rule.Priority, rule.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM stock_policy_rules WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrRuleNotFound
	}
	return rule, err
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM stock_policy_rules WHERE 1=1`
	args := []any{}
	idx := 1
	add := func(clause string, v any) {
		args = append(args, v)
		query += clause
	}
	if filter.WarehouseID != 0 {
		add(` AND warehouse_id=$`+strconv.Itoa(idx), filter.WarehouseID)
		idx++
	}
	if filter.ProductID != 0 {
		add(` AND product_id=$`+strconv.Itoa(idx), filter.ProductID)
		idx++
	}
	if filter.CategoryID != 0 {
		add(` AND category_id=$`+strconv.Itoa(idx), filter.CategoryID)
		idx++
	}
	if filter.ActiveOnly {
		query += ` AND active`
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	add(` ORDER BY priority DESC, id LIMIT $`+strconv.Itoa(idx), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// Warehouse-scoped rules win over global ones at the same precedence tier;
// within a tier, higher priority wins.
const scopedOrder = ` AND active AND (warehouse_id=$2 OR warehouse_id IS NULL)
	ORDER BY warehouse_id NULLS LAST, priority DESC, id LIMIT 1`

func (r *Repository) FindForProduct(ctx context.Context, productID, warehouseID int64) (Rule, bool, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM stock_policy_rules WHERE product_id=$1`+scopedOrder,
		productID, warehouseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, false, nil
	}
	if err != nil {
		return Rule{}, false, err
	}
	return rule, true, nil
}

func (r *Repository) FindForCategory(ctx context.Context, categoryID, warehouseID int64) (Rule, bool, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM stock_policy_rules WHERE category_id=$1`+scopedOrder,
		categoryID, warehouseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, false, nil
	}
	if err != nil {
		return Rule{}, false, err
	}
	return rule, true, nil
}

func (r *Repository) FindDefault(ctx context.Context, warehouseID int64) (Rule, bool, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+` FROM stock_policy_rules
		WHERE product_id IS NULL AND category_id IS NULL
		  AND active AND (warehouse_id=$1 OR warehouse_id IS NULL)
		ORDER BY warehouse_id NULLS LAST, priority DESC, id LIMIT 1`,
		warehouseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, false, nil
	}
	if err != nil {
		return Rule{}, false, err
	}
	return rule, true, nil
}
