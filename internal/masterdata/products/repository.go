package products

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/masterdata/shared"
	sharederr "github.com/meridian-erp/meridian/internal/shared"
)

// Repository provides product persistence.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, id int64, product Product) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, code, name, kind, category_id, unit_id, standard_cost, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM products WHERE 1=1`
	args := []any{}
	argCount := 0

	appendCond := func(cond string, value any) {
		argCount++
		placeholder := "$" + strconv.Itoa(argCount)
		query += ` AND ` + cond + placeholder
		countQuery += ` AND ` + cond + placeholder
		args = append(args, value)
	}

	if filters.CategoryID != nil {
		appendCond("category_id = ", *filters.CategoryID)
	}
	if filters.Search != "" {
		argCount++
		placeholder := "$" + strconv.Itoa(argCount)
		clause := ` AND (name ILIKE ` + placeholder + ` OR code ILIKE ` + placeholder + `)`
		query += clause
		countQuery += clause
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		appendCond("is_active = ", *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY code ASC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, filters.Offset())
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, sharederr.ErrNotFound
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO products (code, name, kind, category_id, unit_id, standard_cost, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`,
		product.Code, product.Name, string(product.Kind), product.CategoryID, product.UnitID, product.StandardCost, product.IsActive, now).Scan(&product.ID)
	if err != nil {
		return Product{}, err
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *repository) Update(ctx context.Context, id int64, product Product) error {
	_, err := r.db.Exec(ctx, `UPDATE products SET code=$1, name=$2, kind=$3, category_id=$4, unit_id=$5, standard_cost=$6, is_active=$7, updated_at=$8 WHERE id=$9`,
		product.Code, product.Name, string(product.Kind), product.CategoryID, product.UnitID, product.StandardCost, product.IsActive, time.Now(), id)
	return err
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var kind string
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &kind, &p.CategoryID, &p.UnitID, &p.StandardCost, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	p.Kind = Kind(kind)
	return p, nil
}
